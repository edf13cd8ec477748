package migrate_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cartprice/internal/cart"
	"github.com/roach88/cartprice/internal/condition"
	"github.com/roach88/cartprice/internal/engine"
	"github.com/roach88/cartprice/internal/migrate"
	"github.com/roach88/cartprice/internal/pricing"
	"github.com/roach88/cartprice/internal/rules"
	"github.com/roach88/cartprice/internal/store"
	"github.com/roach88/cartprice/internal/testutil"
)

const instance = "default"

type fixture struct {
	storage cart.Storage
	service *cart.Service
	engine  *engine.Engine
	events  *testutil.RecordingSink
	locker  *cart.KeyedLocker
	logger  *slog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		storage: store.NewMemory(),
		events:  &testutil.RecordingSink{},
		locker:  cart.NewKeyedLocker(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	f.engine = engine.New(f.storage, rules.NewFactory(), engine.WithLocker(f.locker), engine.WithLogger(f.logger))
	f.service = cart.NewService(f.storage, pricing.NewPipeline(pricing.MustCurrency("USD", -1)),
		cart.WithEvaluator(f.engine), cart.WithLocker(f.locker), cart.WithLogger(f.logger))
	return f
}

func (f *fixture) migrator(strategy migrate.Strategy) *migrate.Migrator {
	return migrate.New(f.storage,
		migrate.WithRuleEngine(f.engine),
		migrate.WithLocker(f.locker),
		migrate.WithStrategy(strategy),
		migrate.WithEvents(f.events),
		migrate.WithLogger(f.logger),
	)
}

func (f *fixture) add(t *testing.T, owner, id string, qty int) {
	t.Helper()
	_, err := f.service.AddItem(context.Background(), cart.NewIdentity(owner, instance),
		cart.ItemDefinition{ID: id, Name: id, Price: 10, Quantity: qty})
	require.NoError(t, err)
}

func (f *fixture) items(t *testing.T, owner string) map[string]int {
	t.Helper()
	items, err := f.storage.GetItems(context.Background(), cart.NewIdentity(owner, instance))
	require.NoError(t, err)
	out := make(map[string]int, len(items))
	for _, it := range items {
		out[it.ID()] = it.Quantity()
	}
	return out
}

func (f *fixture) exists(t *testing.T, owner string) bool {
	t.Helper()
	ok, err := f.storage.Has(context.Background(), cart.NewIdentity(owner, instance))
	require.NoError(t, err)
	return ok
}

func TestMigrate_EmptyGuestTouchesNothing(t *testing.T) {
	f := newFixture(t)
	f.add(t, "user", "x", 1)

	res, err := f.migrator(migrate.AddQuantities).Migrate(context.Background(), "user", instance, "guest")
	require.NoError(t, err)
	assert.False(t, res.Migrated)
	assert.Equal(t, map[string]int{"x": 1}, f.items(t, "user"))
	assert.Empty(t, f.events.Events())
}

func TestMigrate_IntoEmptyUserCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := cart.NewIdentity("user", instance)
	f.add(t, "guest", "x", 1)

	stale := condition.MustNew(condition.Definition{Name: "stale-fee", Kind: "fee", Target: condition.TargetTotal, Value: "+5"})
	require.NoError(t, f.service.AddCondition(ctx, user, stale))
	require.NoError(t, f.service.SetMetadata(ctx, user, "note", "old"))

	res, err := f.migrator(migrate.AddQuantities).Migrate(ctx, "user", instance, "guest")
	require.NoError(t, err)
	assert.True(t, res.Migrated)
	assert.False(t, res.HadConflicts)
	assert.Equal(t, 1, res.ItemCount)
	assert.Equal(t, map[string]int{"x": 1}, f.items(t, "user"))
	assert.False(t, f.exists(t, "guest"))

	// The guest cart replaces the item-less user cart whole.
	conds, err := f.storage.GetConditions(ctx, user)
	require.NoError(t, err)
	assert.False(t, conds.Has("stale-fee"))
	c, err := f.service.Get(ctx, user)
	require.NoError(t, err)
	_, ok := c.Metadata("note")
	assert.False(t, ok)

	events := f.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, cart.EventCartMerged, events[0].Type)
	assert.Equal(t, "user", events[0].Cart.Identifier)
}

func TestMigrate_Strategies(t *testing.T) {
	tests := []struct {
		strategy migrate.Strategy
		want     int
	}{
		{migrate.AddQuantities, 5},
		{migrate.KeepHighestQuantity, 3},
		{migrate.KeepUserCart, 3},
		{migrate.ReplaceWithGuest, 2},
	}
	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			f := newFixture(t)
			f.add(t, "guest", "x", 2)
			f.add(t, "guest", "only-guest", 1)
			f.add(t, "user", "x", 3)
			f.add(t, "user", "only-user", 4)

			res, err := f.migrator(tt.strategy).Migrate(context.Background(), "user", instance, "guest")
			require.NoError(t, err)
			assert.True(t, res.Migrated)
			assert.True(t, res.HadConflicts)
			assert.Equal(t, tt.strategy, res.Strategy)
			assert.Equal(t, map[string]int{"x": tt.want, "only-guest": 1, "only-user": 4}, f.items(t, "user"))
			assert.False(t, f.exists(t, "guest"))
		})
	}
}

func TestMigrate_ConditionsUnionUserWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	guest := cart.NewIdentity("guest", instance)
	user := cart.NewIdentity("user", instance)
	f.add(t, "guest", "x", 1)
	f.add(t, "user", "y", 1)

	mk := func(name, value string) *condition.Condition {
		return condition.MustNew(condition.Definition{Name: name, Kind: "discount", Target: condition.TargetSubtotal, Value: value})
	}
	require.NoError(t, f.service.AddCondition(ctx, guest, mk("coupon", "-5")))
	require.NoError(t, f.service.AddCondition(ctx, guest, mk("shared", "-1")))
	require.NoError(t, f.service.AddCondition(ctx, user, mk("shared", "-2")))

	_, err := f.migrator(migrate.AddQuantities).Migrate(ctx, "user", instance, "guest")
	require.NoError(t, err)

	conds, err := f.storage.GetConditions(ctx, user)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"coupon", "shared"}, conds.Names())
	shared, _ := conds.Get("shared")
	assert.Equal(t, "-2", shared.Value().String())
}

func TestMigrate_MovesDynamicRegistrations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	guest := cart.NewIdentity("guest", instance)
	user := cart.NewIdentity("user", instance)
	f.add(t, "guest", "a", 1)
	f.add(t, "guest", "b", 1)
	f.add(t, "user", "c", 1)

	bulk := condition.Definition{Name: "bulk", Kind: "discount", Target: condition.TargetSubtotal, Value: "-10%"}
	require.NoError(t, f.engine.Register(ctx, guest, bulk, engine.Persistent(rules.Context{"min": 3}, rules.MinItems)))

	_, err := f.migrator(migrate.AddQuantities).Migrate(ctx, "user", instance, "guest")
	require.NoError(t, err)

	conds, err := f.storage.GetConditions(ctx, user)
	require.NoError(t, err)
	assert.True(t, conds.Has("bulk"), "rule re-evaluated against the merged cart")
	assert.Empty(t, f.engine.Registered(guest))
	require.Len(t, f.engine.Registered(user), 1)

	records, err := engine.LoadRecords(ctx, f.storage, user)
	require.NoError(t, err)
	assert.Contains(t, records, "bulk")
}

func TestMigrate_GuestMaterializedCopyNotKeptStatic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	guest := cart.NewIdentity("guest", instance)
	user := cart.NewIdentity("user", instance)
	f.add(t, "guest", "a", 1)

	// Active on the guest cart, but the user's merged cart is too large.
	small := condition.Definition{Name: "small-cart-fee", Kind: "fee", Target: condition.TargetTotal, Value: "+3"}
	require.NoError(t, f.engine.Register(ctx, guest, small, engine.Persistent(rules.Context{"max": 1}, rules.MaxItems)))
	f.add(t, "user", "b", 1)

	_, err := f.migrator(migrate.AddQuantities).Migrate(ctx, "user", instance, "guest")
	require.NoError(t, err)

	conds, err := f.storage.GetConditions(ctx, user)
	require.NoError(t, err)
	assert.False(t, conds.Has("small-cart-fee"))
}

func TestMigrate_MetadataUserWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	guest := cart.NewIdentity("guest", instance)
	user := cart.NewIdentity("user", instance)
	f.add(t, "guest", "a", 1)
	f.add(t, "user", "b", 1)
	require.NoError(t, f.service.SetMetadata(ctx, guest, "coupon", "WELCOME"))
	require.NoError(t, f.service.SetMetadata(ctx, guest, "tier", "guest"))
	require.NoError(t, f.service.SetMetadata(ctx, user, "tier", "gold"))

	_, err := f.migrator(migrate.AddQuantities).Migrate(ctx, "user", instance, "guest")
	require.NoError(t, err)

	c, err := f.service.Get(ctx, user)
	require.NoError(t, err)
	tier, _ := c.Metadata("tier")
	coupon, _ := c.Metadata("coupon")
	assert.Equal(t, "gold", tier)
	assert.Equal(t, "WELCOME", coupon)
}

func TestSwap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "guest", "a", 2)
	f.add(t, "user", "stale", 1)

	m := f.migrator(migrate.AddQuantities)
	ok, err := m.Swap(ctx, "guest", "user", instance)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]int{"a": 2}, f.items(t, "user"))
	assert.False(t, f.exists(t, "guest"))

	// Nothing stored under the source still replaces the target.
	ok, err = m.Swap(ctx, "nobody", "user", instance)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, f.exists(t, "user"))

	ok, err = m.Swap(ctx, "user", "user", instance)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestParseStrategy(t *testing.T) {
	s, err := migrate.ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, migrate.AddQuantities, s)

	s, err = migrate.ParseStrategy("keep_user_cart")
	require.NoError(t, err)
	assert.Equal(t, migrate.KeepUserCart, s)

	_, err = migrate.ParseStrategy("coin_flip")
	assert.Error(t, err)
}
