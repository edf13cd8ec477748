package cart_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cartprice/internal/cart"
	"github.com/roach88/cartprice/internal/condition"
	"github.com/roach88/cartprice/internal/pricing"
	"github.com/roach88/cartprice/internal/store"
)

type recordingSink struct {
	mu     sync.Mutex
	events []cart.Event
}

func (s *recordingSink) Emit(_ context.Context, ev cart.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) types() []cart.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]cart.EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

type countingEvaluator struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *countingEvaluator) Reevaluate(context.Context, cart.Identity) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return e.err
}

func newService(t *testing.T, opts ...cart.Option) (*cart.Service, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	base := []cart.Option{
		cart.WithEvents(sink),
		cart.WithIDGenerator(cart.NewFixedGenerator()),
		cart.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return cart.NewService(store.NewMemory(), pricing.NewPipeline(pricing.MustCurrency("USD", -1)), append(base, opts...)...), sink
}

var user = cart.NewIdentity("user-1", "")

func def(id string, price float64, qty int) cart.ItemDefinition {
	return cart.ItemDefinition{ID: id, Name: "Item " + id, Price: price, Quantity: qty}
}

func TestService_AddItemMergesQuantity(t *testing.T) {
	ctx := context.Background()
	svc, sink := newService(t)

	_, err := svc.AddItem(ctx, user, def("a", 10, 1))
	require.NoError(t, err)
	it, err := svc.AddItem(ctx, user, def("a", 10, 2))
	require.NoError(t, err)
	assert.Equal(t, 3, it.Quantity())

	c, err := svc.Get(ctx, user)
	require.NoError(t, err)
	assert.Len(t, c.Items(), 1)
	assert.Equal(t, 3, c.Count())
	assert.Equal(t, []cart.EventType{cart.EventCartCreated, cart.EventItemAdded, cart.EventItemUpdated}, sink.types())
}

func TestService_UpdateItem(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.AddItem(ctx, user, def("a", 10, 2))
	require.NoError(t, err)

	price, name, delta := 12.5, "Renamed", 3
	it, err := svc.UpdateItem(ctx, user, "a", cart.ItemUpdate{Price: &price, Name: &name, Quantity: &delta, Relative: true})
	require.NoError(t, err)
	assert.Equal(t, 5, it.Quantity())
	assert.Equal(t, 12.5, it.Price())
	assert.Equal(t, "Renamed", it.Name())

	minus := -5
	it, err = svc.UpdateItem(ctx, user, "a", cart.ItemUpdate{Quantity: &minus, Relative: true})
	require.NoError(t, err)
	assert.Nil(t, it, "quantity <= 0 removes the item")

	c, err := svc.Get(ctx, user)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	_, err = svc.UpdateItem(ctx, user, "missing", cart.ItemUpdate{})
	assert.ErrorIs(t, err, cart.ErrItemNotFound)
}

func TestService_TotalsScenario(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.AddItem(ctx, user, def("a", 100, 2))
	require.NoError(t, err)

	mk := func(name string, target condition.Target, value string, order int) *condition.Condition {
		return condition.MustNew(condition.Definition{Name: name, Kind: "adj", Target: target, Value: value, Order: order})
	}
	require.NoError(t, svc.AddCondition(ctx, user, mk("discount", condition.TargetSubtotal, "-10%", 0)))
	require.NoError(t, svc.AddCondition(ctx, user, mk("tax", condition.TargetTotal, "+15%", 1)))
	require.NoError(t, svc.AddCondition(ctx, user, mk("shipping", condition.TargetTotal, "+9.99", 2)))

	totals, err := svc.Totals(ctx, user)
	require.NoError(t, err)
	assert.InDelta(t, 180.0, totals.Subtotal, 1e-9)
	assert.InDelta(t, 216.99, totals.Total, 1e-9)
	assert.InDelta(t, 200.0, totals.SubtotalWithoutConditions, 1e-9)
	assert.InDelta(t, 0.0, totals.Savings, 1e-9)
}

func TestService_RejectsDynamicConditions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.AddItem(ctx, user, def("a", 1, 1))
	require.NoError(t, err)

	dyn := condition.MustNew(condition.Definition{
		Name: "d", Kind: "discount", Target: condition.TargetSubtotal, Value: "-1",
		Rules: []condition.Predicate{func(condition.CartState, condition.ItemState) (bool, error) { return true, nil }},
	})
	assert.ErrorIs(t, svc.AddCondition(ctx, user, dyn), cart.ErrDynamicCondition)
	assert.ErrorIs(t, svc.AddItemCondition(ctx, user, "a", dyn), cart.ErrDynamicCondition)
}

func TestService_ConditionLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.AddItem(ctx, user, def("a", 10, 1))
	require.NoError(t, err)

	fee := func(name string) *condition.Condition {
		return condition.MustNew(condition.Definition{Name: name, Kind: "fee", Target: condition.TargetTotal, Value: "+1"})
	}
	require.NoError(t, svc.AddCondition(ctx, user, fee("f1")))
	require.NoError(t, svc.AddCondition(ctx, user, fee("f2")))
	require.NoError(t, svc.AddItemCondition(ctx, user, "a", condition.MustNew(condition.Definition{
		Name: "promo", Kind: "discount", Target: condition.TargetItem, Value: "-2",
	})))

	n, err := svc.ClearConditionsByKind(ctx, user, "fee")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.ErrorIs(t, svc.RemoveCondition(ctx, user, "f1"), cart.ErrConditionNotFound)
	require.NoError(t, svc.RemoveItemCondition(ctx, user, "a", "promo"))
	assert.ErrorIs(t, svc.RemoveItemCondition(ctx, user, "a", "promo"), cart.ErrConditionNotFound)
}

func TestService_ClearKeepsConditions(t *testing.T) {
	ctx := context.Background()
	svc, sink := newService(t)
	_, err := svc.AddItem(ctx, user, def("a", 10, 1))
	require.NoError(t, err)
	require.NoError(t, svc.AddCondition(ctx, user, condition.MustNew(condition.Definition{
		Name: "fee", Kind: "fee", Target: condition.TargetTotal, Value: "+1",
	})))

	require.NoError(t, svc.Clear(ctx, user))
	c, err := svc.Get(ctx, user)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
	assert.True(t, c.HasCondition("fee"))
	assert.Contains(t, sink.types(), cart.EventCartCleared)

	require.NoError(t, svc.Destroy(ctx, user))
	ok, err := svc.Storage().Has(ctx, user)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_Metadata(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	require.NoError(t, svc.SetMetadata(ctx, user, "tier", "gold"))
	err := svc.SetMetadata(ctx, user, "__dynamic_conditions", map[string]any{})
	assert.ErrorIs(t, err, cart.ErrReservedMetadataKey)

	c, err := svc.Get(ctx, user)
	require.NoError(t, err)
	v, ok := c.Metadata("tier")
	assert.True(t, ok)
	assert.Equal(t, "gold", v)
	assert.Equal(t, []string{"tier"}, c.MetadataKeys())
}

func TestService_EvaluatorRunsAfterEveryMutation(t *testing.T) {
	ctx := context.Background()
	ev := &countingEvaluator{}
	svc, _ := newService(t, cart.WithEvaluator(ev))

	_, err := svc.AddItem(ctx, user, def("a", 1, 1))
	require.NoError(t, err)
	require.NoError(t, svc.SetMetadata(ctx, user, "k", 1))
	require.NoError(t, svc.RemoveItem(ctx, user, "a"))
	assert.Equal(t, 3, ev.calls)

	ev.err = errors.New("storage down")
	_, err = svc.AddItem(ctx, user, def("b", 1, 1))
	assert.ErrorContains(t, err, "storage down")
}

func TestService_ConcurrentAddsDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddItem(ctx, user, def("a", 1, 1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c, err := svc.Get(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 50, c.Count())
}
