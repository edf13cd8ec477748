package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/roach88/cartprice/internal/cart"
	"github.com/roach88/cartprice/internal/condition"
	"github.com/roach88/cartprice/internal/engine"
)

// RuleEngine is the part of engine.Engine a migration needs. Every method
// is called with both cart locks held.
type RuleEngine interface {
	DynamicNames(ctx context.Context, id cart.Identity) (map[string]bool, error)
	Transfer(ctx context.Context, from, to cart.Identity) error
	Forget(id cart.Identity)
	Reevaluate(ctx context.Context, id cart.Identity) error
}

var _ RuleEngine = (*engine.Engine)(nil)

// Result reports what Migrate did.
type Result struct {
	Migrated     bool     `json:"migrated"`
	HadConflicts bool     `json:"had_conflicts"`
	Strategy     Strategy `json:"strategy"`

	// ItemCount is the number of guest lines merged into the user's cart.
	ItemCount int `json:"item_count"`
}

// Migrator moves carts between identifiers.
type Migrator struct {
	storage  cart.Storage
	rules    RuleEngine
	locker   cart.Locker
	strategy Strategy
	events   cart.EventSink
	ids      cart.IDGenerator
	logger   *slog.Logger
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithRuleEngine moves dynamic registrations along with the cart.
func WithRuleEngine(r RuleEngine) Option {
	return func(m *Migrator) { m.rules = r }
}

// WithLocker sets the per-cart locker shared with the cart service.
func WithLocker(l cart.Locker) Option {
	return func(m *Migrator) { m.locker = l }
}

// WithStrategy sets the conflict strategy. Default: AddQuantities.
func WithStrategy(s Strategy) Option {
	return func(m *Migrator) { m.strategy = s }
}

// WithEvents sets the sink for cart.merged events.
func WithEvents(sink cart.EventSink) Option {
	return func(m *Migrator) { m.events = sink }
}

// WithIDGenerator sets the event id generator.
func WithIDGenerator(g cart.IDGenerator) Option {
	return func(m *Migrator) { m.ids = g }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Migrator) { m.logger = l }
}

// New creates a Migrator over st.
func New(st cart.Storage, opts ...Option) *Migrator {
	m := &Migrator{
		storage:  st,
		locker:   cart.NewKeyedLocker(),
		strategy: DefaultStrategy,
		events:   cart.NopSink{},
		ids:      cart.UUIDv7Generator{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Strategy returns the configured conflict strategy.
func (m *Migrator) Strategy() Strategy { return m.strategy }

// Swap hands the whole cart at (oldIdentifier, instance) to newIdentifier,
// replacing anything stored there. An empty source still clears the
// target. It reports true unless storage fails.
func (m *Migrator) Swap(ctx context.Context, oldIdentifier, newIdentifier, instance string) (bool, error) {
	from := cart.NewIdentity(oldIdentifier, instance)
	to := cart.NewIdentity(newIdentifier, instance)
	if err := from.Validate(); err != nil {
		return false, err
	}
	if err := to.Validate(); err != nil {
		return false, err
	}
	if from == to {
		return true, nil
	}

	unlock := m.locker.Lock(from, to)
	defer unlock()

	if err := m.swapLocked(ctx, from, to); err != nil {
		return false, fmt.Errorf("swap: %w", err)
	}
	return true, nil
}

// swapLocked expects both carts to be locked by the caller.
func (m *Migrator) swapLocked(ctx context.Context, from, to cart.Identity) error {
	if m.rules != nil {
		m.rules.Forget(to)
	}
	if err := m.storage.SwapIdentifier(ctx, from.Instance, from.Identifier, to.Identifier); err != nil {
		return err
	}
	if m.rules != nil {
		if err := m.rules.Transfer(ctx, from, to); err != nil {
			return err
		}
		if err := m.rules.Reevaluate(ctx, to); err != nil {
			return err
		}
	}

	m.logger.InfoContext(ctx, "cart swapped", "from", from.String(), "to", to.String())
	m.emit(ctx, cart.Event{Type: cart.EventCartMerged, Cart: to, Data: map[string]any{
		"from": from.String(),
		"mode": "swap",
	}})
	return nil
}

// Migrate merges the guest cart (oldIdentifier, instance) into the user's
// cart (newOwner, instance) and forgets the guest cart. An empty guest cart
// leaves both carts untouched and reports Migrated false. When the user's
// cart has no items the guest cart replaces it whole, as Swap does, and
// the user's stored conditions and metadata are discarded.
//
// Cart conditions are unioned with the user's winning on a name clash.
// Materialized copies of the guest's dynamic conditions are not carried
// over as static conditions; the registrations move instead and are
// re-evaluated against the merged cart.
func (m *Migrator) Migrate(ctx context.Context, newOwner, instance, oldIdentifier string) (Result, error) {
	guest := cart.NewIdentity(oldIdentifier, instance)
	user := cart.NewIdentity(newOwner, instance)
	res := Result{Strategy: m.strategy}
	if err := guest.Validate(); err != nil {
		return res, err
	}
	if err := user.Validate(); err != nil {
		return res, err
	}
	if guest == user {
		return res, nil
	}

	unlock := m.locker.Lock(guest, user)
	defer unlock()

	guestItems, err := m.storage.GetItems(ctx, guest)
	if err != nil {
		return res, fmt.Errorf("migrate: %w", err)
	}
	if len(guestItems) == 0 {
		return res, nil
	}

	userItems, err := m.storage.GetItems(ctx, user)
	if err != nil {
		return res, fmt.Errorf("migrate: %w", err)
	}
	if len(userItems) == 0 {
		if err := m.swapLocked(ctx, guest, user); err != nil {
			return res, fmt.Errorf("migrate: %w", err)
		}
		res.Migrated = true
		res.ItemCount = len(guestItems)
		return res, nil
	}

	dynamic := map[string]bool{}
	if m.rules != nil {
		if dynamic, err = m.rules.DynamicNames(ctx, guest); err != nil {
			return res, fmt.Errorf("migrate: %w", err)
		}
	}

	merged, conflicts, err := m.mergeItems(userItems, guestItems, dynamic)
	if err != nil {
		return res, fmt.Errorf("migrate: %w", err)
	}

	conds, err := m.mergeConditions(ctx, user, guest, dynamic)
	if err != nil {
		return res, fmt.Errorf("migrate: %w", err)
	}
	meta, err := m.mergeMetadata(ctx, user, guest)
	if err != nil {
		return res, fmt.Errorf("migrate: %w", err)
	}

	if err := m.storage.PutItems(ctx, user, merged); err != nil {
		return res, fmt.Errorf("migrate: %w", err)
	}
	if err := m.storage.PutConditions(ctx, user, conds); err != nil {
		return res, fmt.Errorf("migrate: %w", err)
	}
	if len(meta) > 0 {
		if err := m.storage.PutMetadataBatch(ctx, user, meta); err != nil {
			return res, fmt.Errorf("migrate: %w", err)
		}
	}
	if m.rules != nil {
		if err := m.rules.Transfer(ctx, guest, user); err != nil {
			return res, fmt.Errorf("migrate: %w", err)
		}
	}
	if err := m.storage.Forget(ctx, guest); err != nil {
		return res, fmt.Errorf("migrate: %w", err)
	}
	if m.rules != nil {
		m.rules.Forget(guest)
		if err := m.rules.Reevaluate(ctx, user); err != nil {
			return res, fmt.Errorf("migrate: %w", err)
		}
	}

	res.Migrated = true
	res.HadConflicts = conflicts > 0
	res.ItemCount = len(guestItems)

	m.logger.InfoContext(ctx, "cart migrated",
		"from", guest.String(),
		"to", user.String(),
		"strategy", string(m.strategy),
		"items", res.ItemCount,
		"conflicts", conflicts,
	)
	m.emit(ctx, cart.Event{Type: cart.EventCartMerged, Cart: user, Data: map[string]any{
		"from":          guest.String(),
		"mode":          "merge",
		"strategy":      string(m.strategy),
		"had_conflicts": res.HadConflicts,
		"item_count":    res.ItemCount,
	}})
	return res, nil
}

// mergeItems keeps the user's order and appends new guest lines in guest
// order. Guest lines lose materialized dynamic conditions.
func (m *Migrator) mergeItems(userItems, guestItems []*cart.Item, dynamic map[string]bool) ([]*cart.Item, int, error) {
	merged := append([]*cart.Item(nil), userItems...)
	index := make(map[string]int, len(merged))
	for i, it := range merged {
		index[it.ID()] = i
	}

	conflicts := 0
	for _, g := range guestItems {
		g = stripDynamic(g, dynamic)
		i, clash := index[g.ID()]
		if !clash {
			index[g.ID()] = len(merged)
			merged = append(merged, g)
			continue
		}

		conflicts++
		qty, useGuest := m.strategy.resolveQuantity(merged[i].Quantity(), g.Quantity())
		base := merged[i]
		if useGuest {
			base = g
		}
		updated, err := base.WithQuantity(qty)
		if err != nil {
			return nil, 0, err
		}
		merged[i] = updated
	}
	return merged, conflicts, nil
}

func stripDynamic(it *cart.Item, dynamic map[string]bool) *cart.Item {
	for name := range dynamic {
		if stripped, ok := it.WithoutCondition(name); ok {
			it = stripped
		}
	}
	return it
}

func (m *Migrator) mergeConditions(ctx context.Context, user, guest cart.Identity, dynamic map[string]bool) (*condition.Set, error) {
	conds, err := m.storage.GetConditions(ctx, user)
	if err != nil {
		return nil, err
	}
	guestConds, err := m.storage.GetConditions(ctx, guest)
	if err != nil {
		return nil, err
	}
	for _, c := range guestConds.All() {
		if dynamic[c.Name()] || conds.Has(c.Name()) {
			continue
		}
		conds.Put(c)
	}
	return conds, nil
}

// mergeMetadata returns guest keys the user does not have. Dynamic
// condition records are merged by the rule engine.
func (m *Migrator) mergeMetadata(ctx context.Context, user, guest cart.Identity) (map[string]any, error) {
	userMeta, err := m.storage.AllMetadata(ctx, user)
	if err != nil {
		return nil, err
	}
	guestMeta, err := m.storage.AllMetadata(ctx, guest)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	for k, v := range guestMeta {
		if k == engine.RecordsKey {
			continue
		}
		if _, ok := userMeta[k]; ok {
			continue
		}
		out[k] = json.RawMessage(v)
	}
	return out, nil
}

func (m *Migrator) emit(ctx context.Context, ev cart.Event) {
	ev.ID = m.ids.Generate()
	m.events.Emit(ctx, ev)
}
