package cart

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/cartprice/internal/condition"
	"github.com/roach88/cartprice/internal/pricing"
)

// Evaluator re-derives which dynamic conditions are active for a cart.
// Service calls Reevaluate after every successful mutation, with the
// identity's lock already held.
type Evaluator interface {
	Reevaluate(ctx context.Context, id Identity) error
}

// Service performs cart mutations against a Storage.
//
// Every mutation runs as lock → read → compute → write → re-evaluate →
// unlock, so concurrent mutations on the same Identity cannot lose
// updates. Reads (Get, Totals) take no lock.
type Service struct {
	storage   Storage
	pipeline  *pricing.Pipeline
	evaluator Evaluator
	events    EventSink
	locker    Locker
	ids       IDGenerator
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithEvaluator sets the dynamic-condition evaluator run after mutations.
func WithEvaluator(e Evaluator) Option {
	return func(s *Service) { s.evaluator = e }
}

// WithEvents sets the event sink. Default: NopSink.
func WithEvents(sink EventSink) Option {
	return func(s *Service) { s.events = sink }
}

// WithLocker sets the per-identity locker. Share it with the rule engine
// and the migrator.
func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithIDGenerator sets the event id generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Service) { s.ids = g }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService returns a Service over st, computing totals with p.
func NewService(st Storage, p *pricing.Pipeline, opts ...Option) *Service {
	s := &Service{
		storage:  st,
		pipeline: p,
		events:   NopSink{},
		locker:   NewKeyedLocker(),
		ids:      UUIDv7Generator{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Storage returns the underlying storage.
func (s *Service) Storage() Storage { return s.storage }

// Get loads a snapshot of the cart.
func (s *Service) Get(ctx context.Context, id Identity) (*Cart, error) {
	return Load(ctx, s.storage, id)
}

// Totals computes the rounded figures for the cart.
func (s *Service) Totals(ctx context.Context, id Identity) (pricing.Totals, error) {
	c, err := Load(ctx, s.storage, id)
	if err != nil {
		return pricing.Totals{}, fmt.Errorf("totals %s: %w", id, err)
	}
	return s.pipeline.Totals(c.Lines(), c.Conditions()), nil
}

// AddItem adds def to the cart. Adding an id that is already present
// increases its quantity by def.Quantity.
func (s *Service) AddItem(ctx context.Context, id Identity, def ItemDefinition) (*Item, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	item, err := NewItem(def)
	if err != nil {
		return nil, err
	}

	unlock := s.locker.Lock(id)
	defer unlock()

	existed, err := s.storage.Has(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("add item: %w", err)
	}
	items, err := s.storage.GetItems(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("add item: %w", err)
	}

	evType := EventItemAdded
	if i := indexOf(items, def.ID); i >= 0 {
		merged, err := items[i].WithQuantity(items[i].Quantity() + item.Quantity())
		if err != nil {
			return nil, err
		}
		items[i] = merged
		item = merged
		evType = EventItemUpdated
	} else {
		items = append(items, item)
	}

	if err := s.storage.PutItems(ctx, id, items); err != nil {
		return nil, fmt.Errorf("add item: %w", err)
	}
	if err := s.reevaluate(ctx, id); err != nil {
		return nil, err
	}

	if !existed {
		s.emit(ctx, Event{Type: EventCartCreated, Cart: id})
	}
	s.emit(ctx, Event{Type: evType, Cart: id, ItemID: item.ID(), Data: map[string]any{"quantity": item.Quantity()}})
	return s.currentItem(ctx, id, item)
}

// ItemUpdate lists the item fields UpdateItem changes. Nil fields are kept.
type ItemUpdate struct {
	Name       *string
	Price      *float64
	Quantity   *int
	Attributes map[string]any

	// Relative makes Quantity a delta instead of an absolute value.
	Relative bool
}

// UpdateItem applies u to the item. If the resulting quantity is <= 0 the
// item is removed and (nil, nil) is returned.
func (s *Service) UpdateItem(ctx context.Context, id Identity, itemID string, u ItemUpdate) (*Item, error) {
	unlock := s.locker.Lock(id)
	defer unlock()

	items, err := s.storage.GetItems(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	i := indexOf(items, itemID)
	if i < 0 {
		return nil, fmt.Errorf("update item %q: %w", itemID, ErrItemNotFound)
	}

	item := items[i]
	if u.Name != nil {
		if item, err = item.WithName(*u.Name); err != nil {
			return nil, err
		}
	}
	if u.Price != nil {
		if item, err = item.WithPrice(*u.Price); err != nil {
			return nil, err
		}
	}
	if u.Attributes != nil {
		item = item.WithAttributes(u.Attributes)
	}

	removed := false
	if u.Quantity != nil {
		q := *u.Quantity
		if u.Relative {
			q += item.Quantity()
		}
		if q <= 0 {
			removed = true
		} else if item, err = item.WithQuantity(q); err != nil {
			return nil, err
		}
	}

	if removed {
		items = append(items[:i], items[i+1:]...)
	} else {
		items[i] = item
	}
	if err := s.storage.PutItems(ctx, id, items); err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	if err := s.reevaluate(ctx, id); err != nil {
		return nil, err
	}

	if removed {
		s.emit(ctx, Event{Type: EventItemRemoved, Cart: id, ItemID: itemID})
		return nil, nil
	}
	s.emit(ctx, Event{Type: EventItemUpdated, Cart: id, ItemID: itemID, Data: map[string]any{"quantity": item.Quantity()}})
	return s.currentItem(ctx, id, item)
}

// RemoveItem deletes the item.
func (s *Service) RemoveItem(ctx context.Context, id Identity, itemID string) error {
	unlock := s.locker.Lock(id)
	defer unlock()

	items, err := s.storage.GetItems(ctx, id)
	if err != nil {
		return fmt.Errorf("remove item: %w", err)
	}
	i := indexOf(items, itemID)
	if i < 0 {
		return fmt.Errorf("remove item %q: %w", itemID, ErrItemNotFound)
	}
	items = append(items[:i], items[i+1:]...)
	if err := s.storage.PutItems(ctx, id, items); err != nil {
		return fmt.Errorf("remove item: %w", err)
	}
	if err := s.reevaluate(ctx, id); err != nil {
		return err
	}
	s.emit(ctx, Event{Type: EventItemRemoved, Cart: id, ItemID: itemID})
	return nil
}

// Clear removes every item. Cart-level conditions and metadata are kept.
func (s *Service) Clear(ctx context.Context, id Identity) error {
	unlock := s.locker.Lock(id)
	defer unlock()

	if err := s.storage.PutItems(ctx, id, nil); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	if err := s.reevaluate(ctx, id); err != nil {
		return err
	}
	s.emit(ctx, Event{Type: EventCartCleared, Cart: id})
	return nil
}

// Destroy forgets everything stored for the cart.
func (s *Service) Destroy(ctx context.Context, id Identity) error {
	unlock := s.locker.Lock(id)
	defer unlock()

	if err := s.storage.Forget(ctx, id); err != nil {
		return fmt.Errorf("destroy cart: %w", err)
	}
	s.emit(ctx, Event{Type: EventCartCleared, Cart: id, Data: map[string]any{"destroyed": true}})
	return nil
}

// AddCondition attaches a static cart-level condition, replacing any
// condition with the same name.
func (s *Service) AddCondition(ctx context.Context, id Identity, c *condition.Condition) error {
	if c.IsDynamic() {
		return ErrDynamicCondition
	}

	unlock := s.locker.Lock(id)
	defer unlock()

	conds, err := s.storage.GetConditions(ctx, id)
	if err != nil {
		return fmt.Errorf("add condition: %w", err)
	}
	conds.Put(c)
	if err := s.storage.PutConditions(ctx, id, conds); err != nil {
		return fmt.Errorf("add condition: %w", err)
	}
	if err := s.reevaluate(ctx, id); err != nil {
		return err
	}
	s.emit(ctx, Event{Type: EventConditionAdded, Cart: id, Condition: c.Name()})
	return nil
}

// RemoveCondition detaches a cart-level condition.
func (s *Service) RemoveCondition(ctx context.Context, id Identity, name string) error {
	unlock := s.locker.Lock(id)
	defer unlock()

	conds, err := s.storage.GetConditions(ctx, id)
	if err != nil {
		return fmt.Errorf("remove condition: %w", err)
	}
	if !conds.Remove(name) {
		return fmt.Errorf("remove condition %q: %w", name, ErrConditionNotFound)
	}
	if err := s.storage.PutConditions(ctx, id, conds); err != nil {
		return fmt.Errorf("remove condition: %w", err)
	}
	if err := s.reevaluate(ctx, id); err != nil {
		return err
	}
	s.emit(ctx, Event{Type: EventConditionRemoved, Cart: id, Condition: name})
	return nil
}

// ClearConditionsByKind detaches every cart-level condition of kind and
// returns how many were removed.
func (s *Service) ClearConditionsByKind(ctx context.Context, id Identity, kind string) (int, error) {
	unlock := s.locker.Lock(id)
	defer unlock()

	conds, err := s.storage.GetConditions(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("clear conditions: %w", err)
	}
	names := conds.FilterByKind(kind).Names()
	if len(names) == 0 {
		return 0, nil
	}
	for _, n := range names {
		conds.Remove(n)
	}
	if err := s.storage.PutConditions(ctx, id, conds); err != nil {
		return 0, fmt.Errorf("clear conditions: %w", err)
	}
	if err := s.reevaluate(ctx, id); err != nil {
		return 0, err
	}
	for _, n := range names {
		s.emit(ctx, Event{Type: EventConditionRemoved, Cart: id, Condition: n})
	}
	return len(names), nil
}

// AddItemCondition attaches a static condition to one item.
func (s *Service) AddItemCondition(ctx context.Context, id Identity, itemID string, c *condition.Condition) error {
	if c.IsDynamic() {
		return ErrDynamicCondition
	}

	unlock := s.locker.Lock(id)
	defer unlock()

	items, err := s.storage.GetItems(ctx, id)
	if err != nil {
		return fmt.Errorf("add item condition: %w", err)
	}
	i := indexOf(items, itemID)
	if i < 0 {
		return fmt.Errorf("add item condition %q: %w", itemID, ErrItemNotFound)
	}
	if items[i], err = items[i].WithCondition(c); err != nil {
		return err
	}
	if err := s.storage.PutItems(ctx, id, items); err != nil {
		return fmt.Errorf("add item condition: %w", err)
	}
	if err := s.reevaluate(ctx, id); err != nil {
		return err
	}
	s.emit(ctx, Event{Type: EventConditionAdded, Cart: id, ItemID: itemID, Condition: c.Name()})
	return nil
}

// RemoveItemCondition detaches a condition from one item.
func (s *Service) RemoveItemCondition(ctx context.Context, id Identity, itemID, name string) error {
	unlock := s.locker.Lock(id)
	defer unlock()

	items, err := s.storage.GetItems(ctx, id)
	if err != nil {
		return fmt.Errorf("remove item condition: %w", err)
	}
	i := indexOf(items, itemID)
	if i < 0 {
		return fmt.Errorf("remove item condition %q: %w", itemID, ErrItemNotFound)
	}
	updated, ok := items[i].WithoutCondition(name)
	if !ok {
		return fmt.Errorf("remove item condition %q: %w", name, ErrConditionNotFound)
	}
	items[i] = updated
	if err := s.storage.PutItems(ctx, id, items); err != nil {
		return fmt.Errorf("remove item condition: %w", err)
	}
	if err := s.reevaluate(ctx, id); err != nil {
		return err
	}
	s.emit(ctx, Event{Type: EventConditionRemoved, Cart: id, ItemID: itemID, Condition: name})
	return nil
}

// SetMetadata stores a metadata value. Metadata-based rules see the new
// value immediately.
func (s *Service) SetMetadata(ctx context.Context, id Identity, key string, value any) error {
	if strings.HasPrefix(key, ReservedMetadataPrefix) {
		return fmt.Errorf("set metadata %q: %w", key, ErrReservedMetadataKey)
	}
	unlock := s.locker.Lock(id)
	defer unlock()

	if err := s.storage.PutMetadata(ctx, id, key, value); err != nil {
		return fmt.Errorf("set metadata: %w", err)
	}
	return s.reevaluate(ctx, id)
}

func (s *Service) reevaluate(ctx context.Context, id Identity) error {
	if s.evaluator == nil {
		return nil
	}
	if err := s.evaluator.Reevaluate(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "dynamic condition evaluation failed", "cart", id.String(), "error", err)
		return fmt.Errorf("evaluate dynamic conditions: %w", err)
	}
	return nil
}

func (s *Service) emit(ctx context.Context, ev Event) {
	ev.ID = s.ids.Generate()
	s.events.Emit(ctx, ev)
}

// currentItem re-reads an item after evaluation may have attached or
// retracted item-level conditions.
func (s *Service) currentItem(ctx context.Context, id Identity, fallback *Item) (*Item, error) {
	items, err := s.storage.GetItems(ctx, id)
	if err != nil {
		return nil, err
	}
	if i := indexOf(items, fallback.ID()); i >= 0 {
		return items[i], nil
	}
	return fallback, nil
}

func indexOf(items []*Item, id string) int {
	for i, it := range items {
		if it.ID() == id {
			return i
		}
	}
	return -1
}
