package rules

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/roach88/cartprice/internal/condition"
)

// Key names a predicate family.
type Key string

// Built-in keys.
const (
	MinItems     Key = "min-items"
	MaxItems     Key = "max-items"
	MinQuantity  Key = "min-quantity"
	MaxQuantity  Key = "max-quantity"
	ItemsBetween Key = "items-between"

	SubtotalAtLeast Key = "subtotal-at-least"
	SubtotalAtMost  Key = "subtotal-at-most"
	SubtotalBetween Key = "subtotal-between"
	TotalAtLeast    Key = "total-at-least"
	TotalAtMost     Key = "total-at-most"
	TotalBetween    Key = "total-between"

	HasItem             Key = "has-item"
	ItemListIncludesAny Key = "item-list-includes-any"
	ItemListIncludesAll Key = "item-list-includes-all"
	CartHasCondition    Key = "cart-has-condition"
	MetadataEquals      Key = "metadata-equals"
	MetadataIn          Key = "metadata-in"
	MetadataContains    Key = "metadata-contains"
	MetadataFlagTrue    Key = "metadata-flag-true"
	DayOfWeek           Key = "day-of-week"
	DateWindow          Key = "date-window"
	TimeWindow          Key = "time-window"
	ItemAttributeEquals Key = "item-attribute-equals"
	ItemAttributeIn     Key = "item-attribute-in"
	ItemQuantityAtLeast Key = "item-quantity-at-least"
	ItemQuantityAtMost  Key = "item-quantity-at-most"
	ItemPriceAtLeast    Key = "item-price-at-least"
	ItemPriceAtMost     Key = "item-price-at-most"
	ItemTotalAtLeast    Key = "item-total-at-least"
	ItemTotalAtMost     Key = "item-total-at-most"
	ItemHasCondition    Key = "item-has-condition"
	ItemIDPrefix        Key = "item-id-prefix"
	JSONLogic           Key = "jsonlogic"
	Expression          Key = "expression"
)

// BuiltinKeys lists every key NewFactory registers.
var BuiltinKeys = []Key{
	MinItems, MaxItems, MinQuantity, MaxQuantity, ItemsBetween,
	SubtotalAtLeast, SubtotalAtMost, SubtotalBetween,
	TotalAtLeast, TotalAtMost, TotalBetween,
	HasItem, ItemListIncludesAny, ItemListIncludesAll, CartHasCondition,
	MetadataEquals, MetadataIn, MetadataContains, MetadataFlagTrue,
	DayOfWeek, DateWindow, TimeWindow,
	ItemAttributeEquals, ItemAttributeIn,
	ItemQuantityAtLeast, ItemQuantityAtMost,
	ItemPriceAtLeast, ItemPriceAtMost,
	ItemTotalAtLeast, ItemTotalAtMost,
	ItemHasCondition, ItemIDPrefix,
	JSONLogic, Expression,
}

// Builder turns a validated context into a predicate.
type Builder func(ctx Context) (condition.Predicate, error)

// Spec describes one registered key.
type Spec struct {
	Key         Key
	Description string
	Fields      []Field
	build       Builder
}

// Factory maps keys to predicate builders. It is safe for concurrent use.
type Factory struct {
	clock    Clock
	location *time.Location

	mu    sync.RWMutex
	specs map[Key]Spec
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithClock sets the clock calendar rules read.
func WithClock(c Clock) FactoryOption {
	return func(f *Factory) {
		f.clock = c
	}
}

// WithLocation sets the zone calendar rules evaluate in. Defaults to UTC.
func WithLocation(loc *time.Location) FactoryOption {
	return func(f *Factory) {
		f.location = loc
	}
}

// NewFactory creates a factory with every built-in key registered.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		clock:    SystemClock{},
		location: time.UTC,
		specs:    make(map[Key]Spec),
	}
	for _, opt := range opts {
		opt(f)
	}
	for _, s := range f.builtins() {
		f.specs[s.Key] = s
	}
	return f
}

// Register adds or replaces a key. Custom keys persist like built-ins, so
// the same registration must happen before a cart is restored.
func (f *Factory) Register(key Key, description string, fields []Field, build Builder) error {
	if key == "" {
		return fmt.Errorf("register: %w: empty key", ErrInvalidArgument)
	}
	if build == nil {
		return fmt.Errorf("register %q: %w: nil builder", key, ErrInvalidArgument)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.specs[key] = Spec{Key: key, Description: description, Fields: slices.Clone(fields), build: build}
	return nil
}

// CanCreate reports whether key is registered.
func (f *Factory) CanCreate(key Key) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.specs[key]
	return ok
}

// Create validates ctx against key's declared fields and builds its
// predicates.
func (f *Factory) Create(key Key, ctx Context) ([]condition.Predicate, error) {
	f.mu.RLock()
	s, ok := f.specs[key]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFactoryKey, key)
	}
	if err := validate(key, s.Fields, ctx); err != nil {
		return nil, err
	}
	p, err := s.build(ctx)
	if err != nil {
		return nil, err
	}
	return []condition.Predicate{p}, nil
}

// CreateAll builds every key against the same context and concatenates the
// predicates. The first failure aborts.
func (f *Factory) CreateAll(keys []Key, ctx Context) ([]condition.Predicate, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("create: %w: no factory keys", ErrInvalidArgument)
	}
	var out []condition.Predicate
	for _, k := range keys {
		ps, err := f.Create(k, ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, ps...)
	}
	return out, nil
}

// Keys returns the registered keys, sorted.
func (f *Factory) Keys() []Key {
	f.mu.RLock()
	defer f.mu.RUnlock()
	keys := make([]Key, 0, len(f.specs))
	for k := range f.specs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Spec returns the description of key.
func (f *Factory) Spec(key Key) (Spec, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.specs[key]
	if !ok {
		return Spec{}, false
	}
	s.Fields = slices.Clone(s.Fields)
	return s, true
}

func (f *Factory) now() time.Time {
	return f.clock.Now().In(f.location)
}

func (f *Factory) builtins() []Spec {
	minInt := []Field{required("min", FieldInt)}
	maxInt := []Field{required("max", FieldInt)}
	rangeInt := []Field{required("min", FieldInt), required("max", FieldInt)}
	amount := []Field{required("amount", FieldFloat)}
	rangeFloat := []Field{required("min", FieldFloat), required("max", FieldFloat)}

	return []Spec{
		{Key: MinItems, Description: "cart has at least min distinct items", Fields: minInt, build: minItems},
		{Key: MaxItems, Description: "cart has at most max distinct items", Fields: maxInt, build: maxItems},
		{Key: MinQuantity, Description: "total quantity is at least min", Fields: minInt, build: minQuantity},
		{Key: MaxQuantity, Description: "total quantity is at most max", Fields: maxInt, build: maxQuantity},
		{Key: ItemsBetween, Description: "distinct item count within [min, max]", Fields: rangeInt, build: itemsBetween},

		{Key: SubtotalAtLeast, Description: "raw subtotal >= amount", Fields: amount, build: subtotalAtLeast},
		{Key: SubtotalAtMost, Description: "raw subtotal <= amount", Fields: amount, build: subtotalAtMost},
		{Key: SubtotalBetween, Description: "raw subtotal within [min, max]", Fields: rangeFloat, build: subtotalBetween},
		{Key: TotalAtLeast, Description: "raw total >= amount", Fields: amount, build: totalAtLeast},
		{Key: TotalAtMost, Description: "raw total <= amount", Fields: amount, build: totalAtMost},
		{Key: TotalBetween, Description: "raw total within [min, max]", Fields: rangeFloat, build: totalBetween},

		{Key: HasItem, Description: "cart contains item id", Fields: []Field{required("id", FieldString)}, build: hasItem},
		{Key: ItemListIncludesAny, Description: "cart contains any of ids", Fields: []Field{required("ids", FieldArray)}, build: includesAny},
		{Key: ItemListIncludesAll, Description: "cart contains all of ids", Fields: []Field{required("ids", FieldArray)}, build: includesAll},
		{Key: CartHasCondition, Description: "cart has an active condition", Fields: []Field{required("condition", FieldString)}, build: cartHasCondition},

		{Key: MetadataEquals, Description: "metadata key equals value", Fields: []Field{required("key", FieldString), required("value", FieldAny)}, build: metadataEquals},
		{Key: MetadataIn, Description: "metadata key is one of values", Fields: []Field{required("key", FieldString), required("values", FieldArray)}, build: metadataIn},
		{Key: MetadataContains, Description: "metadata string or list contains value", Fields: []Field{required("key", FieldString), required("value", FieldAny)}, build: metadataContains},
		{Key: MetadataFlagTrue, Description: "metadata key is truthy", Fields: []Field{required("key", FieldString)}, build: metadataFlagTrue},

		{Key: DayOfWeek, Description: "today is one of days", Fields: []Field{required("days", FieldArray)}, build: f.dayOfWeek},
		{Key: DateWindow, Description: "today within [start, end] (YYYY-MM-DD, inclusive)", Fields: []Field{optional("start", FieldString), optional("end", FieldString)}, build: f.dateWindow},
		{Key: TimeWindow, Description: "time of day within [start, end) (HH:MM, may wrap midnight)", Fields: []Field{required("start", FieldString), required("end", FieldString)}, build: f.timeWindow},

		{Key: ItemAttributeEquals, Description: "item attribute equals value", Fields: []Field{required("attribute", FieldString), required("value", FieldAny)}, build: itemAttributeEquals},
		{Key: ItemAttributeIn, Description: "item attribute is one of values", Fields: []Field{required("attribute", FieldString), required("values", FieldArray)}, build: itemAttributeIn},
		{Key: ItemQuantityAtLeast, Description: "item quantity >= min", Fields: minInt, build: itemQuantityAtLeast},
		{Key: ItemQuantityAtMost, Description: "item quantity <= max", Fields: maxInt, build: itemQuantityAtMost},
		{Key: ItemPriceAtLeast, Description: "item unit price >= amount", Fields: amount, build: itemPriceAtLeast},
		{Key: ItemPriceAtMost, Description: "item unit price <= amount", Fields: amount, build: itemPriceAtMost},
		{Key: ItemTotalAtLeast, Description: "item price*quantity >= amount", Fields: amount, build: itemTotalAtLeast},
		{Key: ItemTotalAtMost, Description: "item price*quantity <= amount", Fields: amount, build: itemTotalAtMost},
		{Key: ItemHasCondition, Description: "item has an active condition", Fields: []Field{required("condition", FieldString)}, build: itemHasCondition},
		{Key: ItemIDPrefix, Description: "item id starts with prefix", Fields: []Field{required("prefix", FieldString)}, build: itemIDPrefix},

		{Key: JSONLogic, Description: "JSONLogic rule over the cart document", Fields: []Field{required("logic", FieldAny)}, build: jsonLogic},
		{Key: Expression, Description: "boolean expr-lang expression over the cart document", Fields: []Field{required("expr", FieldString)}, build: expression},
	}
}
