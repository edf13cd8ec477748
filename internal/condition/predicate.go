package condition

// Predicate decides whether a dynamic condition applies.
//
// item is nil when the condition targets the cart (subtotal/total). For
// item-targeted conditions the engine calls the predicate once per item.
// Predicates must be pure: they run inline after every cart mutation.
type Predicate func(cart CartState, item ItemState) (bool, error)

// CartState is the read-only view of a cart that predicates inspect.
//
// Monetary figures are exposed only without conditions applied, so a rule
// can never depend on its own activation.
type CartState interface {
	ItemStates() []ItemState
	SubtotalWithoutConditions() float64
	TotalWithoutConditions() float64
	Metadata(key string) (any, bool)
	MetadataKeys() []string
	HasCondition(name string) bool
}

// ItemState is the read-only view of a cart line that predicates inspect.
type ItemState interface {
	ID() string
	Name() string
	Price() float64
	Quantity() int
	Attribute(key string) (any, bool)
	Attributes() map[string]any
	HasCondition(name string) bool
}
