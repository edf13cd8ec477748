// Package condition implements priced adjustments ("conditions") and the
// collections they are grouped into.
//
// A Condition is an immutable value: every change produces a new Condition
// through With or WithoutRules. Its Expression encodes the adjustment as a
// short string ("-10%", "+15", "*1.5", "/2", "25.00") parsed once at
// construction.
//
// Conditions carrying rule predicates are dynamic. A dynamic condition is a
// template: the rule engine evaluates its predicates against the live cart
// and materializes a static copy (rules stripped) into the active Set when
// they hold. Sets therefore only ever aggregate static conditions.
//
// # Aggregation Order
//
// Set.Ordered sorts by Condition.Order ascending. Conditions sharing an
// order keep their insertion order, so aggregation is deterministic for a
// given sequence of Put calls.
package condition
