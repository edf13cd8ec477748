// Package rules builds condition predicates from symbolic factory keys.
//
// A dynamic condition's predicates are closures and cannot be persisted.
// What can be persisted is the recipe: one or more factory keys plus a
// context map. Factory.Create turns a recipe back into predicates, so the
// rule engine can rebuild dynamic conditions after a restart.
//
// Every key declares the context fields it needs. Create validates the
// context against those declarations before building anything, so a
// malformed recipe fails fast with ErrInvalidArgument instead of producing a
// predicate that errors on every evaluation.
//
// Monetary predicates read the cart's *without-conditions* figures. A rule
// reading the conditioned total could depend on its own activation.
//
// Item-scoped predicates (item-*) test the item in scope when the engine
// evaluates an item-targeted condition. Evaluated without an item they hold
// if any item in the cart matches.
package rules
