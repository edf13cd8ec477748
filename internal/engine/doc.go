// Package engine manages dynamic conditions: conditions whose activation is
// decided by predicates evaluated against the cart.
//
// LIFECYCLE:
//
// A dynamic condition is registered for one cart Identity. From then on
// every cart mutation runs Reevaluate, which for each registration:
//   - subtotal/total targets: evaluates the rules once against the cart
//   - item target: evaluates the rules once per item
//
// and materializes a static copy (rules stripped) where they hold, or
// retracts it where they do not. The active sets therefore never contain a
// dynamic condition.
//
// PERSISTENCE:
//
// Predicates are closures and cannot be stored. A registration made from
// factory keys (FactoryKeys with Persist set) stores its recipe in cart
// metadata; RestoreAll rebuilds the predicates through rules.Factory after a
// restart. Literal predicates and producers live only in memory.
//
// FAILURES:
//
// A predicate error never aborts evaluation of the rest of the cart. It is
// handed to the FailureHandler and the condition is treated as not
// applying.
//
// LOCKING:
//
// Public methods take the cart lock through the shared cart.Locker.
// Reevaluate and Transfer expect the caller to hold it already; the cart
// service and the migrator call them from inside their own critical
// sections.
package engine
