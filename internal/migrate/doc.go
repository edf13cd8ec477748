// Package migrate moves cart state between owners, typically from a guest
// session to a user who just logged in.
//
// Swap transfers a cart wholesale. Migrate merges a guest cart into the
// user's cart, resolving items present in both according to a Strategy.
// Both operations lock the two identities through the shared cart.Locker
// and leave the guest cart forgotten.
package migrate
