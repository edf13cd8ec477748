// Package cart holds the cart domain model and the mutation service.
//
// A cart is addressed by an Identity: the owner identifier (user id or guest
// session id) and an instance name ("default", "wishlist", ...). Its items,
// cart-level conditions and metadata live behind the Storage contract and are
// rehydrated on every read; nothing is cached across calls.
//
// Items are immutable. Every mutation builds a new Item and writes the full
// item list back. Service serializes mutations per Identity with a
// KeyedLocker and re-evaluates dynamic conditions before returning.
package cart
