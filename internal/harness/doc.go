// Package harness runs cart pricing scenarios.
//
// A scenario is a YAML file describing a cart, the conditions attached to
// it and a sequence of later mutations. The harness executes it against a
// fresh in-memory SQLite store with a fixed clock and checks the final
// figures against the scenario's expectations.
//
// # Scenario Format
//
//	name: bulk_discount
//	description: "10% off once three items are in the cart"
//	currency: USD
//	clock: "2024-03-15T12:00:00Z"
//	catalog: promotions.cue
//	metadata: { vip: true }
//	items:
//	  - { id: a, name: Apple, price: 10, quantity: 1 }
//	conditions:
//	  - name: handling
//	    type: fee
//	    target: total
//	    value: "+2.50"
//	  - name: bulk
//	    type: discount
//	    target: subtotal
//	    value: "-10%"
//	    rules: { keys: [min-items], context: { min: 3 } }
//	steps:
//	  - { op: update, item: a, quantity: 2 }
//	  - { op: clock, at: "2024-03-15T18:00:00Z" }
//	  - { op: restart }
//	expect:
//	  subtotal: 27
//	  total: 29.5
//	  conditions: [bulk, handling]
//
// Conditions with rules are registered as dynamic conditions; the others
// are attached as static ones. Catalog paths are relative to the scenario
// file.
//
// # Steps
//
//   - add: add the item given under "add"
//   - update: set (or with relative, adjust) quantity and price of an item
//   - remove: remove an item
//   - clear: empty the cart
//   - metadata: set key to value
//   - clock: move the clock to "at" and re-evaluate
//   - restart: drop in-memory registrations and restore them from storage
//   - unregister: remove the dynamic condition named by "condition"
//
// # Golden Files
//
// RunWithGolden compares the final breakdown with
// testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
