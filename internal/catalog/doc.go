// Package catalog loads condition catalogs written in CUE.
//
// A catalog is a set of named condition definitions, validated against an
// embedded schema:
//
//	condition: "bulk-discount": {
//		type:   "discount"
//		target: "subtotal"
//		value:  "-10%"
//		rules: {
//			keys: ["min-items"]
//			context: min: 3
//		}
//	}
//
// Rule keys and contexts are checked against a rules.Factory at load time,
// so a catalog that loads cleanly can always be applied.
package catalog
