// Package pricing computes item subtotals, cart subtotals and cart totals
// by layering condition sets in a fixed stage order:
//
//  1. Each line: its own conditions (then cart-level item-target
//     conditions) fold over the unit price, in order; the result is
//     multiplied by the quantity.
//  2. Cart subtotal: cart conditions targeting "subtotal" fold over the sum
//     of line subtotals.
//  3. Cart total: cart conditions targeting "total" fold over the subtotal.
//
// The *WithoutConditions figures skip every stage and sum price*quantity.
// Rule predicates read only those figures, which is what keeps dynamic
// condition evaluation free of recursion.
//
// Amounts are computed as float64 and rounded to the currency's minor unit
// when read through Pipeline.Totals; nothing is stored pre-rounded.
package pricing
