// Package mainboilerplate contains shared boilerplate for this project's
// programs. It provides a selection of narrowly scoped functions so that
// callers do not have to buy-in to an all-or-nothing approach.
package mainboilerplate
