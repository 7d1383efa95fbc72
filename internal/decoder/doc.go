// Package decoder turns the flat rows of value queries into nested feature
// events.
//
// Rows arrive depth first: the main table row of a feature, then for every
// child table its rows, each followed by the rows of tables nested below
// it. Every row carries the sort keys of its join chain (SKEY_0, SKEY_1,
// ...), which identify its ancestors.
//
// The decoder is a state machine:
//
//	Idle -> FeatureOpen -> {ObjectOpen, ArrayOpen}* -> FeatureOpen -> ... -> Closed
//
// A MultiplicityTracker assigns 0-based array indexes per table within the
// current parent occurrence; a NestingStack records the open array and
// object levels. Before the values of a row are emitted, levels that do not
// contain the row are closed and missing levels are opened.
//
// A Decoder is sequential and owns all of its state. Use one Decoder per
// query execution.
package decoder
