// Package query implements the streaming query operator layer:
// basic-graph-pattern matching with cardinality-driven reordering and
// join-strategy selection, OPTIONAL and UNION, FILTER expressions, the
// property-path algebra, the solution modifiers (DISTINCT/ORDER
// BY/LIMIT/OFFSET), and the aggregate families with GROUP BY.
//
// Every operator implements Operator: a pull-based Advance/Current/Err/
// Close cursor with no internal suspension points. Operators compose by
// wrapping one another; none materializes its input unless it has to
// (ORDER BY, GROUP BY, and the hash-join build side are the only
// buffering points).
package query
