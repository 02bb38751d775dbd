// Package predicate builds server-side WHERE conditions for bun queries from
// property/value key maps or typed column selectors.
package predicate
