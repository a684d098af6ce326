// Package query provides the read side of the service: projections over the
// history store and the raw source, plus the officer-count setter.
//
// History views copy the store under its lock and format outside it. Every
// view is deduplicated by (minute, checkpoint) before it is sliced, so a
// window can hold fewer entries than requested.
package query
