// Package store holds the bounded in-memory history of derived minute records.
//
// Store is a fixed-capacity ring buffer: Append is the only way in and the
// oldest record is overwritten once the buffer is full. Readers take a copy
// with Snapshot and run the view functions in views.go (Dedupe, Last,
// RedStreaks, ColorDurations) on the copy, outside the lock.
package store
