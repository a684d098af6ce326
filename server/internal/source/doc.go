// Package source reads passage events from the CSV file the generator (or an
// upstream export) appends to.
//
// A missing or empty file is not an error: it reads as no events. A header
// without any recognised timestamp column is a structural error and returns
// ErrMissingTimestampColumn. Rows whose timestamp cannot be parsed are left
// to the aggregator, which drops them.
//
// Fingerprint is the cheap change signal the update loop polls; Watch adds
// fsnotify nudges on top of polling.
package source
