// Package pipeline runs the update loop that turns source changes into
// history records.
//
// Each tick compares the source fingerprint with the last one processed. On
// a change it aggregates the whole file into minute buckets, feeds the
// chronologically last bucket through the EWMA estimator and the capacity
// model, appends one record to the store and hands the record to observers
// (metrics, alerts, publisher).
//
// A failing tick changes nothing: the fingerprint is not advanced, so the next
// tick retries. Errors are classified (io, schema, parse, unknown) and logged;
// the loop itself never stops until its context is cancelled.
package pipeline
