// Package synth produces synthetic checkpoint passages and appends them to a
// passage CSV file.
//
// Traffic follows a time-of-day profile: Probability(hour) is the chance that
// a step emits a row. A step that emits picks a checkpoint uniformly and
// stamps CheckDate with the local wall clock in "2006-01-02 15:04:05" form.
package synth
