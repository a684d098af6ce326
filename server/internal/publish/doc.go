// Package publish forwards appended history records to Kafka for downstream
// consumers.
//
// Publish is non-blocking: records go into a bounded buffer and the oldest is
// evicted when it is full. Run drains the buffer and writes each record as a
// JSON message keyed by checkpoint id, retrying with exponential backoff while
// the brokers are unreachable.
package publish
