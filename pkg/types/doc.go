// Package types defines shared Go types used by both the server and the
// generator. These are the canonical in-memory representations of checkpoint
// passages and derived load records, separate from any wire format.
package types
