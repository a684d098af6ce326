// Package compute holds the load math of the pipeline.
//
// aggregate.go turns raw passage events into per-checkpoint minute buckets,
// filling every gap inside a checkpoint's observed range with a zero count.
//
// estimator.go provides the per-checkpoint EWMA of the arrival rate. The first
// observation seeds the estimate undamped; later ones follow
// smoothed = α·x + (1-α)·previous.
//
// capacity.go provides the capacity Model: officer counts, service rate,
// utilization and the GREEN/YELLOW/RED classification.
//
// Estimator and Model are safe for concurrent use.
package compute
