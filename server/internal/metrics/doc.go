// Package metrics exposes the load pipeline in the Prometheus text format.
//
// Gauges mirror the latest record of each checkpoint (n_t, lambda_hat, mu,
// rho, level, officers); counters track appended records and update-loop
// ticks by result and error kind. ServeHTTP gathers the private registry and
// encodes it with expfmt. A ?checkpoint= query keeps only series of that
// checkpoint plus the unlabelled process metrics.
package metrics
