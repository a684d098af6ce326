// Package api implements the HTTP REST API of the gateload server.
//
// New(deps) returns an http.Handler that serves:
//
//	GET  /api/v1/health                    liveness, CSV path, record count, loop status
//	GET  /api/v1/summary?minutes=15        plain-language explanation of recent records
//	GET  /api/v1/latest?minutes=60         deduplicated recent history records
//	POST /api/v1/capacity                  set the officer count of a checkpoint
//	GET  /api/v1/metrics/last-minutes      per-minute passage series and KPIs
//	GET  /api/v1/color-durations           minutes per level over the analysis window
//	GET  /api/v1/warning-durations         RED streaks per checkpoint
//	GET  /api/v1/utilization               latest load state of one checkpoint
//	GET  /api/v1/csv/latest?limit=50       newest raw rows of the source file
//	GET  /api/v1/destinations              top destination airports
//	GET  /api/v1/alerts                    firing and recently resolved alerts
//
// All endpoints respond with Content-Type: application/json and return 405 for
// the wrong method. minutes must be an integer in [1, 10080] (one week) and
// limit in [1, 1000], otherwise the response is 400. The capacity route is wrapped by the configured write
// middleware (API key authentication).
//
// JSON types are defined in types.go. No external HTTP framework is used.
package api
