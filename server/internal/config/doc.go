// Package config loads the service configuration from config.yaml.
//
// Sections:
//   - server: HTTP port and API key auth for the capacity write path
//   - source: CSV path (CSV_PATH env overrides), poll interval, column names, timezone
//   - estimator: EWMA alpha (default 0.25)
//   - capacity: throughput per officer (default 0.5), GREEN/YELLOW thresholds, officer seeds
//   - history: ring buffer capacity (default 600) and analysis window (default 60)
//   - stream: websocket broadcast interval
//   - alerts: threshold rules and webhook targets
//   - publish: optional Kafka record publisher
//   - log: slog level
//
// Load(path) applies defaults before unmarshalling, then validates. Watch
// reloads the file on change.
package config
