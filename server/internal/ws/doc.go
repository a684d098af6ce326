// Package ws implements the live dashboard feed of the gateload server.
//
// Hub keeps a set of WebSocket clients and pushes the dashboard (latest
// records, summary, color and warning durations) to all of them every
// stream interval, and additionally whenever the update loop appends a record.
// A client receives the current dashboard immediately on connect.
//
// Message format:
//
//	{
//	  "event": "dashboard",
//	  "data":  { "generated_at": ..., "latest": [...], "summary": [...],
//	             "color_durations": {...}, "warning_durations": {...} }
//	}
//
// The upgrader accepts all origins. The server mounts the hub at /ws/stream.
package ws
