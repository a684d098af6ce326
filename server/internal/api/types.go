package api

import (
	"github.com/gateload/gateload/server/internal/pipeline"
	"github.com/gateload/gateload/server/internal/query"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	OK              bool            `json:"ok"`
	CSVPath         string          `json:"csv_path"`
	Records         int             `json:"records"`
	HistoryCapacity int             `json:"history_capacity"`
	Checkpoints     []string        `json:"checkpoints"`
	Model           query.ModelInfo `json:"model"`
	Loop            pipeline.Status `json:"loop"`
	AlertCount      int             `json:"alert_count"`
}

// CapacityRequest is the body of POST /api/v1/capacity.
type CapacityRequest struct {
	CheckpointID string `json:"checkpoint_id"`
	Officers     *int   `json:"officers"`
}

// errorResponse is the standard JSON error envelope.
type errorResponse struct {
	Error string `json:"error"`
}
