package models

import "time"

// Run stages, in pipeline order.
const (
	StageFilter  = "filter"
	StageEmbed   = "embed"
	StageCluster = "cluster"
	StageTag     = "tag"
)

// PipelineRun records one execution of a pipeline stage in the manifest,
// so interrupted runs can be inspected and resumed.
type PipelineRun struct {
	ID         string                 `json:"id"`
	Stage      string                 `json:"stage"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at,omitempty"`
	Succeeded  bool                   `json:"succeeded"`
	Stats      map[string]interface{} `json:"stats,omitempty"`
}
