package model

import "time"

// WorkflowTransition is one append-only audit entry. Side-channel actions
// (priority, assignment) carry nil from/to stages.
type WorkflowTransition struct {
	ID        int64          `json:"id"`
	EmailID   string         `json:"email_id"`
	ActorID   string         `json:"actor_id"`
	Action    string         `json:"action"`
	FromStage *WorkflowStage `json:"from_stage,omitempty"`
	ToStage   *WorkflowStage `json:"to_stage,omitempty"`
	Notes     string         `json:"notes,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
