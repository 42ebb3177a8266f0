package checkpoint

import "time"

// Status is the lifecycle state of a sync job checkpoint.
type Status string

const (
	StatusCreated     Status = "CREATED"
	StatusInProgress  Status = "IN_PROGRESS"
	StatusCompleted   Status = "COMPLETED"
	StatusInterrupted Status = "INTERRUPTED"
)

// Resumable reports whether a checkpoint in this state can be picked up by
// a fresh run of the same query.
func (s Status) Resumable() bool {
	return s == StatusInProgress || s == StatusInterrupted
}

// Checkpoint is the durable progress record of a named sync job. The query
// string is the job key: a fresh run for the same query resumes from the
// most recently created resumable checkpoint instead of starting over.
type Checkpoint struct {
	SyncID          string                 `json:"sync_id"`
	Query           string                 `json:"query"`
	OutputDirectory string                 `json:"output_directory"`
	TotalMessages   int                    `json:"total_messages"`
	ProcessedCount  int                    `json:"processed_count"`
	LastProcessedID string                 `json:"last_processed_id"`
	Status          Status                 `json:"status"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// ResumeInfo tells a resuming coordinator where to pick up.
type ResumeInfo struct {
	SkipCount int
}

// ResumeInfo returns the resume position for this checkpoint. Enumeration
// indices below SkipCount were already processed by an earlier run.
func (c *Checkpoint) ResumeInfo() ResumeInfo {
	return ResumeInfo{SkipCount: c.ProcessedCount}
}
