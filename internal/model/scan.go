package model

import "time"

// ScanStatus is the lifecycle state of an extraction job.
type ScanStatus string

const (
	StatusPending   ScanStatus = "pending"
	StatusRunning   ScanStatus = "running"
	StatusCompleted ScanStatus = "completed"
	StatusFailed    ScanStatus = "failed"
	StatusCancelled ScanStatus = "cancelled"
)

// Terminal reports whether no further transition is permitted from s.
func (s ScanStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving from one status to another is legal.
// Transitions are strictly forward: pending → running → terminal.
func CanTransition(from, to ScanStatus) bool {
	if from.Terminal() {
		return false
	}
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusCancelled || to == StatusFailed
	case StatusRunning:
		return to.Terminal()
	}
	return false
}

// ScanJob is one extraction run against the HubSpot deals API.
type ScanJob struct {
	ID             string     `json:"id"`      // internal, system-generated
	ScanID         string     `json:"scan_id"` // external, caller-supplied
	TenantID       string     `json:"tenant_id,omitempty"`
	Status         ScanStatus `json:"status"`
	TotalItems     int64      `json:"total_items"`
	ProcessedItems int64      `json:"processed_items"`
	FailedItems    int64      `json:"failed_items"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// SuccessRate is processed/(processed+failed) in percent. Reports 100 when
// the job never saw an item so an empty source still reads as a clean run.
func (j *ScanJob) SuccessRate() float64 {
	seen := j.ProcessedItems + j.FailedItems
	if seen == 0 {
		return 100.0
	}
	return float64(j.ProcessedItems) / float64(seen) * 100.0
}

// Progress is the point-in-time counter snapshot exposed by status queries.
// Reads may trail the run loop by up to one checkpoint interval.
type Progress struct {
	TotalItems     int64   `json:"total_items"`
	ProcessedItems int64   `json:"processed_items"`
	FailedItems    int64   `json:"failed_items"`
	SuccessRate    float64 `json:"success_rate"`
}

// Checkpoint is the durable resume point for one scan. Sufficient to restart
// the run loop without re-deriving state from persisted rows.
type Checkpoint struct {
	ScanID         string    `json:"scan_id"`
	Cursor         string    `json:"cursor"`
	LastBatchIndex int64     `json:"last_batch_index"`
	TotalSoFar     int64     `json:"total_so_far"`
	ProcessedSoFar int64     `json:"processed_so_far"`
	FailedSoFar    int64     `json:"failed_so_far"`
	UpdatedAt      time.Time `json:"updated_at"`
}
