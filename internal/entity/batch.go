package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/ape/constants"
)

// BatchJob represents a batch job for data transfer between layers.
type BatchJob struct {
	ID             uuid.UUID             `json:"batch_job_id"`
	UserID         uuid.UUID             `json:"user_id"`
	Name           string                `json:"name"`
	Status         constants.BatchStatus `json:"status"`
	Priority       int                   `json:"priority"`
	TotalFiles     int                   `json:"total_files"`
	ProcessedFiles int                   `json:"processed_files"`
	FailedFiles    int                   `json:"failed_files"`
	Progress       float64               `json:"progress"`
	EstimatedCost  float64               `json:"estimated_cost"`
	ActualCost     float64               `json:"actual_cost"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
	Files          []BatchFile           `json:"files"`
}

// BatchFile represents one uploaded file inside a batch.
type BatchFile struct {
	ID           uuid.UUID           `json:"id"`
	BatchID      uuid.UUID           `json:"batch_job_id"`
	FileName     string              `json:"filename"`
	FileSize     int64               `json:"size"`
	ContentType  string              `json:"content_type"`
	StorageKey   string              `json:"-"`
	Status       constants.JobStatus `json:"status"`
	Progress     float64             `json:"progress"`
	CurrentStep  *string             `json:"current_step"`
	Result       json.RawMessage     `json:"result"`
	Error        *string             `json:"error"`
	ServicesUsed []string            `json:"aws_services_used"`
	CostEstimate float64             `json:"cost_estimate"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// Counts tallies file statuses.
func (b *BatchJob) Counts() (completed, failed int) {
	for _, f := range b.Files {
		switch f.Status {
		case constants.JobStatusCompleted:
			completed++
		case constants.JobStatusFailed:
			failed++
		}
	}
	return completed, failed
}
