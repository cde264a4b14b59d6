package models

import "time"

// Publish journal statuses.
const (
	PublishStatusPending   = "pending"
	PublishStatusPublished = "published"
	PublishStatusFailed    = "failed"
)

// PublishRecord is one row of the publish journal: a single attempt to hand a
// staged bundle to the external sink.
type PublishRecord struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	MovieCount  int        `json:"movieCount"`
	SeriesCount int        `json:"seriesCount"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
