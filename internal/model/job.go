// Package model defines the shared domain types of the gateway.
package model

import "time"

// JobStatus is the delivery lifecycle state of an outbound message.
type JobStatus string

// Delivery job statuses. Sent and Failed (after the retry budget is
// exhausted) are terminal.
const (
	StatusPending JobStatus = "PENDING"
	StatusQueued  JobStatus = "QUEUED"
	StatusSent    JobStatus = "SENT"
	StatusFailed  JobStatus = "FAILED"
)

// DeliveryJob is a queued unit of outbound message work with its own
// retry and status lifecycle.
type DeliveryJob struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	Recipient    string     `json:"phoneNumber"`
	Body         string     `json:"message"`
	TemplateID   string     `json:"templateId,omitempty"`
	Status       JobStatus  `json:"status"`
	AttemptsMade int        `json:"retryCount"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	SentAt       *time.Time `json:"sentAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Terminal reports whether the job has reached a final state.
func (j *DeliveryJob) Terminal() bool {
	return j.Status == StatusSent || j.Status == StatusFailed
}

// DeliveryLogEntry is an immutable append-only record of a single status
// transition of a DeliveryJob.
type DeliveryLogEntry struct {
	ID           int64             `json:"id"`
	JobID        string            `json:"messageId"`
	Status       JobStatus         `json:"status"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	RetryCount   int               `json:"retryCount"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
}
