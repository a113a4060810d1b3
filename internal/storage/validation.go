package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fintrack/wa-gateway/internal/model"
)

// Validation errors.
var (
	ErrNilContext   = errors.New("context cannot be nil")
	ErrEmptyString  = errors.New("string parameter cannot be empty")
	ErrNilParameter = errors.New("parameter cannot be nil")
	ErrInvalidJob   = errors.New("invalid delivery job")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateJob validates a delivery job before it is persisted.
func validateJob(job *model.DeliveryJob) error {
	if job == nil {
		return fmt.Errorf("%w: job", ErrNilParameter)
	}
	if job.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidJob)
	}
	if job.Recipient == "" {
		return fmt.Errorf("%w: missing recipient", ErrInvalidJob)
	}
	if job.Body == "" {
		return fmt.Errorf("%w: missing body", ErrInvalidJob)
	}
	switch job.Status {
	case model.StatusPending, model.StatusQueued, model.StatusSent, model.StatusFailed:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidJob, job.Status)
	}
	return nil
}
