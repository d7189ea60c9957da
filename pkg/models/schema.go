package models

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateRouteJob(job *RouteJob) error {
	if job == nil {
		return &ValidationError{
			Field:   "job",
			Message: "route job cannot be nil",
		}
	}

	if job.JobID == "" {
		return &ValidationError{
			Field:   "job_id",
			Message: "job ID is required",
		}
	}

	if job.ConversationID == "" {
		return &ValidationError{
			Field:   "conversation_id",
			Message: "conversation ID is required",
		}
	}

	if job.BrokerID == "" {
		return &ValidationError{
			Field:   "broker_id",
			Message: "broker ID is required",
		}
	}

	if job.EnqueuedAt.IsZero() {
		return &ValidationError{
			Field:   "enqueued_at",
			Message: "enqueue timestamp is required",
		}
	}

	return nil
}
