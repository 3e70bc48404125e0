package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReplayStatus records the outcome of re-enqueuing a dead-lettered task.
type ReplayStatus string

const (
	ReplayQueued  ReplayStatus = "QUEUED"
	ReplaySuccess ReplayStatus = "SUCCESS"
	ReplayFailed  ReplayStatus = "FAILED"
	ReplaySkipped ReplayStatus = "SKIPPED"
)

// FailedTask is a dead-letter queue record: a job that exhausted its retries,
// preserved with enough context to inspect and replay it.
type FailedTask struct {
	ID       uuid.UUID
	TaskID   string
	TaskName string
	Args     string
	Kwargs   string

	ExceptionType    string
	ExceptionMessage string
	Traceback        string
	RetryCount       int
	FailedAt         time.Time

	ReplayedAt   *time.Time
	ReplayStatus *ReplayStatus
	ReplayNotes  *string

	CreatedAt time.Time
}
