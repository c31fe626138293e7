package domain

import (
	"encoding/json"
	"time"
)

// MaxRetries bounds the retries column; a task whose retries reach this
// value is no longer eligible for claim.
const MaxRetries = 3

// LeaseTTL is how long a claimed (in_progress) task holds its lease
// before another poll is allowed to reclaim it.
const LeaseTTL = 5 * time.Minute

type TaskStatus string

const (
	TaskStatusNew        TaskStatus = "new"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusFinished   TaskStatus = "finished"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusRetried    TaskStatus = "retried"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusNew, TaskStatusInProgress, TaskStatusFinished, TaskStatusFailed, TaskStatusRetried:
		return true
	default:
		return false
	}
}

// Task is the central entity: a plugin invocation scheduled once, on a
// cron expression, or on a fixed interval.
type Task struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Project Project `json:"project"`

	Name   string     `json:"name"`
	Status TaskStatus `json:"status"`

	Retries int `json:"retries"`

	// Schedule is either absent (one-shot), "@every <duration>", or a
	// cron expression. Nil means one-shot.
	Schedule *string `json:"schedule,omitempty"`

	StartAt int64 `json:"startAt"`

	ExternalID         *string    `json:"externalId,omitempty"`
	ExternalModifiedAt *time.Time `json:"externalModifiedAt,omitempty"`

	LockedAt *time.Time `json:"lockedAt,omitempty"`

	Options json.RawMessage `json:"options,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Eligible reports whether t may be claimed at instant now, per the
// store's claim predicate (invariant 2).
func (t *Task) Eligible(now time.Time) bool {
	if t.Status == TaskStatusFinished || t.Status == TaskStatusInProgress {
		return false
	}
	if t.Retries >= MaxRetries {
		return false
	}
	if t.StartAt > now.Unix() {
		return false
	}
	if t.LockedAt != nil && t.LockedAt.Add(LeaseTTL).After(now) {
		return false
	}
	return true
}

// UpsertTaskParams is the input to Store.UpsertTask.
type UpsertTaskParams struct {
	ProjectID          string
	Type               string
	Name               string
	ExternalID         *string
	ExternalModifiedAt *time.Time
	Schedule           *string
	StartAt            int64
	Options            json.RawMessage
}

// TaskAttempt records one dispatch of a task, for operator visibility.
// It is additive: no scheduler decision reads it.
type TaskAttempt struct {
	ID           string
	TaskID       string
	WorkerID     string
	StartedAt    time.Time
	CompletedAt  *time.Time
	Status       AttemptStatus
	PluginError  *string
	DurationMS   *int64
}

type AttemptStatus string

const (
	AttemptStatusSuccess AttemptStatus = "success"
	AttemptStatusFailure AttemptStatus = "failure"
)
