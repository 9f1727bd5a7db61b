package model

import "time"

// FlagStats aggregates flagging counts for one flag type. Always
// computed on demand against current storage state, never cached.
type FlagStats struct {
	FlagID      string `json:"flag_id" db:"flag_id"`
	TotalCount  int64  `json:"total_count" db:"total_count"`
	UniqueUsers int64  `json:"unique_users" db:"unique_users"`
}

// TickState is the terminal state of one cleanup tick.
type TickState string

const (
	TickCompleted       TickState = "completed"
	TickPartiallyFailed TickState = "partially_failed"
	TickSkipped         TickState = "skipped"
)

// CleanupResult reports the outcome of one cleanup tick.
type CleanupResult struct {
	State         TickState        `json:"state"`
	TotalDeleted  int64            `json:"total_deleted"`
	DeletedByFlag map[string]int64 `json:"deleted_by_flag,omitempty"`
	FailedFlagIDs []string         `json:"failed_flag_ids,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	Duration      time.Duration    `json:"duration"`
}
