package model

import (
	"time"

	"github.com/google/uuid"
)

// FlagType describes a flag category users can attach to content
// (bookmark, favorite, report, ...). Flag types are registered by the
// wider platform; this service only reads them.
type FlagType struct {
	ID         string    `json:"id" db:"id"`
	Label      string    `json:"label" db:"label"`
	EntityType string    `json:"entity_type" db:"entity_type"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Flagging is a single user-created flag record. Flaggings are created
// by the platform; this service only selects and deletes them.
type Flagging struct {
	ID         uuid.UUID `json:"id" db:"id"`
	FlagID     string    `json:"flag_id" db:"flag_id"`
	EntityType string    `json:"entity_type" db:"entity_type"`
	EntityID   string    `json:"entity_id" db:"entity_id"`
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// RetentionPolicy holds per-flag-type retention settings. At most one
// row exists per flag type; a missing row means the global default
// applies. RetentionDays of zero means keep forever.
type RetentionPolicy struct {
	FlagID        string    `json:"flag_id" db:"flag_id"`
	RetentionDays int       `json:"retention_days" db:"retention_days"`
	AutoClear     bool      `json:"auto_clear" db:"auto_clear"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// FlagWithPolicy pairs a flag type with its effective retention policy
// for the admin listing.
type FlagWithPolicy struct {
	Flag   FlagType        `json:"flag"`
	Policy RetentionPolicy `json:"policy"`
}

// Flag access modes.
const (
	FlagAccessAllowAll      = "allow_all"
	FlagAccessAllowSelected = "allow_selected"
)

// RetentionConfig is an immutable snapshot of the global retention
// defaults, taken once per operation or cleanup tick.
type RetentionConfig struct {
	DefaultRetentionDays int
	CronBatchSize        int
	UserClearingEnabled  bool
	LogClearingActivity  bool
	FlagAccessMode       string
	EnabledFlags         []string
}

// FlagAllowed reports whether user-facing operations may touch the
// given flag type under the current access mode.
func (c RetentionConfig) FlagAllowed(flagID string) bool {
	if c.FlagAccessMode != FlagAccessAllowSelected {
		return true
	}
	for _, id := range c.EnabledFlags {
		if id == flagID {
			return true
		}
	}
	return false
}

// AllowedFlags returns the flag types visible to user-facing
// operations, or nil when every flag type is allowed.
func (c RetentionConfig) AllowedFlags() []string {
	if c.FlagAccessMode != FlagAccessAllowSelected {
		return nil
	}
	out := make([]string, len(c.EnabledFlags))
	copy(out, c.EnabledFlags)
	return out
}
