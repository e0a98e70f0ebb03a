package model

import (
	"encoding/json"
	"time"
)

// Action identifies what a queued job should do on the remote side.
type Action string

const (
	ActionCreate    Action = "create"
	ActionUpdate    Action = "update"
	ActionDelete    Action = "delete"
	ActionDeleteAll Action = "delete_all"
	ActionCancel    Action = "cancel"
	ActionTrack     Action = "track"
	ActionInit      Action = "init"
	ActionReinit    Action = "reinit"
)

// EntityType identifies which remote collection a job targets.
type EntityType string

const (
	EntityProducts   EntityType = "products"
	EntityVariants   EntityType = "variants"
	EntityCategories EntityType = "categories"
	EntityUsers      EntityType = "users"
	EntityGuestUsers EntityType = "guest_users"
	EntityOrders     EntityType = "orders"
	EntityEvents     EntityType = "events"
)

type JobStatus int

const (
	JobStatusPending JobStatus = 0
	// JobStatusProcessing is reserved for a lease protocol; the dispatcher
	// currently transitions jobs straight from pending to a terminal state.
	JobStatusProcessing JobStatus = 1
	JobStatusSuccess    JobStatus = 2
	JobStatusFailure    JobStatus = 3
)

// NoVariants is the sentinel variant id for products synced without
// combinations.
const NoVariants = "no-variants"

// Job is the persisted unit of outbound sync work. EntityID is nil for
// bulk jobs (init/reinit/delete_all), which carry an id list in the
// payload instead.
type Job struct {
	ID         int64           `db:"id" json:"id"`
	Action     Action          `db:"action" json:"action"`
	EntityType EntityType      `db:"entity_type" json:"entity_type"`
	EntityID   *int64          `db:"entity_id" json:"entity_id,omitempty"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	Status     JobStatus       `db:"status" json:"status"`
	ExecutedAt *time.Time      `db:"executed_at" json:"executed_at,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// Terminal reports whether the job has reached a final state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailure
}
