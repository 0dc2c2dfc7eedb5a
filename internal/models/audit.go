package models

import "time"

// ChangeAction enumerates the kinds of audited mutations.
type ChangeAction string

const (
	ChangeCreated ChangeAction = "CREATED"
	ChangeUpdated ChangeAction = "UPDATED"
	ChangeDeleted ChangeAction = "DELETED"
)

// ChangeRecord is one audited field-level change. EntityLabel is
// denormalized so history survives deletion of the source row. A nil
// ActorID means the change came from a background process.
type ChangeRecord struct {
	ID          string       `db:"id" json:"id"`
	EntityType  string       `db:"entity_type" json:"entity_type"`
	EntityID    string       `db:"entity_id" json:"entity_id"`
	EntityLabel string       `db:"entity_label" json:"entity_label"`
	SiteID      *string      `db:"site_id" json:"site_id,omitempty"`
	Action      ChangeAction `db:"action" json:"action"`
	FieldName   string       `db:"field_name" json:"field_name"`
	FieldLabel  string       `db:"field_label" json:"field_label"`
	OldValue    *string      `db:"old_value" json:"old_value,omitempty"`
	NewValue    *string      `db:"new_value" json:"new_value,omitempty"`
	ActorID     *string      `db:"actor_id" json:"actor_id,omitempty"`
	ActorName   *string      `db:"actor_name" json:"actor_name,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}

// ChangeRecordFilter captures filtering options for browsing history.
type ChangeRecordFilter struct {
	EntityType *string
	EntityID   *string
	Action     *ChangeAction
	ActorID    *string
	SiteID     *string
	FromDate   *time.Time
	ToDate     *time.Time
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
