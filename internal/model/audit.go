package model

import "time"

// AuditEntry is one structured log row appended after a mutation. The
// recorder is fire-and-forget: a failed append never fails the request
// that triggered it.
type AuditEntry struct {
	ID           string    `db:"id" json:"id"`
	OccurredAt   time.Time `db:"occurred_at" json:"occurredAt"`
	Actor        string    `db:"actor" json:"actor"`
	Operation    string    `db:"operation" json:"operation"`
	ResourceType string    `db:"resource_type" json:"resourceType"`
	ResourceID   string    `db:"resource_id" json:"resourceId"`
	Detail       string    `db:"detail" json:"detail,omitempty"`
}
