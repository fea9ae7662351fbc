package domain

import "time"

// AuditEvent describes a core mutation for the best-effort audit trail.
// Delivery is fire-and-forget: a failed audit write never fails the
// operation that produced it.
type AuditEvent struct {
	OrgID      string    `json:"org_id"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Actor      string    `json:"actor,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
