package model

import (
	"time"

	"github.com/google/uuid"
)

// AuditLog is one row of the ledger's administrative trail. Rows are written
// in the same transaction as the change they describe.
type AuditLog struct {
	ID           int64                  `db:"id" json:"id"`
	ActorID      *uuid.UUID             `db:"actor_id" json:"actor_id,omitempty"`
	Action       string                 `db:"action" json:"action"`
	ResourceType string                 `db:"resource_type" json:"resource_type"`
	ResourceID   string                 `db:"resource_id" json:"resource_id"`
	Details      map[string]interface{} `db:"details" json:"details,omitempty"`
	CreatedAt    time.Time              `db:"created_at" json:"created_at"`
}

func NewAuditLog(actor *uuid.UUID, action, resourceType, resourceID string, details map[string]interface{}) *AuditLog {
	return &AuditLog{
		ActorID:      actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		CreatedAt:    time.Now().UTC(),
	}
}
