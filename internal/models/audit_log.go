package models

import (
	"time"

	"github.com/google/uuid"
)

// JSONB is a free-form JSON object stored alongside an audit entry.
type JSONB map[string]interface{}

// AuditLog records one change to a receivables entity.
type AuditLog struct {
	ID         uuid.UUID `json:"id" db:"id"`
	EntityType string    `json:"entity_type" db:"entity_type"`
	EntityID   string    `json:"entity_id" db:"entity_id"`
	Action     string    `json:"action" db:"action"`
	Source     string    `json:"source" db:"source"`
	Values     JSONB     `json:"values,omitempty" db:"values"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Audit sources
const (
	AuditSourceEvent = "event"
	AuditSourceHTTP  = "http"
)

// Action constants for audit logs
const (
	ActionPaymentSettled  = "PAYMENT_SETTLED"
	ActionPaymentRejected = "PAYMENT_REJECTED"
	ActionRequest         = "REQUEST"
)

// AuditLogFilters represents filters for querying audit logs
type AuditLogFilters struct {
	EntityType *string `json:"entity_type"`
	EntityID   *string `json:"entity_id"`
	Action     *string `json:"action"`
	Limit      int     `json:"limit"`
	Offset     int     `json:"offset"`
}
