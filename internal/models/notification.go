package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel is a delivery medium for customer notifications
type Channel string

const (
	ChannelSystem   Channel = "system"
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// Cadence controls how often an overdue invoice may be reminded
type Cadence string

const (
	CadenceOnce   Cadence = "once"
	CadenceDaily  Cadence = "daily"
	CadenceWeekly Cadence = "weekly"
)

func (c Cadence) Valid() bool {
	return c == CadenceOnce || c == CadenceDaily || c == CadenceWeekly
}

type NotificationKind string

const (
	NotificationKindReminder NotificationKind = "reminder"
	NotificationKindInvoice  NotificationKind = "invoice"
	NotificationKindReceipt  NotificationKind = "receipt"
)

// NotificationConfig is the global reminder policy
type NotificationConfig struct {
	Enabled        bool      `json:"enabled"`
	Cadence        Cadence   `json:"cadence"`
	MinOverdueDays int       `json:"min_overdue_days"`
	Channels       []Channel `json:"channels"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NotificationHistory records one successful dispatch for an invoice
type NotificationHistory struct {
	ID          uuid.UUID        `json:"id" db:"id"`
	InvoiceID   uuid.UUID        `json:"invoice_id" db:"invoice_id"`
	Kind        NotificationKind `json:"kind" db:"kind"`
	Channels    []Channel        `json:"channels" db:"channels"`
	OverdueDays int              `json:"overdue_days" db:"overdue_days"`
	SentAt      time.Time        `json:"sent_at" db:"sent_at"`
}

// Notification is an in-system inbox message
type Notification struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	InvoiceID *uuid.UUID `json:"invoice_id,omitempty" db:"invoice_id"`
	Recipient string     `json:"recipient" db:"recipient"`
	Subject   string     `json:"subject" db:"subject"`
	Body      string     `json:"body" db:"body"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty" db:"read_at"`
}

// Message is rendered notification content handed to a transport
type Message struct {
	InvoiceID uuid.UUID        `json:"invoice_id"`
	Kind      NotificationKind `json:"kind"`
	Subject   string           `json:"subject"`
	Body      string           `json:"body"`
}
