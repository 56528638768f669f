package models

import (
	"time"

	"github.com/google/uuid"
)

type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiweekly  Frequency = "biweekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}

type SubscriptionState string

const (
	SubscriptionActive    SubscriptionState = "active"
	SubscriptionPaused    SubscriptionState = "paused"
	SubscriptionCancelled SubscriptionState = "cancelled"
	SubscriptionExpired   SubscriptionState = "expired"
)

type Subscription struct {
	ID       uuid.UUID  `json:"id" db:"id"`
	Customer Customer   `json:"customer" db:"customer"`
	Items    []LineItem `json:"items" db:"items"`
	Discount *Discount  `json:"discount,omitempty" db:"discount"`
	Notes    string     `json:"notes,omitempty" db:"notes"`
	// Frequency and Anchor drive NextBillingDate. Anchor is a weekday (0=Sunday)
	// for weekly plans and a day of month (1-31) for monthly and longer ones.
	Frequency         Frequency         `json:"frequency" db:"frequency"`
	Anchor            int               `json:"anchor" db:"anchor"`
	State             SubscriptionState `json:"state" db:"state"`
	StartDate         time.Time         `json:"start_date" db:"start_date"`
	EndDate           *time.Time        `json:"end_date,omitempty" db:"end_date"`
	NextBillingDate   time.Time         `json:"next_billing_date" db:"next_billing_date"`
	SendAutomatically bool              `json:"send_automatically" db:"send_automatically"`
	LinkTTLDays       int               `json:"link_ttl_days" db:"link_ttl_days"`
	InvoiceIDs        []uuid.UUID       `json:"invoice_ids" db:"invoice_ids"`
	LastBilledAt      *time.Time        `json:"last_billed_at,omitempty" db:"last_billed_at"`
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at" db:"updated_at"`
}

func (s *Subscription) Clone() *Subscription {
	c := *s
	c.Items = append([]LineItem(nil), s.Items...)
	c.InvoiceIDs = append([]uuid.UUID(nil), s.InvoiceIDs...)
	if s.Discount != nil {
		d := *s.Discount
		c.Discount = &d
	}
	return &c
}
