package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LinkStatus string

const (
	LinkStatusActive    LinkStatus = "active"
	LinkStatusUsed      LinkStatus = "used"
	LinkStatusExpired   LinkStatus = "expired"
	LinkStatusCancelled LinkStatus = "cancelled"
)

type PaymentLink struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	InvoiceID      uuid.UUID       `json:"invoice_id" db:"invoice_id"`
	Token          string          `json:"token" db:"token"`
	URL            string          `json:"url" db:"url"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	AllowedMethods []PaymentMethod `json:"allowed_methods" db:"allowed_methods"`
	Status         LinkStatus      `json:"status" db:"status"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	ExpiresAt      time.Time       `json:"expires_at" db:"expires_at"`
	UsedAt         *time.Time      `json:"used_at,omitempty" db:"used_at"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty" db:"cancelled_at"`
}

// IsExpiredAt reports whether an active link has passed its expiry at now.
func (l *PaymentLink) IsExpiredAt(now time.Time) bool {
	return l.Status == LinkStatusActive && !now.Before(l.ExpiresAt)
}

func (l *PaymentLink) Allows(method PaymentMethod) bool {
	for _, m := range l.AllowedMethods {
		if m == method {
			return true
		}
	}
	return false
}

func (l *PaymentLink) Clone() *PaymentLink {
	c := *l
	c.AllowedMethods = append([]PaymentMethod(nil), l.AllowedMethods...)
	return &c
}

type OnlinePaymentStatus string

const (
	OnlinePaymentPending    OnlinePaymentStatus = "pending"
	OnlinePaymentProcessing OnlinePaymentStatus = "processing"
	OnlinePaymentCompleted  OnlinePaymentStatus = "completed"
	OnlinePaymentRejected   OnlinePaymentStatus = "rejected"
)

type PayerDetails struct {
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	Phone      string `json:"phone,omitempty"`
	CardLast4  string `json:"card_last4,omitempty"`
}

type OnlinePayment struct {
	ID               uuid.UUID           `json:"id" db:"id"`
	LinkID           uuid.UUID           `json:"link_id" db:"link_id"`
	InvoiceID        uuid.UUID           `json:"invoice_id" db:"invoice_id"`
	Amount           decimal.Decimal     `json:"amount" db:"amount"`
	Method           PaymentMethod       `json:"method" db:"method"`
	Payer            PayerDetails        `json:"payer" db:"payer"`
	Status           OnlinePaymentStatus `json:"status" db:"status"`
	GatewayReference string              `json:"gateway_reference,omitempty" db:"gateway_reference"`
	FailureReason    string              `json:"failure_reason,omitempty" db:"failure_reason"`
	PaymentRecordID  *uuid.UUID          `json:"payment_record_id,omitempty" db:"payment_record_id"`
	CreatedAt        time.Time           `json:"created_at" db:"created_at"`
	ProcessedAt      *time.Time          `json:"processed_at,omitempty" db:"processed_at"`
}
