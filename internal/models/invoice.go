package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusPartial   InvoiceStatus = "partial"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
	DiscountTypeReason     DiscountType = "reason"
)

// Customer is a snapshot of the billed party taken when the invoice is issued.
type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	TaxID   string `json:"tax_id,omitempty"`
	Address string `json:"address,omitempty"`
}

type LineItem struct {
	Description     string          `json:"description"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Amount          decimal.Decimal `json:"amount"`
}

// Discount is the invoice-wide discount. Value is a percentage for
// percentage discounts and an amount for fixed ones; reason discounts resolve
// their percentage from Reason.
type Discount struct {
	Type   DiscountType    `json:"type"`
	Value  decimal.Decimal `json:"value"`
	Reason string          `json:"reason,omitempty"`
}

type Invoice struct {
	ID                 uuid.UUID       `json:"id" db:"id"`
	Sequence           int64           `json:"sequence" db:"sequence"`
	Number             string          `json:"number" db:"number"`
	IssueDate          time.Time       `json:"issue_date" db:"issue_date"`
	DueDate            time.Time       `json:"due_date" db:"due_date"`
	Customer           Customer        `json:"customer" db:"customer"`
	Items              []LineItem      `json:"items" db:"items"`
	Subtotal           decimal.Decimal `json:"subtotal" db:"subtotal"`
	Discount           *Discount       `json:"discount,omitempty" db:"discount"`
	DiscountAmount     decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	TaxRate            decimal.Decimal `json:"tax_rate" db:"tax_rate"`
	Tax                decimal.Decimal `json:"tax" db:"tax"`
	Total              decimal.Decimal `json:"total" db:"total"`
	Status             InvoiceStatus   `json:"status" db:"status"`
	PaymentIDs         []uuid.UUID     `json:"payment_ids" db:"payment_ids"`
	PaidAmount         decimal.Decimal `json:"paid_amount" db:"paid_amount"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance" db:"outstanding_balance"`
	ReminderCount      int             `json:"reminder_count" db:"reminder_count"`
	LastReminderAt     *time.Time      `json:"last_reminder_at,omitempty" db:"last_reminder_at"`
	SubscriptionID     *uuid.UUID      `json:"subscription_id,omitempty" db:"subscription_id"`
	PaymentLinkID      *uuid.UUID      `json:"payment_link_id,omitempty" db:"payment_link_id"`
	Notes              string          `json:"notes,omitempty" db:"notes"`
	PaidAt             *time.Time      `json:"paid_at,omitempty" db:"paid_at"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// IsOpen reports whether the invoice can still receive payments.
func (i *Invoice) IsOpen() bool {
	return i.Status != InvoiceStatusCancelled && i.OutstandingBalance.IsPositive()
}

// Clone returns a deep copy so stores never share slices with callers.
func (i *Invoice) Clone() *Invoice {
	c := *i
	c.Items = append([]LineItem(nil), i.Items...)
	c.PaymentIDs = append([]uuid.UUID(nil), i.PaymentIDs...)
	if i.Discount != nil {
		d := *i.Discount
		c.Discount = &d
	}
	return &c
}

// InvoiceFilter narrows List results. Zero values mean "any".
type InvoiceFilter struct {
	Status         InvoiceStatus
	CustomerEmail  string
	SubscriptionID *uuid.UUID
	Limit          int
	Offset         int
}
