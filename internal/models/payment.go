package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodCash          PaymentMethod = "cash"
	PaymentMethodBankTransfer  PaymentMethod = "bank_transfer"
	PaymentMethodCard          PaymentMethod = "card"
	PaymentMethodCheck         PaymentMethod = "check"
	PaymentMethodDigitalWallet PaymentMethod = "digital_wallet"
	PaymentMethodOther         PaymentMethod = "other"
)

// OnlinePaymentMethods are the methods a payment link can offer.
var OnlinePaymentMethods = []PaymentMethod{
	PaymentMethodCard,
	PaymentMethodBankTransfer,
	PaymentMethodDigitalWallet,
}

var validPaymentMethods = map[PaymentMethod]bool{
	PaymentMethodCash:          true,
	PaymentMethodBankTransfer:  true,
	PaymentMethodCard:          true,
	PaymentMethodCheck:         true,
	PaymentMethodDigitalWallet: true,
	PaymentMethodOther:         true,
}

func (m PaymentMethod) Valid() bool {
	return validPaymentMethods[m]
}

type PaymentSource string

const (
	PaymentSourceManual PaymentSource = "manual"
	PaymentSourceOnline PaymentSource = "online"
)

// PaymentRecord is append-only; a confirmed record is never edited.
type PaymentRecord struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	InvoiceID       uuid.UUID       `json:"invoice_id" db:"invoice_id"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	Method          PaymentMethod   `json:"method" db:"method"`
	Reference       string          `json:"reference,omitempty" db:"reference"`
	Source          PaymentSource   `json:"source" db:"source"`
	OnlinePaymentID *uuid.UUID      `json:"online_payment_id,omitempty" db:"online_payment_id"`
	Confirmed       bool            `json:"confirmed" db:"confirmed"`
	PaidAt          time.Time       `json:"paid_at" db:"paid_at"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}
