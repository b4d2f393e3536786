package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PayoutMethod string

const (
	PayoutMethodBankTransfer PayoutMethod = "bank_transfer"
	PayoutMethodPayPal       PayoutMethod = "paypal"
	PayoutMethodPix          PayoutMethod = "pix"
	PayoutMethodStoreCredit  PayoutMethod = "store_credit"
)

func (m PayoutMethod) Valid() bool {
	switch m {
	case PayoutMethodBankTransfer, PayoutMethodPayPal, PayoutMethodPix, PayoutMethodStoreCredit:
		return true
	default:
		return false
	}
}

type PayoutStatus string

const (
	PayoutStatusRequested PayoutStatus = "requested"
	PayoutStatusApproved  PayoutStatus = "approved"
	PayoutStatusPaid      PayoutStatus = "paid"
	PayoutStatusRejected  PayoutStatus = "rejected"
)

// CanTransition lists the allowed edges of the payout state machine.
func (s PayoutStatus) CanTransition(to PayoutStatus) bool {
	switch s {
	case PayoutStatusRequested:
		return to == PayoutStatusApproved || to == PayoutStatusRejected
	case PayoutStatusApproved:
		return to == PayoutStatusPaid || to == PayoutStatusRejected
	default:
		return false
	}
}

func (s PayoutStatus) Open() bool {
	return s == PayoutStatusRequested || s == PayoutStatusApproved
}

type CashbackPayout struct {
	ID           uuid.UUID         `db:"id" json:"id"`
	UserID       uuid.UUID         `db:"user_id" json:"user_id"`
	Amount       decimal.Decimal   `db:"amount" json:"amount"`
	Method       PayoutMethod      `db:"method" json:"method"`
	BankDetails  map[string]string `db:"bank_details" json:"bank_details,omitempty"`
	Status       PayoutStatus      `db:"status" json:"status"`
	RequestedAt  time.Time         `db:"requested_at" json:"requested_at"`
	ReviewedBy   *uuid.UUID        `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time        `db:"reviewed_at" json:"reviewed_at,omitempty"`
	PaidAt       *time.Time        `db:"paid_at" json:"paid_at,omitempty"`
	RejectReason *string           `db:"reject_reason" json:"reject_reason,omitempty"`
}
