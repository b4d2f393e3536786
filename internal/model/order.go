package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConfirmedOrder is the ledger's record of an order-confirmed trigger.
// It makes the trigger idempotent and backs first-purchase checks.
type ConfirmedOrder struct {
	OrderID     string          `db:"order_id" json:"order_id"`
	UserID      uuid.UUID       `db:"user_id" json:"user_id"`
	OrderTotal  decimal.Decimal `db:"order_total" json:"order_total"`
	ConfirmedAt time.Time       `db:"confirmed_at" json:"confirmed_at"`
}
