package event

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrInvalidPayload = errors.New("invalid event payload")

var orderIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// OrderConfirmed is delivered by the checkout system once payment succeeded.
type OrderConfirmed struct {
	OrderID    string          `json:"orderId"`
	UserID     uuid.UUID       `json:"userId"`
	OrderTotal decimal.Decimal `json:"orderTotal"`
	Items      []OrderItem     `json:"items"`
}

type OrderItem struct {
	ProductID string          `json:"productId"`
	Category  string          `json:"category,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

func (e *OrderConfirmed) Validate() error {
	e.OrderID = strings.TrimSpace(e.OrderID)
	if !orderIDPattern.MatchString(e.OrderID) {
		return fmt.Errorf("%w: orderId", ErrInvalidPayload)
	}
	if e.UserID == uuid.Nil {
		return fmt.Errorf("%w: userId", ErrInvalidPayload)
	}
	if e.OrderTotal.IsNegative() {
		return fmt.Errorf("%w: orderTotal", ErrInvalidPayload)
	}
	for i, item := range e.Items {
		if strings.TrimSpace(item.ProductID) == "" || item.Quantity <= 0 || item.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: items[%d]", ErrInvalidPayload, i)
		}
	}
	return nil
}

// UserRegistered is delivered by the identity system after a signup.
type UserRegistered struct {
	UserID       uuid.UUID `json:"userId"`
	ReferralCode *string   `json:"referralCode,omitempty"`
	IPAddress    *string   `json:"ipAddress,omitempty"`
	UserAgent    *string   `json:"userAgent,omitempty"`
	Source       *string   `json:"source,omitempty"`
}

func (e *UserRegistered) Validate() error {
	if e.UserID == uuid.Nil {
		return fmt.Errorf("%w: userId", ErrInvalidPayload)
	}
	if e.ReferralCode != nil {
		code := strings.ToUpper(strings.TrimSpace(*e.ReferralCode))
		if code == "" {
			e.ReferralCode = nil
		} else if len(code) > 32 {
			return fmt.Errorf("%w: referralCode", ErrInvalidPayload)
		} else {
			e.ReferralCode = &code
		}
	}
	return nil
}
