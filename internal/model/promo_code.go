package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PromoCodeType string

const (
	PromoCodePercentage   PromoCodeType = "PERCENTAGE"
	PromoCodeFixedAmount  PromoCodeType = "FIXED_AMOUNT"
	PromoCodeFreeShipping PromoCodeType = "FREE_SHIPPING"
	PromoCodeBuyXGetY     PromoCodeType = "BUY_X_GET_Y"
)

func (t PromoCodeType) Valid() bool {
	switch t {
	case PromoCodePercentage, PromoCodeFixedAmount, PromoCodeFreeShipping, PromoCodeBuyXGetY:
		return true
	default:
		return false
	}
}

type PromoCodeStatus string

const (
	PromoCodeStatusActive    PromoCodeStatus = "ACTIVE"
	PromoCodeStatusExpired   PromoCodeStatus = "EXPIRED"
	PromoCodeStatusExhausted PromoCodeStatus = "EXHAUSTED"
	PromoCodeStatusInactive  PromoCodeStatus = "INACTIVE"
	PromoCodeStatusScheduled PromoCodeStatus = "SCHEDULED"
)

// UnlimitedUses disables the global usage cap of a promo code.
const UnlimitedUses = -1

type PromoCode struct {
	ID                 uuid.UUID        `db:"id" json:"id"`
	Code               string           `db:"code" json:"code"`
	Description        string           `db:"description" json:"description"`
	Type               PromoCodeType    `db:"type" json:"type"`
	DiscountValue      decimal.Decimal  `db:"discount_value" json:"discount_value"`
	MaxDiscount        *decimal.Decimal `db:"max_discount" json:"max_discount,omitempty"`
	MinPurchase        *decimal.Decimal `db:"min_purchase" json:"min_purchase,omitempty"`
	MaxUses            int              `db:"max_uses" json:"max_uses"`
	CurrentUses        int              `db:"current_uses" json:"current_uses"`
	MaxUsesPerUser     int              `db:"max_uses_per_user" json:"max_uses_per_user"`
	ValidFrom          time.Time        `db:"valid_from" json:"valid_from"`
	ValidTo            *time.Time       `db:"valid_to" json:"valid_to,omitempty"`
	Products           []string         `db:"products" json:"products,omitempty"`
	ExcludedProducts   []string         `db:"excluded_products" json:"excluded_products,omitempty"`
	Categories         []string         `db:"categories" json:"categories,omitempty"`
	ExcludedCategories []string         `db:"excluded_categories" json:"excluded_categories,omitempty"`
	FirstPurchaseOnly  bool             `db:"first_purchase_only" json:"first_purchase_only"`
	FreeShipping       bool             `db:"free_shipping" json:"free_shipping"`
	BuyQuantity        int              `db:"buy_quantity" json:"buy_quantity"`
	GetQuantity        int              `db:"get_quantity" json:"get_quantity"`
	IsActive           bool             `db:"is_active" json:"is_active"`
	TotalOrders        int              `db:"total_orders" json:"total_orders"`
	TotalRevenue       decimal.Decimal  `db:"total_revenue" json:"total_revenue"`
	CreatedBy          *uuid.UUID       `db:"created_by" json:"created_by,omitempty"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

func (p *PromoCode) Exhausted() bool {
	return p.MaxUses != UnlimitedUses && p.CurrentUses >= p.MaxUses
}

// StatusAt derives the lifecycle status; it is never stored.
func (p *PromoCode) StatusAt(now time.Time) PromoCodeStatus {
	switch {
	case !p.IsActive:
		return PromoCodeStatusInactive
	case p.ValidTo != nil && now.After(*p.ValidTo):
		return PromoCodeStatusExpired
	case now.Before(p.ValidFrom):
		return PromoCodeStatusScheduled
	case p.Exhausted():
		return PromoCodeStatusExhausted
	default:
		return PromoCodeStatusActive
	}
}

type PromoCodeUsage struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	PromoCodeID     uuid.UUID       `db:"promo_code_id" json:"promo_code_id"`
	UserID          uuid.UUID       `db:"user_id" json:"user_id"`
	OrderID         *string         `db:"order_id" json:"order_id,omitempty"`
	DiscountApplied decimal.Decimal `db:"discount_applied" json:"discount_applied"`
	OrderTotal      decimal.Decimal `db:"order_total" json:"order_total"`
	IPAddress       *string         `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent       *string         `db:"user_agent" json:"user_agent,omitempty"`
	UsedAt          time.Time       `db:"used_at" json:"used_at"`
}

type PromoCodeUsageStats struct {
	TotalUses     int             `json:"total_uses"`
	UniqueUsers   int             `json:"unique_users"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
}

type CartItem struct {
	ProductID string          `json:"product_id"`
	Category  string          `json:"category,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
