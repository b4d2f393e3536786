package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RewardType string

const (
	RewardTypeDiscountPercent RewardType = "discount_percent"
	RewardTypeDiscountFixed   RewardType = "discount_fixed"
	RewardTypeFreeShipping    RewardType = "free_shipping"
	RewardTypeProduct         RewardType = "product"
)

func (t RewardType) Valid() bool {
	switch t {
	case RewardTypeDiscountPercent, RewardTypeDiscountFixed, RewardTypeFreeShipping, RewardTypeProduct:
		return true
	default:
		return false
	}
}

type Reward struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Description  string          `db:"description" json:"description"`
	Type         RewardType      `db:"type" json:"type"`
	Value        decimal.Decimal `db:"value" json:"value"`
	ProductID    *string         `db:"product_id" json:"product_id,omitempty"`
	PointsCost   int64           `db:"points_cost" json:"points_cost"`
	MinTierLevel int             `db:"min_tier_level" json:"min_tier_level"`
	// MaxPerUser caps concurrent active redemptions per user; 0 means unlimited.
	MaxPerUser int        `db:"max_per_user" json:"max_per_user"`
	ValidFrom  *time.Time `db:"valid_from" json:"valid_from,omitempty"`
	ValidTo    *time.Time `db:"valid_to" json:"valid_to,omitempty"`
	IsActive   bool       `db:"is_active" json:"is_active"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

func (r *Reward) AvailableAt(now time.Time) bool {
	if r == nil || !r.IsActive {
		return false
	}
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return false
	}
	if r.ValidTo != nil && now.After(*r.ValidTo) {
		return false
	}
	return true
}

type RedemptionStatus string

const (
	RedemptionStatusActive  RedemptionStatus = "active"
	RedemptionStatusUsed    RedemptionStatus = "used"
	RedemptionStatusExpired RedemptionStatus = "expired"
)

type Redemption struct {
	ID         uuid.UUID        `db:"id" json:"id"`
	UserID     uuid.UUID        `db:"user_id" json:"user_id"`
	RewardID   uuid.UUID        `db:"reward_id" json:"reward_id"`
	CouponCode string           `db:"coupon_code" json:"coupon_code"`
	PointsUsed int64            `db:"points_used" json:"points_used"`
	Status     RedemptionStatus `db:"status" json:"status"`
	RedeemedAt time.Time        `db:"redeemed_at" json:"redeemed_at"`
	ExpiresAt  *time.Time       `db:"expires_at" json:"expires_at,omitempty"`
	UsedAt     *time.Time       `db:"used_at" json:"used_at,omitempty"`
}
