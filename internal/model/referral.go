package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReferralRewardType string

const (
	ReferralRewardPercentage ReferralRewardType = "percentage"
	ReferralRewardFixed      ReferralRewardType = "fixed"
	ReferralRewardPoints     ReferralRewardType = "points"
	ReferralRewardCashback   ReferralRewardType = "cashback"
)

func (t ReferralRewardType) Valid() bool {
	switch t {
	case ReferralRewardPercentage, ReferralRewardFixed, ReferralRewardPoints, ReferralRewardCashback:
		return true
	default:
		return false
	}
}

type ReferralCode struct {
	ID                  uuid.UUID          `db:"id" json:"id"`
	Code                string             `db:"code" json:"code"`
	ReferrerID          uuid.UUID          `db:"referrer_id" json:"referrer_id"`
	ReferrerRewardType  ReferralRewardType `db:"referrer_reward_type" json:"referrer_reward_type"`
	ReferrerRewardValue decimal.Decimal    `db:"referrer_reward_value" json:"referrer_reward_value"`
	RefereeRewardType   ReferralRewardType `db:"referee_reward_type" json:"referee_reward_type"`
	RefereeRewardValue  decimal.Decimal    `db:"referee_reward_value" json:"referee_reward_value"`
	MaxUses             int                `db:"max_uses" json:"max_uses"`
	CurrentUses         int                `db:"current_uses" json:"current_uses"`
	IsActive            bool               `db:"is_active" json:"is_active"`
	ValidFrom           time.Time          `db:"valid_from" json:"valid_from"`
	ValidTo             *time.Time         `db:"valid_to" json:"valid_to,omitempty"`
	CreatedAt           time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time          `db:"updated_at" json:"updated_at"`
}

type ReferralStatus string

const (
	ReferralStatusPending   ReferralStatus = "pending"
	ReferralStatusCompleted ReferralStatus = "completed"
	ReferralStatusCancelled ReferralStatus = "cancelled"
)

type Referral struct {
	ID             uuid.UUID        `db:"id" json:"id"`
	ReferralCodeID uuid.UUID        `db:"referral_code_id" json:"referral_code_id"`
	ReferralCode   string           `db:"referral_code" json:"referral_code"`
	ReferrerID     uuid.UUID        `db:"referrer_id" json:"referrer_id"`
	RefereeID      uuid.UUID        `db:"referee_id" json:"referee_id"`
	Status         ReferralStatus   `db:"status" json:"status"`
	ClickedAt      time.Time        `db:"clicked_at" json:"clicked_at"`
	ConvertedAt    *time.Time       `db:"converted_at" json:"converted_at,omitempty"`
	OrderID        *string          `db:"order_id" json:"order_id,omitempty"`
	OrderValue     *decimal.Decimal `db:"order_value" json:"order_value,omitempty"`
	IPAddress      *string          `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent      *string          `db:"user_agent" json:"user_agent,omitempty"`
	Source         *string          `db:"source" json:"source,omitempty"`
	CancelledAt    *time.Time       `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelReason   *string          `db:"cancel_reason" json:"cancel_reason,omitempty"`
}

type ReferralRole string

const (
	ReferralRoleReferrer ReferralRole = "referrer"
	ReferralRoleReferee  ReferralRole = "referee"
)

// ReferralReward records one reward delivered when a referral completes.
type ReferralReward struct {
	ID             uuid.UUID          `db:"id" json:"id"`
	ReferralID     uuid.UUID          `db:"referral_id" json:"referral_id"`
	UserID         uuid.UUID          `db:"user_id" json:"user_id"`
	Role           ReferralRole       `db:"role" json:"role"`
	Type           ReferralRewardType `db:"type" json:"type"`
	Value          decimal.Decimal    `db:"value" json:"value"`
	Points         int64              `db:"points" json:"points"`
	CashbackAmount decimal.Decimal    `db:"cashback_amount" json:"cashback_amount"`
	CouponCode     *string            `db:"coupon_code" json:"coupon_code,omitempty"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
}

type UserReferralStats struct {
	UserID              uuid.UUID       `db:"user_id" json:"user_id"`
	TotalReferrals      int             `db:"total_referrals" json:"total_referrals"`
	SuccessfulReferrals int             `db:"successful_referrals" json:"successful_referrals"`
	TotalReferralSales  decimal.Decimal `db:"total_referral_sales" json:"total_referral_sales"`
	TotalEarnings       decimal.Decimal `db:"total_earnings" json:"total_earnings"`
	AvailableCashback   decimal.Decimal `db:"available_cashback" json:"available_cashback"`
	TierLevel           int             `db:"tier_level" json:"tier_level"`
	TierProgress        float64         `db:"tier_progress" json:"tier_progress"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}
