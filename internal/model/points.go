package model

import (
	"time"

	"github.com/google/uuid"
)

type PointsTransactionType string

const (
	PointsTxSignupBonus     PointsTransactionType = "signup_bonus"
	PointsTxPurchase        PointsTransactionType = "purchase"
	PointsTxReviewBonus     PointsTransactionType = "review_bonus"
	PointsTxTierBonus       PointsTransactionType = "tier_bonus"
	PointsTxBirthdayBonus   PointsTransactionType = "birthday_bonus"
	PointsTxReferralBonus   PointsTransactionType = "referral_bonus"
	PointsTxRedemption      PointsTransactionType = "redemption"
	PointsTxAdminAdjustment PointsTransactionType = "admin_adjustment"
)

func (t PointsTransactionType) Valid() bool {
	switch t {
	case PointsTxSignupBonus,
		PointsTxPurchase,
		PointsTxReviewBonus,
		PointsTxTierBonus,
		PointsTxBirthdayBonus,
		PointsTxReferralBonus,
		PointsTxRedemption,
		PointsTxAdminAdjustment:
		return true
	default:
		return false
	}
}

// CountsTowardTier reports whether points of this type advance tier progress.
// Tier bonuses are excluded so a promotion can never trigger itself.
func (t PointsTransactionType) CountsTowardTier() bool {
	return t != PointsTxTierBonus && t != PointsTxRedemption
}

type PointsTransactionStatus string

const (
	PointsTxStatusPending   PointsTransactionStatus = "pending"
	PointsTxStatusCompleted PointsTransactionStatus = "completed"
	PointsTxStatusReversed  PointsTransactionStatus = "reversed"
)

// PointsAccount is the materialized balance of a user's transaction log.
// TotalPoints == AvailablePoints + UsedPoints always holds.
type PointsAccount struct {
	UserID          uuid.UUID `db:"user_id" json:"user_id"`
	TotalPoints     int64     `db:"total_points" json:"total_points"`
	AvailablePoints int64     `db:"available_points" json:"available_points"`
	UsedPoints      int64     `db:"used_points" json:"used_points"`
	TierLevel       int       `db:"tier_level" json:"tier_level"`
	TierProgress    int64     `db:"tier_progress" json:"tier_progress"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

type PointsTransaction struct {
	ID             uuid.UUID               `db:"id" json:"id"`
	UserID         uuid.UUID               `db:"user_id" json:"user_id"`
	Type           PointsTransactionType   `db:"type" json:"type"`
	Points         int64                   `db:"points" json:"points"`
	Description    string                  `db:"description" json:"description"`
	OrderID        *string                 `db:"order_id" json:"order_id,omitempty"`
	ProductID      *string                 `db:"product_id" json:"product_id,omitempty"`
	ReferralID     *uuid.UUID              `db:"referral_id" json:"referral_id,omitempty"`
	IdempotencyKey *string                 `db:"idempotency_key" json:"-"`
	Metadata       map[string]interface{}  `db:"metadata" json:"metadata,omitempty"`
	Status         PointsTransactionStatus `db:"status" json:"status"`
	CreatedAt      time.Time               `db:"created_at" json:"created_at"`
}

// PointsLedgerSum is the re-derivation of an account from completed transactions.
type PointsLedgerSum struct {
	Earned int64 `json:"earned"`
	Spent  int64 `json:"spent"`
	// Progress sums the earned points that count toward tier progress.
	Progress int64 `json:"progress"`
}

func (s PointsLedgerSum) Available() int64 {
	return s.Earned - s.Spent
}
