package event

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loyalty-hub/internal/model"
)

type Type string

const (
	TypePointsGranted       Type = "points_granted"
	TypeTierUpgraded        Type = "tier_upgraded"
	TypeReferralCompleted   Type = "referral_completed"
	TypeRedemptionCreated   Type = "redemption_created"
	TypePayoutRequested     Type = "payout_requested"
	TypePayoutStatusChanged Type = "payout_status_changed"
)

// Event is the closed set of outbound ledger events. Only types declared in
// this package implement it.
type Event interface {
	EventType() Type
	// Recipients lists the users the event concerns.
	Recipients() []uuid.UUID
	sealed()
}

type PointsGranted struct {
	UserID          uuid.UUID                   `json:"user_id"`
	TransactionID   uuid.UUID                   `json:"transaction_id"`
	TransactionType model.PointsTransactionType `json:"transaction_type"`
	Points          int64                       `json:"points"`
	AvailablePoints int64                       `json:"available_points"`
	Description     string                      `json:"description"`
	OccurredAt      time.Time                   `json:"occurred_at"`
}

type TierUpgraded struct {
	UserID      uuid.UUID `json:"user_id"`
	FromLevel   int       `json:"from_level"`
	ToLevel     int       `json:"to_level"`
	TierName    string    `json:"tier_name"`
	BonusPoints int64     `json:"bonus_points"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type ReferralCompleted struct {
	ReferralID     uuid.UUID       `json:"referral_id"`
	ReferrerID     uuid.UUID       `json:"referrer_id"`
	RefereeID      uuid.UUID       `json:"referee_id"`
	OrderID        string          `json:"order_id"`
	OrderValue     decimal.Decimal `json:"order_value"`
	ReferrerReward RewardSummary   `json:"referrer_reward"`
	RefereeReward  RewardSummary   `json:"referee_reward"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// RewardSummary describes what one side of a referral received.
type RewardSummary struct {
	Type           model.ReferralRewardType `json:"type"`
	Points         int64                    `json:"points,omitempty"`
	CashbackAmount decimal.Decimal          `json:"cashback_amount"`
	CouponCode     string                   `json:"coupon_code,omitempty"`
}

type RedemptionCreated struct {
	UserID       uuid.UUID `json:"user_id"`
	RedemptionID uuid.UUID `json:"redemption_id"`
	RewardID     uuid.UUID `json:"reward_id"`
	RewardName   string    `json:"reward_name"`
	CouponCode   string    `json:"coupon_code"`
	PointsUsed   int64     `json:"points_used"`
	OccurredAt   time.Time `json:"occurred_at"`
}

type PayoutRequested struct {
	UserID     uuid.UUID          `json:"user_id"`
	PayoutID   uuid.UUID          `json:"payout_id"`
	Amount     decimal.Decimal    `json:"amount"`
	Method     model.PayoutMethod `json:"method"`
	OccurredAt time.Time          `json:"occurred_at"`
}

type PayoutStatusChanged struct {
	UserID     uuid.UUID          `json:"user_id"`
	PayoutID   uuid.UUID          `json:"payout_id"`
	From       model.PayoutStatus `json:"from"`
	To         model.PayoutStatus `json:"to"`
	Amount     decimal.Decimal    `json:"amount"`
	Reason     string             `json:"reason,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

func (PointsGranted) EventType() Type { return TypePointsGranted }
func (TierUpgraded) EventType() Type { return TypeTierUpgraded }
func (ReferralCompleted) EventType() Type { return TypeReferralCompleted }
func (RedemptionCreated) EventType() Type { return TypeRedemptionCreated }
func (PayoutRequested) EventType() Type { return TypePayoutRequested }
func (PayoutStatusChanged) EventType() Type { return TypePayoutStatusChanged }

func (e PointsGranted) Recipients() []uuid.UUID { return []uuid.UUID{e.UserID} }
func (e TierUpgraded) Recipients() []uuid.UUID { return []uuid.UUID{e.UserID} }
func (e ReferralCompleted) Recipients() []uuid.UUID { return []uuid.UUID{e.ReferrerID, e.RefereeID} }
func (e RedemptionCreated) Recipients() []uuid.UUID { return []uuid.UUID{e.UserID} }
func (e PayoutRequested) Recipients() []uuid.UUID { return []uuid.UUID{e.UserID} }
func (e PayoutStatusChanged) Recipients() []uuid.UUID { return []uuid.UUID{e.UserID} }

func (PointsGranted) sealed() {}
func (TierUpgraded) sealed() {}
func (ReferralCompleted) sealed() {}
func (RedemptionCreated) sealed() {}
func (PayoutRequested) sealed() {}
func (PayoutStatusChanged) sealed() {}
