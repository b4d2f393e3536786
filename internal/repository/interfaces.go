package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loyalty-hub/internal/model"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate reports a unique-key collision. Inserts use it instead of
	// aborting the surrounding transaction.
	ErrDuplicate = errors.New("duplicate record")
	// ErrConditionFailed reports that a conditional update matched no row,
	// e.g. a debit that would overdraw a balance.
	ErrConditionFailed = errors.New("update condition not met")
	// ErrSerialization is a retryable write conflict or deadlock.
	ErrSerialization = errors.New("serialization failure")
	// ErrStoreUnavailable covers timeouts and lost connections.
	ErrStoreUnavailable = errors.New("store unavailable")
)

type Pagination struct {
	Limit  int32 `json:"limit"`
	Offset int32 `json:"offset"`
}

// AuditListFilter narrows the audit trail. ResourceID only applies together
// with ResourceType.
type AuditListFilter struct {
	ActorID      *uuid.UUID `json:"actor_id,omitempty"`
	Action       *string    `json:"action,omitempty"`
	ResourceType *string    `json:"resource_type,omitempty"`
	ResourceID   *string    `json:"resource_id,omitempty"`
	Since        *time.Time `json:"since,omitempty"`
	Until        *time.Time `json:"until,omitempty"`
	Pagination   Pagination `json:"pagination"`
}

type PromoCodeListFilter struct {
	IsActive   *bool      `json:"is_active,omitempty"`
	Keyword    *string    `json:"keyword,omitempty"`
	Pagination Pagination `json:"pagination"`
}

type PayoutListFilter struct {
	UserID     *uuid.UUID          `json:"user_id,omitempty"`
	Status     *model.PayoutStatus `json:"status,omitempty"`
	Pagination Pagination          `json:"pagination"`
}

type PointsRepository interface {
	// EnsureAccount creates an empty account if the user has none.
	EnsureAccount(ctx context.Context, userID uuid.UUID) error
	FindAccount(ctx context.Context, userID uuid.UUID) (*model.PointsAccount, error)
	FindAccountForUpdate(ctx context.Context, userID uuid.UUID) (*model.PointsAccount, error)
	Credit(ctx context.Context, userID uuid.UUID, points, progress int64) (*model.PointsAccount, error)
	// Debit moves points from available to used only if enough are available.
	Debit(ctx context.Context, userID uuid.UUID, points int64) (*model.PointsAccount, error)
	// PromoteTier raises the tier level; it returns false when the account is already at or above level.
	PromoteTier(ctx context.Context, userID uuid.UUID, level int) (bool, error)
	// AppendTransaction returns ErrDuplicate when the idempotency key was already used.
	AppendTransaction(ctx context.Context, tx *model.PointsTransaction) error
	ListTransactions(ctx context.Context, userID uuid.UUID, page Pagination) ([]*model.PointsTransaction, int64, error)
	SumTransactions(ctx context.Context, userID uuid.UUID) (model.PointsLedgerSum, error)
}

type RewardRepository interface {
	Create(ctx context.Context, reward *model.Reward) error
	Update(ctx context.Context, reward *model.Reward) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Reward, error)
	List(ctx context.Context, activeOnly bool, page Pagination) ([]*model.Reward, int64, error)
}

type RedemptionRepository interface {
	// Create returns ErrDuplicate when the coupon code is taken.
	Create(ctx context.Context, redemption *model.Redemption) error
	CountByUserAndReward(ctx context.Context, userID, rewardID uuid.UUID, status model.RedemptionStatus) (int, error)
	ListByUser(ctx context.Context, userID uuid.UUID, status *model.RedemptionStatus, page Pagination) ([]*model.Redemption, int64, error)
	FindByCouponForUpdate(ctx context.Context, couponCode string) (*model.Redemption, error)
	MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) error
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

type ReferralCodeRepository interface {
	// Create returns ErrDuplicate when the code or the referrer's active slot is taken.
	Create(ctx context.Context, code *model.ReferralCode) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ReferralCode, error)
	FindByCode(ctx context.Context, code string) (*model.ReferralCode, error)
	FindByCodeForUpdate(ctx context.Context, code string) (*model.ReferralCode, error)
	FindActiveByReferrer(ctx context.Context, referrerID uuid.UUID) (*model.ReferralCode, error)
	ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]*model.ReferralCode, error)
	// ReserveUse increments current_uses only while the code is usable at now.
	ReserveUse(ctx context.Context, id uuid.UUID, now time.Time) error
	ReleaseUse(ctx context.Context, id uuid.UUID) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

type ReferralRepository interface {
	// Create returns ErrDuplicate when the referee already has a pending or completed referral.
	Create(ctx context.Context, referral *model.Referral) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Referral, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Referral, error)
	FindActiveByReferee(ctx context.Context, refereeID uuid.UUID) (*model.Referral, error)
	FindByOrderID(ctx context.Context, orderID string) (*model.Referral, error)
	Complete(ctx context.Context, id uuid.UUID, orderID string, orderValue decimal.Decimal, at time.Time) error
	Cancel(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
	ListByReferrer(ctx context.Context, referrerID uuid.UUID, status *model.ReferralStatus, page Pagination) ([]*model.Referral, int64, error)
}

type ReferralRewardRepository interface {
	Create(ctx context.Context, reward *model.ReferralReward) error
	ListByUser(ctx context.Context, userID uuid.UUID, page Pagination) ([]*model.ReferralReward, int64, error)
}

type ReferralStatsRepository interface {
	Ensure(ctx context.Context, userID uuid.UUID) error
	FindByUser(ctx context.Context, userID uuid.UUID) (*model.UserReferralStats, error)
	FindByUserForUpdate(ctx context.Context, userID uuid.UUID) (*model.UserReferralStats, error)
	IncrementReferrals(ctx context.Context, userID uuid.UUID, delta int) error
	RecordConversion(ctx context.Context, userID uuid.UUID, sale, earnings, cashback decimal.Decimal) (*model.UserReferralStats, error)
	AddEarnings(ctx context.Context, userID uuid.UUID, earnings, cashback decimal.Decimal) (*model.UserReferralStats, error)
	// UpdateTier never lowers the stored tier level.
	UpdateTier(ctx context.Context, userID uuid.UUID, level int, progress float64) error
	DebitCashback(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error
}

type PayoutRepository interface {
	Create(ctx context.Context, payout *model.CashbackPayout) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.CashbackPayout, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.CashbackPayout, error)
	SumOpenByUser(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	List(ctx context.Context, filter PayoutListFilter) ([]*model.CashbackPayout, int64, error)
	// UpdateStatus writes the payout's review fields if its stored status still equals from.
	UpdateStatus(ctx context.Context, payout *model.CashbackPayout, from model.PayoutStatus) error
}

type PromoCodeRepository interface {
	Create(ctx context.Context, promo *model.PromoCode) error
	Update(ctx context.Context, promo *model.PromoCode) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.PromoCode, error)
	FindByCode(ctx context.Context, code string) (*model.PromoCode, error)
	FindByCodeForUpdate(ctx context.Context, code string) (*model.PromoCode, error)
	List(ctx context.Context, filter PromoCodeListFilter) ([]*model.PromoCode, int64, error)
	// IncrementUsage bumps current_uses only while under max_uses.
	IncrementUsage(ctx context.Context, id uuid.UUID, orderTotal decimal.Decimal) error
}

type PromoUsageRepository interface {
	// Create returns ErrDuplicate when the order already used the promo code.
	Create(ctx context.Context, usage *model.PromoCodeUsage) error
	CountByUser(ctx context.Context, promoCodeID, userID uuid.UUID) (int, error)
	FindByOrder(ctx context.Context, promoCodeID uuid.UUID, orderID string) (*model.PromoCodeUsage, error)
	ListByPromoCode(ctx context.Context, promoCodeID uuid.UUID, page Pagination) ([]*model.PromoCodeUsage, int64, error)
	Stats(ctx context.Context, promoCodeID uuid.UUID) (model.PromoCodeUsageStats, error)
}

type OrderRepository interface {
	// Record returns ErrDuplicate when the order was already confirmed.
	Record(ctx context.Context, order *model.ConfirmedOrder) error
	FindByID(ctx context.Context, orderID string) (*model.ConfirmedOrder, error)
	CountByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

type AuditRepository interface {
	Create(ctx context.Context, log *model.AuditLog) error
	List(ctx context.Context, filter AuditListFilter) ([]*model.AuditLog, int64, error)
}

// Repositories is one consistent view of the ledger. Inside Store.WithinTx
// every repository shares the same transaction.
type Repositories struct {
	Points          PointsRepository
	Rewards         RewardRepository
	Redemptions     RedemptionRepository
	ReferralCodes   ReferralCodeRepository
	Referrals       ReferralRepository
	ReferralRewards ReferralRewardRepository
	Stats           ReferralStatsRepository
	Payouts         PayoutRepository
	PromoCodes      PromoCodeRepository
	PromoUsage      PromoUsageRepository
	Orders          OrderRepository
	Audit           AuditRepository
}

type Store interface {
	// WithinTx runs fn in one atomic transaction; any error rolls everything back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	// Repositories returns non-transactional repositories for reads and single-statement writes.
	Repositories() Repositories
	Ping(ctx context.Context) error
}
