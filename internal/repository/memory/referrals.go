package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

type referralCodeRepository struct {
	h handle
}

var _ repository.ReferralCodeRepository = referralCodeRepository{}

func (r referralCodeRepository) Create(_ context.Context, code *model.ReferralCode) error {
	st, release := r.h.acquire()
	defer release()

	for _, existing := range st.referralCodes {
		if existing.Code == code.Code {
			return repository.ErrDuplicate
		}
		if code.IsActive && existing.IsActive && existing.ReferrerID == code.ReferrerID {
			return repository.ErrDuplicate
		}
	}
	if code.ID == uuid.Nil {
		code.ID = uuid.New()
	}
	now := time.Now().UTC()
	if code.CreatedAt.IsZero() {
		code.CreatedAt = now
	}
	code.UpdatedAt = now
	st.referralCodes[code.ID] = *code
	return nil
}

func (r referralCodeRepository) FindByID(_ context.Context, id uuid.UUID) (*model.ReferralCode, error) {
	st, release := r.h.acquire()
	defer release()

	code, ok := st.referralCodes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &code, nil
}

func (r referralCodeRepository) FindByCode(_ context.Context, code string) (*model.ReferralCode, error) {
	st, release := r.h.acquire()
	defer release()

	for _, existing := range st.referralCodes {
		if existing.Code == code {
			return &existing, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r referralCodeRepository) FindByCodeForUpdate(ctx context.Context, code string) (*model.ReferralCode, error) {
	return r.FindByCode(ctx, code)
}

func (r referralCodeRepository) FindActiveByReferrer(_ context.Context, referrerID uuid.UUID) (*model.ReferralCode, error) {
	st, release := r.h.acquire()
	defer release()

	for _, existing := range st.referralCodes {
		if existing.ReferrerID == referrerID && existing.IsActive {
			return &existing, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r referralCodeRepository) ListByReferrer(_ context.Context, referrerID uuid.UUID) ([]*model.ReferralCode, error) {
	st, release := r.h.acquire()
	defer release()

	items := make([]model.ReferralCode, 0)
	for _, existing := range st.referralCodes {
		if existing.ReferrerID == referrerID {
			items = append(items, existing)
		}
	}
	out, _ := pageOf(items, repository.Pagination{Limit: 200}, func(a, b model.ReferralCode) bool {
		return a.CreatedAt.After(b.CreatedAt)
	})
	return out, nil
}

func (r referralCodeRepository) ReserveUse(_ context.Context, id uuid.UUID, now time.Time) error {
	st, release := r.h.acquire()
	defer release()

	code, ok := st.referralCodes[id]
	if !ok {
		return repository.ErrNotFound
	}
	if !code.IsActive || code.CurrentUses >= code.MaxUses || (code.ValidTo != nil && !code.ValidTo.After(now)) {
		return repository.ErrConditionFailed
	}
	code.CurrentUses++
	code.UpdatedAt = now
	st.referralCodes[id] = code
	return nil
}

func (r referralCodeRepository) ReleaseUse(_ context.Context, id uuid.UUID) error {
	st, release := r.h.acquire()
	defer release()

	code, ok := st.referralCodes[id]
	if !ok {
		return repository.ErrNotFound
	}
	if code.CurrentUses > 0 {
		code.CurrentUses--
	}
	code.UpdatedAt = time.Now().UTC()
	st.referralCodes[id] = code
	return nil
}

func (r referralCodeRepository) Deactivate(_ context.Context, id uuid.UUID) error {
	st, release := r.h.acquire()
	defer release()

	code, ok := st.referralCodes[id]
	if !ok {
		return repository.ErrNotFound
	}
	code.IsActive = false
	code.UpdatedAt = time.Now().UTC()
	st.referralCodes[id] = code
	return nil
}

func (r referralCodeRepository) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	st, release := r.h.acquire()
	defer release()

	var count int64
	for id, code := range st.referralCodes {
		if !code.IsActive || code.ValidTo == nil || code.ValidTo.After(now) {
			continue
		}
		code.IsActive = false
		code.UpdatedAt = now
		st.referralCodes[id] = code
		count++
	}
	return count, nil
}

type referralRepository struct {
	h handle
}

var _ repository.ReferralRepository = referralRepository{}

func (r referralRepository) Create(_ context.Context, referral *model.Referral) error {
	st, release := r.h.acquire()
	defer release()

	for _, existing := range st.referrals {
		if existing.RefereeID == referral.RefereeID && existing.Status != model.ReferralStatusCancelled {
			return repository.ErrDuplicate
		}
	}
	if referral.ID == uuid.Nil {
		referral.ID = uuid.New()
	}
	if referral.ClickedAt.IsZero() {
		referral.ClickedAt = time.Now().UTC()
	}
	st.referrals[referral.ID] = *referral
	return nil
}

func (r referralRepository) FindByID(_ context.Context, id uuid.UUID) (*model.Referral, error) {
	st, release := r.h.acquire()
	defer release()

	referral, ok := st.referrals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &referral, nil
}

func (r referralRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Referral, error) {
	return r.FindByID(ctx, id)
}

func (r referralRepository) FindActiveByReferee(_ context.Context, refereeID uuid.UUID) (*model.Referral, error) {
	st, release := r.h.acquire()
	defer release()

	for _, referral := range st.referrals {
		if referral.RefereeID == refereeID && referral.Status != model.ReferralStatusCancelled {
			return &referral, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r referralRepository) FindByOrderID(_ context.Context, orderID string) (*model.Referral, error) {
	st, release := r.h.acquire()
	defer release()

	for _, referral := range st.referrals {
		if referral.OrderID != nil && *referral.OrderID == orderID {
			return &referral, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r referralRepository) Complete(
	_ context.Context,
	id uuid.UUID,
	orderID string,
	orderValue decimal.Decimal,
	at time.Time,
) error {
	st, release := r.h.acquire()
	defer release()

	referral, ok := st.referrals[id]
	if !ok {
		return repository.ErrNotFound
	}
	if referral.Status != model.ReferralStatusPending {
		return repository.ErrConditionFailed
	}
	for otherID, other := range st.referrals {
		if otherID != id && other.OrderID != nil && *other.OrderID == orderID {
			return repository.ErrDuplicate
		}
	}
	referral.Status = model.ReferralStatusCompleted
	referral.OrderID = ptr(orderID)
	referral.OrderValue = ptr(orderValue)
	referral.ConvertedAt = ptr(at)
	st.referrals[id] = referral
	return nil
}

func (r referralRepository) Cancel(_ context.Context, id uuid.UUID, reason string, at time.Time) error {
	st, release := r.h.acquire()
	defer release()

	referral, ok := st.referrals[id]
	if !ok {
		return repository.ErrNotFound
	}
	if referral.Status != model.ReferralStatusPending {
		return repository.ErrConditionFailed
	}
	referral.Status = model.ReferralStatusCancelled
	referral.CancelledAt = ptr(at)
	if reason != "" {
		referral.CancelReason = ptr(reason)
	}
	st.referrals[id] = referral
	return nil
}

func (r referralRepository) ListByReferrer(
	_ context.Context,
	referrerID uuid.UUID,
	status *model.ReferralStatus,
	page repository.Pagination,
) ([]*model.Referral, int64, error) {
	st, release := r.h.acquire()
	defer release()

	items := make([]model.Referral, 0)
	for _, referral := range st.referrals {
		if referral.ReferrerID != referrerID {
			continue
		}
		if status != nil && referral.Status != *status {
			continue
		}
		items = append(items, referral)
	}
	out, total := pageOf(items, page, func(a, b model.Referral) bool {
		return a.ClickedAt.After(b.ClickedAt)
	})
	return out, total, nil
}

type referralRewardRepository struct {
	h handle
}

var _ repository.ReferralRewardRepository = referralRewardRepository{}

func (r referralRewardRepository) Create(_ context.Context, reward *model.ReferralReward) error {
	st, release := r.h.acquire()
	defer release()

	if reward.ID == uuid.Nil {
		reward.ID = uuid.New()
	}
	if reward.CreatedAt.IsZero() {
		reward.CreatedAt = time.Now().UTC()
	}
	for _, existing := range st.referralRewards {
		if existing.ReferralID == reward.ReferralID && existing.Role == reward.Role {
			return repository.ErrDuplicate
		}
	}
	st.referralRewards = append(st.referralRewards, *reward)
	return nil
}

func (r referralRewardRepository) ListByUser(
	_ context.Context,
	userID uuid.UUID,
	page repository.Pagination,
) ([]*model.ReferralReward, int64, error) {
	st, release := r.h.acquire()
	defer release()

	items := make([]model.ReferralReward, 0)
	for _, reward := range st.referralRewards {
		if reward.UserID == userID {
			items = append(items, reward)
		}
	}
	out, total := pageOf(items, page, func(a, b model.ReferralReward) bool {
		return a.CreatedAt.After(b.CreatedAt)
	})
	return out, total, nil
}

type referralStatsRepository struct {
	h handle
}

var _ repository.ReferralStatsRepository = referralStatsRepository{}

func (r referralStatsRepository) Ensure(_ context.Context, userID uuid.UUID) error {
	st, release := r.h.acquire()
	defer release()

	if _, ok := st.stats[userID]; ok {
		return nil
	}
	st.stats[userID] = model.UserReferralStats{
		UserID:             userID,
		TotalReferralSales: decimal.Zero,
		TotalEarnings:      decimal.Zero,
		AvailableCashback:  decimal.Zero,
		UpdatedAt:          time.Now().UTC(),
	}
	return nil
}

func (r referralStatsRepository) FindByUser(_ context.Context, userID uuid.UUID) (*model.UserReferralStats, error) {
	st, release := r.h.acquire()
	defer release()

	stats, ok := st.stats[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &stats, nil
}

func (r referralStatsRepository) FindByUserForUpdate(ctx context.Context, userID uuid.UUID) (*model.UserReferralStats, error) {
	return r.FindByUser(ctx, userID)
}

func (r referralStatsRepository) IncrementReferrals(_ context.Context, userID uuid.UUID, delta int) error {
	return r.mutate(userID, func(stats *model.UserReferralStats) error {
		stats.TotalReferrals += delta
		if stats.TotalReferrals < 0 {
			stats.TotalReferrals = 0
		}
		return nil
	})
}

func (r referralStatsRepository) RecordConversion(
	_ context.Context,
	userID uuid.UUID,
	sale, earnings, cashback decimal.Decimal,
) (*model.UserReferralStats, error) {
	var out model.UserReferralStats
	err := r.mutate(userID, func(stats *model.UserReferralStats) error {
		stats.SuccessfulReferrals++
		stats.TotalReferralSales = stats.TotalReferralSales.Add(sale)
		stats.TotalEarnings = stats.TotalEarnings.Add(earnings)
		stats.AvailableCashback = stats.AvailableCashback.Add(cashback)
		out = *stats
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r referralStatsRepository) AddEarnings(
	_ context.Context,
	userID uuid.UUID,
	earnings, cashback decimal.Decimal,
) (*model.UserReferralStats, error) {
	var out model.UserReferralStats
	err := r.mutate(userID, func(stats *model.UserReferralStats) error {
		stats.TotalEarnings = stats.TotalEarnings.Add(earnings)
		stats.AvailableCashback = stats.AvailableCashback.Add(cashback)
		out = *stats
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r referralStatsRepository) UpdateTier(_ context.Context, userID uuid.UUID, level int, progress float64) error {
	return r.mutate(userID, func(stats *model.UserReferralStats) error {
		if level > stats.TierLevel {
			stats.TierLevel = level
		}
		stats.TierProgress = progress
		return nil
	})
}

func (r referralStatsRepository) DebitCashback(_ context.Context, userID uuid.UUID, amount decimal.Decimal) error {
	return r.mutate(userID, func(stats *model.UserReferralStats) error {
		if stats.AvailableCashback.LessThan(amount) {
			return repository.ErrConditionFailed
		}
		stats.AvailableCashback = stats.AvailableCashback.Sub(amount)
		return nil
	})
}

func (r referralStatsRepository) mutate(userID uuid.UUID, fn func(stats *model.UserReferralStats) error) error {
	st, release := r.h.acquire()
	defer release()

	stats, ok := st.stats[userID]
	if !ok {
		return repository.ErrNotFound
	}
	if err := fn(&stats); err != nil {
		return err
	}
	stats.UpdatedAt = time.Now().UTC()
	st.stats[userID] = stats
	return nil
}
