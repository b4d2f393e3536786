package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

type referralCodeRepository struct {
	q querier
}

var _ repository.ReferralCodeRepository = (*referralCodeRepository)(nil)

const referralCodeColumns = `
	id,
	code,
	referrer_id,
	referrer_reward_type,
	referrer_reward_value,
	referee_reward_type,
	referee_reward_value,
	max_uses,
	current_uses,
	is_active,
	valid_from,
	valid_to,
	created_at,
	updated_at
`

func (r *referralCodeRepository) Create(ctx context.Context, code *model.ReferralCode) error {
	if code.ID == uuid.Nil {
		code.ID = uuid.New()
	}
	now := time.Now().UTC()
	if code.CreatedAt.IsZero() {
		code.CreatedAt = now
	}
	if code.ValidFrom.IsZero() {
		code.ValidFrom = now
	}
	code.UpdatedAt = now

	tag, err := r.q.Exec(ctx, `
		INSERT INTO referral_codes (
			id,
			code,
			referrer_id,
			referrer_reward_type,
			referrer_reward_value,
			referee_reward_type,
			referee_reward_value,
			max_uses,
			current_uses,
			is_active,
			valid_from,
			valid_to,
			created_at,
			updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT DO NOTHING
	`,
		code.ID,
		code.Code,
		code.ReferrerID,
		code.ReferrerRewardType,
		code.ReferrerRewardValue,
		code.RefereeRewardType,
		code.RefereeRewardValue,
		code.MaxUses,
		code.CurrentUses,
		code.IsActive,
		code.ValidFrom,
		code.ValidTo,
		code.CreatedAt,
		code.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrDuplicate
	}
	return nil
}

func (r *referralCodeRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ReferralCode, error) {
	query := `SELECT ` + referralCodeColumns + ` FROM referral_codes WHERE id = $1`
	code, err := scanReferralCode(r.q.QueryRow(ctx, query, id))
	return code, mapError(err)
}

func (r *referralCodeRepository) FindByCode(ctx context.Context, code string) (*model.ReferralCode, error) {
	query := `SELECT ` + referralCodeColumns + ` FROM referral_codes WHERE code = $1`
	item, err := scanReferralCode(r.q.QueryRow(ctx, query, code))
	return item, mapError(err)
}

func (r *referralCodeRepository) FindByCodeForUpdate(ctx context.Context, code string) (*model.ReferralCode, error) {
	query := `SELECT ` + referralCodeColumns + ` FROM referral_codes WHERE code = $1 FOR UPDATE`
	item, err := scanReferralCode(r.q.QueryRow(ctx, query, code))
	return item, mapError(err)
}

func (r *referralCodeRepository) FindActiveByReferrer(ctx context.Context, referrerID uuid.UUID) (*model.ReferralCode, error) {
	query := `SELECT ` + referralCodeColumns + ` FROM referral_codes WHERE referrer_id = $1 AND is_active`
	item, err := scanReferralCode(r.q.QueryRow(ctx, query, referrerID))
	return item, mapError(err)
}

func (r *referralCodeRepository) ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]*model.ReferralCode, error) {
	query := `SELECT ` + referralCodeColumns + `
		FROM referral_codes
		WHERE referrer_id = $1
		ORDER BY created_at DESC
		LIMIT 200`

	rows, err := r.q.Query(ctx, query, referrerID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	items := make([]*model.ReferralCode, 0)
	for rows.Next() {
		item, err := scanReferralCode(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return items, nil
}

func (r *referralCodeRepository) ReserveUse(ctx context.Context, id uuid.UUID, now time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE referral_codes
		SET current_uses = current_uses + 1, updated_at = NOW()
		WHERE id = $1
		  AND is_active
		  AND current_uses < max_uses
		  AND (valid_to IS NULL OR valid_to > $2)
	`, id, now)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return conditionOrMissing(ctx, r.q, `SELECT EXISTS (SELECT 1 FROM referral_codes WHERE id = $1)`, id)
}

func (r *referralCodeRepository) ReleaseUse(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE referral_codes
		SET current_uses = GREATEST(current_uses - 1, 0), updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return mapError(err)
	}
	return ensureAffected(tag)
}

func (r *referralCodeRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE referral_codes
		SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return mapError(err)
	}
	return ensureAffected(tag)
}

func (r *referralCodeRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE referral_codes
		SET is_active = FALSE, updated_at = NOW()
		WHERE is_active AND valid_to IS NOT NULL AND valid_to <= $1
	`, now)
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}

func scanReferralCode(src scanTarget) (*model.ReferralCode, error) {
	code := &model.ReferralCode{}
	err := src.Scan(
		&code.ID,
		&code.Code,
		&code.ReferrerID,
		&code.ReferrerRewardType,
		&code.ReferrerRewardValue,
		&code.RefereeRewardType,
		&code.RefereeRewardValue,
		&code.MaxUses,
		&code.CurrentUses,
		&code.IsActive,
		&code.ValidFrom,
		&code.ValidTo,
		&code.CreatedAt,
		&code.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return code, nil
}

type referralRepository struct {
	q querier
}

var _ repository.ReferralRepository = (*referralRepository)(nil)

const referralColumns = `
	id,
	referral_code_id,
	referral_code,
	referrer_id,
	referee_id,
	status,
	clicked_at,
	converted_at,
	order_id,
	order_value,
	ip_address,
	user_agent,
	source,
	cancelled_at,
	cancel_reason
`

func (r *referralRepository) Create(ctx context.Context, referral *model.Referral) error {
	if referral.ID == uuid.Nil {
		referral.ID = uuid.New()
	}
	if referral.ClickedAt.IsZero() {
		referral.ClickedAt = time.Now().UTC()
	}
	if referral.Status == "" {
		referral.Status = model.ReferralStatusPending
	}

	tag, err := r.q.Exec(ctx, `
		INSERT INTO referrals (
			id,
			referral_code_id,
			referral_code,
			referrer_id,
			referee_id,
			status,
			clicked_at,
			ip_address,
			user_agent,
			source
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT DO NOTHING
	`,
		referral.ID,
		referral.ReferralCodeID,
		referral.ReferralCode,
		referral.ReferrerID,
		referral.RefereeID,
		referral.Status,
		referral.ClickedAt,
		referral.IPAddress,
		referral.UserAgent,
		referral.Source,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrDuplicate
	}
	return nil
}

func (r *referralRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Referral, error) {
	query := `SELECT ` + referralColumns + ` FROM referrals WHERE id = $1`
	referral, err := scanReferral(r.q.QueryRow(ctx, query, id))
	return referral, mapError(err)
}

func (r *referralRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Referral, error) {
	query := `SELECT ` + referralColumns + ` FROM referrals WHERE id = $1 FOR UPDATE`
	referral, err := scanReferral(r.q.QueryRow(ctx, query, id))
	return referral, mapError(err)
}

func (r *referralRepository) FindActiveByReferee(ctx context.Context, refereeID uuid.UUID) (*model.Referral, error) {
	query := `SELECT ` + referralColumns + `
		FROM referrals
		WHERE referee_id = $1 AND status IN ($2, $3)`
	referral, err := scanReferral(r.q.QueryRow(ctx, query, refereeID, model.ReferralStatusPending, model.ReferralStatusCompleted))
	return referral, mapError(err)
}

func (r *referralRepository) FindByOrderID(ctx context.Context, orderID string) (*model.Referral, error) {
	query := `SELECT ` + referralColumns + ` FROM referrals WHERE order_id = $1`
	referral, err := scanReferral(r.q.QueryRow(ctx, query, orderID))
	return referral, mapError(err)
}

func (r *referralRepository) Complete(
	ctx context.Context,
	id uuid.UUID,
	orderID string,
	orderValue decimal.Decimal,
	at time.Time,
) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE referrals
		SET status = $2, order_id = $3, order_value = $4, converted_at = $5
		WHERE id = $1 AND status = $6
	`, id, model.ReferralStatusCompleted, orderID, orderValue, at, model.ReferralStatusPending)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return conditionOrMissing(ctx, r.q, `SELECT EXISTS (SELECT 1 FROM referrals WHERE id = $1)`, id)
}

func (r *referralRepository) Cancel(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	var reasonArg *string
	if reason != "" {
		reasonArg = &reason
	}

	tag, err := r.q.Exec(ctx, `
		UPDATE referrals
		SET status = $2, cancelled_at = $3, cancel_reason = $4
		WHERE id = $1 AND status = $5
	`, id, model.ReferralStatusCancelled, at, reasonArg, model.ReferralStatusPending)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return conditionOrMissing(ctx, r.q, `SELECT EXISTS (SELECT 1 FROM referrals WHERE id = $1)`, id)
}

func (r *referralRepository) ListByReferrer(
	ctx context.Context,
	referrerID uuid.UUID,
	status *model.ReferralStatus,
	page repository.Pagination,
) ([]*model.Referral, int64, error) {
	limit, offset := normalizePagination(page)

	args := []any{referrerID}
	where := " WHERE referrer_id = $1"
	if status != nil {
		args = append(args, *status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	total, err := countRows(ctx, r.q, `SELECT COUNT(*) FROM referrals`+where, args...)
	if err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := `SELECT ` + referralColumns + ` FROM referrals` + where +
		fmt.Sprintf(" ORDER BY clicked_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	items := make([]*model.Referral, 0, limit)
	for rows.Next() {
		item, err := scanReferral(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapError(err)
	}
	return items, total, nil
}

func scanReferral(src scanTarget) (*model.Referral, error) {
	referral := &model.Referral{}
	var orderValue decimal.NullDecimal

	err := src.Scan(
		&referral.ID,
		&referral.ReferralCodeID,
		&referral.ReferralCode,
		&referral.ReferrerID,
		&referral.RefereeID,
		&referral.Status,
		&referral.ClickedAt,
		&referral.ConvertedAt,
		&referral.OrderID,
		&orderValue,
		&referral.IPAddress,
		&referral.UserAgent,
		&referral.Source,
		&referral.CancelledAt,
		&referral.CancelReason,
	)
	if err != nil {
		return nil, err
	}

	referral.OrderValue = nullDecimalPtr(orderValue)
	return referral, nil
}

type referralRewardRepository struct {
	q querier
}

var _ repository.ReferralRewardRepository = (*referralRewardRepository)(nil)

const referralRewardColumns = `
	id,
	referral_id,
	user_id,
	role,
	type,
	value,
	points,
	cashback_amount,
	coupon_code,
	created_at
`

func (r *referralRewardRepository) Create(ctx context.Context, reward *model.ReferralReward) error {
	if reward.ID == uuid.Nil {
		reward.ID = uuid.New()
	}
	if reward.CreatedAt.IsZero() {
		reward.CreatedAt = time.Now().UTC()
	}

	tag, err := r.q.Exec(ctx, `
		INSERT INTO referral_rewards (
			id,
			referral_id,
			user_id,
			role,
			type,
			value,
			points,
			cashback_amount,
			coupon_code,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT DO NOTHING
	`,
		reward.ID,
		reward.ReferralID,
		reward.UserID,
		reward.Role,
		reward.Type,
		reward.Value,
		reward.Points,
		reward.CashbackAmount,
		reward.CouponCode,
		reward.CreatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrDuplicate
	}
	return nil
}

func (r *referralRewardRepository) ListByUser(
	ctx context.Context,
	userID uuid.UUID,
	page repository.Pagination,
) ([]*model.ReferralReward, int64, error) {
	limit, offset := normalizePagination(page)

	total, err := countRows(ctx, r.q, `SELECT COUNT(*) FROM referral_rewards WHERE user_id = $1`, userID)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + referralRewardColumns + `
		FROM referral_rewards
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.q.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	items := make([]*model.ReferralReward, 0, limit)
	for rows.Next() {
		item := &model.ReferralReward{}
		if err := rows.Scan(
			&item.ID,
			&item.ReferralID,
			&item.UserID,
			&item.Role,
			&item.Type,
			&item.Value,
			&item.Points,
			&item.CashbackAmount,
			&item.CouponCode,
			&item.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapError(err)
	}
	return items, total, nil
}

type referralStatsRepository struct {
	q querier
}

var _ repository.ReferralStatsRepository = (*referralStatsRepository)(nil)

const referralStatsColumns = `
	user_id,
	total_referrals,
	successful_referrals,
	total_referral_sales,
	total_earnings,
	available_cashback,
	tier_level,
	tier_progress,
	updated_at
`

func (r *referralStatsRepository) Ensure(ctx context.Context, userID uuid.UUID) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO user_referral_stats (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	return mapError(err)
}

func (r *referralStatsRepository) FindByUser(ctx context.Context, userID uuid.UUID) (*model.UserReferralStats, error) {
	query := `SELECT ` + referralStatsColumns + ` FROM user_referral_stats WHERE user_id = $1`
	stats, err := scanReferralStats(r.q.QueryRow(ctx, query, userID))
	return stats, mapError(err)
}

func (r *referralStatsRepository) FindByUserForUpdate(ctx context.Context, userID uuid.UUID) (*model.UserReferralStats, error) {
	query := `SELECT ` + referralStatsColumns + ` FROM user_referral_stats WHERE user_id = $1 FOR UPDATE`
	stats, err := scanReferralStats(r.q.QueryRow(ctx, query, userID))
	return stats, mapError(err)
}

func (r *referralStatsRepository) IncrementReferrals(ctx context.Context, userID uuid.UUID, delta int) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE user_referral_stats
		SET total_referrals = GREATEST(total_referrals + $2, 0), updated_at = NOW()
		WHERE user_id = $1
	`, userID, delta)
	if err != nil {
		return mapError(err)
	}
	return ensureAffected(tag)
}

func (r *referralStatsRepository) RecordConversion(
	ctx context.Context,
	userID uuid.UUID,
	sale, earnings, cashback decimal.Decimal,
) (*model.UserReferralStats, error) {
	query := `
		UPDATE user_referral_stats
		SET successful_referrals = successful_referrals + 1,
			total_referral_sales = total_referral_sales + $2,
			total_earnings = total_earnings + $3,
			available_cashback = available_cashback + $4,
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + referralStatsColumns

	stats, err := scanReferralStats(r.q.QueryRow(ctx, query, userID, sale, earnings, cashback))
	return stats, mapError(err)
}

func (r *referralStatsRepository) AddEarnings(
	ctx context.Context,
	userID uuid.UUID,
	earnings, cashback decimal.Decimal,
) (*model.UserReferralStats, error) {
	query := `
		UPDATE user_referral_stats
		SET total_earnings = total_earnings + $2,
			available_cashback = available_cashback + $3,
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + referralStatsColumns

	stats, err := scanReferralStats(r.q.QueryRow(ctx, query, userID, earnings, cashback))
	return stats, mapError(err)
}

func (r *referralStatsRepository) UpdateTier(ctx context.Context, userID uuid.UUID, level int, progress float64) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE user_referral_stats
		SET tier_level = GREATEST(tier_level, $2), tier_progress = $3, updated_at = NOW()
		WHERE user_id = $1
	`, userID, level, progress)
	if err != nil {
		return mapError(err)
	}
	return ensureAffected(tag)
}

func (r *referralStatsRepository) DebitCashback(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE user_referral_stats
		SET available_cashback = available_cashback - $2, updated_at = NOW()
		WHERE user_id = $1 AND available_cashback >= $2
	`, userID, amount)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return conditionOrMissing(ctx, r.q, `SELECT EXISTS (SELECT 1 FROM user_referral_stats WHERE user_id = $1)`, userID)
}

func scanReferralStats(src scanTarget) (*model.UserReferralStats, error) {
	stats := &model.UserReferralStats{}
	err := src.Scan(
		&stats.UserID,
		&stats.TotalReferrals,
		&stats.SuccessfulReferrals,
		&stats.TotalReferralSales,
		&stats.TotalEarnings,
		&stats.AvailableCashback,
		&stats.TierLevel,
		&stats.TierProgress,
		&stats.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
