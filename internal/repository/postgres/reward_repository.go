package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

type rewardRepository struct {
	q querier
}

var _ repository.RewardRepository = (*rewardRepository)(nil)

const rewardColumns = `
	id,
	name,
	description,
	type,
	value,
	product_id,
	points_cost,
	min_tier_level,
	max_per_user,
	valid_from,
	valid_to,
	is_active,
	created_at,
	updated_at
`

func (r *rewardRepository) Create(ctx context.Context, reward *model.Reward) error {
	if reward.ID == uuid.Nil {
		reward.ID = uuid.New()
	}
	now := time.Now().UTC()
	if reward.CreatedAt.IsZero() {
		reward.CreatedAt = now
	}
	reward.UpdatedAt = now

	_, err := r.q.Exec(ctx, `
		INSERT INTO rewards (
			id,
			name,
			description,
			type,
			value,
			product_id,
			points_cost,
			min_tier_level,
			max_per_user,
			valid_from,
			valid_to,
			is_active,
			created_at,
			updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		reward.ID,
		reward.Name,
		reward.Description,
		reward.Type,
		reward.Value,
		reward.ProductID,
		reward.PointsCost,
		reward.MinTierLevel,
		reward.MaxPerUser,
		reward.ValidFrom,
		reward.ValidTo,
		reward.IsActive,
		reward.CreatedAt,
		reward.UpdatedAt,
	)
	return mapError(err)
}

func (r *rewardRepository) Update(ctx context.Context, reward *model.Reward) error {
	reward.UpdatedAt = time.Now().UTC()

	tag, err := r.q.Exec(ctx, `
		UPDATE rewards
		SET name = $2,
			description = $3,
			type = $4,
			value = $5,
			product_id = $6,
			points_cost = $7,
			min_tier_level = $8,
			max_per_user = $9,
			valid_from = $10,
			valid_to = $11,
			is_active = $12,
			updated_at = $13
		WHERE id = $1
	`,
		reward.ID,
		reward.Name,
		reward.Description,
		reward.Type,
		reward.Value,
		reward.ProductID,
		reward.PointsCost,
		reward.MinTierLevel,
		reward.MaxPerUser,
		reward.ValidFrom,
		reward.ValidTo,
		reward.IsActive,
		reward.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	return ensureAffected(tag)
}

func (r *rewardRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Reward, error) {
	query := `SELECT ` + rewardColumns + ` FROM rewards WHERE id = $1`
	reward, err := scanReward(r.q.QueryRow(ctx, query, id))
	return reward, mapError(err)
}

func (r *rewardRepository) List(ctx context.Context, activeOnly bool, page repository.Pagination) ([]*model.Reward, int64, error) {
	limit, offset := normalizePagination(page)

	where := ""
	if activeOnly {
		where = " WHERE is_active"
	}

	total, err := countRows(ctx, r.q, `SELECT COUNT(*) FROM rewards`+where)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + rewardColumns + ` FROM rewards` + where + `
		ORDER BY points_cost ASC, name ASC
		LIMIT $1 OFFSET $2`

	rows, err := r.q.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	items := make([]*model.Reward, 0, limit)
	for rows.Next() {
		item, err := scanReward(rows)
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

func scanReward(src scanTarget) (*model.Reward, error) {
	reward := &model.Reward{}
	err := src.Scan(
		&reward.ID,
		&reward.Name,
		&reward.Description,
		&reward.Type,
		&reward.Value,
		&reward.ProductID,
		&reward.PointsCost,
		&reward.MinTierLevel,
		&reward.MaxPerUser,
		&reward.ValidFrom,
		&reward.ValidTo,
		&reward.IsActive,
		&reward.CreatedAt,
		&reward.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return reward, nil
}

type redemptionRepository struct {
	q querier
}

var _ repository.RedemptionRepository = (*redemptionRepository)(nil)

const redemptionColumns = `
	id,
	user_id,
	reward_id,
	coupon_code,
	points_used,
	status,
	redeemed_at,
	expires_at,
	used_at
`

func (r *redemptionRepository) Create(ctx context.Context, redemption *model.Redemption) error {
	if redemption.ID == uuid.Nil {
		redemption.ID = uuid.New()
	}
	if redemption.RedeemedAt.IsZero() {
		redemption.RedeemedAt = time.Now().UTC()
	}
	if redemption.Status == "" {
		redemption.Status = model.RedemptionStatusActive
	}

	tag, err := r.q.Exec(ctx, `
		INSERT INTO redemptions (
			id,
			user_id,
			reward_id,
			coupon_code,
			points_used,
			status,
			redeemed_at,
			expires_at,
			used_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING
	`,
		redemption.ID,
		redemption.UserID,
		redemption.RewardID,
		redemption.CouponCode,
		redemption.PointsUsed,
		redemption.Status,
		redemption.RedeemedAt,
		redemption.ExpiresAt,
		redemption.UsedAt,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrDuplicate
	}
	return nil
}

func (r *redemptionRepository) CountByUserAndReward(
	ctx context.Context,
	userID, rewardID uuid.UUID,
	status model.RedemptionStatus,
) (int, error) {
	total, err := countRows(ctx, r.q, `
		SELECT COUNT(*)
		FROM redemptions
		WHERE user_id = $1 AND reward_id = $2 AND status = $3
	`, userID, rewardID, status)
	return int(total), err
}

func (r *redemptionRepository) ListByUser(
	ctx context.Context,
	userID uuid.UUID,
	status *model.RedemptionStatus,
	page repository.Pagination,
) ([]*model.Redemption, int64, error) {
	limit, offset := normalizePagination(page)

	args := []any{userID}
	where := " WHERE user_id = $1"
	if status != nil {
		args = append(args, *status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	total, err := countRows(ctx, r.q, `SELECT COUNT(*) FROM redemptions`+where, args...)
	if err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := `SELECT ` + redemptionColumns + ` FROM redemptions` + where +
		fmt.Sprintf(" ORDER BY redeemed_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	items := make([]*model.Redemption, 0, limit)
	for rows.Next() {
		item, err := scanRedemption(rows)
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

func (r *redemptionRepository) FindByCouponForUpdate(ctx context.Context, couponCode string) (*model.Redemption, error) {
	query := `SELECT ` + redemptionColumns + ` FROM redemptions WHERE coupon_code = $1 FOR UPDATE`
	redemption, err := scanRedemption(r.q.QueryRow(ctx, query, couponCode))
	return redemption, mapError(err)
}

func (r *redemptionRepository) MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE redemptions
		SET status = $2, used_at = $3
		WHERE id = $1 AND status = $4
	`, id, model.RedemptionStatusUsed, at, model.RedemptionStatusActive)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return conditionOrMissing(ctx, r.q, `SELECT EXISTS (SELECT 1 FROM redemptions WHERE id = $1)`, id)
}

func (r *redemptionRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE redemptions
		SET status = $1
		WHERE status = $2 AND expires_at IS NOT NULL AND expires_at < $3
	`, model.RedemptionStatusExpired, model.RedemptionStatusActive, now)
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}

func scanRedemption(src scanTarget) (*model.Redemption, error) {
	redemption := &model.Redemption{}
	err := src.Scan(
		&redemption.ID,
		&redemption.UserID,
		&redemption.RewardID,
		&redemption.CouponCode,
		&redemption.PointsUsed,
		&redemption.Status,
		&redemption.RedeemedAt,
		&redemption.ExpiresAt,
		&redemption.UsedAt,
	)
	if err != nil {
		return nil, err
	}
	return redemption, nil
}
