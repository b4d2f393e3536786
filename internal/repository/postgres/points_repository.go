package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

type pointsRepository struct {
	q querier
}

var _ repository.PointsRepository = (*pointsRepository)(nil)

const pointsAccountColumns = `
	user_id,
	total_points,
	available_points,
	used_points,
	tier_level,
	tier_progress,
	created_at,
	updated_at
`

const pointsTransactionColumns = `
	id,
	user_id,
	type,
	points,
	description,
	order_id,
	product_id,
	referral_id,
	idempotency_key,
	metadata,
	status,
	created_at
`

func (r *pointsRepository) EnsureAccount(ctx context.Context, userID uuid.UUID) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO points_accounts (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	return mapError(err)
}

func (r *pointsRepository) FindAccount(ctx context.Context, userID uuid.UUID) (*model.PointsAccount, error) {
	query := `SELECT ` + pointsAccountColumns + ` FROM points_accounts WHERE user_id = $1`
	account, err := scanPointsAccount(r.q.QueryRow(ctx, query, userID))
	return account, mapError(err)
}

func (r *pointsRepository) FindAccountForUpdate(ctx context.Context, userID uuid.UUID) (*model.PointsAccount, error) {
	query := `SELECT ` + pointsAccountColumns + ` FROM points_accounts WHERE user_id = $1 FOR UPDATE`
	account, err := scanPointsAccount(r.q.QueryRow(ctx, query, userID))
	return account, mapError(err)
}

func (r *pointsRepository) Credit(ctx context.Context, userID uuid.UUID, points, progress int64) (*model.PointsAccount, error) {
	query := `
		UPDATE points_accounts
		SET total_points = total_points + $2,
			available_points = available_points + $2,
			tier_progress = tier_progress + $3,
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + pointsAccountColumns

	account, err := scanPointsAccount(r.q.QueryRow(ctx, query, userID, points, progress))
	return account, mapError(err)
}

func (r *pointsRepository) Debit(ctx context.Context, userID uuid.UUID, points int64) (*model.PointsAccount, error) {
	query := `
		UPDATE points_accounts
		SET available_points = available_points - $2,
			used_points = used_points + $2,
			updated_at = NOW()
		WHERE user_id = $1
		  AND available_points >= $2
		RETURNING ` + pointsAccountColumns

	account, err := scanPointsAccount(r.q.QueryRow(ctx, query, userID, points))
	if err == nil {
		return account, nil
	}
	if err = mapError(err); !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return nil, conditionOrMissing(ctx, r.q, `SELECT EXISTS (SELECT 1 FROM points_accounts WHERE user_id = $1)`, userID)
}

func (r *pointsRepository) PromoteTier(ctx context.Context, userID uuid.UUID, level int) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE points_accounts
		SET tier_level = $2, updated_at = NOW()
		WHERE user_id = $1 AND tier_level < $2
	`, userID, level)
	if err != nil {
		return false, mapError(err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	if err := conditionOrMissing(ctx, r.q, `SELECT EXISTS (SELECT 1 FROM points_accounts WHERE user_id = $1)`, userID); errors.Is(err, ErrNotFound) {
		return false, err
	}
	return false, nil
}

func (r *pointsRepository) AppendTransaction(ctx context.Context, tx *model.PointsTransaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	if tx.Status == "" {
		tx.Status = model.PointsTxStatusCompleted
	}

	metadata, err := encodeJSONMap(tx.Metadata)
	if err != nil {
		return err
	}

	tag, err := r.q.Exec(ctx, `
		INSERT INTO points_transactions (
			id,
			user_id,
			type,
			points,
			description,
			order_id,
			product_id,
			referral_id,
			idempotency_key,
			metadata,
			status,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT DO NOTHING
	`,
		tx.ID,
		tx.UserID,
		tx.Type,
		tx.Points,
		tx.Description,
		tx.OrderID,
		tx.ProductID,
		tx.ReferralID,
		tx.IdempotencyKey,
		metadata,
		tx.Status,
		tx.CreatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrDuplicate
	}
	return nil
}

func (r *pointsRepository) ListTransactions(
	ctx context.Context,
	userID uuid.UUID,
	page repository.Pagination,
) ([]*model.PointsTransaction, int64, error) {
	limit, offset := normalizePagination(page)

	total, err := countRows(ctx, r.q, `SELECT COUNT(*) FROM points_transactions WHERE user_id = $1`, userID)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + pointsTransactionColumns + `
		FROM points_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	rows, err := r.q.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	items := make([]*model.PointsTransaction, 0, limit)
	for rows.Next() {
		item, err := scanPointsTransaction(rows)
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

func (r *pointsRepository) SumTransactions(ctx context.Context, userID uuid.UUID) (model.PointsLedgerSum, error) {
	var sum model.PointsLedgerSum
	err := r.q.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(points) FILTER (WHERE points > 0), 0),
			COALESCE(-SUM(points) FILTER (WHERE points < 0), 0),
			COALESCE(SUM(points) FILTER (WHERE points > 0 AND type NOT IN ($2, $3)), 0)
		FROM points_transactions
		WHERE user_id = $1 AND status = $4
	`,
		userID,
		model.PointsTxTierBonus,
		model.PointsTxRedemption,
		model.PointsTxStatusCompleted,
	).Scan(&sum.Earned, &sum.Spent, &sum.Progress)
	return sum, mapError(err)
}

func scanPointsAccount(src scanTarget) (*model.PointsAccount, error) {
	account := &model.PointsAccount{}
	err := src.Scan(
		&account.UserID,
		&account.TotalPoints,
		&account.AvailablePoints,
		&account.UsedPoints,
		&account.TierLevel,
		&account.TierProgress,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return account, nil
}

func scanPointsTransaction(src scanTarget) (*model.PointsTransaction, error) {
	tx := &model.PointsTransaction{}
	var metadataRaw []byte

	err := src.Scan(
		&tx.ID,
		&tx.UserID,
		&tx.Type,
		&tx.Points,
		&tx.Description,
		&tx.OrderID,
		&tx.ProductID,
		&tx.ReferralID,
		&tx.IdempotencyKey,
		&metadataRaw,
		&tx.Status,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Metadata, err = decodeJSONMap(metadataRaw)
	if err != nil {
		return nil, err
	}
	return tx, nil
}
