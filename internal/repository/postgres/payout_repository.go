package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

type payoutRepository struct {
	q querier
}

var _ repository.PayoutRepository = (*payoutRepository)(nil)

const payoutColumns = `
	id,
	user_id,
	amount,
	method,
	bank_details,
	status,
	requested_at,
	reviewed_by,
	reviewed_at,
	paid_at,
	reject_reason
`

func (r *payoutRepository) Create(ctx context.Context, payout *model.CashbackPayout) error {
	if payout.ID == uuid.Nil {
		payout.ID = uuid.New()
	}
	if payout.RequestedAt.IsZero() {
		payout.RequestedAt = time.Now().UTC()
	}
	if payout.Status == "" {
		payout.Status = model.PayoutStatusRequested
	}

	details, err := encodeStringMap(payout.BankDetails)
	if err != nil {
		return err
	}

	tag, err := r.q.Exec(ctx, `
		INSERT INTO cashback_payouts (
			id,
			user_id,
			amount,
			method,
			bank_details,
			status,
			requested_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT DO NOTHING
	`,
		payout.ID,
		payout.UserID,
		payout.Amount,
		payout.Method,
		details,
		payout.Status,
		payout.RequestedAt,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrDuplicate
	}
	return nil
}

func (r *payoutRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.CashbackPayout, error) {
	query := `SELECT ` + payoutColumns + ` FROM cashback_payouts WHERE id = $1`
	payout, err := scanPayout(r.q.QueryRow(ctx, query, id))
	return payout, mapError(err)
}

func (r *payoutRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.CashbackPayout, error) {
	query := `SELECT ` + payoutColumns + ` FROM cashback_payouts WHERE id = $1 FOR UPDATE`
	payout, err := scanPayout(r.q.QueryRow(ctx, query, id))
	return payout, mapError(err)
}

func (r *payoutRepository) SumOpenByUser(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM cashback_payouts
		WHERE user_id = $1 AND status IN ($2, $3)
	`, userID, model.PayoutStatusRequested, model.PayoutStatusApproved).Scan(&total)
	return total, mapError(err)
}

func (r *payoutRepository) List(ctx context.Context, filter repository.PayoutListFilter) ([]*model.CashbackPayout, int64, error) {
	limit, offset := normalizePagination(filter.Pagination)

	args := make([]any, 0, 4)
	conditions := make([]string, 0, 2)

	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	total, err := countRows(ctx, r.q, `SELECT COUNT(*) FROM cashback_payouts`+where, args...)
	if err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := `SELECT ` + payoutColumns + ` FROM cashback_payouts` + where +
		fmt.Sprintf(" ORDER BY requested_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	items := make([]*model.CashbackPayout, 0, limit)
	for rows.Next() {
		item, err := scanPayout(rows)
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

func (r *payoutRepository) UpdateStatus(ctx context.Context, payout *model.CashbackPayout, from model.PayoutStatus) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE cashback_payouts
		SET status = $2,
			reviewed_by = $3,
			reviewed_at = $4,
			paid_at = $5,
			reject_reason = $6
		WHERE id = $1 AND status = $7
	`,
		payout.ID,
		payout.Status,
		payout.ReviewedBy,
		payout.ReviewedAt,
		payout.PaidAt,
		payout.RejectReason,
		from,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return conditionOrMissing(ctx, r.q, `SELECT EXISTS (SELECT 1 FROM cashback_payouts WHERE id = $1)`, payout.ID)
}

func scanPayout(src scanTarget) (*model.CashbackPayout, error) {
	payout := &model.CashbackPayout{}
	var detailsRaw []byte

	err := src.Scan(
		&payout.ID,
		&payout.UserID,
		&payout.Amount,
		&payout.Method,
		&detailsRaw,
		&payout.Status,
		&payout.RequestedAt,
		&payout.ReviewedBy,
		&payout.ReviewedAt,
		&payout.PaidAt,
		&payout.RejectReason,
	)
	if err != nil {
		return nil, err
	}

	payout.BankDetails, err = decodeStringMap(detailsRaw)
	if err != nil {
		return nil, err
	}
	return payout, nil
}
