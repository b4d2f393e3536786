package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

type pointsRepository struct {
	h handle
}

var _ repository.PointsRepository = pointsRepository{}

func (r pointsRepository) EnsureAccount(_ context.Context, userID uuid.UUID) error {
	st, release := r.h.acquire()
	defer release()

	if _, ok := st.accounts[userID]; ok {
		return nil
	}
	now := time.Now().UTC()
	st.accounts[userID] = model.PointsAccount{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (r pointsRepository) FindAccount(_ context.Context, userID uuid.UUID) (*model.PointsAccount, error) {
	st, release := r.h.acquire()
	defer release()

	account, ok := st.accounts[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &account, nil
}

func (r pointsRepository) FindAccountForUpdate(ctx context.Context, userID uuid.UUID) (*model.PointsAccount, error) {
	return r.FindAccount(ctx, userID)
}

func (r pointsRepository) Credit(_ context.Context, userID uuid.UUID, points, progress int64) (*model.PointsAccount, error) {
	st, release := r.h.acquire()
	defer release()

	account, ok := st.accounts[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	account.TotalPoints += points
	account.AvailablePoints += points
	account.TierProgress += progress
	account.UpdatedAt = time.Now().UTC()
	st.accounts[userID] = account
	return &account, nil
}

func (r pointsRepository) Debit(_ context.Context, userID uuid.UUID, points int64) (*model.PointsAccount, error) {
	st, release := r.h.acquire()
	defer release()

	account, ok := st.accounts[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if account.AvailablePoints < points {
		return nil, repository.ErrConditionFailed
	}
	account.AvailablePoints -= points
	account.UsedPoints += points
	account.UpdatedAt = time.Now().UTC()
	st.accounts[userID] = account
	return &account, nil
}

func (r pointsRepository) PromoteTier(_ context.Context, userID uuid.UUID, level int) (bool, error) {
	st, release := r.h.acquire()
	defer release()

	account, ok := st.accounts[userID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if account.TierLevel >= level {
		return false, nil
	}
	account.TierLevel = level
	account.UpdatedAt = time.Now().UTC()
	st.accounts[userID] = account
	return true, nil
}

func (r pointsRepository) AppendTransaction(_ context.Context, tx *model.PointsTransaction) error {
	st, release := r.h.acquire()
	defer release()

	if tx.IdempotencyKey != nil {
		if _, ok := st.txKeys[*tx.IdempotencyKey]; ok {
			return repository.ErrDuplicate
		}
		st.txKeys[*tx.IdempotencyKey] = struct{}{}
	}
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	if tx.Status == "" {
		tx.Status = model.PointsTxStatusCompleted
	}
	st.transactions = append(st.transactions, *tx)
	return nil
}

func (r pointsRepository) ListTransactions(
	_ context.Context,
	userID uuid.UUID,
	page repository.Pagination,
) ([]*model.PointsTransaction, int64, error) {
	st, release := r.h.acquire()
	defer release()

	items := make([]model.PointsTransaction, 0)
	for i, tx := range st.transactions {
		if tx.UserID == userID {
			items = append(items, st.transactions[i])
		}
	}
	out, total := pageOf(items, page, func(a, b model.PointsTransaction) bool {
		return a.CreatedAt.After(b.CreatedAt)
	})
	return out, total, nil
}

func (r pointsRepository) SumTransactions(_ context.Context, userID uuid.UUID) (model.PointsLedgerSum, error) {
	st, release := r.h.acquire()
	defer release()

	var sum model.PointsLedgerSum
	for _, tx := range st.transactions {
		if tx.UserID != userID || tx.Status != model.PointsTxStatusCompleted {
			continue
		}
		if tx.Points < 0 {
			sum.Spent -= tx.Points
			continue
		}
		sum.Earned += tx.Points
		if tx.Type.CountsTowardTier() {
			sum.Progress += tx.Points
		}
	}
	return sum, nil
}
