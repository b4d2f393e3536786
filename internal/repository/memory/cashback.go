package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

type payoutRepository struct {
	h handle
}

var _ repository.PayoutRepository = payoutRepository{}

func (r payoutRepository) Create(_ context.Context, payout *model.CashbackPayout) error {
	st, release := r.h.acquire()
	defer release()

	if payout.ID == uuid.Nil {
		payout.ID = uuid.New()
	}
	if payout.RequestedAt.IsZero() {
		payout.RequestedAt = time.Now().UTC()
	}
	if _, ok := st.payouts[payout.ID]; ok {
		return repository.ErrDuplicate
	}
	st.payouts[payout.ID] = *payout
	return nil
}

func (r payoutRepository) FindByID(_ context.Context, id uuid.UUID) (*model.CashbackPayout, error) {
	st, release := r.h.acquire()
	defer release()

	payout, ok := st.payouts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &payout, nil
}

func (r payoutRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.CashbackPayout, error) {
	return r.FindByID(ctx, id)
}

func (r payoutRepository) SumOpenByUser(_ context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	st, release := r.h.acquire()
	defer release()

	total := decimal.Zero
	for _, payout := range st.payouts {
		if payout.UserID == userID && payout.Status.Open() {
			total = total.Add(payout.Amount)
		}
	}
	return total, nil
}

func (r payoutRepository) List(_ context.Context, filter repository.PayoutListFilter) ([]*model.CashbackPayout, int64, error) {
	st, release := r.h.acquire()
	defer release()

	items := make([]model.CashbackPayout, 0)
	for _, payout := range st.payouts {
		if filter.UserID != nil && payout.UserID != *filter.UserID {
			continue
		}
		if filter.Status != nil && payout.Status != *filter.Status {
			continue
		}
		items = append(items, payout)
	}
	out, total := pageOf(items, filter.Pagination, func(a, b model.CashbackPayout) bool {
		return a.RequestedAt.After(b.RequestedAt)
	})
	return out, total, nil
}

func (r payoutRepository) UpdateStatus(_ context.Context, payout *model.CashbackPayout, from model.PayoutStatus) error {
	st, release := r.h.acquire()
	defer release()

	current, ok := st.payouts[payout.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Status != from {
		return repository.ErrConditionFailed
	}
	current.Status = payout.Status
	current.ReviewedBy = payout.ReviewedBy
	current.ReviewedAt = payout.ReviewedAt
	current.PaidAt = payout.PaidAt
	current.RejectReason = payout.RejectReason
	st.payouts[payout.ID] = current
	return nil
}
