package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

type rewardRepository struct {
	h handle
}

var _ repository.RewardRepository = rewardRepository{}

func (r rewardRepository) Create(_ context.Context, reward *model.Reward) error {
	st, release := r.h.acquire()
	defer release()

	if reward.ID == uuid.Nil {
		reward.ID = uuid.New()
	}
	if _, ok := st.rewards[reward.ID]; ok {
		return repository.ErrDuplicate
	}
	now := time.Now().UTC()
	if reward.CreatedAt.IsZero() {
		reward.CreatedAt = now
	}
	reward.UpdatedAt = now
	st.rewards[reward.ID] = *reward
	return nil
}

func (r rewardRepository) Update(_ context.Context, reward *model.Reward) error {
	st, release := r.h.acquire()
	defer release()

	current, ok := st.rewards[reward.ID]
	if !ok {
		return repository.ErrNotFound
	}
	reward.CreatedAt = current.CreatedAt
	reward.UpdatedAt = time.Now().UTC()
	st.rewards[reward.ID] = *reward
	return nil
}

func (r rewardRepository) FindByID(_ context.Context, id uuid.UUID) (*model.Reward, error) {
	st, release := r.h.acquire()
	defer release()

	reward, ok := st.rewards[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &reward, nil
}

func (r rewardRepository) List(_ context.Context, activeOnly bool, page repository.Pagination) ([]*model.Reward, int64, error) {
	st, release := r.h.acquire()
	defer release()

	items := make([]model.Reward, 0, len(st.rewards))
	for _, reward := range st.rewards {
		if activeOnly && !reward.IsActive {
			continue
		}
		items = append(items, reward)
	}
	out, total := pageOf(items, page, func(a, b model.Reward) bool {
		if a.PointsCost != b.PointsCost {
			return a.PointsCost < b.PointsCost
		}
		return a.Name < b.Name
	})
	return out, total, nil
}

type redemptionRepository struct {
	h handle
}

var _ repository.RedemptionRepository = redemptionRepository{}

func (r redemptionRepository) Create(_ context.Context, redemption *model.Redemption) error {
	st, release := r.h.acquire()
	defer release()

	for _, existing := range st.redemptions {
		if existing.CouponCode == redemption.CouponCode {
			return repository.ErrDuplicate
		}
	}
	if redemption.ID == uuid.Nil {
		redemption.ID = uuid.New()
	}
	if redemption.RedeemedAt.IsZero() {
		redemption.RedeemedAt = time.Now().UTC()
	}
	st.redemptions[redemption.ID] = *redemption
	return nil
}

func (r redemptionRepository) CountByUserAndReward(
	_ context.Context,
	userID, rewardID uuid.UUID,
	status model.RedemptionStatus,
) (int, error) {
	st, release := r.h.acquire()
	defer release()

	count := 0
	for _, redemption := range st.redemptions {
		if redemption.UserID == userID && redemption.RewardID == rewardID && redemption.Status == status {
			count++
		}
	}
	return count, nil
}

func (r redemptionRepository) ListByUser(
	_ context.Context,
	userID uuid.UUID,
	status *model.RedemptionStatus,
	page repository.Pagination,
) ([]*model.Redemption, int64, error) {
	st, release := r.h.acquire()
	defer release()

	items := make([]model.Redemption, 0)
	for _, redemption := range st.redemptions {
		if redemption.UserID != userID {
			continue
		}
		if status != nil && redemption.Status != *status {
			continue
		}
		items = append(items, redemption)
	}
	out, total := pageOf(items, page, func(a, b model.Redemption) bool {
		return a.RedeemedAt.After(b.RedeemedAt)
	})
	return out, total, nil
}

func (r redemptionRepository) FindByCouponForUpdate(_ context.Context, couponCode string) (*model.Redemption, error) {
	st, release := r.h.acquire()
	defer release()

	for _, redemption := range st.redemptions {
		if redemption.CouponCode == couponCode {
			return &redemption, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r redemptionRepository) MarkUsed(_ context.Context, id uuid.UUID, at time.Time) error {
	st, release := r.h.acquire()
	defer release()

	redemption, ok := st.redemptions[id]
	if !ok {
		return repository.ErrNotFound
	}
	if redemption.Status != model.RedemptionStatusActive {
		return repository.ErrConditionFailed
	}
	redemption.Status = model.RedemptionStatusUsed
	redemption.UsedAt = &at
	st.redemptions[id] = redemption
	return nil
}

func (r redemptionRepository) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	st, release := r.h.acquire()
	defer release()

	var expired int64
	for id, redemption := range st.redemptions {
		if redemption.Status != model.RedemptionStatusActive || redemption.ExpiresAt == nil || !redemption.ExpiresAt.Before(now) {
			continue
		}
		redemption.Status = model.RedemptionStatusExpired
		st.redemptions[id] = redemption
		expired++
	}
	return expired, nil
}
