package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

type promoCodeRepository struct {
	h handle
}

var _ repository.PromoCodeRepository = promoCodeRepository{}

func (r promoCodeRepository) Create(_ context.Context, promo *model.PromoCode) error {
	st, release := r.h.acquire()
	defer release()

	for _, existing := range st.promoCodes {
		if existing.Code == promo.Code {
			return repository.ErrDuplicate
		}
	}
	if promo.ID == uuid.Nil {
		promo.ID = uuid.New()
	}
	now := time.Now().UTC()
	if promo.CreatedAt.IsZero() {
		promo.CreatedAt = now
	}
	promo.UpdatedAt = now
	st.promoCodes[promo.ID] = *promo
	return nil
}

func (r promoCodeRepository) Update(_ context.Context, promo *model.PromoCode) error {
	st, release := r.h.acquire()
	defer release()

	current, ok := st.promoCodes[promo.ID]
	if !ok {
		return repository.ErrNotFound
	}
	for id, existing := range st.promoCodes {
		if id != promo.ID && existing.Code == promo.Code {
			return repository.ErrDuplicate
		}
	}
	// usage counters are owned by IncrementUsage
	promo.CurrentUses = current.CurrentUses
	promo.TotalOrders = current.TotalOrders
	promo.TotalRevenue = current.TotalRevenue
	promo.CreatedAt = current.CreatedAt
	promo.UpdatedAt = time.Now().UTC()
	st.promoCodes[promo.ID] = *promo
	return nil
}

func (r promoCodeRepository) FindByID(_ context.Context, id uuid.UUID) (*model.PromoCode, error) {
	st, release := r.h.acquire()
	defer release()

	promo, ok := st.promoCodes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &promo, nil
}

func (r promoCodeRepository) FindByCode(_ context.Context, code string) (*model.PromoCode, error) {
	st, release := r.h.acquire()
	defer release()

	for _, promo := range st.promoCodes {
		if promo.Code == code {
			return &promo, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r promoCodeRepository) FindByCodeForUpdate(ctx context.Context, code string) (*model.PromoCode, error) {
	return r.FindByCode(ctx, code)
}

func (r promoCodeRepository) List(_ context.Context, filter repository.PromoCodeListFilter) ([]*model.PromoCode, int64, error) {
	st, release := r.h.acquire()
	defer release()

	keyword := ""
	if filter.Keyword != nil {
		keyword = strings.ToUpper(strings.TrimSpace(*filter.Keyword))
	}

	items := make([]model.PromoCode, 0)
	for _, promo := range st.promoCodes {
		if filter.IsActive != nil && promo.IsActive != *filter.IsActive {
			continue
		}
		if keyword != "" && !strings.Contains(promo.Code, keyword) {
			continue
		}
		items = append(items, promo)
	}
	out, total := pageOf(items, filter.Pagination, func(a, b model.PromoCode) bool {
		return a.CreatedAt.After(b.CreatedAt)
	})
	return out, total, nil
}

func (r promoCodeRepository) IncrementUsage(_ context.Context, id uuid.UUID, orderTotal decimal.Decimal) error {
	st, release := r.h.acquire()
	defer release()

	promo, ok := st.promoCodes[id]
	if !ok {
		return repository.ErrNotFound
	}
	if promo.Exhausted() {
		return repository.ErrConditionFailed
	}
	promo.CurrentUses++
	promo.TotalOrders++
	promo.TotalRevenue = promo.TotalRevenue.Add(orderTotal)
	promo.UpdatedAt = time.Now().UTC()
	st.promoCodes[id] = promo
	return nil
}

type promoUsageRepository struct {
	h handle
}

var _ repository.PromoUsageRepository = promoUsageRepository{}

func (r promoUsageRepository) Create(_ context.Context, usage *model.PromoCodeUsage) error {
	st, release := r.h.acquire()
	defer release()

	if usage.OrderID != nil {
		for _, existing := range st.promoUsage {
			if existing.PromoCodeID == usage.PromoCodeID && existing.OrderID != nil && *existing.OrderID == *usage.OrderID {
				return repository.ErrDuplicate
			}
		}
	}
	if usage.ID == uuid.Nil {
		usage.ID = uuid.New()
	}
	if usage.UsedAt.IsZero() {
		usage.UsedAt = time.Now().UTC()
	}
	st.promoUsage = append(st.promoUsage, *usage)
	return nil
}

func (r promoUsageRepository) CountByUser(_ context.Context, promoCodeID, userID uuid.UUID) (int, error) {
	st, release := r.h.acquire()
	defer release()

	count := 0
	for _, usage := range st.promoUsage {
		if usage.PromoCodeID == promoCodeID && usage.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (r promoUsageRepository) FindByOrder(_ context.Context, promoCodeID uuid.UUID, orderID string) (*model.PromoCodeUsage, error) {
	st, release := r.h.acquire()
	defer release()

	for _, usage := range st.promoUsage {
		if usage.PromoCodeID == promoCodeID && usage.OrderID != nil && *usage.OrderID == orderID {
			return &usage, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r promoUsageRepository) ListByPromoCode(
	_ context.Context,
	promoCodeID uuid.UUID,
	page repository.Pagination,
) ([]*model.PromoCodeUsage, int64, error) {
	st, release := r.h.acquire()
	defer release()

	items := make([]model.PromoCodeUsage, 0)
	for _, usage := range st.promoUsage {
		if usage.PromoCodeID == promoCodeID {
			items = append(items, usage)
		}
	}
	out, total := pageOf(items, page, func(a, b model.PromoCodeUsage) bool {
		return a.UsedAt.After(b.UsedAt)
	})
	return out, total, nil
}

func (r promoUsageRepository) Stats(_ context.Context, promoCodeID uuid.UUID) (model.PromoCodeUsageStats, error) {
	st, release := r.h.acquire()
	defer release()

	stats := model.PromoCodeUsageStats{
		TotalDiscount: decimal.Zero,
		TotalRevenue:  decimal.Zero,
	}
	users := make(map[uuid.UUID]struct{})
	for _, usage := range st.promoUsage {
		if usage.PromoCodeID != promoCodeID {
			continue
		}
		stats.TotalUses++
		stats.TotalDiscount = stats.TotalDiscount.Add(usage.DiscountApplied)
		stats.TotalRevenue = stats.TotalRevenue.Add(usage.OrderTotal)
		users[usage.UserID] = struct{}{}
	}
	stats.UniqueUsers = len(users)
	return stats, nil
}
