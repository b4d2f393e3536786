package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

type orderRepository struct {
	h handle
}

var _ repository.OrderRepository = orderRepository{}

func (r orderRepository) Record(_ context.Context, order *model.ConfirmedOrder) error {
	st, release := r.h.acquire()
	defer release()

	if _, ok := st.orders[order.OrderID]; ok {
		return repository.ErrDuplicate
	}
	if order.ConfirmedAt.IsZero() {
		order.ConfirmedAt = time.Now().UTC()
	}
	st.orders[order.OrderID] = *order
	return nil
}

func (r orderRepository) FindByID(_ context.Context, orderID string) (*model.ConfirmedOrder, error) {
	st, release := r.h.acquire()
	defer release()

	order, ok := st.orders[orderID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &order, nil
}

func (r orderRepository) CountByUser(_ context.Context, userID uuid.UUID) (int64, error) {
	st, release := r.h.acquire()
	defer release()

	var count int64
	for _, order := range st.orders {
		if order.UserID == userID {
			count++
		}
	}
	return count, nil
}

type auditRepository struct {
	h handle
}

var _ repository.AuditRepository = auditRepository{}

func (r auditRepository) Create(_ context.Context, log *model.AuditLog) error {
	st, release := r.h.acquire()
	defer release()

	st.auditSeq++
	log.ID = st.auditSeq
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	st.audit = append(st.audit, *log)
	return nil
}

func (r auditRepository) List(_ context.Context, filter repository.AuditListFilter) ([]*model.AuditLog, int64, error) {
	st, release := r.h.acquire()
	defer release()

	items := make([]model.AuditLog, 0)
	for _, log := range st.audit {
		if filter.ActorID != nil && (log.ActorID == nil || *log.ActorID != *filter.ActorID) {
			continue
		}
		if filter.Action != nil && log.Action != *filter.Action {
			continue
		}
		if filter.ResourceType != nil {
			if log.ResourceType != *filter.ResourceType {
				continue
			}
			if filter.ResourceID != nil && log.ResourceID != *filter.ResourceID {
				continue
			}
		}
		if filter.Since != nil && log.CreatedAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && log.CreatedAt.After(*filter.Until) {
			continue
		}
		items = append(items, log)
	}
	out, total := pageOf(items, filter.Pagination, func(a, b model.AuditLog) bool {
		return a.ID > b.ID
	})
	return out, total, nil
}
