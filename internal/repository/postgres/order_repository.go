package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

type orderRepository struct {
	q querier
}

var _ repository.OrderRepository = (*orderRepository)(nil)

func (r *orderRepository) Record(ctx context.Context, order *model.ConfirmedOrder) error {
	if order.ConfirmedAt.IsZero() {
		order.ConfirmedAt = time.Now().UTC()
	}

	tag, err := r.q.Exec(ctx, `
		INSERT INTO confirmed_orders (order_id, user_id, order_total, confirmed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id) DO NOTHING
	`, order.OrderID, order.UserID, order.OrderTotal, order.ConfirmedAt)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrDuplicate
	}
	return nil
}

func (r *orderRepository) FindByID(ctx context.Context, orderID string) (*model.ConfirmedOrder, error) {
	order := &model.ConfirmedOrder{}
	err := r.q.QueryRow(ctx, `
		SELECT order_id, user_id, order_total, confirmed_at
		FROM confirmed_orders
		WHERE order_id = $1
	`, orderID).Scan(&order.OrderID, &order.UserID, &order.OrderTotal, &order.ConfirmedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return order, nil
}

func (r *orderRepository) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return countRows(ctx, r.q, `SELECT COUNT(*) FROM confirmed_orders WHERE user_id = $1`, userID)
}
