package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

type auditRepository struct {
	q querier
}

var _ repository.AuditRepository = (*auditRepository)(nil)

const auditColumns = `id, actor_id, action, resource_type, resource_id, details, created_at`

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	details, err := encodeJSONMap(log.Details)
	if err != nil {
		return err
	}

	err = r.q.QueryRow(ctx, `
		INSERT INTO audit_logs (actor_id, action, resource_type, resource_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, log.ActorID, log.Action, log.ResourceType, log.ResourceID, details, log.CreatedAt).Scan(&log.ID)
	return mapError(err)
}

func (r *auditRepository) List(ctx context.Context, filter repository.AuditListFilter) ([]*model.AuditLog, int64, error) {
	limit, offset := normalizePagination(filter.Pagination)
	where, args := auditConditions(filter)

	total, err := countRows(ctx, r.q, `SELECT COUNT(*) FROM audit_logs`+where, args...)
	if err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := `SELECT ` + auditColumns + ` FROM audit_logs` + where +
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	items := make([]*model.AuditLog, 0, limit)
	for rows.Next() {
		item, err := scanAuditLog(rows)
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

func auditConditions(filter repository.AuditListFilter) (string, []any) {
	args := make([]any, 0, 8)
	conditions := make([]string, 0, 6)
	add := func(column string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s $%d", column, len(args)))
	}

	if filter.ActorID != nil {
		add("actor_id =", *filter.ActorID)
	}
	if filter.Action != nil {
		add("action =", *filter.Action)
	}
	if filter.ResourceType != nil {
		add("resource_type =", *filter.ResourceType)
		if filter.ResourceID != nil {
			add("resource_id =", *filter.ResourceID)
		}
	}
	if filter.Since != nil {
		add("created_at >=", *filter.Since)
	}
	if filter.Until != nil {
		add("created_at <=", *filter.Until)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func scanAuditLog(src scanTarget) (*model.AuditLog, error) {
	log := &model.AuditLog{}
	var details []byte

	if err := src.Scan(
		&log.ID,
		&log.ActorID,
		&log.Action,
		&log.ResourceType,
		&log.ResourceID,
		&details,
		&log.CreatedAt,
	); err != nil {
		return nil, mapError(err)
	}

	var err error
	log.Details, err = decodeJSONMap(details)
	if err != nil {
		return nil, err
	}
	return log, nil
}
