package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

type AuditFilter struct {
	ActorID      *uuid.UUID
	Action       *string
	ResourceType *string
	ResourceID   *string
	From         *time.Time
	To           *time.Time
}

// AuditService reads the trail that the ledger services write inside their
// transactions. It never writes.
type AuditService struct {
	ledger
}

func NewAuditService(store repository.Store, logger *zap.Logger) *AuditService {
	return &AuditService{ledger: newLedger(store, nil, logger)}
}

func (s *AuditService) List(ctx context.Context, filter AuditFilter, page, pageSize int) ([]*model.AuditLog, int64, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, 0, validationError("Período inválido")
	}
	if filter.ResourceID != nil && filter.ResourceType == nil {
		return nil, 0, validationError("resource_id exige resource_type")
	}

	items, total, err := s.repos().Audit.List(ctx, repository.AuditListFilter{
		ActorID:      filter.ActorID,
		Action:       trimAuditValue(filter.Action),
		ResourceType: trimAuditValue(filter.ResourceType),
		ResourceID:   trimAuditValue(filter.ResourceID),
		Since:        filter.From,
		Until:        filter.To,
		Pagination:   toRepoPage(page, pageSize),
	})
	if err != nil {
		return nil, 0, translateStoreError(err)
	}
	return items, total, nil
}

func trimAuditValue(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
