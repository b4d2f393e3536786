package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAuditService_ListsAdminChangesWithFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := newTestLedger(t)
	audit := NewAuditService(l.store, nil)
	admin := uuid.New()
	userID := uuid.New()

	if _, err := l.points.AdjustPoints(ctx, admin, userID, 250, "compensação de pedido"); err != nil {
		t.Fatalf("AdjustPoints returned error: %v", err)
	}
	reward := createTestReward(t, l, RewardInput{PointsCost: 100})

	all, total, err := audit.List(ctx, AuditFilter{}, 1, 20)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if total != 2 || len(all) != 2 {
		t.Fatalf("expected 2 audit rows, got total=%d len=%d", total, len(all))
	}
	if all[0].Action != "reward.create" {
		t.Fatalf("expected newest first, got %q", all[0].Action)
	}

	action := "points.adjust"
	adjustments, total, err := audit.List(ctx, AuditFilter{ActorID: &admin, Action: &action}, 1, 20)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if total != 1 || adjustments[0].ResourceID != userID.String() || adjustments[0].Details["delta"] == nil {
		t.Fatalf("unexpected adjustment rows: %+v", adjustments)
	}

	resourceType := "reward"
	resourceID := reward.ID.String()
	rewards, total, err := audit.List(ctx, AuditFilter{ResourceType: &resourceType, ResourceID: &resourceID}, 1, 20)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if total != 1 || rewards[0].ResourceID != resourceID {
		t.Fatalf("unexpected reward rows: %+v", rewards)
	}
}

func TestAuditService_RejectsInvalidFilters(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	audit := NewAuditService(l.store, nil)

	resourceID := uuid.NewString()
	if _, _, err := audit.List(context.Background(), AuditFilter{ResourceID: &resourceID}, 1, 20); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for resource_id alone, got %v", err)
	}

	from := time.Now().UTC()
	to := from.Add(-time.Hour)
	if _, _, err := audit.List(context.Background(), AuditFilter{From: &from, To: &to}, 1, 20); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for inverted range, got %v", err)
	}
}
