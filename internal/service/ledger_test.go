package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"loyalty-hub/internal/event"
	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
	"loyalty-hub/internal/repository/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (p *recordingPublisher) Publish(evt event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) ofType(eventType event.Type) []event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]event.Event, 0, len(p.events))
	for _, evt := range p.events {
		if evt.EventType() == eventType {
			out = append(out, evt)
		}
	}
	return out
}

type testLedger struct {
	store     *memory.Store
	publisher *recordingPublisher
	points    *PointsService
	referrals *ReferralService
	promos    *PromoCodeService
	cashback  *CashbackService
	orders    *OrderService
}

func newTestLedger(t *testing.T) *testLedger {
	t.Helper()

	store := memory.NewStore()
	publisher := &recordingPublisher{}
	logger := zap.NewNop()
	return &testLedger{
		store:     store,
		publisher: publisher,
		points:    NewPointsService(store, publisher, logger),
		referrals: NewReferralService(store, publisher, logger),
		promos:    NewPromoCodeService(store, publisher, logger),
		cashback:  NewCashbackService(store, publisher, decimal.Zero, logger),
		orders:    NewOrderService(store, publisher, logger),
	}
}

func (l *testLedger) grant(t *testing.T, userID uuid.UUID, points int64) *GrantResult {
	t.Helper()

	result, err := l.points.GrantPoints(context.Background(), GrantRequest{
		UserID:      userID,
		Type:        model.PointsTxReviewBonus,
		Points:      points,
		Description: "test grant",
	})
	if err != nil {
		t.Fatalf("GrantPoints returned error: %v", err)
	}
	return result
}

func (l *testLedger) seedCashback(t *testing.T, userID uuid.UUID, amount string) {
	t.Helper()

	err := l.store.WithinTx(context.Background(), func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Stats.Ensure(ctx, userID); err != nil {
			return err
		}
		value := decimal.RequireFromString(amount)
		_, err := repos.Stats.AddEarnings(ctx, userID, value, value)
		return err
	})
	if err != nil {
		t.Fatalf("seed cashback: %v", err)
	}
}

func (l *testLedger) account(t *testing.T, userID uuid.UUID) *model.PointsAccount {
	t.Helper()

	summary, err := l.points.GetAccount(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetAccount returned error: %v", err)
	}
	return summary.Account
}

// flakyStore fails the first failures transactions with a serialization error.
type flakyStore struct {
	*memory.Store
	failures int32
	attempts atomic.Int32
}

func (s *flakyStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	attempt := s.attempts.Add(1)
	return s.Store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := fn(ctx, repos); err != nil {
			return err
		}
		if attempt <= s.failures {
			return repository.ErrSerialization
		}
		return nil
	})
}

func TestWithinTx_RetriesSerializationFailures(t *testing.T) {
	t.Parallel()

	store := &flakyStore{Store: memory.NewStore(), failures: 2}
	publisher := &recordingPublisher{}
	svc := NewPointsService(store, publisher, nil)
	userID := uuid.New()

	result, err := svc.GrantSignupBonus(context.Background(), userID)
	if err != nil {
		t.Fatalf("GrantSignupBonus returned error: %v", err)
	}
	if !result.Applied {
		t.Fatalf("expected grant to apply after retries")
	}
	if got := store.attempts.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	if got := len(publisher.ofType(event.TypePointsGranted)); got != 1 {
		t.Fatalf("expected exactly one points_granted event, got %d", got)
	}

	summary, err := svc.GetAccount(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetAccount returned error: %v", err)
	}
	if summary.Account.AvailablePoints != SignupBonusPoints {
		t.Fatalf("expected %d points, got %d", SignupBonusPoints, summary.Account.AvailablePoints)
	}
}

func TestWithinTx_SurfacesConcurrencyConflictAfterRetries(t *testing.T) {
	t.Parallel()

	store := &flakyStore{Store: memory.NewStore(), failures: 100}
	publisher := &recordingPublisher{}
	svc := NewPointsService(store, publisher, nil)

	_, err := svc.GrantSignupBonus(context.Background(), uuid.New())
	if !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}
	if got := store.attempts.Load(); got != maxTxAttempts {
		t.Fatalf("expected %d attempts, got %d", maxTxAttempts, got)
	}
	if len(publisher.ofType(event.TypePointsGranted)) != 0 {
		t.Fatalf("events must not be published for a failed transaction")
	}
}

func TestWithinTx_CancelledContextIsStoreUnavailable(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewPointsService(memory.NewStore(), nil, nil)
	_, err := svc.GrantSignupBonus(ctx, uuid.New())
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestReason_HidesInternalErrors(t *testing.T) {
	t.Parallel()

	if got := Reason(ErrInsufficientPoints); got != "Pontos insuficientes" {
		t.Fatalf("unexpected reason %q", got)
	}
	if got := Reason(errors.New("pq: connection reset")); got != "Erro interno" {
		t.Fatalf("internal detail leaked: %q", got)
	}
	if got := Code(ErrReferralCodeExpired); got != "referral_code_expired" {
		t.Fatalf("unexpected code %q", got)
	}
}

func TestToRepoPage_KeepsOffsetInRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		page       int
		pageSize   int
		wantLimit  int32
		wantOffset int32
	}{
		{name: "first page", page: 1, pageSize: 20, wantLimit: 20, wantOffset: 0},
		{name: "third page", page: 3, pageSize: 20, wantLimit: 20, wantOffset: 40},
		{name: "page past int32", page: math.MaxInt32, pageSize: 20, wantLimit: 20, wantOffset: math.MaxInt32 / 20 * 20},
		{name: "page past int64 product", page: math.MaxInt, pageSize: 100, wantLimit: 100, wantOffset: math.MaxInt32 / 100 * 100},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := toRepoPage(tt.page, tt.pageSize)
			if got.Limit != tt.wantLimit || got.Offset != tt.wantOffset {
				t.Fatalf("expected limit=%d offset=%d, got limit=%d offset=%d", tt.wantLimit, tt.wantOffset, got.Limit, got.Offset)
			}
		})
	}
}

func TestList_HugePageIsEmpty(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	audit := NewAuditService(l.store, nil)
	createTestReward(t, l, RewardInput{PointsCost: 100})

	items, total, err := audit.List(context.Background(), AuditFilter{}, math.MaxInt, 20)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if total != 1 || len(items) != 0 {
		t.Fatalf("expected total=1 and an empty page, got total=%d len=%d", total, len(items))
	}
}
