package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	mrand "math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"loyalty-hub/internal/event"
	"loyalty-hub/internal/metrics"
	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

const (
	maxTxAttempts  = 3
	retryBaseDelay = 10 * time.Millisecond

	listDefaultPage     = 1
	listDefaultPageSize = 20
	listMaxPageSize     = 200
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// outbox collects events produced inside a transaction. They are published
// only after the transaction commits.
type outbox struct {
	events []event.Event
}

func (o *outbox) add(evt event.Event) {
	o.events = append(o.events, evt)
}

// ledger is the plumbing shared by every service: the store, the event sink
// and the retry policy around Store.WithinTx.
type ledger struct {
	store     repository.Store
	publisher event.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func newLedger(store repository.Store, publisher event.Publisher, logger *zap.Logger) ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return ledger{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// withinTx runs fn atomically, retrying serialization conflicts with jitter.
// fn may run more than once and must not keep state between attempts.
func (l *ledger) withinTx(
	ctx context.Context,
	operation string,
	fn func(ctx context.Context, repos repository.Repositories, out *outbox) error,
) error {
	if l.store == nil {
		return errors.New("ledger store is nil")
	}

	start := time.Now()
	defer func() {
		metrics.ObserveTxDuration(operation, time.Since(start))
	}()

	for attempt := 1; ; attempt++ {
		out := &outbox{}
		err := l.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
			return fn(ctx, repos, out)
		})
		if err == nil {
			l.publish(out.events)
			return nil
		}

		if !errors.Is(err, repository.ErrSerialization) {
			return translateStoreError(err)
		}
		if attempt >= maxTxAttempts {
			l.logger.Warn("ledger transaction retries exhausted",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return fmt.Errorf("%w: %s: %v", ErrConcurrencyConflict, operation, err)
		}

		metrics.IncTxRetry(operation)
		delay := retryBaseDelay*time.Duration(attempt) + time.Duration(mrand.Int64N(int64(retryBaseDelay)))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, ctx.Err())
		case <-timer.C:
		}
	}
}

func (l *ledger) publish(events []event.Event) {
	if l.publisher == nil {
		return
	}
	for _, evt := range events {
		l.publisher.Publish(evt)
	}
}

func (l *ledger) repos() repository.Repositories {
	return l.store.Repositories()
}

// writeAudit records an admin action. Failures are logged, never returned.
func (l *ledger) writeAudit(
	ctx context.Context,
	actor *uuid.UUID,
	action, resourceType, resourceID string,
	newValue map[string]interface{},
) {
	if l.store == nil {
		return
	}
	if err := l.store.Repositories().Audit.Create(ctx, model.NewAuditLog(actor, action, resourceType, resourceID, newValue)); err != nil {
		l.logger.Warn("write audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func auditInTx(ctx context.Context, repos repository.Repositories, actor *uuid.UUID, action, resourceType, resourceID string, newValue map[string]interface{}) error {
	return repos.Audit.Create(ctx, model.NewAuditLog(actor, action, resourceType, resourceID, newValue))
}

func normalizeListPage(page, pageSize int) (int, int) {
	if page <= 0 {
		page = listDefaultPage
	}
	if pageSize <= 0 {
		pageSize = listDefaultPageSize
	}
	if pageSize > listMaxPageSize {
		pageSize = listMaxPageSize
	}
	return page, pageSize
}

func toRepoPage(page, pageSize int) repository.Pagination {
	page, pageSize = normalizeListPage(page, pageSize)
	// Pages past the int32 offset range are pinned to the last reachable one,
	// which is empty for any realistic table.
	if maxPage := math.MaxInt32/pageSize + 1; page > maxPage {
		page = maxPage
	}
	return repository.Pagination{
		Limit:  int32(pageSize),
		Offset: int32((page - 1) * pageSize),
	}
}

func randomCode(length int) (string, error) {
	buf := make([]byte, length)
	limit := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

func strPtr(v string) *string {
	return &v
}

func uuidPtr(v uuid.UUID) *uuid.UUID {
	return &v
}
