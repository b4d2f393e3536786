// Package memory is an in-process ledger store. Transactions are serialized
// by a single mutex and run against a private copy of the state that replaces
// the live state only on success, so a failed transaction leaves no trace.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

type state struct {
	accounts        map[uuid.UUID]model.PointsAccount
	transactions    []model.PointsTransaction
	txKeys          map[string]struct{}
	rewards         map[uuid.UUID]model.Reward
	redemptions     map[uuid.UUID]model.Redemption
	referralCodes   map[uuid.UUID]model.ReferralCode
	referrals       map[uuid.UUID]model.Referral
	referralRewards []model.ReferralReward
	stats           map[uuid.UUID]model.UserReferralStats
	payouts         map[uuid.UUID]model.CashbackPayout
	promoCodes      map[uuid.UUID]model.PromoCode
	promoUsage      []model.PromoCodeUsage
	orders          map[string]model.ConfirmedOrder
	audit           []model.AuditLog
	auditSeq        int64
}

func newState() *state {
	return &state{
		accounts:      make(map[uuid.UUID]model.PointsAccount),
		txKeys:        make(map[string]struct{}),
		rewards:       make(map[uuid.UUID]model.Reward),
		redemptions:   make(map[uuid.UUID]model.Redemption),
		referralCodes: make(map[uuid.UUID]model.ReferralCode),
		referrals:     make(map[uuid.UUID]model.Referral),
		stats:         make(map[uuid.UUID]model.UserReferralStats),
		payouts:       make(map[uuid.UUID]model.CashbackPayout),
		promoCodes:    make(map[uuid.UUID]model.PromoCode),
		orders:        make(map[string]model.ConfirmedOrder),
	}
}

// clone copies every collection. Records are values, and pointer fields inside
// them are only ever replaced, never written through, so a shallow copy of
// each record is enough.
func (s *state) clone() *state {
	return &state{
		accounts:        maps.Clone(s.accounts),
		transactions:    slices.Clone(s.transactions),
		txKeys:          maps.Clone(s.txKeys),
		rewards:         maps.Clone(s.rewards),
		redemptions:     maps.Clone(s.redemptions),
		referralCodes:   maps.Clone(s.referralCodes),
		referrals:       maps.Clone(s.referrals),
		referralRewards: slices.Clone(s.referralRewards),
		stats:           maps.Clone(s.stats),
		payouts:         maps.Clone(s.payouts),
		promoCodes:      maps.Clone(s.promoCodes),
		promoUsage:      slices.Clone(s.promoUsage),
		orders:          maps.Clone(s.orders),
		audit:           slices.Clone(s.audit),
		auditSeq:        s.auditSeq,
	}
}

type handle interface {
	acquire() (*state, func())
}

type txHandle struct {
	st *state
}

func (h txHandle) acquire() (*state, func()) {
	return h.st, func() {}
}

type liveHandle struct {
	store *Store
}

func (h liveHandle) acquire() (*state, func()) {
	h.store.mu.Lock()
	return h.store.st, h.store.mu.Unlock
}

type Store struct {
	mu sync.Mutex
	st *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) WithinTx(
	ctx context.Context,
	fn func(ctx context.Context, repos repository.Repositories) error,
) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, newRepositories(txHandle{st: work})); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, err)
	}

	s.st = work
	return nil
}

// Repositories must not be used from inside a WithinTx callback; the callback
// receives its own transactional repositories.
func (s *Store) Repositories() repository.Repositories {
	return newRepositories(liveHandle{store: s})
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func newRepositories(h handle) repository.Repositories {
	return repository.Repositories{
		Points:          pointsRepository{h: h},
		Rewards:         rewardRepository{h: h},
		Redemptions:     redemptionRepository{h: h},
		ReferralCodes:   referralCodeRepository{h: h},
		Referrals:       referralRepository{h: h},
		ReferralRewards: referralRewardRepository{h: h},
		Stats:           referralStatsRepository{h: h},
		Payouts:         payoutRepository{h: h},
		PromoCodes:      promoCodeRepository{h: h},
		PromoUsage:      promoUsageRepository{h: h},
		Orders:          orderRepository{h: h},
		Audit:           auditRepository{h: h},
	}
}

func normalizePagination(page repository.Pagination) (int, int) {
	limit := int(page.Limit)
	offset := int(page.Offset)

	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	return limit, offset
}

// pageOf sorts items with less and returns the requested window plus the total count.
func pageOf[T any](items []T, page repository.Pagination, less func(a, b T) bool) ([]*T, int64) {
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })

	limit, offset := normalizePagination(page)
	total := int64(len(items))
	if offset >= len(items) {
		return []*T{}, total
	}

	end := offset + limit
	if end > len(items) {
		end = len(items)
	}

	out := make([]*T, 0, end-offset)
	for i := offset; i < end; i++ {
		item := items[i]
		out = append(out, &item)
	}
	return out, total
}

func ptr[T any](v T) *T {
	return &v
}
