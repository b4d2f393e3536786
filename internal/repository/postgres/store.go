package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loyalty-hub/internal/repository"
)

const defaultTxTimeout = 5 * time.Second

type Store struct {
	pool      *pgxpool.Pool
	txTimeout time.Duration
}

func NewStore(pool *pgxpool.Pool, txTimeout time.Duration) *Store {
	if txTimeout <= 0 {
		txTimeout = defaultTxTimeout
	}
	return &Store{pool: pool, txTimeout: txTimeout}
}

var _ repository.Store = (*Store)(nil)

// WithinTx runs fn in a READ COMMITTED transaction. Repositories lock the rows
// they are about to change with SELECT ... FOR UPDATE or guard the change in
// the UPDATE's WHERE clause, so no stronger isolation level is needed.
func (s *Store) WithinTx(
	ctx context.Context,
	fn func(ctx context.Context, repos repository.Repositories) error,
) error {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(ctx, newRepositories(tx)); err != nil {
		return err
	}

	return mapError(tx.Commit(ctx))
}

func (s *Store) Repositories() repository.Repositories {
	return newRepositories(s.pool)
}

func (s *Store) Ping(ctx context.Context) error {
	return mapError(s.pool.Ping(ctx))
}

func newRepositories(q querier) repository.Repositories {
	return repository.Repositories{
		Points:          &pointsRepository{q: q},
		Rewards:         &rewardRepository{q: q},
		Redemptions:     &redemptionRepository{q: q},
		ReferralCodes:   &referralCodeRepository{q: q},
		Referrals:       &referralRepository{q: q},
		ReferralRewards: &referralRewardRepository{q: q},
		Stats:           &referralStatsRepository{q: q},
		Payouts:         &payoutRepository{q: q},
		PromoCodes:      &promoCodeRepository{q: q},
		PromoUsage:      &promoUsageRepository{q: q},
		Orders:          &orderRepository{q: q},
		Audit:           &auditRepository{q: q},
	}
}
