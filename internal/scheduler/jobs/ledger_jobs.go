package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"loyalty-hub/internal/metrics"
)

const jobTimeout = 2 * time.Minute

type RedemptionExpirer interface {
	ExpireRedemptions(ctx context.Context) (int64, error)
}

type ReferralCodeExpirer interface {
	DeactivateExpiredCodes(ctx context.Context) (int64, error)
}

// RedemptionJob moves active coupons past their expiry to expired. Spent
// points are not refunded.
type RedemptionJob struct {
	points RedemptionExpirer
	logger *zap.Logger
}

func NewRedemptionJob(points RedemptionExpirer, logger *zap.Logger) *RedemptionJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedemptionJob{points: points, logger: logger}
}

func (j *RedemptionJob) ExpireRedemptions() {
	if j == nil || j.points == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	affected, err := j.points.ExpireRedemptions(ctx)
	if err != nil {
		j.logger.Warn("expire redemptions failed", zap.Error(err))
		return
	}
	metrics.AddScheduledJobAffected("redemptions.expire", affected)
	if affected > 0 {
		j.logger.Info("redemptions expired", zap.Int64("count", affected))
	}
}

type ReferralCodeJob struct {
	referrals ReferralCodeExpirer
	logger    *zap.Logger
}

func NewReferralCodeJob(referrals ReferralCodeExpirer, logger *zap.Logger) *ReferralCodeJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReferralCodeJob{referrals: referrals, logger: logger}
}

func (j *ReferralCodeJob) DeactivateExpiredCodes() {
	if j == nil || j.referrals == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	affected, err := j.referrals.DeactivateExpiredCodes(ctx)
	if err != nil {
		j.logger.Warn("deactivate expired referral codes failed", zap.Error(err))
		return
	}
	metrics.AddScheduledJobAffected("referral_codes.deactivate_expired", affected)
	if affected > 0 {
		j.logger.Info("referral codes deactivated", zap.Int64("count", affected))
	}
}
