package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"loyalty-hub/internal/event"
	"loyalty-hub/internal/metrics"
	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
	"loyalty-hub/internal/tier"
)

const (
	referralCodeLength      = 8
	maxReferralCodeAttempts = 5
	defaultReferralMaxUses  = 100
	rewardCouponValidity    = 30 * 24 * time.Hour
	rewardCouponCodeLength  = 8
)

var (
	defaultReferrerRewardValue = decimal.RequireFromString("0.10")
	defaultRefereeRewardValue  = decimal.RequireFromString("0.05")

	customReferralCodePattern = regexp.MustCompile(`^[A-Z0-9-]{4,20}$`)
)

// CreateReferralCodeOptions overrides the default reward terms. Zero values
// keep the defaults.
type CreateReferralCodeOptions struct {
	CustomCode          *string                   `json:"custom_code"`
	ReferrerRewardType  *model.ReferralRewardType `json:"referrer_reward_type"`
	ReferrerRewardValue *decimal.Decimal          `json:"referrer_reward_value"`
	RefereeRewardType   *model.ReferralRewardType `json:"referee_reward_type"`
	RefereeRewardValue  *decimal.Decimal          `json:"referee_reward_value"`
	MaxUses             *int                      `json:"max_uses"`
	ValidTo             *time.Time                `json:"valid_to"`
}

type ProcessReferralInput struct {
	Code      string
	RefereeID uuid.UUID
	IPAddress *string
	UserAgent *string
	Source    *string
}

type CompletionResult struct {
	Applied        bool                  `json:"applied"`
	Referral       *model.Referral       `json:"referral"`
	ReferrerReward *model.ReferralReward `json:"referrer_reward,omitempty"`
	RefereeReward  *model.ReferralReward `json:"referee_reward,omitempty"`
}

type ReferralStatsSummary struct {
	Stats           *model.UserReferralStats `json:"stats"`
	PendingCashback decimal.Decimal          `json:"pending_cashback"`
	Tier            tier.Tier                `json:"tier"`
	NextTier        *tier.Tier               `json:"next_tier,omitempty"`
	Progress        float64                  `json:"progress"`
}

type ReferralService struct {
	ledger
}

func NewReferralService(store repository.Store, publisher event.Publisher, logger *zap.Logger) *ReferralService {
	return &ReferralService{ledger: newLedger(store, publisher, logger)}
}

// CreateCode issues the user's referral code. A user holds at most one active
// code at a time.
func (s *ReferralService) CreateCode(
	ctx context.Context,
	userID uuid.UUID,
	opts CreateReferralCodeOptions,
) (*model.ReferralCode, error) {
	if userID == uuid.Nil {
		return nil, ErrInvalidUserID
	}

	code, err := buildReferralCode(userID, opts)
	if err != nil {
		return nil, err
	}
	custom := opts.CustomCode != nil

	err = s.withinTx(ctx, "create_referral_code", func(ctx context.Context, repos repository.Repositories, _ *outbox) error {
		existing, err := repos.ReferralCodes.FindActiveByReferrer(ctx, userID)
		switch {
		case err == nil:
			// A lapsed code still flagged active is retired here instead of
			// waiting for the expiry job.
			if existing.ValidTo == nil || existing.ValidTo.After(s.now()) {
				return ErrDuplicateActiveCode
			}
			if err := repos.ReferralCodes.Deactivate(ctx, existing.ID); err != nil {
				return err
			}
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		for attempt := 0; attempt < maxReferralCodeAttempts; attempt++ {
			if !custom {
				generated, err := randomCode(referralCodeLength)
				if err != nil {
					return err
				}
				code.Code = generated
			}
			code.ValidFrom = s.now()

			err := repos.ReferralCodes.Create(ctx, code)
			if err == nil {
				return repos.Stats.Ensure(ctx, userID)
			}
			if !errors.Is(err, repository.ErrDuplicate) {
				return err
			}

			// The collision is either the code itself or a concurrent active code for this user.
			if _, err := repos.ReferralCodes.FindActiveByReferrer(ctx, userID); err == nil {
				return ErrDuplicateActiveCode
			}
			if custom {
				return ErrReferralCodeTaken
			}
			code.ID = uuid.Nil
		}
		return errors.New("could not allocate a unique referral code")
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("referral code created",
		zap.String("user_id", userID.String()),
		zap.String("code", code.Code),
	)
	return code, nil
}

// ValidateCode checks, in order: exists, active, uses left, not expired. It
// returns the code's reward terms when usable.
func (s *ReferralService) ValidateCode(ctx context.Context, code string) (*model.ReferralCode, error) {
	normalized := normalizeReferralCode(code)
	if normalized == "" {
		return nil, ErrReferralCodeNotFound
	}

	found, err := s.repos().ReferralCodes.FindByCode(ctx, normalized)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrReferralCodeNotFound
	}
	if err != nil {
		return nil, translateStoreError(err)
	}
	if err := checkReferralCodeUsable(found, s.now()); err != nil {
		return nil, err
	}
	return found, nil
}

// ProcessReferral attributes a signup to a referrer. Rewards are deferred
// until the referee's first confirmed order.
func (s *ReferralService) ProcessReferral(ctx context.Context, input ProcessReferralInput) (*model.Referral, error) {
	if input.RefereeID == uuid.Nil {
		return nil, ErrInvalidUserID
	}
	code := normalizeReferralCode(input.Code)
	if code == "" {
		return nil, ErrReferralCodeNotFound
	}

	var referral *model.Referral
	err := s.withinTx(ctx, "process_referral", func(ctx context.Context, repos repository.Repositories, _ *outbox) error {
		var err error
		referral, err = processReferralTx(ctx, repos, code, input, s.now())
		return err
	})
	if err != nil {
		var rejection *RejectionError
		if errors.As(err, &rejection) {
			metrics.IncRejection("process_referral", rejection.Code)
		}
		return nil, err
	}
	return referral, nil
}

// CompleteReferral converts a pending referral. It is idempotent per order:
// replaying the same order returns Applied=false.
func (s *ReferralService) CompleteReferral(
	ctx context.Context,
	referralID uuid.UUID,
	orderID string,
	orderValue decimal.Decimal,
) (*CompletionResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, validationError("Pedido obrigatório")
	}
	if orderValue.IsNegative() {
		return nil, validationError("Valor do pedido inválido")
	}

	var result *CompletionResult
	err := s.withinTx(ctx, "complete_referral", func(ctx context.Context, repos repository.Repositories, out *outbox) error {
		referral, err := repos.Referrals.FindByIDForUpdate(ctx, referralID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrReferralNotFound
		}
		if err != nil {
			return err
		}
		result, err = completeReferralTx(ctx, repos, out, referral, orderID, orderValue, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	if result.Applied {
		metrics.IncReferralCompleted()
	}
	return result, nil
}

// CancelReferral moves a pending referral to cancelled and gives the
// reserved use back to its code.
func (s *ReferralService) CancelReferral(ctx context.Context, actorID, referralID uuid.UUID, reason string) (*model.Referral, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationError("Motivo obrigatório")
	}

	var referral *model.Referral
	err := s.withinTx(ctx, "cancel_referral", func(ctx context.Context, repos repository.Repositories, _ *outbox) error {
		var err error
		referral, err = repos.Referrals.FindByIDForUpdate(ctx, referralID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrReferralNotFound
		}
		if err != nil {
			return err
		}
		if referral.Status != model.ReferralStatusPending {
			return ErrReferralNotPending
		}

		now := s.now()
		if err := repos.Referrals.Cancel(ctx, referral.ID, reason, now); err != nil {
			if errors.Is(err, repository.ErrConditionFailed) {
				return ErrReferralNotPending
			}
			return err
		}
		if err := repos.ReferralCodes.ReleaseUse(ctx, referral.ReferralCodeID); err != nil {
			return err
		}

		referral.Status = model.ReferralStatusCancelled
		referral.CancelledAt = &now
		referral.CancelReason = &reason
		return auditInTx(ctx, repos, &actorID, "referral.cancel", "referral", referral.ID.String(), map[string]interface{}{
			"reason": reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return referral, nil
}

// DeactivateCode is allowed for the code's owner and for admins.
func (s *ReferralService) DeactivateCode(ctx context.Context, identity model.Identity, codeID uuid.UUID) error {
	repos := s.repos()

	code, err := repos.ReferralCodes.FindByID(ctx, codeID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrReferralCodeNotFound
	}
	if err != nil {
		return translateStoreError(err)
	}
	if code.ReferrerID != identity.UserID && !identity.IsAdmin() {
		return ErrForbiddenActor
	}

	if err := repos.ReferralCodes.Deactivate(ctx, codeID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrReferralCodeNotFound
		}
		return translateStoreError(err)
	}

	s.writeAudit(ctx, &identity.UserID, "referral_code.deactivate", "referral_code", codeID.String(), map[string]interface{}{
		"code": code.Code,
	})
	return nil
}

func (s *ReferralService) GetActiveCode(ctx context.Context, userID uuid.UUID) (*model.ReferralCode, error) {
	code, err := s.repos().ReferralCodes.FindActiveByReferrer(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrReferralCodeNotFound
	}
	if err != nil {
		return nil, translateStoreError(err)
	}
	return code, nil
}

func (s *ReferralService) ListCodes(ctx context.Context, userID uuid.UUID) ([]*model.ReferralCode, error) {
	codes, err := s.repos().ReferralCodes.ListByReferrer(ctx, userID)
	if err != nil {
		return nil, translateStoreError(err)
	}
	return codes, nil
}

func (s *ReferralService) ListReferrals(
	ctx context.Context,
	referrerID uuid.UUID,
	status *model.ReferralStatus,
	page, pageSize int,
) ([]*model.Referral, int64, error) {
	items, total, err := s.repos().Referrals.ListByReferrer(ctx, referrerID, status, toRepoPage(page, pageSize))
	if err != nil {
		return nil, 0, translateStoreError(err)
	}
	return items, total, nil
}

func (s *ReferralService) ListRewards(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*model.ReferralReward, int64, error) {
	items, total, err := s.repos().ReferralRewards.ListByUser(ctx, userID, toRepoPage(page, pageSize))
	if err != nil {
		return nil, 0, translateStoreError(err)
	}
	return items, total, nil
}

// GetStats returns the user's referral stats. Pending cashback is derived
// from open payouts rather than stored.
func (s *ReferralService) GetStats(ctx context.Context, userID uuid.UUID) (*ReferralStatsSummary, error) {
	repos := s.repos()

	stats, err := repos.Stats.FindByUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		stats = &model.UserReferralStats{
			UserID:             userID,
			TotalReferralSales: decimal.Zero,
			TotalEarnings:      decimal.Zero,
			AvailableCashback:  decimal.Zero,
		}
	} else if err != nil {
		return nil, translateStoreError(err)
	}

	pending, err := repos.Payouts.SumOpenByUser(ctx, userID)
	if err != nil {
		return nil, translateStoreError(err)
	}

	level := tier.Level(stats.TierLevel)
	summary := &ReferralStatsSummary{
		Stats:           stats,
		PendingCashback: pending,
		Tier:            tier.Get(level),
		Progress:        tier.ReferralProgress(level, stats.SuccessfulReferrals, stats.TotalReferralSales),
	}
	if level < tier.MaxLevel {
		next := tier.Get(level + 1)
		summary.NextTier = &next
	}
	return summary, nil
}

func (s *ReferralService) DeactivateExpiredCodes(ctx context.Context) (int64, error) {
	affected, err := s.repos().ReferralCodes.DeactivateExpired(ctx, s.now())
	if err != nil {
		return 0, translateStoreError(err)
	}
	return affected, nil
}

func processReferralTx(
	ctx context.Context,
	repos repository.Repositories,
	code string,
	input ProcessReferralInput,
	now time.Time,
) (*model.Referral, error) {
	referralCode, err := repos.ReferralCodes.FindByCodeForUpdate(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrReferralCodeNotFound
	}
	if err != nil {
		return nil, err
	}

	if existing, err := repos.Referrals.FindActiveByReferee(ctx, input.RefereeID); err == nil {
		if existing.ReferralCodeID == referralCode.ID {
			return existing, nil
		}
		return nil, ErrAlreadyReferred
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	if err := checkReferralCodeUsable(referralCode, now); err != nil {
		return nil, err
	}
	if referralCode.ReferrerID == input.RefereeID {
		return nil, ErrSelfReferral
	}

	if err := repos.ReferralCodes.ReserveUse(ctx, referralCode.ID, now); err != nil {
		if errors.Is(err, repository.ErrConditionFailed) {
			return nil, ErrReferralCodeExhausted
		}
		return nil, err
	}

	referral := &model.Referral{
		ReferralCodeID: referralCode.ID,
		ReferralCode:   referralCode.Code,
		ReferrerID:     referralCode.ReferrerID,
		RefereeID:      input.RefereeID,
		Status:         model.ReferralStatusPending,
		ClickedAt:      now,
		IPAddress:      input.IPAddress,
		UserAgent:      input.UserAgent,
		Source:         input.Source,
	}
	if err := repos.Referrals.Create(ctx, referral); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAlreadyReferred
		}
		return nil, err
	}

	if err := repos.Stats.Ensure(ctx, referralCode.ReferrerID); err != nil {
		return nil, err
	}
	if err := repos.Stats.IncrementReferrals(ctx, referralCode.ReferrerID, 1); err != nil {
		return nil, err
	}
	return referral, nil
}

// completeReferralForRefereeTx completes the referee's pending referral, if
// any. It returns nil when the referee was not referred.
func completeReferralForRefereeTx(
	ctx context.Context,
	repos repository.Repositories,
	out *outbox,
	refereeID uuid.UUID,
	orderID string,
	orderValue decimal.Decimal,
	now time.Time,
) (*CompletionResult, error) {
	active, err := repos.Referrals.FindActiveByReferee(ctx, refereeID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if active.Status != model.ReferralStatusPending {
		return nil, nil
	}

	referral, err := repos.Referrals.FindByIDForUpdate(ctx, active.ID)
	if err != nil {
		return nil, err
	}
	return completeReferralTx(ctx, repos, out, referral, orderID, orderValue, now)
}

// completeReferralTx delivers both rewards and updates both users' stats.
// The caller holds the referral row lock.
func completeReferralTx(
	ctx context.Context,
	repos repository.Repositories,
	out *outbox,
	referral *model.Referral,
	orderID string,
	orderValue decimal.Decimal,
	now time.Time,
) (*CompletionResult, error) {
	switch referral.Status {
	case model.ReferralStatusCompleted:
		if referral.OrderID != nil && *referral.OrderID == orderID {
			return &CompletionResult{Applied: false, Referral: referral}, nil
		}
		return nil, ErrReferralNotPending
	case model.ReferralStatusPending:
	default:
		return nil, ErrReferralNotPending
	}

	code, err := repos.ReferralCodes.FindByID(ctx, referral.ReferralCodeID)
	if err != nil {
		return nil, err
	}

	if err := repos.Referrals.Complete(ctx, referral.ID, orderID, orderValue, now); err != nil {
		if errors.Is(err, repository.ErrConditionFailed) || errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrReferralNotPending
		}
		return nil, err
	}
	referral.Status = model.ReferralStatusCompleted
	referral.OrderID = &orderID
	referral.OrderValue = &orderValue
	referral.ConvertedAt = &now

	if err := repos.Stats.Ensure(ctx, referral.ReferrerID); err != nil {
		return nil, err
	}
	if err := repos.Stats.Ensure(ctx, referral.RefereeID); err != nil {
		return nil, err
	}
	referrerStats, err := repos.Stats.FindByUserForUpdate(ctx, referral.ReferrerID)
	if err != nil {
		return nil, err
	}
	refereeStats, err := repos.Stats.FindByUserForUpdate(ctx, referral.RefereeID)
	if err != nil {
		return nil, err
	}

	referrerTier := tier.Get(tier.Level(referrerStats.TierLevel))
	refereeTier := tier.Get(tier.Level(refereeStats.TierLevel))

	referrerReward, err := deliverReferralReward(ctx, repos, out, referralRewardSpec{
		referral:   referral,
		userID:     referral.ReferrerID,
		role:       model.ReferralRoleReferrer,
		rewardType: code.ReferrerRewardType,
		value:      code.ReferrerRewardValue,
		multiplier: referrerTier.ReferrerBonusMultiplier,
		cashback:   referrerTier.CashbackMultiplier,
		orderValue: orderValue,
	}, now)
	if err != nil {
		return nil, err
	}

	refereeReward, err := deliverReferralReward(ctx, repos, out, referralRewardSpec{
		referral:   referral,
		userID:     referral.RefereeID,
		role:       model.ReferralRoleReferee,
		rewardType: code.RefereeRewardType,
		value:      code.RefereeRewardValue,
		multiplier: refereeTier.RefereeBonusMultiplier,
		cashback:   refereeTier.CashbackMultiplier,
		orderValue: orderValue,
	}, now)
	if err != nil {
		return nil, err
	}

	updated, err := repos.Stats.RecordConversion(ctx, referral.ReferrerID, orderValue,
		rewardEarnings(referrerReward), referrerReward.CashbackAmount)
	if err != nil {
		return nil, err
	}
	if earnings := rewardEarnings(refereeReward); earnings.IsPositive() || refereeReward.CashbackAmount.IsPositive() {
		if _, err := repos.Stats.AddEarnings(ctx, referral.RefereeID, earnings, refereeReward.CashbackAmount); err != nil {
			return nil, err
		}
	}

	current := tier.Level(updated.TierLevel)
	level := tier.Promote(current, tier.ForReferralStats(updated.SuccessfulReferrals, updated.TotalReferralSales))
	progress := tier.ReferralProgress(level, updated.SuccessfulReferrals, updated.TotalReferralSales)
	if err := repos.Stats.UpdateTier(ctx, referral.ReferrerID, int(level), progress); err != nil {
		return nil, err
	}

	out.add(event.ReferralCompleted{
		ReferralID:     referral.ID,
		ReferrerID:     referral.ReferrerID,
		RefereeID:      referral.RefereeID,
		OrderID:        orderID,
		OrderValue:     orderValue,
		ReferrerReward: rewardSummary(referrerReward),
		RefereeReward:  rewardSummary(refereeReward),
		OccurredAt:     now,
	})

	return &CompletionResult{
		Applied:        true,
		Referral:       referral,
		ReferrerReward: referrerReward,
		RefereeReward:  refereeReward,
	}, nil
}

type referralRewardSpec struct {
	referral   *model.Referral
	userID     uuid.UUID
	role       model.ReferralRole
	rewardType model.ReferralRewardType
	value      decimal.Decimal
	multiplier decimal.Decimal
	cashback   decimal.Decimal
	orderValue decimal.Decimal
}

// deliverReferralReward books one side of a completed referral:
//
//	points     -> referral_bonus points transaction
//	cashback   -> orderValue × value, credited to available cashback
//	percentage -> single-use fixed-amount promo code worth orderValue × value
//	fixed      -> single-use fixed-amount promo code worth value
//
// Every amount is scaled by the user's tier multiplier.
func deliverReferralReward(
	ctx context.Context,
	repos repository.Repositories,
	out *outbox,
	spec referralRewardSpec,
	now time.Time,
) (*model.ReferralReward, error) {
	reward := &model.ReferralReward{
		ReferralID:     spec.referral.ID,
		UserID:         spec.userID,
		Role:           spec.role,
		Type:           spec.rewardType,
		CashbackAmount: decimal.Zero,
		CreatedAt:      now,
	}

	switch spec.rewardType {
	case model.ReferralRewardPoints:
		points := spec.value.Mul(spec.multiplier).Floor().IntPart()
		reward.Value = decimal.NewFromInt(points)
		reward.Points = points
		if points > 0 {
			_, err := grantPointsTx(ctx, repos, out, GrantRequest{
				UserID:         spec.userID,
				Type:           model.PointsTxReferralBonus,
				Points:         points,
				Description:    fmt.Sprintf("Pontos de indicação - %d pontos", points),
				ReferralID:     &spec.referral.ID,
				IdempotencyKey: strPtr(fmt.Sprintf("referral:%s:%s", spec.referral.ID, spec.role)),
			}, now)
			if err != nil {
				return nil, err
			}
		}

	case model.ReferralRewardCashback:
		amount := spec.orderValue.Mul(spec.value).Mul(spec.cashback).Round(2)
		reward.Value = amount
		reward.CashbackAmount = amount

	case model.ReferralRewardPercentage, model.ReferralRewardFixed:
		amount := spec.value
		if spec.rewardType == model.ReferralRewardPercentage {
			amount = spec.orderValue.Mul(spec.value)
		}
		amount = amount.Mul(spec.multiplier).Round(2)
		reward.Value = amount
		if amount.IsPositive() {
			coupon, err := createRewardCoupon(ctx, repos, spec.userID, amount, now)
			if err != nil {
				return nil, err
			}
			reward.CouponCode = &coupon.Code
		}

	default:
		return nil, fmt.Errorf("unknown referral reward type %q", spec.rewardType)
	}

	if err := repos.ReferralRewards.Create(ctx, reward); err != nil {
		return nil, err
	}
	return reward, nil
}

// createRewardCoupon issues a single-use FIXED_AMOUNT promo code valid for 30 days.
func createRewardCoupon(
	ctx context.Context,
	repos repository.Repositories,
	userID uuid.UUID,
	amount decimal.Decimal,
	now time.Time,
) (*model.PromoCode, error) {
	validTo := now.Add(rewardCouponValidity)
	for attempt := 0; attempt < maxCouponAttempts; attempt++ {
		suffix, err := randomCode(rewardCouponCodeLength)
		if err != nil {
			return nil, err
		}
		promo := &model.PromoCode{
			Code:           "REF" + suffix,
			Description:    "Recompensa de indicação - €" + amount.StringFixed(2),
			Type:           model.PromoCodeFixedAmount,
			DiscountValue:  amount,
			MaxUses:        1,
			MaxUsesPerUser: 1,
			ValidFrom:      now,
			ValidTo:        &validTo,
			IsActive:       true,
			TotalRevenue:   decimal.Zero,
			CreatedBy:      uuidPtr(userID),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		err = repos.PromoCodes.Create(ctx, promo)
		if err == nil {
			return promo, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, err
		}
	}
	return nil, errors.New("could not allocate a unique reward coupon code")
}

// rewardEarnings is the monetary value of a reward; points are not money.
func rewardEarnings(reward *model.ReferralReward) decimal.Decimal {
	if reward == nil || reward.Type == model.ReferralRewardPoints {
		return decimal.Zero
	}
	return reward.Value
}

func rewardSummary(reward *model.ReferralReward) event.RewardSummary {
	if reward == nil {
		return event.RewardSummary{}
	}
	summary := event.RewardSummary{
		Type:           reward.Type,
		Points:         reward.Points,
		CashbackAmount: reward.CashbackAmount,
	}
	if reward.CouponCode != nil {
		summary.CouponCode = *reward.CouponCode
	}
	return summary
}

func checkReferralCodeUsable(code *model.ReferralCode, now time.Time) error {
	switch {
	case !code.IsActive:
		return ErrReferralCodeInactive
	case code.CurrentUses >= code.MaxUses:
		return ErrReferralCodeExhausted
	case code.ValidTo != nil && !code.ValidTo.After(now):
		return ErrReferralCodeExpired
	}
	return nil
}

func normalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func buildReferralCode(userID uuid.UUID, opts CreateReferralCodeOptions) (*model.ReferralCode, error) {
	code := &model.ReferralCode{
		ReferrerID:          userID,
		ReferrerRewardType:  model.ReferralRewardCashback,
		ReferrerRewardValue: defaultReferrerRewardValue,
		RefereeRewardType:   model.ReferralRewardPercentage,
		RefereeRewardValue:  defaultRefereeRewardValue,
		MaxUses:             defaultReferralMaxUses,
		IsActive:            true,
		ValidTo:             opts.ValidTo,
	}

	if opts.CustomCode != nil {
		custom := normalizeReferralCode(*opts.CustomCode)
		if !customReferralCodePattern.MatchString(custom) {
			return nil, validationError("Código personalizado inválido")
		}
		code.Code = custom
	}
	if opts.ReferrerRewardType != nil {
		code.ReferrerRewardType = *opts.ReferrerRewardType
	}
	if opts.ReferrerRewardValue != nil {
		code.ReferrerRewardValue = *opts.ReferrerRewardValue
	}
	if opts.RefereeRewardType != nil {
		code.RefereeRewardType = *opts.RefereeRewardType
	}
	if opts.RefereeRewardValue != nil {
		code.RefereeRewardValue = *opts.RefereeRewardValue
	}
	if opts.MaxUses != nil {
		code.MaxUses = *opts.MaxUses
	}

	if err := validateRewardTerms(code.ReferrerRewardType, code.ReferrerRewardValue); err != nil {
		return nil, err
	}
	if err := validateRewardTerms(code.RefereeRewardType, code.RefereeRewardValue); err != nil {
		return nil, err
	}
	if code.MaxUses < 1 {
		return nil, validationError("Limite de usos inválido")
	}
	if code.ValidTo != nil && !code.ValidTo.After(time.Now()) {
		return nil, validationError("Validade deve ser futura")
	}
	return code, nil
}

// Percentage and cashback values are fractions of the order value.
func validateRewardTerms(rewardType model.ReferralRewardType, value decimal.Decimal) error {
	if !rewardType.Valid() {
		return validationError("Tipo de recompensa inválido")
	}
	if !value.IsPositive() {
		return validationError("Valor de recompensa inválido")
	}
	if (rewardType == model.ReferralRewardPercentage || rewardType == model.ReferralRewardCashback) &&
		value.GreaterThan(decimal.NewFromInt(1)) {
		return validationError("Percentual de recompensa inválido")
	}
	return nil
}
