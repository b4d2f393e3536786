package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
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
	PointsPerEuro      = 10
	SignupBonusPoints  = 500
	ReviewBonusPoints  = 200
	BirthdayBonusPoint = 1000

	couponRandomLength = 6
	maxCouponAttempts  = 5
)

// GrantRequest describes one accrual. IdempotencyKey, when set, turns a
// repeated grant into a no-op.
type GrantRequest struct {
	UserID         uuid.UUID
	Type           model.PointsTransactionType
	Points         int64
	Description    string
	OrderID        *string
	ProductID      *string
	ReferralID     *uuid.UUID
	IdempotencyKey *string
	Metadata       map[string]interface{}

	// scaleByTier multiplies Points by the account's current tier multiplier
	// inside the transaction.
	scaleByTier bool
}

type TierChange struct {
	From        tier.Level `json:"from"`
	To          tier.Level `json:"to"`
	BonusPoints int64      `json:"bonus_points"`
}

type GrantResult struct {
	Applied     bool                     `json:"applied"`
	Transaction *model.PointsTransaction `json:"transaction,omitempty"`
	Account     *model.PointsAccount     `json:"account"`
	TierChange  *TierChange              `json:"tier_change,omitempty"`
}

type RedeemResult struct {
	CouponCode string               `json:"coupon_code"`
	Redemption *model.Redemption    `json:"redemption"`
	Account    *model.PointsAccount `json:"account"`
}

type AccountSummary struct {
	Account  *model.PointsAccount `json:"account"`
	Tier     tier.Tier            `json:"tier"`
	NextTier tier.NextTierInfo    `json:"next_tier"`
}

type ReconcileReport struct {
	UserID   uuid.UUID             `json:"user_id"`
	Account  *model.PointsAccount  `json:"account"`
	Ledger   model.PointsLedgerSum `json:"ledger"`
	Balanced bool                  `json:"balanced"`
}

type RewardInput struct {
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	Type         model.RewardType `json:"type"`
	Value        decimal.Decimal  `json:"value"`
	ProductID    *string          `json:"product_id"`
	PointsCost   int64            `json:"points_cost"`
	MinTierLevel int              `json:"min_tier_level"`
	MaxPerUser   int              `json:"max_per_user"`
	ValidFrom    *time.Time       `json:"valid_from"`
	ValidTo      *time.Time       `json:"valid_to"`
	IsActive     *bool            `json:"is_active"`
}

type PointsService struct {
	ledger
}

func NewPointsService(store repository.Store, publisher event.Publisher, logger *zap.Logger) *PointsService {
	return &PointsService{ledger: newLedger(store, publisher, logger)}
}

func (s *PointsService) GrantPoints(ctx context.Context, req GrantRequest) (*GrantResult, error) {
	if err := validateGrant(req); err != nil {
		return nil, err
	}

	var result *GrantResult
	err := s.withinTx(ctx, "grant_points", func(ctx context.Context, repos repository.Repositories, out *outbox) error {
		var err error
		result, err = grantPointsTx(ctx, repos, out, req, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GrantPurchasePoints awards floor(orderTotal × PointsPerEuro) scaled by the
// buyer's tier. A repeated call for the same order is a no-op.
func (s *PointsService) GrantPurchasePoints(
	ctx context.Context,
	userID uuid.UUID,
	orderID string,
	orderTotal decimal.Decimal,
) (*GrantResult, error) {
	req, ok := purchaseGrant(userID, orderID, orderTotal)
	if !ok {
		return &GrantResult{Applied: false}, nil
	}
	return s.GrantPoints(ctx, req)
}

func (s *PointsService) GrantSignupBonus(ctx context.Context, userID uuid.UUID) (*GrantResult, error) {
	return s.GrantPoints(ctx, signupGrant(userID))
}

func (s *PointsService) GrantReviewBonus(ctx context.Context, userID uuid.UUID, productID string) (*GrantResult, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, validationError("Produto obrigatório")
	}
	return s.GrantPoints(ctx, GrantRequest{
		UserID:         userID,
		Type:           model.PointsTxReviewBonus,
		Points:         ReviewBonusPoints,
		Description:    "Bônus por avaliação de produto",
		ProductID:      &productID,
		IdempotencyKey: strPtr("review:" + userID.String() + ":" + productID),
	})
}

func (s *PointsService) GrantBirthdayBonus(ctx context.Context, userID uuid.UUID, year int) (*GrantResult, error) {
	if year < 1900 {
		return nil, validationError("Ano inválido")
	}
	return s.GrantPoints(ctx, GrantRequest{
		UserID:         userID,
		Type:           model.PointsTxBirthdayBonus,
		Points:         BirthdayBonusPoint,
		Description:    "Bônus de aniversário",
		IdempotencyKey: strPtr("birthday:" + userID.String() + ":" + strconv.Itoa(year)),
	})
}

// AdjustPoints applies an admin correction. Positive deltas are grants,
// negative deltas debit available points and never overdraw.
func (s *PointsService) AdjustPoints(
	ctx context.Context,
	actorID uuid.UUID,
	userID uuid.UUID,
	delta int64,
	reason string,
) (*GrantResult, error) {
	reason = strings.TrimSpace(reason)
	if userID == uuid.Nil {
		return nil, ErrInvalidUserID
	}
	if delta == 0 {
		return nil, validationError("Ajuste deve ser diferente de zero")
	}
	if reason == "" {
		return nil, validationError("Motivo obrigatório")
	}

	var result *GrantResult
	err := s.withinTx(ctx, "adjust_points", func(ctx context.Context, repos repository.Repositories, out *outbox) error {
		var err error
		if delta > 0 {
			result, err = grantPointsTx(ctx, repos, out, GrantRequest{
				UserID:      userID,
				Type:        model.PointsTxAdminAdjustment,
				Points:      delta,
				Description: reason,
				Metadata:    map[string]interface{}{"actor_id": actorID.String()},
			}, s.now())
		} else {
			result, err = debitAdjustmentTx(ctx, repos, userID, -delta, reason, actorID, s.now())
		}
		if err != nil {
			return err
		}
		return auditInTx(ctx, repos, &actorID, "points.adjust", "points_account", userID.String(), map[string]interface{}{
			"delta":  delta,
			"reason": reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Redeem exchanges points for a reward. Every check and the debit happen in
// one transaction, so concurrent redemptions can never overdraw.
func (s *PointsService) Redeem(ctx context.Context, userID, rewardID uuid.UUID) (*RedeemResult, error) {
	if userID == uuid.Nil {
		return nil, ErrInvalidUserID
	}
	if rewardID == uuid.Nil {
		return nil, ErrRewardNotFound
	}

	var result *RedeemResult
	var reward *model.Reward
	err := s.withinTx(ctx, "redeem_points", func(ctx context.Context, repos repository.Repositories, out *outbox) error {
		now := s.now()

		var err error
		reward, err = repos.Rewards.FindByID(ctx, rewardID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRewardNotFound
		}
		if err != nil {
			return err
		}
		if !reward.AvailableAt(now) {
			return ErrRewardUnavailable
		}

		account, err := repos.Points.FindAccountForUpdate(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInsufficientPoints
		}
		if err != nil {
			return err
		}
		if account.AvailablePoints < reward.PointsCost {
			return ErrInsufficientPoints
		}
		if account.TierLevel < reward.MinTierLevel {
			return ErrTierTooLow
		}
		if reward.MaxPerUser > 0 {
			active, err := repos.Redemptions.CountByUserAndReward(ctx, userID, rewardID, model.RedemptionStatusActive)
			if err != nil {
				return err
			}
			if active >= reward.MaxPerUser {
				return ErrMaxRedemptionsExceeded
			}
		}

		account, err = repos.Points.Debit(ctx, userID, reward.PointsCost)
		if errors.Is(err, repository.ErrConditionFailed) {
			return ErrInsufficientPoints
		}
		if err != nil {
			return err
		}

		tx := &model.PointsTransaction{
			UserID:      userID,
			Type:        model.PointsTxRedemption,
			Points:      -reward.PointsCost,
			Description: "Resgate: " + reward.Name,
			ProductID:   reward.ProductID,
			Metadata:    map[string]interface{}{"reward_id": reward.ID.String()},
			Status:      model.PointsTxStatusCompleted,
			CreatedAt:   now,
		}
		if err := repos.Points.AppendTransaction(ctx, tx); err != nil {
			return err
		}

		redemption := &model.Redemption{
			UserID:     userID,
			RewardID:   reward.ID,
			PointsUsed: reward.PointsCost,
			Status:     model.RedemptionStatusActive,
			RedeemedAt: now,
			ExpiresAt:  reward.ValidTo,
		}
		if err := createRedemptionWithCoupon(ctx, repos, redemption, now); err != nil {
			return err
		}

		out.add(event.RedemptionCreated{
			UserID:       userID,
			RedemptionID: redemption.ID,
			RewardID:     reward.ID,
			RewardName:   reward.Name,
			CouponCode:   redemption.CouponCode,
			PointsUsed:   reward.PointsCost,
			OccurredAt:   now,
		})
		result = &RedeemResult{CouponCode: redemption.CouponCode, Redemption: redemption, Account: account}
		return nil
	})
	if err != nil {
		var rejection *RejectionError
		if errors.As(err, &rejection) {
			metrics.IncRejection("redeem_points", rejection.Code)
		}
		return nil, err
	}

	metrics.AddPointsRedeemed(reward.PointsCost)
	s.logger.Info("points redeemed",
		zap.String("user_id", userID.String()),
		zap.String("reward_id", rewardID.String()),
		zap.Int64("points", reward.PointsCost),
	)
	return result, nil
}

// UseRedemption marks a coupon as consumed. Only the owner or an admin may do it.
func (s *PointsService) UseRedemption(ctx context.Context, identity model.Identity, couponCode string) (*model.Redemption, error) {
	couponCode = strings.ToUpper(strings.TrimSpace(couponCode))
	if couponCode == "" {
		return nil, ErrRedemptionNotFound
	}

	var redemption *model.Redemption
	err := s.withinTx(ctx, "use_redemption", func(ctx context.Context, repos repository.Repositories, _ *outbox) error {
		var err error
		redemption, err = repos.Redemptions.FindByCouponForUpdate(ctx, couponCode)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRedemptionNotFound
		}
		if err != nil {
			return err
		}
		if redemption.UserID != identity.UserID && !identity.IsAdmin() {
			return ErrRedemptionNotFound
		}

		now := s.now()
		if redemption.Status != model.RedemptionStatusActive ||
			(redemption.ExpiresAt != nil && redemption.ExpiresAt.Before(now)) {
			return ErrRedemptionNotActive
		}
		if err := repos.Redemptions.MarkUsed(ctx, redemption.ID, now); err != nil {
			if errors.Is(err, repository.ErrConditionFailed) {
				return ErrRedemptionNotActive
			}
			return err
		}
		redemption.Status = model.RedemptionStatusUsed
		redemption.UsedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return redemption, nil
}

// GetAccount returns the user's balance and tier. Users without an account
// get an empty, unsaved one.
func (s *PointsService) GetAccount(ctx context.Context, userID uuid.UUID) (*AccountSummary, error) {
	if userID == uuid.Nil {
		return nil, ErrInvalidUserID
	}

	account, err := s.repos().Points.FindAccount(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		account = &model.PointsAccount{UserID: userID}
	} else if err != nil {
		return nil, translateStoreError(err)
	}

	level := tier.Level(account.TierLevel)
	return &AccountSummary{
		Account:  account,
		Tier:     tier.Get(level),
		NextTier: tier.Next(level, account.TierProgress),
	}, nil
}

// NextTierInfo is a pure lookup on the ladder.
func (s *PointsService) NextTierInfo(level int, tierProgress int64) tier.NextTierInfo {
	return tier.Next(tier.Level(level), tierProgress)
}

func (s *PointsService) ListTransactions(
	ctx context.Context,
	userID uuid.UUID,
	page, pageSize int,
) ([]*model.PointsTransaction, int64, error) {
	items, total, err := s.repos().Points.ListTransactions(ctx, userID, toRepoPage(page, pageSize))
	if err != nil {
		return nil, 0, translateStoreError(err)
	}
	return items, total, nil
}

func (s *PointsService) ListRedemptions(
	ctx context.Context,
	userID uuid.UUID,
	status *model.RedemptionStatus,
	page, pageSize int,
) ([]*model.Redemption, int64, error) {
	items, total, err := s.repos().Redemptions.ListByUser(ctx, userID, status, toRepoPage(page, pageSize))
	if err != nil {
		return nil, 0, translateStoreError(err)
	}
	return items, total, nil
}

// ListAvailableRewards returns active rewards inside their validity window.
func (s *PointsService) ListAvailableRewards(ctx context.Context) ([]*model.Reward, error) {
	items, _, err := s.repos().Rewards.List(ctx, true, repository.Pagination{Limit: listMaxPageSize})
	if err != nil {
		return nil, translateStoreError(err)
	}

	now := s.now()
	out := make([]*model.Reward, 0, len(items))
	for _, item := range items {
		if item.AvailableAt(now) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *PointsService) ListRewards(ctx context.Context, activeOnly bool, page, pageSize int) ([]*model.Reward, int64, error) {
	items, total, err := s.repos().Rewards.List(ctx, activeOnly, toRepoPage(page, pageSize))
	if err != nil {
		return nil, 0, translateStoreError(err)
	}
	return items, total, nil
}

func (s *PointsService) CreateReward(ctx context.Context, actorID uuid.UUID, input RewardInput) (*model.Reward, error) {
	reward := &model.Reward{IsActive: true}
	if err := applyRewardInput(reward, input); err != nil {
		return nil, err
	}

	if err := s.repos().Rewards.Create(ctx, reward); err != nil {
		return nil, translateStoreError(err)
	}

	s.writeAudit(ctx, &actorID, "reward.create", "reward", reward.ID.String(), map[string]interface{}{
		"name":        reward.Name,
		"points_cost": reward.PointsCost,
	})
	return reward, nil
}

func (s *PointsService) UpdateReward(ctx context.Context, actorID, rewardID uuid.UUID, input RewardInput) (*model.Reward, error) {
	reward, err := s.repos().Rewards.FindByID(ctx, rewardID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRewardNotFound
	}
	if err != nil {
		return nil, translateStoreError(err)
	}

	if err := applyRewardInput(reward, input); err != nil {
		return nil, err
	}
	if err := s.repos().Rewards.Update(ctx, reward); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRewardNotFound
		}
		return nil, translateStoreError(err)
	}

	s.writeAudit(ctx, &actorID, "reward.update", "reward", reward.ID.String(), map[string]interface{}{
		"name":        reward.Name,
		"points_cost": reward.PointsCost,
		"is_active":   reward.IsActive,
	})
	return reward, nil
}

// Reconcile re-derives the balance from completed transactions and compares
// it with the materialized account.
func (s *PointsService) Reconcile(ctx context.Context, userID uuid.UUID) (*ReconcileReport, error) {
	repos := s.repos()

	account, err := repos.Points.FindAccount(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, translateStoreError(err)
	}

	sum, err := repos.Points.SumTransactions(ctx, userID)
	if err != nil {
		return nil, translateStoreError(err)
	}

	balanced := account.TotalPoints == sum.Earned &&
		account.UsedPoints == sum.Spent &&
		account.AvailablePoints == sum.Available() &&
		account.TotalPoints == account.AvailablePoints+account.UsedPoints
	if !balanced {
		s.logger.Error("points ledger out of balance",
			zap.String("user_id", userID.String()),
			zap.Int64("total_points", account.TotalPoints),
			zap.Int64("available_points", account.AvailablePoints),
			zap.Int64("used_points", account.UsedPoints),
			zap.Int64("ledger_earned", sum.Earned),
			zap.Int64("ledger_spent", sum.Spent),
		)
	}

	return &ReconcileReport{UserID: userID, Account: account, Ledger: sum, Balanced: balanced}, nil
}

// ExpireRedemptions flips active redemptions past their expiry to expired.
func (s *PointsService) ExpireRedemptions(ctx context.Context) (int64, error) {
	affected, err := s.repos().Redemptions.ExpireDue(ctx, s.now())
	if err != nil {
		return 0, translateStoreError(err)
	}
	return affected, nil
}

func validateGrant(req GrantRequest) error {
	if req.UserID == uuid.Nil {
		return ErrInvalidUserID
	}
	if !req.Type.Valid() || req.Type == model.PointsTxRedemption {
		return validationError("Tipo de transação inválido")
	}
	if req.Points <= 0 {
		return validationError("Pontos devem ser positivos")
	}
	return nil
}

func purchaseGrant(userID uuid.UUID, orderID string, orderTotal decimal.Decimal) (GrantRequest, bool) {
	base := orderTotal.Mul(decimal.NewFromInt(PointsPerEuro)).Floor().IntPart()
	if base <= 0 {
		return GrantRequest{}, false
	}
	return GrantRequest{
		UserID:         userID,
		Type:           model.PointsTxPurchase,
		Points:         base,
		Description:    "Pontos da compra " + orderID,
		OrderID:        strPtr(orderID),
		IdempotencyKey: strPtr("purchase:" + orderID),
		Metadata:       map[string]interface{}{"order_total": orderTotal.StringFixed(2)},
		scaleByTier:    true,
	}, true
}

func signupGrant(userID uuid.UUID) GrantRequest {
	return GrantRequest{
		UserID:         userID,
		Type:           model.PointsTxSignupBonus,
		Points:         SignupBonusPoints,
		Description:    "Bônus de boas-vindas",
		IdempotencyKey: strPtr("signup:" + userID.String()),
	}
}

// grantPointsTx is the only way points enter an account. It must run inside a
// transaction; the account row is locked first so concurrent grants for the
// same user serialize.
func grantPointsTx(
	ctx context.Context,
	repos repository.Repositories,
	out *outbox,
	req GrantRequest,
	now time.Time,
) (*GrantResult, error) {
	if err := validateGrant(req); err != nil {
		return nil, err
	}

	if err := repos.Points.EnsureAccount(ctx, req.UserID); err != nil {
		return nil, err
	}
	account, err := repos.Points.FindAccountForUpdate(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	points := req.Points
	metadata := req.Metadata
	if req.scaleByTier {
		points = tier.ApplyPoints(tier.Level(account.TierLevel), req.Points)
		if metadata == nil {
			metadata = make(map[string]interface{}, 2)
		}
		metadata["base_points"] = req.Points
		metadata["tier_level"] = account.TierLevel
	}

	tx := &model.PointsTransaction{
		UserID:         req.UserID,
		Type:           req.Type,
		Points:         points,
		Description:    req.Description,
		OrderID:        req.OrderID,
		ProductID:      req.ProductID,
		ReferralID:     req.ReferralID,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       metadata,
		Status:         model.PointsTxStatusCompleted,
		CreatedAt:      now,
	}
	if err := repos.Points.AppendTransaction(ctx, tx); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return &GrantResult{Applied: false, Account: account}, nil
		}
		return nil, err
	}

	var progress int64
	if req.Type.CountsTowardTier() {
		progress = points
	}
	account, err = repos.Points.Credit(ctx, req.UserID, points, progress)
	if err != nil {
		return nil, err
	}

	out.add(event.PointsGranted{
		UserID:          req.UserID,
		TransactionID:   tx.ID,
		TransactionType: tx.Type,
		Points:          points,
		AvailablePoints: account.AvailablePoints,
		Description:     tx.Description,
		OccurredAt:      now,
	})
	metrics.AddPointsGranted(string(tx.Type), points)

	result := &GrantResult{Applied: true, Transaction: tx, Account: account}

	current := tier.Level(account.TierLevel)
	promoted := tier.Promote(current, tier.ForPoints(account.TierProgress))
	if promoted == current {
		return result, nil
	}

	change, account, err := promoteTierTx(ctx, repos, out, req.UserID, current, promoted, now)
	if err != nil {
		return nil, err
	}
	result.Account = account
	result.TierChange = change
	return result, nil
}

// promoteTierTx raises the account tier and books the upgrade bonus of the new
// tier. Bonus points do not count toward tier progress, so a promotion can
// never cascade into another one.
func promoteTierTx(
	ctx context.Context,
	repos repository.Repositories,
	out *outbox,
	userID uuid.UUID,
	from, to tier.Level,
	now time.Time,
) (*TierChange, *model.PointsAccount, error) {
	raised, err := repos.Points.PromoteTier(ctx, userID, int(to))
	if err != nil {
		return nil, nil, err
	}

	account, err := repos.Points.FindAccountForUpdate(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if !raised {
		return nil, account, nil
	}

	target := tier.Get(to)
	change := &TierChange{From: from, To: to}

	if target.UpgradeBonus > 0 {
		bonus := &model.PointsTransaction{
			UserID:         userID,
			Type:           model.PointsTxTierBonus,
			Points:         target.UpgradeBonus,
			Description:    fmt.Sprintf("Bônus de promoção para %s", target.Name),
			IdempotencyKey: strPtr(fmt.Sprintf("tier:%s:%d", userID, to)),
			Metadata:       map[string]interface{}{"from_level": int(from), "to_level": int(to)},
			Status:         model.PointsTxStatusCompleted,
			CreatedAt:      now,
		}
		err := repos.Points.AppendTransaction(ctx, bonus)
		switch {
		case err == nil:
			account, err = repos.Points.Credit(ctx, userID, target.UpgradeBonus, 0)
			if err != nil {
				return nil, nil, err
			}
			change.BonusPoints = target.UpgradeBonus
			metrics.AddPointsGranted(string(model.PointsTxTierBonus), target.UpgradeBonus)
		case errors.Is(err, repository.ErrDuplicate):
		default:
			return nil, nil, err
		}
	}

	out.add(event.TierUpgraded{
		UserID:      userID,
		FromLevel:   int(from),
		ToLevel:     int(to),
		TierName:    target.Name,
		BonusPoints: change.BonusPoints,
		OccurredAt:  now,
	})
	metrics.IncTierUpgrade(target.Name)
	return change, account, nil
}

func debitAdjustmentTx(
	ctx context.Context,
	repos repository.Repositories,
	userID uuid.UUID,
	points int64,
	reason string,
	actorID uuid.UUID,
	now time.Time,
) (*GrantResult, error) {
	if _, err := repos.Points.FindAccountForUpdate(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInsufficientPoints
		}
		return nil, err
	}

	account, err := repos.Points.Debit(ctx, userID, points)
	if errors.Is(err, repository.ErrConditionFailed) {
		return nil, ErrInsufficientPoints
	}
	if err != nil {
		return nil, err
	}

	tx := &model.PointsTransaction{
		UserID:      userID,
		Type:        model.PointsTxAdminAdjustment,
		Points:      -points,
		Description: reason,
		Metadata:    map[string]interface{}{"actor_id": actorID.String()},
		Status:      model.PointsTxStatusCompleted,
		CreatedAt:   now,
	}
	if err := repos.Points.AppendTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return &GrantResult{Applied: true, Transaction: tx, Account: account}, nil
}

// createRedemptionWithCoupon retries on the rare coupon collision. Inserts
// report collisions as ErrDuplicate without aborting the transaction.
func createRedemptionWithCoupon(ctx context.Context, repos repository.Repositories, redemption *model.Redemption, now time.Time) error {
	for attempt := 0; attempt < maxCouponAttempts; attempt++ {
		suffix, err := randomCode(couponRandomLength)
		if err != nil {
			return err
		}
		redemption.CouponCode = "PTS" + strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36)) + suffix

		err = repos.Redemptions.Create(ctx, redemption)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return err
		}
		redemption.ID = uuid.Nil
	}
	return errors.New("could not allocate a unique coupon code")
}

func applyRewardInput(reward *model.Reward, input RewardInput) error {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return validationError("Nome obrigatório")
	}
	if !input.Type.Valid() {
		return validationError("Tipo de recompensa inválido")
	}
	if input.PointsCost <= 0 {
		return validationError("Custo em pontos deve ser positivo")
	}
	if input.Value.IsNegative() {
		return validationError("Valor inválido")
	}
	if !tier.Level(input.MinTierLevel).Valid() {
		return validationError("Nível mínimo inválido")
	}
	if input.MaxPerUser < 0 {
		return validationError("Limite por usuário inválido")
	}
	if input.ValidFrom != nil && input.ValidTo != nil && input.ValidTo.Before(*input.ValidFrom) {
		return validationError("Período de validade inválido")
	}

	reward.Name = name
	reward.Description = input.Description
	reward.Type = input.Type
	reward.Value = input.Value
	reward.ProductID = input.ProductID
	reward.PointsCost = input.PointsCost
	reward.MinTierLevel = input.MinTierLevel
	reward.MaxPerUser = input.MaxPerUser
	reward.ValidFrom = input.ValidFrom
	reward.ValidTo = input.ValidTo
	if input.IsActive != nil {
		reward.IsActive = *input.IsActive
	}
	return nil
}
