package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"loyalty-hub/internal/event"
	"loyalty-hub/internal/metrics"
	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

type OrderOutcome struct {
	// Duplicate is set when the order was already processed; nothing changed.
	Duplicate bool              `json:"duplicate"`
	Points    *GrantResult      `json:"points,omitempty"`
	Referral  *CompletionResult `json:"referral,omitempty"`
}

type RegistrationOutcome struct {
	Signup   *GrantResult    `json:"signup"`
	Referral *model.Referral `json:"referral,omitempty"`
	// ReferralRejected carries the reason a supplied referral code was not applied.
	ReferralRejected string `json:"referral_rejected,omitempty"`
}

// OrderService turns inbound storefront triggers into ledger operations.
type OrderService struct {
	ledger
}

func NewOrderService(store repository.Store, publisher event.Publisher, logger *zap.Logger) *OrderService {
	return &OrderService{ledger: newLedger(store, publisher, logger)}
}

// HandleOrderConfirmed records the order, grants purchase points and completes
// the buyer's pending referral, all in one transaction. Redelivery of the same
// order is a no-op.
func (s *OrderService) HandleOrderConfirmed(ctx context.Context, evt event.OrderConfirmed) (*OrderOutcome, error) {
	if err := evt.Validate(); err != nil {
		return nil, validationError(err.Error())
	}

	outcome := &OrderOutcome{}
	err := s.withinTx(ctx, "order_confirmed", func(ctx context.Context, repos repository.Repositories, out *outbox) error {
		*outcome = OrderOutcome{}
		now := s.now()

		err := repos.Orders.Record(ctx, &model.ConfirmedOrder{
			OrderID:     evt.OrderID,
			UserID:      evt.UserID,
			OrderTotal:  evt.OrderTotal,
			ConfirmedAt: now,
		})
		if errors.Is(err, repository.ErrDuplicate) {
			outcome.Duplicate = true
			return nil
		}
		if err != nil {
			return err
		}

		if req, ok := purchaseGrant(evt.UserID, evt.OrderID, evt.OrderTotal); ok {
			outcome.Points, err = grantPointsTx(ctx, repos, out, req, now)
			if err != nil {
				return fmt.Errorf("grant purchase points: %w", err)
			}
		}

		outcome.Referral, err = completeReferralForRefereeTx(ctx, repos, out, evt.UserID, evt.OrderID, evt.OrderTotal, now)
		if err != nil {
			return fmt.Errorf("complete referral: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("order confirmed trigger failed",
			zap.String("order_id", evt.OrderID),
			zap.String("user_id", evt.UserID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	if outcome.Referral != nil && outcome.Referral.Applied {
		metrics.IncReferralCompleted()
	}
	s.logger.Info("order confirmed processed",
		zap.String("order_id", evt.OrderID),
		zap.String("user_id", evt.UserID.String()),
		zap.Bool("duplicate", outcome.Duplicate),
	)
	return outcome, nil
}

// HandleUserRegistered grants the signup bonus and attributes the referral, if
// a code was supplied. A bad referral code does not fail the signup.
func (s *OrderService) HandleUserRegistered(ctx context.Context, evt event.UserRegistered) (*RegistrationOutcome, error) {
	if err := evt.Validate(); err != nil {
		return nil, validationError(err.Error())
	}

	outcome := &RegistrationOutcome{}
	err := s.withinTx(ctx, "signup_bonus", func(ctx context.Context, repos repository.Repositories, out *outbox) error {
		var err error
		outcome.Signup, err = grantPointsTx(ctx, repos, out, signupGrant(evt.UserID), s.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	if evt.ReferralCode == nil {
		return outcome, nil
	}

	input := ProcessReferralInput{
		Code:      *evt.ReferralCode,
		RefereeID: evt.UserID,
		IPAddress: evt.IPAddress,
		UserAgent: evt.UserAgent,
		Source:    evt.Source,
	}
	err = s.withinTx(ctx, "process_referral", func(ctx context.Context, repos repository.Repositories, _ *outbox) error {
		var err error
		outcome.Referral, err = processReferralTx(ctx, repos, normalizeReferralCode(input.Code), input, s.now())
		return err
	})

	var rejection *RejectionError
	switch {
	case err == nil:
	case errors.As(err, &rejection):
		metrics.IncRejection("process_referral", rejection.Code)
		outcome.Referral = nil
		outcome.ReferralRejected = rejection.Reason
		s.logger.Info("referral code not applied at signup",
			zap.String("user_id", evt.UserID.String()),
			zap.String("code", *evt.ReferralCode),
			zap.String("reason", rejection.Code),
		)
	default:
		return nil, err
	}
	return outcome, nil
}
