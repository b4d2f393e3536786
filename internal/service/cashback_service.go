package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"loyalty-hub/internal/event"
	"loyalty-hub/internal/metrics"
	"loyalty-hub/internal/model"
	"loyalty-hub/internal/repository"
)

var DefaultMinPayout = decimal.NewFromInt(25)

type PayoutRequest struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	Method      model.PayoutMethod
	BankDetails map[string]string
}

type CashbackBalance struct {
	Available decimal.Decimal `json:"available"`
	Pending   decimal.Decimal `json:"pending"`
	// Withdrawable is what a new payout request may ask for right now.
	Withdrawable decimal.Decimal `json:"withdrawable"`
	MinPayout    decimal.Decimal `json:"min_payout"`
}

type CashbackService struct {
	ledger
	minPayout decimal.Decimal
}

func NewCashbackService(
	store repository.Store,
	publisher event.Publisher,
	minPayout decimal.Decimal,
	logger *zap.Logger,
) *CashbackService {
	if !minPayout.IsPositive() {
		minPayout = DefaultMinPayout
	}
	return &CashbackService{
		ledger:    newLedger(store, publisher, logger),
		minPayout: minPayout,
	}
}

func (s *CashbackService) GetBalance(ctx context.Context, userID uuid.UUID) (*CashbackBalance, error) {
	repos := s.repos()

	available := decimal.Zero
	stats, err := repos.Stats.FindByUser(ctx, userID)
	switch {
	case err == nil:
		available = stats.AvailableCashback
	case !errors.Is(err, repository.ErrNotFound):
		return nil, translateStoreError(err)
	}

	pending, err := repos.Payouts.SumOpenByUser(ctx, userID)
	if err != nil {
		return nil, translateStoreError(err)
	}

	withdrawable := available.Sub(pending)
	if withdrawable.IsNegative() {
		withdrawable = decimal.Zero
	}
	return &CashbackBalance{
		Available:    available,
		Pending:      pending,
		Withdrawable: withdrawable,
		MinPayout:    s.minPayout,
	}, nil
}

// RequestPayout opens a payout. Open payouts reserve cashback, so the sum of
// open requests never exceeds the available balance. A rejected request
// persists nothing.
func (s *CashbackService) RequestPayout(ctx context.Context, req PayoutRequest) (*model.CashbackPayout, error) {
	if req.UserID == uuid.Nil {
		return nil, ErrInvalidUserID
	}
	if !req.Method.Valid() {
		return nil, validationError("Método de pagamento inválido")
	}
	amount := req.Amount.Round(2)
	if amount.LessThan(s.minPayout) {
		return nil, reject(ErrValidation, ErrPayoutBelowMinimum.Code,
			"Valor mínimo para saque é €"+s.minPayout.StringFixed(2))
	}
	if err := validateBankDetails(req.Method, req.BankDetails); err != nil {
		return nil, err
	}

	var payout *model.CashbackPayout
	err := s.withinTx(ctx, "request_payout", func(ctx context.Context, repos repository.Repositories, out *outbox) error {
		stats, err := repos.Stats.FindByUserForUpdate(ctx, req.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInsufficientCashback
		}
		if err != nil {
			return err
		}

		open, err := repos.Payouts.SumOpenByUser(ctx, req.UserID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(stats.AvailableCashback.Sub(open)) {
			return ErrInsufficientCashback
		}

		now := s.now()
		payout = &model.CashbackPayout{
			UserID:      req.UserID,
			Amount:      amount,
			Method:      req.Method,
			BankDetails: req.BankDetails,
			Status:      model.PayoutStatusRequested,
			RequestedAt: now,
		}
		if err := repos.Payouts.Create(ctx, payout); err != nil {
			return err
		}

		out.add(event.PayoutRequested{
			UserID:     req.UserID,
			PayoutID:   payout.ID,
			Amount:     amount,
			Method:     req.Method,
			OccurredAt: now,
		})
		return nil
	})
	if err != nil {
		var rejection *RejectionError
		if errors.As(err, &rejection) {
			metrics.IncRejection("request_payout", rejection.Code)
		}
		return nil, err
	}

	metrics.IncPayoutTransition(string(model.PayoutStatusRequested))
	s.logger.Info("cashback payout requested",
		zap.String("user_id", req.UserID.String()),
		zap.String("payout_id", payout.ID.String()),
		zap.String("amount", amount.StringFixed(2)),
	)
	return payout, nil
}

func (s *CashbackService) Approve(ctx context.Context, actorID, payoutID uuid.UUID) (*model.CashbackPayout, error) {
	return s.transition(ctx, actorID, payoutID, model.PayoutStatusApproved, "")
}

func (s *CashbackService) Reject(ctx context.Context, actorID, payoutID uuid.UUID, reason string) (*model.CashbackPayout, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationError("Motivo obrigatório")
	}
	return s.transition(ctx, actorID, payoutID, model.PayoutStatusRejected, reason)
}

// MarkPaid debits available cashback in the same transaction that closes the payout.
func (s *CashbackService) MarkPaid(ctx context.Context, actorID, payoutID uuid.UUID) (*model.CashbackPayout, error) {
	return s.transition(ctx, actorID, payoutID, model.PayoutStatusPaid, "")
}

func (s *CashbackService) transition(
	ctx context.Context,
	actorID uuid.UUID,
	payoutID uuid.UUID,
	to model.PayoutStatus,
	reason string,
) (*model.CashbackPayout, error) {
	var payout *model.CashbackPayout
	var from model.PayoutStatus

	err := s.withinTx(ctx, "payout_"+string(to), func(ctx context.Context, repos repository.Repositories, out *outbox) error {
		var err error
		payout, err = repos.Payouts.FindByIDForUpdate(ctx, payoutID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPayoutNotFound
		}
		if err != nil {
			return err
		}

		from = payout.Status
		if !from.CanTransition(to) {
			return ErrPayoutInvalidTransition
		}

		now := s.now()
		payout.Status = to
		switch to {
		case model.PayoutStatusApproved:
			payout.ReviewedBy = &actorID
			payout.ReviewedAt = &now
		case model.PayoutStatusRejected:
			payout.ReviewedBy = &actorID
			payout.ReviewedAt = &now
			payout.RejectReason = &reason
		case model.PayoutStatusPaid:
			if payout.ReviewedBy == nil {
				payout.ReviewedBy = &actorID
				payout.ReviewedAt = &now
			}
			payout.PaidAt = &now
			if err := repos.Stats.DebitCashback(ctx, payout.UserID, payout.Amount); err != nil {
				if errors.Is(err, repository.ErrConditionFailed) || errors.Is(err, repository.ErrNotFound) {
					return ErrInsufficientCashback
				}
				return err
			}
		}

		if err := repos.Payouts.UpdateStatus(ctx, payout, from); err != nil {
			if errors.Is(err, repository.ErrConditionFailed) {
				return ErrPayoutInvalidTransition
			}
			return err
		}

		out.add(event.PayoutStatusChanged{
			UserID:     payout.UserID,
			PayoutID:   payout.ID,
			From:       from,
			To:         to,
			Amount:     payout.Amount,
			Reason:     reason,
			OccurredAt: now,
		})
		return auditInTx(ctx, repos, &actorID, "payout."+string(to), "cashback_payout", payout.ID.String(), map[string]interface{}{
			"from":   string(from),
			"to":     string(to),
			"amount": payout.Amount.StringFixed(2),
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.IncPayoutTransition(string(to))
	s.logger.Info("cashback payout transitioned",
		zap.String("payout_id", payout.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return payout, nil
}

func (s *CashbackService) ListPayouts(
	ctx context.Context,
	userID *uuid.UUID,
	status *model.PayoutStatus,
	page, pageSize int,
) ([]*model.CashbackPayout, int64, error) {
	items, total, err := s.repos().Payouts.List(ctx, repository.PayoutListFilter{
		UserID:     userID,
		Status:     status,
		Pagination: toRepoPage(page, pageSize),
	})
	if err != nil {
		return nil, 0, translateStoreError(err)
	}
	return items, total, nil
}

// GetPayout hides other users' payouts from non-admins.
func (s *CashbackService) GetPayout(ctx context.Context, identity model.Identity, payoutID uuid.UUID) (*model.CashbackPayout, error) {
	payout, err := s.repos().Payouts.FindByID(ctx, payoutID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPayoutNotFound
	}
	if err != nil {
		return nil, translateStoreError(err)
	}
	if payout.UserID != identity.UserID && !identity.IsAdmin() {
		return nil, ErrPayoutNotFound
	}
	return payout, nil
}

func validateBankDetails(method model.PayoutMethod, details map[string]string) error {
	required := ""
	switch method {
	case model.PayoutMethodBankTransfer:
		required = "iban"
	case model.PayoutMethodPix:
		required = "pix_key"
	case model.PayoutMethodPayPal:
		required = "email"
	}
	if required == "" {
		return nil
	}
	if strings.TrimSpace(details[required]) == "" {
		return validationError("Dados bancários incompletos: " + required)
	}
	return nil
}
