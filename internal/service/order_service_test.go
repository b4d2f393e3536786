package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loyalty-hub/internal/event"
	"loyalty-hub/internal/model"
)

func TestHandleOrderConfirmed_GrantsPointsAndCompletesReferral(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()
	referrerID := uuid.New()
	buyerID := uuid.New()

	code := createTestCode(t, l, referrerID, CreateReferralCodeOptions{})
	processTestReferral(t, l, code.Code, buyerID)

	evt := event.OrderConfirmed{OrderID: " ord-1001 ", UserID: buyerID, OrderTotal: decimal.RequireFromString("49.90")}
	outcome, err := l.orders.HandleOrderConfirmed(ctx, evt)
	if err != nil {
		t.Fatalf("HandleOrderConfirmed returned error: %v", err)
	}
	if outcome.Duplicate {
		t.Fatalf("first delivery must not be a duplicate")
	}
	if outcome.Points == nil || outcome.Points.Transaction.Points != 499 {
		t.Fatalf("expected 499 purchase points, got %+v", outcome.Points)
	}
	if outcome.Referral == nil || !outcome.Referral.Applied {
		t.Fatalf("expected referral completion, got %+v", outcome.Referral)
	}
	if got := *outcome.Referral.Referral.OrderID; got != "ord-1001" {
		t.Fatalf("expected trimmed order id on referral, got %q", got)
	}

	replay, err := l.orders.HandleOrderConfirmed(ctx, evt)
	if err != nil {
		t.Fatalf("replay returned error: %v", err)
	}
	if !replay.Duplicate || replay.Points != nil || replay.Referral != nil {
		t.Fatalf("replay must be a no-op, got %+v", replay)
	}

	if account := l.account(t, buyerID); account.AvailablePoints != 499 {
		t.Fatalf("expected 499 points after replay, got %d", account.AvailablePoints)
	}
	balance, err := l.cashback.GetBalance(ctx, referrerID)
	if err != nil {
		t.Fatalf("GetBalance returned error: %v", err)
	}
	if !balance.Available.Equal(decimal.RequireFromString("4.99")) {
		t.Fatalf("expected referrer cashback 4.99, got %s", balance.Available)
	}
	if got := len(l.publisher.ofType(event.TypeReferralCompleted)); got != 1 {
		t.Fatalf("expected one referral_completed event, got %d", got)
	}
}

func TestHandleOrderConfirmed_SecondOrderDoesNotRewardReferralAgain(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()
	buyerID := uuid.New()
	code := createTestCode(t, l, uuid.New(), CreateReferralCodeOptions{})
	processTestReferral(t, l, code.Code, buyerID)

	for _, orderID := range []string{"ord-1", "ord-2"} {
		outcome, err := l.orders.HandleOrderConfirmed(ctx, event.OrderConfirmed{
			OrderID: orderID, UserID: buyerID, OrderTotal: decimal.NewFromInt(20),
		})
		if err != nil {
			t.Fatalf("HandleOrderConfirmed(%s) returned error: %v", orderID, err)
		}
		if orderID == "ord-2" && outcome.Referral != nil {
			t.Fatalf("only the first order completes the referral")
		}
	}

	if account := l.account(t, buyerID); account.AvailablePoints != 400 {
		t.Fatalf("expected 400 points, got %d", account.AvailablePoints)
	}
}

func TestHandleOrderConfirmed_RejectsInvalidPayload(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	_, err := l.orders.HandleOrderConfirmed(context.Background(), event.OrderConfirmed{
		OrderID: "ord-1", UserID: uuid.New(), OrderTotal: decimal.NewFromInt(-5),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestHandleUserRegistered_GrantsSignupAndAttributesReferral(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()
	referrerID := uuid.New()
	code := createTestCode(t, l, referrerID, CreateReferralCodeOptions{})

	userID := uuid.New()
	supplied := " " + code.Code + " "
	outcome, err := l.orders.HandleUserRegistered(ctx, event.UserRegistered{UserID: userID, ReferralCode: &supplied})
	if err != nil {
		t.Fatalf("HandleUserRegistered returned error: %v", err)
	}
	if !outcome.Signup.Applied || outcome.Signup.Transaction.Points != SignupBonusPoints {
		t.Fatalf("unexpected signup grant %+v", outcome.Signup)
	}
	if outcome.Referral == nil || outcome.Referral.ReferrerID != referrerID || outcome.Referral.Status != model.ReferralStatusPending {
		t.Fatalf("unexpected referral %+v", outcome.Referral)
	}

	replay, err := l.orders.HandleUserRegistered(ctx, event.UserRegistered{UserID: userID})
	if err != nil {
		t.Fatalf("replay returned error: %v", err)
	}
	if replay.Signup.Applied {
		t.Fatalf("signup bonus must be granted once")
	}
	if account := l.account(t, userID); account.AvailablePoints != SignupBonusPoints {
		t.Fatalf("expected %d points, got %d", SignupBonusPoints, account.AvailablePoints)
	}
}

func TestHandleUserRegistered_BadCodeDoesNotFailSignup(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	userID := uuid.New()
	bogus := "NOPE9999"

	outcome, err := l.orders.HandleUserRegistered(context.Background(), event.UserRegistered{UserID: userID, ReferralCode: &bogus})
	if err != nil {
		t.Fatalf("HandleUserRegistered returned error: %v", err)
	}
	if outcome.Referral != nil {
		t.Fatalf("bogus code must not attribute a referral")
	}
	if outcome.ReferralRejected != Reason(ErrReferralCodeNotFound) {
		t.Fatalf("unexpected rejection reason %q", outcome.ReferralRejected)
	}
	if account := l.account(t, userID); account.AvailablePoints != SignupBonusPoints {
		t.Fatalf("signup bonus must still be granted, got %d", account.AvailablePoints)
	}
}
