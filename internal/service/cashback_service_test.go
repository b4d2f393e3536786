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

func requestTestPayout(t *testing.T, l *testLedger, userID uuid.UUID, amount string) *model.CashbackPayout {
	t.Helper()

	payout, err := l.cashback.RequestPayout(context.Background(), PayoutRequest{
		UserID: userID,
		Amount: decimal.RequireFromString(amount),
		Method: model.PayoutMethodStoreCredit,
	})
	if err != nil {
		t.Fatalf("RequestPayout returned error: %v", err)
	}
	return payout
}

func TestRequestPayout_InsufficientCashbackPersistsNothing(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()
	userID := uuid.New()
	l.seedCashback(t, userID, "25.00")

	_, err := l.cashback.RequestPayout(ctx, PayoutRequest{
		UserID: userID,
		Amount: decimal.NewFromInt(30),
		Method: model.PayoutMethodStoreCredit,
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	payouts, total, err := l.cashback.ListPayouts(ctx, &userID, nil, 1, 20)
	if err != nil {
		t.Fatalf("ListPayouts returned error: %v", err)
	}
	if total != 0 || len(payouts) != 0 {
		t.Fatalf("rejected request must not persist a payout, got %d", total)
	}
	if len(l.publisher.ofType(event.TypePayoutRequested)) != 0 {
		t.Fatalf("rejected request must not publish events")
	}
}

func TestRequestPayout_UnknownUserHasNoCashback(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	_, err := l.cashback.RequestPayout(context.Background(), PayoutRequest{
		UserID: uuid.New(),
		Amount: decimal.NewFromInt(30),
		Method: model.PayoutMethodStoreCredit,
	})
	if !errors.Is(err, ErrInsufficientCashback) {
		t.Fatalf("expected ErrInsufficientCashback, got %v", err)
	}
}

func TestRequestPayout_ValidatesInput(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()
	userID := uuid.New()
	l.seedCashback(t, userID, "100")

	_, err := l.cashback.RequestPayout(ctx, PayoutRequest{
		UserID: userID,
		Amount: decimal.RequireFromString("24.99"),
		Method: model.PayoutMethodStoreCredit,
	})
	if !errors.Is(err, ErrValidation) || Code(err) != "payout_below_minimum" {
		t.Fatalf("expected payout_below_minimum validation error, got %v", err)
	}
	if got := Reason(err); got != "Valor mínimo para saque é €25.00" {
		t.Fatalf("unexpected reason %q", got)
	}

	_, err = l.cashback.RequestPayout(ctx, PayoutRequest{
		UserID: userID,
		Amount: decimal.NewFromInt(30),
		Method: model.PayoutMethod("cheque"),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown method, got %v", err)
	}

	_, err = l.cashback.RequestPayout(ctx, PayoutRequest{
		UserID: userID,
		Amount: decimal.NewFromInt(30),
		Method: model.PayoutMethodBankTransfer,
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for missing iban, got %v", err)
	}

	payout, err := l.cashback.RequestPayout(ctx, PayoutRequest{
		UserID:      userID,
		Amount:      decimal.NewFromInt(30),
		Method:      model.PayoutMethodBankTransfer,
		BankDetails: map[string]string{"iban": "PT50000201231234567890154"},
	})
	if err != nil {
		t.Fatalf("RequestPayout returned error: %v", err)
	}
	if payout.Status != model.PayoutStatusRequested {
		t.Fatalf("unexpected status %s", payout.Status)
	}
}

func TestRequestPayout_OpenPayoutsReserveBalance(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()
	userID := uuid.New()
	l.seedCashback(t, userID, "60")

	requestTestPayout(t, l, userID, "40")

	_, err := l.cashback.RequestPayout(ctx, PayoutRequest{
		UserID: userID,
		Amount: decimal.NewFromInt(25),
		Method: model.PayoutMethodStoreCredit,
	})
	if !errors.Is(err, ErrInsufficientCashback) {
		t.Fatalf("expected ErrInsufficientCashback, got %v", err)
	}

	balance, err := l.cashback.GetBalance(ctx, userID)
	if err != nil {
		t.Fatalf("GetBalance returned error: %v", err)
	}
	if !balance.Available.Equal(decimal.NewFromInt(60)) || !balance.Pending.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("unexpected balance %+v", balance)
	}
	if !balance.Withdrawable.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected 20 withdrawable, got %s", balance.Withdrawable)
	}
}

func TestPayoutLifecycle_PaidDebitsCashback(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()
	userID := uuid.New()
	adminID := uuid.New()
	l.seedCashback(t, userID, "25.00")

	payout := requestTestPayout(t, l, userID, "25.00")

	approved, err := l.cashback.Approve(ctx, adminID, payout.ID)
	if err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}
	if approved.Status != model.PayoutStatusApproved || approved.ReviewedBy == nil || *approved.ReviewedBy != adminID {
		t.Fatalf("unexpected approved payout %+v", approved)
	}

	paid, err := l.cashback.MarkPaid(ctx, adminID, payout.ID)
	if err != nil {
		t.Fatalf("MarkPaid returned error: %v", err)
	}
	if paid.Status != model.PayoutStatusPaid || paid.PaidAt == nil {
		t.Fatalf("unexpected paid payout %+v", paid)
	}

	balance, err := l.cashback.GetBalance(ctx, userID)
	if err != nil {
		t.Fatalf("GetBalance returned error: %v", err)
	}
	if !balance.Available.IsZero() || !balance.Pending.IsZero() {
		t.Fatalf("expected empty balance after payment, got %+v", balance)
	}

	if _, err := l.cashback.Reject(ctx, adminID, payout.ID, "tarde demais"); !errors.Is(err, ErrPayoutInvalidTransition) {
		t.Fatalf("expected ErrPayoutInvalidTransition, got %v", err)
	}

	changes := l.publisher.ofType(event.TypePayoutStatusChanged)
	if len(changes) != 2 {
		t.Fatalf("expected two status change events, got %d", len(changes))
	}
}

func TestPayoutLifecycle_RejectReleasesReservation(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()
	userID := uuid.New()
	adminID := uuid.New()
	l.seedCashback(t, userID, "30")

	payout := requestTestPayout(t, l, userID, "30")

	if _, err := l.cashback.Reject(ctx, adminID, payout.ID, " "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for blank reason, got %v", err)
	}
	if _, err := l.cashback.MarkPaid(ctx, adminID, payout.ID); !errors.Is(err, ErrPayoutInvalidTransition) {
		t.Fatalf("requested payouts cannot be paid directly, got %v", err)
	}

	rejected, err := l.cashback.Reject(ctx, adminID, payout.ID, "dados inválidos")
	if err != nil {
		t.Fatalf("Reject returned error: %v", err)
	}
	if rejected.RejectReason == nil || *rejected.RejectReason != "dados inválidos" {
		t.Fatalf("unexpected rejected payout %+v", rejected)
	}

	requestTestPayout(t, l, userID, "30")
}

func TestGetPayout_HidesOtherUsersPayouts(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()
	userID := uuid.New()
	l.seedCashback(t, userID, "50")
	payout := requestTestPayout(t, l, userID, "50")

	owner := model.Identity{UserID: userID, Role: model.UserRoleUser}
	if _, err := l.cashback.GetPayout(ctx, owner, payout.ID); err != nil {
		t.Fatalf("owner GetPayout returned error: %v", err)
	}

	stranger := model.Identity{UserID: uuid.New(), Role: model.UserRoleUser}
	if _, err := l.cashback.GetPayout(ctx, stranger, payout.ID); !errors.Is(err, ErrPayoutNotFound) {
		t.Fatalf("expected ErrPayoutNotFound, got %v", err)
	}

	admin := model.Identity{UserID: uuid.New(), Role: model.UserRoleAdmin}
	if _, err := l.cashback.GetPayout(ctx, admin, payout.ID); err != nil {
		t.Fatalf("admin GetPayout returned error: %v", err)
	}
}
