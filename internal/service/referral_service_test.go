package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loyalty-hub/internal/event"
	"loyalty-hub/internal/model"
)

func createTestCode(t *testing.T, l *testLedger, referrerID uuid.UUID, opts CreateReferralCodeOptions) *model.ReferralCode {
	t.Helper()

	code, err := l.referrals.CreateCode(context.Background(), referrerID, opts)
	if err != nil {
		t.Fatalf("CreateCode returned error: %v", err)
	}
	return code
}

func processTestReferral(t *testing.T, l *testLedger, code string, refereeID uuid.UUID) *model.Referral {
	t.Helper()

	referral, err := l.referrals.ProcessReferral(context.Background(), ProcessReferralInput{Code: code, RefereeID: refereeID})
	if err != nil {
		t.Fatalf("ProcessReferral returned error: %v", err)
	}
	return referral
}

func TestCreateCode_AppliesDefaults(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	code := createTestCode(t, l, uuid.New(), CreateReferralCodeOptions{})

	if len(code.Code) != referralCodeLength {
		t.Fatalf("expected %d-character code, got %q", referralCodeLength, code.Code)
	}
	if code.ReferrerRewardType != model.ReferralRewardCashback || !code.ReferrerRewardValue.Equal(decimal.RequireFromString("0.10")) {
		t.Fatalf("unexpected referrer terms %s %s", code.ReferrerRewardType, code.ReferrerRewardValue)
	}
	if code.RefereeRewardType != model.ReferralRewardPercentage || !code.RefereeRewardValue.Equal(decimal.RequireFromString("0.05")) {
		t.Fatalf("unexpected referee terms %s %s", code.RefereeRewardType, code.RefereeRewardValue)
	}
	if code.MaxUses != 100 || code.CurrentUses != 0 || !code.IsActive || code.ValidTo != nil {
		t.Fatalf("unexpected code %+v", code)
	}
}

func TestCreateCode_OneActiveCodePerUser(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()
	userID := uuid.New()

	first := createTestCode(t, l, userID, CreateReferralCodeOptions{})
	if _, err := l.referrals.CreateCode(ctx, userID, CreateReferralCodeOptions{}); !errors.Is(err, ErrDuplicateActiveCode) {
		t.Fatalf("expected ErrDuplicateActiveCode, got %v", err)
	}

	identity := model.Identity{UserID: userID, Role: model.UserRoleUser}
	if err := l.referrals.DeactivateCode(ctx, identity, first.ID); err != nil {
		t.Fatalf("DeactivateCode returned error: %v", err)
	}
	createTestCode(t, l, userID, CreateReferralCodeOptions{})
}

func TestCreateCode_ReplacesLapsedActiveCode(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()
	userID := uuid.New()

	validTo := time.Now().Add(time.Hour)
	first := createTestCode(t, l, userID, CreateReferralCodeOptions{ValidTo: &validTo})
	if _, err := l.referrals.CreateCode(ctx, userID, CreateReferralCodeOptions{}); !errors.Is(err, ErrDuplicateActiveCode) {
		t.Fatalf("expected ErrDuplicateActiveCode before expiry, got %v", err)
	}

	// The expiry job has not run yet, so the first code is still flagged active.
	l.referrals.now = func() time.Time { return validTo.Add(time.Minute) }
	second := createTestCode(t, l, userID, CreateReferralCodeOptions{})
	if second.ID == first.ID || !second.IsActive {
		t.Fatalf("expected a new active code, got %+v", second)
	}

	old, err := l.referrals.repos().ReferralCodes.FindByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if old.IsActive {
		t.Fatal("expected lapsed code to be deactivated")
	}
	active, err := l.referrals.repos().ReferralCodes.FindActiveByReferrer(ctx, userID)
	if err != nil {
		t.Fatalf("FindActiveByReferrer returned error: %v", err)
	}
	if active.ID != second.ID {
		t.Fatalf("expected %s to be the active code, got %s", second.ID, active.ID)
	}
}

func TestCreateCode_CustomCode(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()

	custom := "  maria-2026 "
	code := createTestCode(t, l, uuid.New(), CreateReferralCodeOptions{CustomCode: &custom})
	if code.Code != "MARIA-2026" {
		t.Fatalf("expected upper-cased custom code, got %q", code.Code)
	}

	if _, err := l.referrals.CreateCode(ctx, uuid.New(), CreateReferralCodeOptions{CustomCode: &custom}); !errors.Is(err, ErrReferralCodeTaken) {
		t.Fatalf("expected ErrReferralCodeTaken, got %v", err)
	}

	invalid := "a!"
	if _, err := l.referrals.CreateCode(ctx, uuid.New(), CreateReferralCodeOptions{CustomCode: &invalid}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestDeactivateCode_RequiresOwnerOrAdmin(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()
	code := createTestCode(t, l, uuid.New(), CreateReferralCodeOptions{})

	stranger := model.Identity{UserID: uuid.New(), Role: model.UserRoleUser}
	if err := l.referrals.DeactivateCode(ctx, stranger, code.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	admin := model.Identity{UserID: uuid.New(), Role: model.UserRoleAdmin}
	if err := l.referrals.DeactivateCode(ctx, admin, code.ID); err != nil {
		t.Fatalf("admin DeactivateCode returned error: %v", err)
	}
	if _, err := l.referrals.ValidateCode(ctx, code.Code); !errors.Is(err, ErrReferralCodeInactive) {
		t.Fatalf("expected ErrReferralCodeInactive, got %v", err)
	}
}

func TestValidateCode_ReportsFirstFailingCheck(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.referrals.ValidateCode(ctx, "NOPE1234"); !errors.Is(err, ErrReferralCodeNotFound) {
		t.Fatalf("expected ErrReferralCodeNotFound, got %v", err)
	}

	one := 1
	code := createTestCode(t, l, uuid.New(), CreateReferralCodeOptions{MaxUses: &one})
	terms, err := l.referrals.ValidateCode(ctx, code.Code)
	if err != nil {
		t.Fatalf("ValidateCode returned error: %v", err)
	}
	if terms.RefereeRewardType != model.ReferralRewardPercentage {
		t.Fatalf("expected reward terms on success, got %+v", terms)
	}

	processTestReferral(t, l, code.Code, uuid.New())
	if _, err := l.referrals.ValidateCode(ctx, code.Code); !errors.Is(err, ErrReferralCodeExhausted) {
		t.Fatalf("expected ErrReferralCodeExhausted, got %v", err)
	}
}

func TestProcessReferral_MaxUsesOneUnderConcurrency(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()
	one := 1
	code := createTestCode(t, l, uuid.New(), CreateReferralCodeOptions{MaxUses: &one})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.referrals.ProcessReferral(ctx, ProcessReferralInput{Code: code.Code, RefereeID: uuid.New()})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrReferralCodeExhausted):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one referral, got %d", succeeded)
	}

	referrals, total, err := l.referrals.ListReferrals(ctx, code.ReferrerID, nil, 1, 10)
	if err != nil {
		t.Fatalf("ListReferrals returned error: %v", err)
	}
	if total != 1 || referrals[0].Status != model.ReferralStatusPending {
		t.Fatalf("expected one pending referral, got %d", total)
	}
}

func TestProcessReferral_RefereeAttributedOnce(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()
	refereeID := uuid.New()

	codeA := createTestCode(t, l, uuid.New(), CreateReferralCodeOptions{})
	codeB := createTestCode(t, l, uuid.New(), CreateReferralCodeOptions{})

	first := processTestReferral(t, l, codeA.Code, refereeID)

	again := processTestReferral(t, l, codeA.Code, refereeID)
	if again.ID != first.ID {
		t.Fatalf("reprocessing the same code must return the existing referral")
	}

	if _, err := l.referrals.ProcessReferral(ctx, ProcessReferralInput{Code: codeB.Code, RefereeID: refereeID}); !errors.Is(err, ErrAlreadyReferred) {
		t.Fatalf("expected ErrAlreadyReferred, got %v", err)
	}

	validated, err := l.referrals.ValidateCode(ctx, codeA.Code)
	if err != nil {
		t.Fatalf("ValidateCode returned error: %v", err)
	}
	if validated.CurrentUses != 1 {
		t.Fatalf("expected one reserved use, got %d", validated.CurrentUses)
	}
}

func TestProcessReferral_RejectsSelfReferral(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	userID := uuid.New()
	code := createTestCode(t, l, userID, CreateReferralCodeOptions{})

	_, err := l.referrals.ProcessReferral(context.Background(), ProcessReferralInput{Code: code.Code, RefereeID: userID})
	if !errors.Is(err, ErrSelfReferral) {
		t.Fatalf("expected ErrSelfReferral, got %v", err)
	}
}

func TestCompleteReferral_DeliversBothRewardsOnce(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()
	referrerID := uuid.New()
	refereeID := uuid.New()

	code := createTestCode(t, l, referrerID, CreateReferralCodeOptions{})
	referral := processTestReferral(t, l, code.Code, refereeID)

	result, err := l.referrals.CompleteReferral(ctx, referral.ID, "order-77", decimal.NewFromInt(200))
	if err != nil {
		t.Fatalf("CompleteReferral returned error: %v", err)
	}
	if !result.Applied || result.Referral.Status != model.ReferralStatusCompleted {
		t.Fatalf("unexpected result %+v", result)
	}
	if !result.ReferrerReward.CashbackAmount.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected referrer cashback 20, got %s", result.ReferrerReward.CashbackAmount)
	}
	if result.RefereeReward.CouponCode == nil {
		t.Fatalf("expected referee coupon")
	}

	coupon, err := l.store.Repositories().PromoCodes.FindByCode(ctx, *result.RefereeReward.CouponCode)
	if err != nil {
		t.Fatalf("reward coupon not stored: %v", err)
	}
	if coupon.Type != model.PromoCodeFixedAmount || !coupon.DiscountValue.Equal(decimal.NewFromInt(10)) || coupon.MaxUses != 1 {
		t.Fatalf("unexpected reward coupon %+v", coupon)
	}

	replay, err := l.referrals.CompleteReferral(ctx, referral.ID, "order-77", decimal.NewFromInt(200))
	if err != nil {
		t.Fatalf("replay returned error: %v", err)
	}
	if replay.Applied {
		t.Fatalf("expected replay to be a no-op")
	}

	if _, err := l.referrals.CompleteReferral(ctx, referral.ID, "order-78", decimal.NewFromInt(50)); !errors.Is(err, ErrReferralNotPending) {
		t.Fatalf("expected ErrReferralNotPending for a different order, got %v", err)
	}

	summary, err := l.referrals.GetStats(ctx, referrerID)
	if err != nil {
		t.Fatalf("GetStats returned error: %v", err)
	}
	stats := summary.Stats
	if stats.TotalReferrals != 1 || stats.SuccessfulReferrals != 1 {
		t.Fatalf("unexpected referral counters %+v", stats)
	}
	if !stats.TotalReferralSales.Equal(decimal.NewFromInt(200)) || !stats.AvailableCashback.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("unexpected referral totals %+v", stats)
	}

	completed := l.publisher.ofType(event.TypeReferralCompleted)
	if len(completed) != 1 {
		t.Fatalf("expected one referral_completed event, got %d", len(completed))
	}
}

func TestCompleteReferral_PointsRewardGoesThroughLedger(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()
	referrerID := uuid.New()
	refereeID := uuid.New()

	pointsType := model.ReferralRewardPoints
	value := decimal.NewFromInt(300)
	code := createTestCode(t, l, referrerID, CreateReferralCodeOptions{
		ReferrerRewardType:  &pointsType,
		ReferrerRewardValue: &value,
	})
	referral := processTestReferral(t, l, code.Code, refereeID)

	result, err := l.referrals.CompleteReferral(ctx, referral.ID, "order-1", decimal.NewFromInt(80))
	if err != nil {
		t.Fatalf("CompleteReferral returned error: %v", err)
	}
	if result.ReferrerReward.Points != 300 {
		t.Fatalf("expected 300 points reward, got %d", result.ReferrerReward.Points)
	}

	account := l.account(t, referrerID)
	if account.AvailablePoints != 300 {
		t.Fatalf("expected 300 available points, got %d", account.AvailablePoints)
	}
	report, err := l.points.Reconcile(ctx, referrerID)
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if !report.Balanced {
		t.Fatalf("referral points must reconcile, got %+v", report)
	}
}

func TestCancelReferral_ReleasesReservedUse(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()
	one := 1
	code := createTestCode(t, l, uuid.New(), CreateReferralCodeOptions{MaxUses: &one})
	referral := processTestReferral(t, l, code.Code, uuid.New())

	cancelled, err := l.referrals.CancelReferral(ctx, uuid.New(), referral.ID, "fraude")
	if err != nil {
		t.Fatalf("CancelReferral returned error: %v", err)
	}
	if cancelled.Status != model.ReferralStatusCancelled {
		t.Fatalf("unexpected status %s", cancelled.Status)
	}

	processTestReferral(t, l, code.Code, uuid.New())

	if _, err := l.referrals.CancelReferral(ctx, uuid.New(), referral.ID, "again"); !errors.Is(err, ErrReferralNotPending) {
		t.Fatalf("expected ErrReferralNotPending, got %v", err)
	}
}
