package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loyalty-hub/internal/event"
	"loyalty-hub/internal/model"
)

func createTestPromo(t *testing.T, l *testLedger, input PromoCodeInput) *model.PromoCode {
	t.Helper()

	if input.Type == "" {
		input.Type = model.PromoCodePercentage
	}
	promo, err := l.promos.Create(context.Background(), uuid.New(), input)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	return promo
}

func decPtr(value string) *decimal.Decimal {
	d := decimal.RequireFromString(value)
	return &d
}

func intPtr(value int) *int {
	return &value
}

func TestPromoValidate_PercentageCappedAtMaxDiscount(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	createTestPromo(t, l, PromoCodeInput{
		Code:          "save10",
		DiscountValue: decimal.NewFromInt(10),
		MaxDiscount:   decPtr("20"),
	})

	result, err := l.promos.Validate(context.Background(), PromoValidationInput{
		Code:      "SAVE10",
		UserID:    uuid.New(),
		CartTotal: decimal.NewFromInt(300),
	})
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if !result.Valid || !result.Discount.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected capped discount of 20, got %+v", result)
	}
	if result.Message != "Desconto de €20.00 aplicado" {
		t.Fatalf("unexpected message %q", result.Message)
	}
}

func TestPromoValidate_HasNoSideEffects(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()
	promo := createTestPromo(t, l, PromoCodeInput{Code: "ONCE", DiscountValue: decimal.NewFromInt(5), MaxUses: intPtr(1)})

	input := PromoValidationInput{Code: "ONCE", UserID: uuid.New(), CartTotal: decimal.NewFromInt(100)}
	first, err := l.promos.Validate(ctx, input)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	second, err := l.promos.Validate(ctx, input)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if !first.Valid || !second.Valid || !first.Discount.Equal(second.Discount) {
		t.Fatalf("repeated validation must agree: %+v vs %+v", first, second)
	}

	report, err := l.promos.Stats(ctx, promo.ID)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if report.PromoCode.CurrentUses != 0 || len(report.RecentUsages) != 0 {
		t.Fatalf("validation must not record usage, got %+v", report)
	}
}

func TestPromoValidate_ChecksInOrder(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()
	past := time.Now().Add(-48 * time.Hour)
	yesterday := time.Now().Add(-24 * time.Hour)
	future := time.Now().Add(24 * time.Hour)

	buyer := uuid.New()
	if _, err := l.orders.HandleOrderConfirmed(ctx, event.OrderConfirmed{
		OrderID: "previous", UserID: buyer, OrderTotal: decimal.NewFromInt(10),
	}); err != nil {
		t.Fatalf("HandleOrderConfirmed returned error: %v", err)
	}

	inactive := false
	createTestPromo(t, l, PromoCodeInput{Code: "OFF", DiscountValue: decimal.NewFromInt(5), IsActive: &inactive})
	createTestPromo(t, l, PromoCodeInput{Code: "LATER", DiscountValue: decimal.NewFromInt(5), ValidFrom: &future})
	createTestPromo(t, l, PromoCodeInput{Code: "OLD", DiscountValue: decimal.NewFromInt(5), ValidFrom: &past, ValidTo: &yesterday})
	createTestPromo(t, l, PromoCodeInput{Code: "MIN50", DiscountValue: decimal.NewFromInt(5), MinPurchase: decPtr("50")})
	createTestPromo(t, l, PromoCodeInput{Code: "WELCOME", DiscountValue: decimal.NewFromInt(5), FirstPurchaseOnly: true})
	createTestPromo(t, l, PromoCodeInput{Code: "SHOES", DiscountValue: decimal.NewFromInt(5), Categories: []string{"shoes"}})
	createTestPromo(t, l, PromoCodeInput{Code: "NOGIFT", DiscountValue: decimal.NewFromInt(5), ExcludedProducts: []string{"gift-card"}})

	// Each of these also fails a later check; the earlier one must be reported.
	createTestPromo(t, l, PromoCodeInput{Code: "OFF-OLD", DiscountValue: decimal.NewFromInt(5), IsActive: &inactive, ValidFrom: &past, ValidTo: &yesterday})
	createTestPromo(t, l, PromoCodeInput{
		Code: "SOLDOUT", DiscountValue: decimal.NewFromInt(5), MaxUses: intPtr(1),
		MinPurchase: decPtr("50"), ExcludedProducts: []string{"gift-card"},
	})
	createTestPromo(t, l, PromoCodeInput{
		Code: "ONCE", DiscountValue: decimal.NewFromInt(5), MaxUsesPerUser: intPtr(1),
		MinPurchase: decPtr("50"), FirstPurchaseOnly: true, ExcludedProducts: []string{"gift-card"},
	})

	plainCart := []model.CartItem{{ProductID: "shirt-1", Category: "shirts", Quantity: 2, UnitPrice: decimal.NewFromInt(30)}}
	redeem := func(code string, userID uuid.UUID, orderID string) {
		t.Helper()
		result, err := l.promos.Redeem(ctx, PromoRedeemInput{
			PromoValidationInput: PromoValidationInput{Code: code, UserID: userID, CartTotal: decimal.NewFromInt(60), CartItems: plainCart},
			OrderID:              orderID,
		})
		if err != nil || !result.Applied {
			t.Fatalf("Redeem %s returned %+v, %v", code, result, err)
		}
	}
	redeem("SOLDOUT", uuid.New(), "other-order")
	// newcomer has no confirmed orders, so the first-purchase rule lets this redemption through.
	newcomer := uuid.New()
	redeem("ONCE", newcomer, "first-order")

	cart := []model.CartItem{
		{ProductID: "shirt-1", Category: "shirts", Quantity: 1, UnitPrice: decimal.NewFromInt(30)},
		{ProductID: "gift-card", Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
	}

	tests := []struct {
		code string
		user uuid.UUID
		want string
	}{
		{code: "MISSING", want: PromoReasonNotFound},
		{code: "OFF", want: PromoReasonInactive},
		{code: "LATER", want: PromoReasonNotStarted},
		{code: "OLD", want: PromoReasonExpired},
		{code: "MIN50", want: PromoReasonMinPurchase},
		{code: "WELCOME", want: PromoReasonFirstPurchase},
		{code: "SHOES", want: PromoReasonNotApplicable},
		{code: "NOGIFT", want: PromoReasonExcluded},
		{code: "OFF-OLD", want: PromoReasonInactive},
		{code: "SOLDOUT", want: PromoReasonExhausted},
		{code: "ONCE", user: newcomer, want: PromoReasonUserLimit},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			userID := buyer
			if tt.user != uuid.Nil {
				userID = tt.user
			}
			result, err := l.promos.Validate(ctx, PromoValidationInput{
				Code:      tt.code,
				UserID:    userID,
				CartTotal: decimal.NewFromInt(40),
				CartItems: cart,
			})
			if err != nil {
				t.Fatalf("Validate returned error: %v", err)
			}
			if result.Valid || result.Code != tt.want {
				t.Fatalf("expected %s, got %+v", tt.want, result)
			}
			if !result.Discount.IsZero() {
				t.Fatalf("invalid codes must not discount, got %s", result.Discount)
			}
		})
	}

	result, err := l.promos.Validate(ctx, PromoValidationInput{
		Code: "MIN50", UserID: buyer, CartTotal: decimal.NewFromInt(49),
	})
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if result.Message != "Compra mínima de €50.00 necessária" {
		t.Fatalf("unexpected message %q", result.Message)
	}
}

func TestPromoValidate_BuyXGetYFreesCheapestUnit(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	createTestPromo(t, l, PromoCodeInput{
		Code:        "LEVE3",
		Type:        model.PromoCodeBuyXGetY,
		BuyQuantity: 2,
		GetQuantity: 1,
	})

	result, err := l.promos.Validate(context.Background(), PromoValidationInput{
		Code:      "LEVE3",
		UserID:    uuid.New(),
		CartTotal: decimal.NewFromInt(60),
		CartItems: []model.CartItem{
			{ProductID: "a", Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
			{ProductID: "b", Quantity: 1, UnitPrice: decimal.NewFromInt(20)},
			{ProductID: "c", Quantity: 1, UnitPrice: decimal.NewFromInt(30)},
		},
	})
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if !result.Valid || !result.Discount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected discount of 10, got %+v", result)
	}
}

func TestPromoValidate_BuyXGetYAppliesOncePerCart(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	createTestPromo(t, l, PromoCodeInput{
		Code:        "LEVE2",
		Type:        model.PromoCodeBuyXGetY,
		BuyQuantity: 2,
		GetQuantity: 1,
		Categories:  []string{"hair"},
	})

	tests := []struct {
		name  string
		total int64
		items []model.CartItem
		want  int64
	}{
		{
			name:  "exactly buy quantity",
			total: 30,
			items: []model.CartItem{
				{ProductID: "a", Category: "hair", Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
				{ProductID: "b", Category: "hair", Quantity: 1, UnitPrice: decimal.NewFromInt(20)},
			},
			want: 10,
		},
		{
			name:  "several groups still frees get quantity",
			total: 60,
			items: []model.CartItem{
				{ProductID: "a", Category: "hair", Quantity: 6, UnitPrice: decimal.NewFromInt(10)},
			},
			want: 10,
		},
		{
			name:  "below buy quantity",
			total: 40,
			items: []model.CartItem{
				{ProductID: "a", Category: "hair", Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
				{ProductID: "z", Category: "nails", Quantity: 3, UnitPrice: decimal.NewFromInt(10)},
			},
			want: 0,
		},
		{
			name:  "ineligible units are never free",
			total: 45,
			items: []model.CartItem{
				{ProductID: "z", Category: "nails", Quantity: 1, UnitPrice: decimal.NewFromInt(5)},
				{ProductID: "a", Category: "hair", Quantity: 2, UnitPrice: decimal.NewFromInt(20)},
			},
			want: 20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := l.promos.Validate(context.Background(), PromoValidationInput{
				Code:      "LEVE2",
				UserID:    uuid.New(),
				CartTotal: decimal.NewFromInt(tt.total),
				CartItems: tt.items,
			})
			if err != nil {
				t.Fatalf("Validate returned error: %v", err)
			}
			if !result.Valid || !result.Discount.Equal(decimal.NewFromInt(tt.want)) {
				t.Fatalf("expected discount %d, got %+v", tt.want, result)
			}
		})
	}
}

func TestPromoValidate_FixedAmountNeverExceedsCart(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	createTestPromo(t, l, PromoCodeInput{
		Code:          "FIFTY",
		Type:          model.PromoCodeFixedAmount,
		DiscountValue: decimal.NewFromInt(50),
		FreeShipping:  true,
	})

	result, err := l.promos.Validate(context.Background(), PromoValidationInput{
		Code: "FIFTY", UserID: uuid.New(), CartTotal: decimal.RequireFromString("35.90"),
	})
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if !result.Discount.Equal(decimal.RequireFromString("35.90")) || !result.FreeShipping {
		t.Fatalf("unexpected validation %+v", result)
	}
}

func TestPromoRedeem_IdempotentPerOrderAndRespectsLimits(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()
	promo := createTestPromo(t, l, PromoCodeInput{Code: "SINGLE", DiscountValue: decimal.NewFromInt(10), MaxUses: intPtr(1)})

	input := PromoRedeemInput{
		PromoValidationInput: PromoValidationInput{Code: "single", UserID: uuid.New(), CartTotal: decimal.NewFromInt(80)},
		OrderID:              "order-1",
	}
	first, err := l.promos.Redeem(ctx, input)
	if err != nil {
		t.Fatalf("Redeem returned error: %v", err)
	}
	if !first.Applied || !first.Usage.DiscountApplied.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("unexpected redemption %+v", first)
	}

	replay, err := l.promos.Redeem(ctx, input)
	if err != nil {
		t.Fatalf("replay returned error: %v", err)
	}
	if replay.Applied || replay.Usage.ID != first.Usage.ID {
		t.Fatalf("replay must return the recorded usage without applying")
	}

	other := input
	other.UserID = uuid.New()
	other.OrderID = "order-2"
	_, err = l.promos.Redeem(ctx, other)
	if !errors.Is(err, ErrStateConflict) || Code(err) != PromoReasonExhausted {
		t.Fatalf("expected exhausted rejection, got %v", err)
	}

	report, err := l.promos.Stats(ctx, promo.ID)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if report.PromoCode.CurrentUses != 1 || report.Status != model.PromoCodeStatusExhausted {
		t.Fatalf("unexpected stats %+v", report)
	}
}

func TestPromoRedeem_PerUserLimit(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()
	createTestPromo(t, l, PromoCodeInput{Code: "PERUSER", DiscountValue: decimal.NewFromInt(10)})

	userID := uuid.New()
	input := PromoRedeemInput{
		PromoValidationInput: PromoValidationInput{Code: "PERUSER", UserID: userID, CartTotal: decimal.NewFromInt(50)},
		OrderID:              "order-a",
	}
	if _, err := l.promos.Redeem(ctx, input); err != nil {
		t.Fatalf("Redeem returned error: %v", err)
	}

	input.OrderID = "order-b"
	_, err := l.promos.Redeem(ctx, input)
	if Code(err) != PromoReasonUserLimit {
		t.Fatalf("expected per-user limit rejection, got %v", err)
	}
}

func TestPromoCreate_RejectsDuplicateAndInvalidCodes(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()
	createTestPromo(t, l, PromoCodeInput{Code: "DUP", DiscountValue: decimal.NewFromInt(5)})

	_, err := l.promos.Create(ctx, uuid.New(), PromoCodeInput{Code: "dup", Type: model.PromoCodePercentage, DiscountValue: decimal.NewFromInt(5)})
	if !errors.Is(err, ErrPromoCodeExists) {
		t.Fatalf("expected ErrPromoCodeExists, got %v", err)
	}

	_, err = l.promos.Create(ctx, uuid.New(), PromoCodeInput{Code: "BIG", Type: model.PromoCodePercentage, DiscountValue: decimal.NewFromInt(150)})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for 150%%, got %v", err)
	}

	_, err = l.promos.Create(ctx, uuid.New(), PromoCodeInput{Code: "X", Type: model.PromoCodePercentage, DiscountValue: decimal.NewFromInt(5)})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for short code, got %v", err)
	}
}

func TestPromoUpdate_CannotDropMaxUsesBelowCurrent(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()
	promo := createTestPromo(t, l, PromoCodeInput{Code: "TWICE", DiscountValue: decimal.NewFromInt(5), MaxUses: intPtr(5)})

	for _, order := range []string{"o1", "o2"} {
		_, err := l.promos.Redeem(ctx, PromoRedeemInput{
			PromoValidationInput: PromoValidationInput{Code: "TWICE", UserID: uuid.New(), CartTotal: decimal.NewFromInt(20)},
			OrderID:              order,
		})
		if err != nil {
			t.Fatalf("Redeem returned error: %v", err)
		}
	}

	_, err := l.promos.Update(ctx, uuid.New(), promo.ID, PromoCodeInput{
		Type: model.PromoCodePercentage, DiscountValue: decimal.NewFromInt(5), MaxUses: intPtr(1),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	updated, err := l.promos.Deactivate(ctx, uuid.New(), promo.ID)
	if err != nil {
		t.Fatalf("Deactivate returned error: %v", err)
	}
	if updated.IsActive || updated.CurrentUses != 2 {
		t.Fatalf("unexpected promo after deactivate %+v", updated)
	}
}
