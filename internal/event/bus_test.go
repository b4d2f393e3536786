package event

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestBus_DeliversToTypedAndWildcardSubscribers(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	var mu sync.Mutex
	got := make(map[string]int)

	bus.Subscribe(TypePointsGranted, func(evt Event) {
		mu.Lock()
		got["typed"]++
		mu.Unlock()
	})
	bus.Subscribe("", func(evt Event) {
		mu.Lock()
		got["all:"+string(evt.EventType())]++
		mu.Unlock()
	})

	bus.Publish(PointsGranted{UserID: uuid.New(), Points: 10})
	bus.Publish(TierUpgraded{UserID: uuid.New(), ToLevel: 1})
	bus.Wait()

	mu.Lock()
	defer mu.Unlock()
	if got["typed"] != 1 {
		t.Fatalf("expected typed handler once, got %d", got["typed"])
	}
	if got["all:points_granted"] != 1 || got["all:tier_upgraded"] != 1 {
		t.Fatalf("unexpected wildcard deliveries: %+v", got)
	}
}

func TestBus_NilSafe(t *testing.T) {
	t.Parallel()

	var bus *Bus
	bus.Subscribe(TypeTierUpgraded, func(Event) {})
	bus.Publish(TierUpgraded{})
	bus.Wait()
}

func TestReferralCompleted_RecipientsIncludeBothSides(t *testing.T) {
	t.Parallel()

	referrer, referee := uuid.New(), uuid.New()
	recipients := ReferralCompleted{ReferrerID: referrer, RefereeID: referee}.Recipients()
	if len(recipients) != 2 || recipients[0] != referrer || recipients[1] != referee {
		t.Fatalf("unexpected recipients %v", recipients)
	}
}

func TestOrderConfirmed_Validate(t *testing.T) {
	t.Parallel()

	valid := OrderConfirmed{
		OrderID:    " ord-1001 ",
		UserID:     uuid.New(),
		OrderTotal: decimal.RequireFromString("59.90"),
		Items: []OrderItem{
			{ProductID: "shampoo-1", Quantity: 2, UnitPrice: decimal.RequireFromString("29.95")},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}
	if valid.OrderID != "ord-1001" {
		t.Fatalf("expected trimmed order id, got %q", valid.OrderID)
	}

	missingUser := valid
	missingUser.UserID = uuid.Nil
	if err := missingUser.Validate(); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for missing user, got %v", err)
	}

	negative := valid
	negative.OrderTotal = decimal.NewFromInt(-1)
	if err := negative.Validate(); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for negative total, got %v", err)
	}

	badItem := valid
	badItem.Items = []OrderItem{{ProductID: "x", Quantity: 0}}
	if err := badItem.Validate(); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for zero quantity, got %v", err)
	}
}

func TestUserRegistered_ValidateNormalizesReferralCode(t *testing.T) {
	t.Parallel()

	code := "  abcd1234 "
	evt := UserRegistered{UserID: uuid.New(), ReferralCode: &code}
	if err := evt.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if evt.ReferralCode == nil || *evt.ReferralCode != "ABCD1234" {
		t.Fatalf("expected upper-cased code, got %v", evt.ReferralCode)
	}

	blank := "   "
	evt = UserRegistered{UserID: uuid.New(), ReferralCode: &blank}
	if err := evt.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if evt.ReferralCode != nil {
		t.Fatalf("expected blank code to be dropped")
	}
}
