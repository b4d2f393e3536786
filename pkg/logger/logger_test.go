package logger

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestSanitizeFields_MasksBankDetails(t *testing.T) {
	t.Parallel()

	fields := SanitizeFields([]zap.Field{
		zap.String("authorization", "Bearer abc"),
		zap.Any("request_body", map[string]interface{}{
			"amount": "30.00",
			"bank_details": map[string]interface{}{
				"iban": "PT50000201231234567890154",
			},
		}),
		zap.String("user_id", "u-1"),
		zap.String("internal_token", "s3cr3t-value"),
	})

	enc := zapcore.NewMapObjectEncoder()
	for _, field := range fields {
		field.AddTo(enc)
	}
	if enc.Fields["authorization"] != "***" {
		t.Fatalf("authorization not masked: %v", enc.Fields["authorization"])
	}
	body, ok := enc.Fields["request_body"].(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected request_body %T", enc.Fields["request_body"])
	}
	details, ok := body["bank_details"].(map[string]interface{})
	if !ok || details["iban"] != "***0154" || body["amount"] != "30.00" {
		t.Fatalf("unexpected sanitized body %v", body)
	}
	if enc.Fields["internal_token"] != "***" {
		t.Fatalf("token not redacted: %v", enc.Fields["internal_token"])
	}
	if enc.Fields["user_id"] != "u-1" {
		t.Fatalf("non-sensitive field changed: %v", enc.Fields["user_id"])
	}
}

func TestRecentLogs_KeepsWarningsNewestFirst(t *testing.T) {
	t.Parallel()

	recent := NewRecentLogs(2, zapcore.WarnLevel)
	log := recent.Tee(zap.NewNop()).With(zap.String("component", "cashback"))

	log.Info("ignored")
	log.Warn("payout rejected", zap.String("iban", "PT50"))
	log.Error("store unavailable")
	log.Warn("order trigger failed")

	entries, total := recent.Query("", "", time.Time{}, 1, 10)
	if total != 2 {
		t.Fatalf("expected capacity-bounded 2 entries, got %d", total)
	}
	if entries[0].Message != "order trigger failed" || entries[1].Message != "store unavailable" {
		t.Fatalf("unexpected order: %+v", entries)
	}
	if entries[0].Fields["component"] != "cashback" {
		t.Fatalf("expected logger context fields, got %v", entries[0].Fields)
	}

	errorsOnly, total := recent.Query("error", "", time.Time{}, 1, 10)
	if total != 1 || errorsOnly[0].Message != "store unavailable" {
		t.Fatalf("unexpected level filter result: %+v", errorsOnly)
	}

	byKeyword, _ := recent.Query("", "TRIGGER", time.Time{}, 1, 10)
	if len(byKeyword) != 1 {
		t.Fatalf("expected keyword match, got %+v", byKeyword)
	}
}

func TestRecentLogs_SanitizesRetainedFields(t *testing.T) {
	t.Parallel()

	recent := NewRecentLogs(10, zapcore.WarnLevel)
	recent.Tee(zap.NewNop()).Warn("payout rejected", zap.String("iban", "PT50000201231234567890154"))

	entries, _ := recent.Query("", "", time.Time{}, 1, 10)
	if len(entries) != 1 || entries[0].Fields["iban"] != "***0154" {
		t.Fatalf("iban must be masked, got %+v", entries)
	}
}
