package main

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("LOYALTY_STORE_DRIVER", "memory")
	t.Setenv("LOYALTY_STORE_TX_TIMEOUT", "2s")
	t.Setenv("LOYALTY_CASHBACK_MIN_PAYOUT", "30.50")
	t.Setenv("LOYALTY_RATE_LIMIT_PROMO_PER_MINUTE", "5")
	t.Setenv("LOYALTY_SECURITY_INTERNAL_TOKEN", "hook-secret")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Store.Driver != storeDriverMemory || cfg.Store.TxTimeout != 2*time.Second {
		t.Fatalf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.RateLimit.PromoPerMinute != 5 || cfg.Security.InternalToken != "hook-secret" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	minPayout, err := cfg.minPayout()
	if err != nil || minPayout.String() != "30.5" {
		t.Fatalf("unexpected min payout %s (%v)", minPayout, err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port, got %d", cfg.Server.Port)
	}
}

func TestLoadConfig_RejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "postgres without url",
			env:  map[string]string{"LOYALTY_STORE_DRIVER": "postgres"},
			want: "database.url",
		},
		{
			name: "unknown driver",
			env:  map[string]string{"LOYALTY_STORE_DRIVER": "mongo"},
			want: "unsupported store.driver",
		},
		{
			name: "memory store in production",
			env:  map[string]string{"LOYALTY_STORE_DRIVER": "memory", "LOYALTY_APP_ENV": "production"},
			want: "only allowed",
		},
		{
			name: "non positive min payout",
			env:  map[string]string{"LOYALTY_STORE_DRIVER": "memory", "LOYALTY_CASHBACK_MIN_PAYOUT": "0"},
			want: "cashback.min_payout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			t.Setenv("LOYALTY_DATABASE_URL", "")
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			_, err := loadConfig()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSanitizeCLIError(t *testing.T) {
	t.Parallel()

	if got := sanitizeCLIError(nil); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
	if got := sanitizeCLIError(errString("line one\nline two\r")); got != "line one line two" {
		t.Fatalf("unexpected sanitized error %q", got)
	}
}

type errString string

func (e errString) Error() string { return string(e) }
