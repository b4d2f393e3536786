package api

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loyalty-hub/internal/api/middleware"
	"loyalty-hub/internal/api/response"
	"loyalty-hub/internal/event"
	"loyalty-hub/internal/repository/memory"
	"loyalty-hub/internal/service"
	jwtutil "loyalty-hub/pkg/jwt"
	systemlog "loyalty-hub/pkg/logger"
)

const testInternalToken = "test-internal-token"

type apiEnvelope struct {
	Code       int                  `json:"code"`
	Message    string               `json:"message"`
	Reason     string               `json:"reason"`
	Data       json.RawMessage      `json:"data"`
	Pagination *response.Pagination `json:"pagination"`
}

type testServer struct {
	router *gin.Engine
	key    *rsa.PrivateKey
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, promoRateLimit int) *testServer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	store := memory.NewStore()
	bus := event.NewBus()
	t.Cleanup(bus.Wait)

	services := Services{
		Points:    service.NewPointsService(store, bus, nil),
		Referrals: service.NewReferralService(store, bus, nil),
		Cashback:  service.NewCashbackService(store, bus, decimal.NewFromInt(25), nil),
		Promos:    service.NewPromoCodeService(store, bus, nil),
		Orders:    service.NewOrderService(store, bus, nil),
		Audit:     service.NewAuditService(store, nil),
	}
	router := NewRouter(RouterConfig{
		PublicKey:      &key.PublicKey,
		InternalToken:  testInternalToken,
		PromoRateLimit: promoRateLimit,
		Store:          store,
		Logs:           systemlog.NewRecentLogs(50, 0),
	}, services)

	return &testServer{router: router, key: key}
}

func (s *testServer) token(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()

	token, err := jwtutil.GenerateAccessToken(jwtutil.NewClaims(userID.String(), role, time.Hour), s.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path string, body any, bearer string) (*httptest.ResponseRecorder, apiEnvelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case bearer == testInternalToken:
		req.Header.Set("X-Internal-Token", bearer)
	case bearer != "":
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var envelope apiEnvelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("decode response %s %s: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec, envelope
}

func decodeData(t *testing.T, envelope apiEnvelope, dst any) {
	t.Helper()

	if err := json.Unmarshal(envelope.Data, dst); err != nil {
		t.Fatalf("decode data: %v (%s)", err, string(envelope.Data))
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()

	if rec.Code != want {
		t.Fatalf("expected status %d, got %d (%s)", want, rec.Code, rec.Body.String())
	}
}

func TestOrderConfirmedTrigger_CreditsPointsVisibleToUser(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, 30)
	userID := uuid.New()
	payload := map[string]any{
		"orderId":    "ORD-1001",
		"userId":     userID.String(),
		"orderTotal": "49.90",
		"items": []map[string]any{
			{"productId": "SKU-1", "category": "shoes", "quantity": 1, "unitPrice": "49.90"},
		},
	}

	rec, _ := srv.do(t, http.MethodPost, "/internal/events/order-confirmed", payload, "")
	expectStatus(t, rec, http.StatusUnauthorized)

	rec, envelope := srv.do(t, http.MethodPost, "/internal/events/order-confirmed", payload, testInternalToken)
	expectStatus(t, rec, http.StatusOK)
	var outcome struct {
		Duplicate bool `json:"duplicate"`
	}
	decodeData(t, envelope, &outcome)
	if outcome.Duplicate {
		t.Fatalf("first delivery must not be a duplicate")
	}

	rec, envelope = srv.do(t, http.MethodPost, "/internal/events/order-confirmed", payload, testInternalToken)
	expectStatus(t, rec, http.StatusOK)
	decodeData(t, envelope, &outcome)
	if !outcome.Duplicate {
		t.Fatalf("redelivery must be reported as duplicate")
	}

	rec, envelope = srv.do(t, http.MethodGet, "/api/v1/points", nil, srv.token(t, userID, "user"))
	expectStatus(t, rec, http.StatusOK)
	var summary struct {
		Account struct {
			AvailablePoints int64 `json:"available_points"`
			TotalPoints     int64 `json:"total_points"`
		} `json:"account"`
	}
	decodeData(t, envelope, &summary)
	if summary.Account.AvailablePoints != 499 || summary.Account.TotalPoints != 499 {
		t.Fatalf("expected 499 points, got %+v", summary.Account)
	}

	rec, envelope = srv.do(t, http.MethodGet, "/api/v1/points/transactions?page=1&page_size=10", nil, srv.token(t, userID, "user"))
	expectStatus(t, rec, http.StatusOK)
	if envelope.Pagination == nil || envelope.Pagination.Total != 1 {
		t.Fatalf("expected one transaction, got %+v", envelope.Pagination)
	}
}

func TestOrderConfirmedTrigger_RejectsMalformedPayload(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, 30)

	rec, envelope := srv.do(t, http.MethodPost, "/internal/events/order-confirmed", map[string]any{
		"orderId":    "   ",
		"userId":     uuid.NewString(),
		"orderTotal": "10",
	}, testInternalToken)
	expectStatus(t, rec, http.StatusBadRequest)
	if envelope.Code != response.ErrValidation {
		t.Fatalf("expected validation app code, got %d", envelope.Code)
	}

	rec, _ = srv.do(t, http.MethodPost, "/internal/events/order-confirmed", map[string]any{
		"orderId": "ORD-1",
		"userId":  "not-a-uuid",
	}, testInternalToken)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestRedeemReward_StatusMapping(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, 30)
	adminToken := srv.token(t, uuid.New(), "admin")
	userID := uuid.New()
	userToken := srv.token(t, userID, "user")

	rec, _ := srv.do(t, http.MethodPost, "/internal/events/user-registered", map[string]any{
		"userId": userID.String(),
	}, testInternalToken)
	expectStatus(t, rec, http.StatusOK)

	rec, envelope := srv.do(t, http.MethodPost, "/api/v1/admin/rewards", map[string]any{
		"name":        "<b>Vale</b> 20",
		"description": "<p>Desconto</p><script>x()</script>",
		"type":        "discount_fixed",
		"value":       "20",
		"points_cost": 1000,
	}, adminToken)
	expectStatus(t, rec, http.StatusCreated)
	var expensive struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	decodeData(t, envelope, &expensive)
	if expensive.Name != "Vale 20" || strings.Contains(expensive.Description, "script") {
		t.Fatalf("reward text not sanitized: %+v", expensive)
	}

	rec, envelope = srv.do(t, http.MethodPost, "/api/v1/rewards/"+expensive.ID+"/redeem", nil, userToken)
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	if envelope.Reason != "insufficient_points" || envelope.Message != "Pontos insuficientes" {
		t.Fatalf("unexpected rejection: %+v", envelope)
	}

	rec, envelope = srv.do(t, http.MethodPost, "/api/v1/admin/rewards", map[string]any{
		"name":        "Frete grátis",
		"type":        "free_shipping",
		"points_cost": 200,
	}, adminToken)
	expectStatus(t, rec, http.StatusCreated)
	var cheap struct {
		ID string `json:"id"`
	}
	decodeData(t, envelope, &cheap)

	rec, envelope = srv.do(t, http.MethodPost, "/api/v1/rewards/"+cheap.ID+"/redeem", nil, userToken)
	expectStatus(t, rec, http.StatusCreated)
	var redeemed struct {
		CouponCode string `json:"coupon_code"`
	}
	decodeData(t, envelope, &redeemed)
	if redeemed.CouponCode == "" {
		t.Fatalf("expected a coupon code")
	}

	rec, _ = srv.do(t, http.MethodPost, "/api/v1/redemptions/use", map[string]any{"coupon_code": redeemed.CouponCode}, userToken)
	expectStatus(t, rec, http.StatusOK)
	rec, envelope = srv.do(t, http.MethodPost, "/api/v1/redemptions/use", map[string]any{"coupon_code": redeemed.CouponCode}, userToken)
	expectStatus(t, rec, http.StatusConflict)
	if envelope.Reason != "redemption_not_active" {
		t.Fatalf("expected redemption_not_active, got %+v", envelope)
	}

	rec, envelope = srv.do(t, http.MethodGet, "/api/v1/admin/audit-logs?action=reward.create", nil, adminToken)
	expectStatus(t, rec, http.StatusOK)
	if envelope.Pagination == nil || envelope.Pagination.Total != 2 {
		t.Fatalf("expected two reward.create audit rows, got %+v", envelope.Pagination)
	}
	rec, _ = srv.do(t, http.MethodGet, "/api/v1/admin/audit-logs?resource_id="+cheap.ID, nil, adminToken)
	expectStatus(t, rec, http.StatusBadRequest)

	rec, _ = srv.do(t, http.MethodPost, "/api/v1/rewards/not-a-uuid/redeem", nil, userToken)
	expectStatus(t, rec, http.StatusBadRequest)
	rec, _ = srv.do(t, http.MethodPost, "/api/v1/rewards/"+uuid.NewString()+"/redeem", nil, userToken)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestAuthorization(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, 30)
	userToken := srv.token(t, uuid.New(), "user")

	rec, _ := srv.do(t, http.MethodGet, "/api/v1/points", nil, "")
	expectStatus(t, rec, http.StatusUnauthorized)

	rec, _ = srv.do(t, http.MethodGet, "/api/v1/admin/payouts", nil, userToken)
	expectStatus(t, rec, http.StatusForbidden)

	rec, _ = srv.do(t, http.MethodGet, "/api/v1/admin/payouts", nil, srv.token(t, uuid.New(), "admin"))
	expectStatus(t, rec, http.StatusOK)

	rec, _ = srv.do(t, http.MethodGet, "/internal/metrics", nil, "")
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestReferralFlow_OverHTTP(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, 30)
	referrerID := uuid.New()
	referrerToken := srv.token(t, referrerID, "user")
	refereeID := uuid.New()

	rec, envelope := srv.do(t, http.MethodPost, "/api/v1/referral-codes", map[string]any{"custom_code": "ana-2026"}, referrerToken)
	expectStatus(t, rec, http.StatusCreated)
	var code struct {
		Code string `json:"code"`
	}
	decodeData(t, envelope, &code)
	if code.Code != "ANA-2026" {
		t.Fatalf("expected normalized code, got %q", code.Code)
	}

	rec, envelope = srv.do(t, http.MethodGet, "/api/v1/referral-codes/ana-2026/validate", nil, "")
	expectStatus(t, rec, http.StatusOK)
	if strings.Contains(string(envelope.Data), referrerID.String()) {
		t.Fatalf("public preview must not expose the referrer: %s", string(envelope.Data))
	}

	rec, _ = srv.do(t, http.MethodGet, "/api/v1/referral-codes/NOPE/validate", nil, "")
	expectStatus(t, rec, http.StatusNotFound)

	rec, envelope = srv.do(t, http.MethodPost, "/internal/events/user-registered", map[string]any{
		"userId":       refereeID.String(),
		"referralCode": "ana-2026",
	}, testInternalToken)
	expectStatus(t, rec, http.StatusOK)
	var registration struct {
		Referral *struct {
			Status string `json:"status"`
		} `json:"referral"`
	}
	decodeData(t, envelope, &registration)
	if registration.Referral == nil || registration.Referral.Status != "pending" {
		t.Fatalf("expected pending referral, got %s", string(envelope.Data))
	}

	rec, _ = srv.do(t, http.MethodPost, "/internal/events/order-confirmed", map[string]any{
		"orderId":    "ORD-77",
		"userId":     refereeID.String(),
		"orderTotal": "100.00",
	}, testInternalToken)
	expectStatus(t, rec, http.StatusOK)

	rec, envelope = srv.do(t, http.MethodGet, "/api/v1/referrals?status=completed", nil, referrerToken)
	expectStatus(t, rec, http.StatusOK)
	if envelope.Pagination == nil || envelope.Pagination.Total != 1 {
		t.Fatalf("expected one completed referral, got %+v", envelope.Pagination)
	}

	rec, envelope = srv.do(t, http.MethodGet, "/api/v1/referrals/stats", nil, referrerToken)
	expectStatus(t, rec, http.StatusOK)
	var stats struct {
		Stats struct {
			SuccessfulReferrals int `json:"successful_referrals"`
		} `json:"stats"`
	}
	decodeData(t, envelope, &stats)
	if stats.Stats.SuccessfulReferrals != 1 {
		t.Fatalf("expected one successful referral, got %s", string(envelope.Data))
	}

	rec, _ = srv.do(t, http.MethodGet, "/api/v1/referrals?status=bogus", nil, referrerToken)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestCashbackPayout_BelowMinimum(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, 30)
	userToken := srv.token(t, uuid.New(), "user")

	rec, envelope := srv.do(t, http.MethodPost, "/api/v1/cashback/payouts", map[string]any{
		"amount": "10.00",
		"method": "store_credit",
	}, userToken)
	expectStatus(t, rec, http.StatusBadRequest)
	if envelope.Reason != "payout_below_minimum" {
		t.Fatalf("expected payout_below_minimum, got %+v", envelope)
	}

	rec, envelope = srv.do(t, http.MethodPost, "/api/v1/cashback/payouts", map[string]any{
		"amount": "30.00",
		"method": "store_credit",
	}, userToken)
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	if envelope.Reason != "insufficient_cashback" {
		t.Fatalf("expected insufficient_cashback, got %+v", envelope)
	}

	rec, envelope = srv.do(t, http.MethodGet, "/api/v1/cashback", nil, userToken)
	expectStatus(t, rec, http.StatusOK)
	var balance struct {
		Withdrawable decimal.Decimal `json:"withdrawable"`
		MinPayout    decimal.Decimal `json:"min_payout"`
	}
	decodeData(t, envelope, &balance)
	if !balance.Withdrawable.IsZero() || !balance.MinPayout.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("unexpected balance: %+v", balance)
	}
}

func TestPromoCheckout_ValidateRedeemAndRateLimit(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, 3)
	adminToken := srv.token(t, uuid.New(), "admin")
	userToken := srv.token(t, uuid.New(), "user")

	rec, _ := srv.do(t, http.MethodPost, "/api/v1/admin/promo-codes", map[string]any{
		"code":           "save10",
		"description":    "<em>Dez</em> por cento",
		"type":           "PERCENTAGE",
		"discount_value": "10",
	}, adminToken)
	expectStatus(t, rec, http.StatusCreated)

	cart := map[string]any{"code": "SAVE10", "cart_total": "100.00"}
	rec, envelope := srv.do(t, http.MethodPost, "/api/v1/promo-codes/validate", cart, userToken)
	expectStatus(t, rec, http.StatusOK)
	var validation struct {
		Valid    bool            `json:"valid"`
		Discount decimal.Decimal `json:"discount"`
	}
	decodeData(t, envelope, &validation)
	if !validation.Valid || !validation.Discount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected validation: %s", string(envelope.Data))
	}

	rec, envelope = srv.do(t, http.MethodPost, "/api/v1/promo-codes/validate", map[string]any{"code": "NOPE", "cart_total": "10"}, userToken)
	expectStatus(t, rec, http.StatusOK)
	decodeData(t, envelope, &validation)
	if validation.Valid {
		t.Fatalf("unknown code must be reported invalid")
	}

	redeem := map[string]any{"code": "SAVE10", "cart_total": "100.00", "order_id": "ORD-5"}
	rec, envelope = srv.do(t, http.MethodPost, "/api/v1/promo-codes/redeem", redeem, userToken)
	expectStatus(t, rec, http.StatusOK)
	var redemption struct {
		Applied bool `json:"applied"`
	}
	decodeData(t, envelope, &redemption)
	if !redemption.Applied {
		t.Fatalf("expected redemption to apply: %s", string(envelope.Data))
	}

	rec, envelope = srv.do(t, http.MethodPost, "/api/v1/promo-codes/validate", cart, userToken)
	expectStatus(t, rec, http.StatusTooManyRequests)
	if envelope.Code != response.ErrTooManyRequests {
		t.Fatalf("expected rate limit app code, got %d", envelope.Code)
	}
}

// Not parallel: maintenance mode is process-wide.
func TestMaintenanceToggle_BlocksUserWrites(t *testing.T) {
	srv := newTestServer(t, 30)
	t.Cleanup(func() { middleware.SetMaintenanceMode(false) })

	adminToken := srv.token(t, uuid.New(), "admin")
	userToken := srv.token(t, uuid.New(), "user")

	rec, _ := srv.do(t, http.MethodPut, "/api/v1/admin/system/maintenance", map[string]any{"enabled": true}, adminToken)
	expectStatus(t, rec, http.StatusOK)

	rec, envelope := srv.do(t, http.MethodGet, "/api/v1/system/status", nil, "")
	expectStatus(t, rec, http.StatusOK)
	var status struct {
		Maintenance bool   `json:"maintenance"`
		Store       string `json:"store"`
	}
	decodeData(t, envelope, &status)
	if !status.Maintenance || status.Store != "ok" {
		t.Fatalf("unexpected status: %+v", status)
	}

	rec, _ = srv.do(t, http.MethodPost, "/api/v1/referral-codes", map[string]any{}, userToken)
	expectStatus(t, rec, http.StatusServiceUnavailable)

	rec, _ = srv.do(t, http.MethodGet, "/api/v1/cashback", nil, userToken)
	expectStatus(t, rec, http.StatusOK)

	rec, _ = srv.do(t, http.MethodPut, "/api/v1/admin/system/maintenance", map[string]any{"enabled": false}, adminToken)
	expectStatus(t, rec, http.StatusOK)

	rec, _ = srv.do(t, http.MethodPost, "/api/v1/referral-codes", map[string]any{}, userToken)
	expectStatus(t, rec, http.StatusCreated)
}
