package routes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kilnpay/internal/payments"
	pkgAuth "github.com/angelmondragon/kilnpay/pkg/auth"
	"github.com/angelmondragon/kilnpay/pkg/config"
	"github.com/angelmondragon/kilnpay/pkg/db/models"
	"github.com/angelmondragon/kilnpay/pkg/enums"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubIntents struct {
	orderCalls int
}

func (s *stubIntents) CreateOrderIntent(ctx context.Context, in payments.OrderIntentInput) (*payments.Intent, error) {
	s.orderCalls++
	return &payments.Intent{OrderID: fmt.Sprintf("order_%d", s.orderCalls), Amount: 50000, Currency: "INR", KeyID: "rzp_test_kiln"}, nil
}

func (s *stubIntents) CreateRecordIntent(ctx context.Context, kind enums.PayableKind, rawID string, actorID *uuid.UUID) (*payments.RecordIntent, error) {
	return &payments.RecordIntent{
		Intent: payments.Intent{OrderID: "order_rec", Amount: 100000, Currency: "INR", KeyID: "rzp_test_kiln"},
		Record: &payments.Payable{ID: uuid.New()},
	}, nil
}

type stubVerifier struct{}

func (stubVerifier) Verify(ctx context.Context, in payments.VerifyInput) (*payments.VerifyResult, error) {
	return &payments.VerifyResult{Record: &payments.Payable{ID: uuid.New()}}, nil
}

type stubAdmin struct{}

func (stubAdmin) SetEstimate(ctx context.Context, id uuid.UUID, price decimal.Decimal) (*models.CustomOrder, error) {
	return &models.CustomOrder{ID: id, Status: enums.CustomOrderStatusPaymentPending}, nil
}

func (stubAdmin) AdvanceStatus(ctx context.Context, id uuid.UUID, target enums.CustomOrderStatus) (*models.CustomOrder, error) {
	return &models.CustomOrder{ID: id, Status: target}, nil
}

type memoryStore struct {
	data map[string]string
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App:  config.AppConfig{Env: "test"},
		JWT:  config.JWTConfig{Secret: "router-test-secret-router-test-secret", Audience: "authenticated"},
		CORS: config.CORSConfig{AllowedOrigins: []string{"https://studio.example"}},
	}
}

func newTestRouter(cfg *config.Config, intents *stubIntents) http.Handler {
	return NewRouter(RouterParams{
		Config:       cfg,
		DB:           stubPinger{},
		Redis:        stubPinger{},
		Idempotency:  &memoryStore{data: map[string]string{}},
		Intents:      intents,
		Verifier:     stubVerifier{},
		CustomOrders: stubAdmin{},
	})
}

func bearer(t *testing.T, cfg *config.Config, admin bool) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: uuid.New(), Admin: admin})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + token
}

func serve(router http.Handler, method, path, auth, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthRoutes(t *testing.T) {
	router := newTestRouter(testConfig(), &stubIntents{})
	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		if resp := serve(router, http.MethodGet, path, "", "", nil); resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.Code)
		}
	}
}

func TestPaymentRoutesRequireBearer(t *testing.T) {
	router := newTestRouter(testConfig(), &stubIntents{})
	for _, path := range []string{
		"/api/v1/payments/orders",
		"/api/v1/payments/orders/verify",
		"/api/v1/payments/experiences/intent",
		"/api/v1/payments/experiences/verify",
	} {
		if resp := serve(router, http.MethodPost, path, "", `{}`, nil); resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, resp.Code)
		}
	}
}

func TestPublicCustomOrderRoutesSkipAuth(t *testing.T) {
	router := newTestRouter(testConfig(), &stubIntents{})
	for _, path := range []string{"/api/public/v1/custom-orders/intent", "/api/public/v1/custom-orders/verify"} {
		if resp := serve(router, http.MethodPost, path, "", `{"customOrderId":"x"}`, nil); resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.Code)
		}
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, &stubIntents{})
	path := "/api/admin/v1/custom-orders/" + uuid.NewString() + "/status"
	body := `{"status":"in_progress"}`

	if resp := serve(router, http.MethodPost, path, "", body, nil); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	if resp := serve(router, http.MethodPost, path, bearer(t, cfg, false), body, nil); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
	if resp := serve(router, http.MethodPost, path, bearer(t, cfg, true), body, nil); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestOptionsShortCircuits(t *testing.T) {
	router := newTestRouter(testConfig(), &stubIntents{})
	resp := serve(router, http.MethodOptions, "/api/v1/payments/orders/verify", "", "", map[string]string{
		"Origin":                        "https://studio.example",
		"Access-Control-Request-Method": http.MethodPost,
	})
	if resp.Body.Len() != 0 {
		t.Fatalf("preflight must have no body")
	}
	if resp.Header().Get("Access-Control-Allow-Origin") != "https://studio.example" {
		t.Fatalf("missing CORS headers")
	}

	resp = serve(router, http.MethodOptions, "/api/v1/payments/orders", "", "", nil)
	if resp.Code != http.StatusNoContent || resp.Body.Len() != 0 {
		t.Fatalf("expected empty 204, got %d", resp.Code)
	}
}

func TestOrderIntentIdempotencyReplay(t *testing.T) {
	cfg := testConfig()
	intents := &stubIntents{}
	router := newTestRouter(cfg, intents)
	auth := bearer(t, cfg, false)
	body := `{"amount":500,"currency":"INR","receipt":"rcpt_1"}`
	headers := map[string]string{"Idempotency-Key": "checkout-1"}

	first := serve(router, http.MethodPost, "/api/v1/payments/orders", auth, body, headers)
	second := serve(router, http.MethodPost, "/api/v1/payments/orders", auth, body, headers)

	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("unexpected statuses %d %d", first.Code, second.Code)
	}
	if intents.orderCalls != 1 {
		t.Fatalf("expected one provider order, got %d", intents.orderCalls)
	}
	if second.Header().Get("Idempotent-Replayed") != "true" || first.Body.String() != second.Body.String() {
		t.Fatalf("expected replayed response")
	}
}
