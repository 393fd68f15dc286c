package razorpay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/kilnpay/pkg/config"
)

type fakeOrderAPI struct {
	lastPayload map[string]interface{}
	response    map[string]interface{}
	err         error
	block       chan struct{}
}

func (f *fakeOrderAPI) Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error) {
	if f.block != nil {
		<-f.block
	}
	f.lastPayload = data
	return f.response, f.err
}

func TestNewClientValidatesCredentials(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.RazorpayConfig{KeySecret: "s"}, config.FeatureFlagsConfig{}, nil); !errors.Is(err, errKeyIDRequired) {
		t.Fatalf("expected key id error, got %v", err)
	}
	if _, err := NewClient(ctx, config.RazorpayConfig{KeyID: "rzp_test_1"}, config.FeatureFlagsConfig{}, nil); !errors.Is(err, errKeySecretRequired) {
		t.Fatalf("expected key secret error, got %v", err)
	}
	if _, err := NewClient(ctx, config.RazorpayConfig{KeyID: "rzp_live_1", KeySecret: "s", Env: "test"}, config.FeatureFlagsConfig{}, nil); err == nil {
		t.Fatal("expected live key in test env to be rejected")
	}
	if _, err := NewClient(ctx, config.RazorpayConfig{KeyID: "rzp_live_1", KeySecret: "s", Env: "test"}, config.FeatureFlagsConfig{AllowMismatchedRazorpayKeys: true}, nil); err != nil {
		t.Fatalf("flag should bypass key prefix check: %v", err)
	}
	if _, err := NewClient(ctx, config.RazorpayConfig{KeyID: "rzp_test_1", KeySecret: "s", Env: "sandbox"}, config.FeatureFlagsConfig{}, nil); !errors.Is(err, errInvalidEnv) {
		t.Fatalf("expected invalid env error, got %v", err)
	}

	client, err := NewClient(ctx, config.RazorpayConfig{KeyID: " rzp_test_1 ", KeySecret: "secret"}, config.FeatureFlagsConfig{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.KeyID() != "rzp_test_1" || client.KeySecret() != "secret" || client.Environment() != "test" {
		t.Fatalf("unexpected client state %+v", client)
	}
}

func TestCreateOrderMapsRequestAndResponse(t *testing.T) {
	api := &fakeOrderAPI{response: map[string]interface{}{
		"id":       "order_abc",
		"amount":   float64(50000),
		"currency": "INR",
		"receipt":  "rcpt-1",
		"status":   "created",
	}}
	client := &Client{orders: api}

	order, err := client.CreateOrder(context.Background(), OrderRequest{
		Amount:   50000,
		Currency: "INR",
		Receipt:  "rcpt-1",
		Notes:    map[string]string{"user_id": "u-1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.ID != "order_abc" || order.Amount != 50000 || order.Currency != "INR" || order.Status != "created" {
		t.Fatalf("unexpected order %+v", order)
	}
	if api.lastPayload["amount"] != int64(50000) {
		t.Fatalf("amount not forwarded in minor units: %v", api.lastPayload["amount"])
	}
	notes, ok := api.lastPayload["notes"].(map[string]interface{})
	if !ok || notes["user_id"] != "u-1" {
		t.Fatalf("notes not forwarded: %v", api.lastPayload["notes"])
	}
}

func TestCreateOrderWrapsProviderError(t *testing.T) {
	client := &Client{orders: &fakeOrderAPI{err: errors.New("The amount must be atleast INR 1.00")}}
	_, err := client.CreateOrder(context.Background(), OrderRequest{Amount: 10, Currency: "INR", Receipt: "r"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "The amount must be atleast INR 1.00" {
		t.Fatalf("unexpected message %q", apiErr.Message)
	}
}

func TestCreateOrderHonorsContext(t *testing.T) {
	api := &fakeOrderAPI{block: make(chan struct{})}
	defer close(api.block)
	client := &Client{orders: api}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := client.CreateOrder(ctx, OrderRequest{Amount: 100, Currency: "INR", Receipt: "r"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestOrderFromResponseRejectsMissingID(t *testing.T) {
	if _, err := orderFromResponse(map[string]interface{}{"amount": float64(1)}); err == nil {
		t.Fatal("expected missing id error")
	}
	if _, err := orderFromResponse(map[string]interface{}{"id": "order_x", "amount": "100"}); err == nil {
		t.Fatal("expected amount type error")
	}
}
