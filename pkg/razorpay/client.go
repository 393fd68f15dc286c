package razorpay

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	rzp "github.com/razorpay/razorpay-go"

	"github.com/angelmondragon/kilnpay/pkg/config"
	"github.com/angelmondragon/kilnpay/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"

	maxNotes = 15
)

var (
	errKeyIDRequired     = errors.New("razorpay key id is required")
	errKeySecretRequired = errors.New("razorpay key secret is required")
	errInvalidEnv        = fmt.Errorf("razorpay environment must be %q or %q", testEnv, liveEnv)
)

type orderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// OrderRequest is the provider-side order to create. Amount is in minor units.
type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// Order is the subset of the provider's order resource the service relies on.
type Order struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	Status   string
}

// Client wraps the Razorpay SDK with the credentials of one environment.
type Client struct {
	orders      orderAPI
	keyID       string
	keySecret   string
	environment string
}

// NewClient validates credentials and initializes the SDK once.
func NewClient(ctx context.Context, cfg config.RazorpayConfig, flags config.FeatureFlagsConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		return nil, errKeyIDRequired
	}
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keySecret == "" {
		return nil, errKeySecretRequired
	}
	if !flags.AllowMismatchedRazorpayKeys {
		if err := validateKeyID(env, keyID); err != nil {
			return nil, err
		}
	}

	api := rzp.NewClient(keyID, keySecret)
	logg.Info(ctx, fmt.Sprintf("razorpay client initialized (%s)", env))

	return &Client{
		orders:      api.Order,
		keyID:       keyID,
		keySecret:   keySecret,
		environment: env,
	}, nil
}

// KeyID is the publishable key handed to checkout clients.
func (c *Client) KeyID() string {
	if c == nil {
		return ""
	}
	return c.keyID
}

// KeySecret signs payment callbacks. It must never leave the server.
func (c *Client) KeySecret() string {
	if c == nil {
		return ""
	}
	return c.keySecret
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// CreateOrder creates a provider order. The SDK has no context support, so the
// call runs on its own goroutine and ctx only bounds how long we wait for it.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if c == nil || c.orders == nil {
		return nil, errors.New("razorpay client not initialized")
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("order amount must be positive, got %d", req.Amount)
	}

	payload := map[string]interface{}{
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.Receipt,
	}
	if notes := trimNotes(req.Notes); len(notes) > 0 {
		payload["notes"] = notes
	}

	type result struct {
		body map[string]interface{}
		err  error
	}
	done := make(chan result, 1)
	go func() {
		body, err := c.orders.Create(payload, nil)
		done <- result{body: body, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("razorpay create order: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, &APIError{Message: res.err.Error(), cause: res.err}
		}
		return orderFromResponse(res.body)
	}
}

// APIError carries the provider's rejection message.
type APIError struct {
	Message string
	cause   error
}

func (e *APIError) Error() string {
	return "razorpay: " + e.Message
}

func (e *APIError) Unwrap() error {
	return e.cause
}

func orderFromResponse(body map[string]interface{}) (*Order, error) {
	if body == nil {
		return nil, errors.New("razorpay returned an empty order")
	}
	id, _ := body["id"].(string)
	if id == "" {
		return nil, errors.New("razorpay order response missing id")
	}
	order := &Order{ID: id}
	order.Currency, _ = body["currency"].(string)
	order.Receipt, _ = body["receipt"].(string)
	order.Status, _ = body["status"].(string)

	switch amount := body["amount"].(type) {
	case float64:
		order.Amount = int64(math.Round(amount))
	case int64:
		order.Amount = amount
	case int:
		order.Amount = int64(amount)
	default:
		return nil, fmt.Errorf("razorpay order %s has unexpected amount type %T", id, body["amount"])
	}
	return order, nil
}

func trimNotes(notes map[string]string) map[string]interface{} {
	if len(notes) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(notes))
	for k, v := range notes {
		if len(out) == maxNotes {
			break
		}
		if len(v) > 256 {
			v = v[:256]
		}
		out[k] = v
	}
	return out
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidEnv
	}
}

func validateKeyID(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "rzp_test_") {
			return nil
		}
		return fmt.Errorf("razorpay environment %q requires a test key id (rzp_test_)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "rzp_live_") {
			return nil
		}
		return fmt.Errorf("razorpay environment %q requires a live key id (rzp_live_)", liveEnv)
	default:
		return errInvalidEnv
	}
}
