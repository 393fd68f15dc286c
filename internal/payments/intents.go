package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kilnpay/pkg/enums"
	pkgerrors "github.com/angelmondragon/kilnpay/pkg/errors"
	"github.com/angelmondragon/kilnpay/pkg/logger"
	"github.com/angelmondragon/kilnpay/pkg/metrics"
	"github.com/angelmondragon/kilnpay/pkg/razorpay"
)

const (
	maxReceiptLength = 40
	maxNotes         = 15
	// minimum order the gateway accepts, in minor units
	minOrderAmount = 100

	noteUserID     = "user_id"
	noteRecordKind = "record_kind"
	noteRecordID   = "record_id"
)

var receiptPrefixes = map[enums.PayableKind]string{
	enums.PayableKindOrder:             "or_",
	enums.PayableKindCustomOrder:       "co_",
	enums.PayableKindExperienceBooking: "eb_",
}

// OrderIntentInput is a client-priced checkout. Amount is in major units.
type OrderIntentInput struct {
	Amount   decimal.Decimal
	Currency string
	Receipt  string
	Notes    map[string]string
	ActorID  uuid.UUID
}

// Intent carries what a checkout client needs to open the payment sheet.
// It never includes the key secret.
type Intent struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"keyId"`
}

// RecordIntent is an intent priced from a stored record.
type RecordIntent struct {
	Intent
	Record *Payable
}

type IntentParams struct {
	Provider  Provider
	Stores    []Store
	Currency  string
	MaxAmount int64
	Timeout   time.Duration
	Metrics   *metrics.PaymentMetrics
	Logger    *logger.Logger
}

// IntentCreator opens provider orders.
type IntentCreator struct {
	provider  Provider
	stores    map[enums.PayableKind]Store
	currency  string
	maxAmount decimal.Decimal
	timeout   time.Duration
	metrics   *metrics.PaymentMetrics
	logg      *logger.Logger
}

func NewIntentCreator(params IntentParams) (*IntentCreator, error) {
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if len(currency) != 3 {
		return nil, fmt.Errorf("currency must be a 3-letter code, got %q", params.Currency)
	}
	if params.MaxAmount <= 0 {
		return nil, fmt.Errorf("max amount must be positive")
	}
	return &IntentCreator{
		provider:  params.Provider,
		stores:    indexStores(params.Stores),
		currency:  currency,
		maxAmount: decimal.NewFromInt(params.MaxAmount),
		timeout:   params.Timeout,
		metrics:   params.Metrics,
		logg:      params.Logger,
	}, nil
}

// CreateOrderIntent validates a client-priced checkout against the order named
// by its receipt, opens a provider order for it and binds that provider order
// to the local order. The receipt is the order id, optionally prefixed "or_".
func (c *IntentCreator) CreateOrderIntent(ctx context.Context, in OrderIntentInput) (*Intent, error) {
	intent, err := c.createOrderIntent(ctx, in)
	c.metrics.IncIntent(string(enums.PayableKindOrder), outcomeOf(err, "created"))
	return intent, err
}

func (c *IntentCreator) createOrderIntent(ctx context.Context, in OrderIntentInput) (*Intent, error) {
	if err := c.checkProvider(ctx); err != nil {
		return nil, err
	}
	if in.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}

	minor, err := c.validateAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	if strings.ToUpper(strings.TrimSpace(in.Currency)) != c.currency {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("currency must be %s", c.currency))
	}
	receipt := strings.TrimSpace(in.Receipt)
	if receipt == "" || len(receipt) > maxReceiptLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("receipt must be 1-%d characters", maxReceiptLength))
	}
	orderID, err := orderIDFromReceipt(receipt)
	if err != nil {
		return nil, err
	}

	notes := make(map[string]string, len(in.Notes)+1)
	for k, v := range in.Notes {
		notes[k] = v
	}
	notes[noteUserID] = in.ActorID.String()
	if len(notes) > maxNotes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("notes may carry at most %d keys", maxNotes-1))
	}

	store, ok := c.stores[enums.PayableKindOrder]
	if !ok {
		c.logg.Error(ctx, "order store not configured", nil)
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "orders are not configured")
	}
	ctx = c.logg.WithRecord(ctx, string(enums.PayableKindOrder), orderID.String())
	actor := in.ActorID
	record, err := c.loadPayable(ctx, store, orderID, &actor)
	if err != nil {
		return nil, err
	}
	expected, err := ToMinorUnits(record.Amount)
	if err != nil || expected != minor {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount does not match the order total").
			WithDetails(map[string]any{"order_total": record.Amount.StringFixed(2)})
	}

	intent, err := c.open(ctx, razorpay.OrderRequest{
		Amount:   minor,
		Currency: c.currency,
		Receipt:  receipt,
		Notes:    notes,
	})
	if err != nil {
		return nil, err
	}
	if err := store.BindProviderOrder(ctx, orderID, intent.OrderID, record.Amount); err != nil {
		return nil, err
	}
	return intent, nil
}

// CreateRecordIntent prices an intent from the stored record instead of the
// client and binds the resulting provider order to the record.
func (c *IntentCreator) CreateRecordIntent(ctx context.Context, kind enums.PayableKind, rawID string, actorID *uuid.UUID) (*RecordIntent, error) {
	intent, err := c.createRecordIntent(ctx, kind, rawID, actorID)
	c.metrics.IncIntent(string(kind), outcomeOf(err, "created"))
	return intent, err
}

func (c *IntentCreator) createRecordIntent(ctx context.Context, kind enums.PayableKind, rawID string, actorID *uuid.UUID) (*RecordIntent, error) {
	store, ok := c.stores[kind]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payable kind %q", kind))
	}
	if err := c.checkProvider(ctx); err != nil {
		return nil, err
	}
	recordID, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s must be a valid UUID", store.RecordField()))
	}
	ctx = c.logg.WithRecord(ctx, string(kind), recordID.String())

	record, err := c.loadPayable(ctx, store, recordID, actorID)
	if err != nil {
		return nil, err
	}

	minor, err := c.validateAmount(record.Amount)
	if err != nil {
		return nil, err
	}

	notes := map[string]string{
		noteRecordKind: string(kind),
		noteRecordID:   recordID.String(),
	}
	if actorID != nil {
		notes[noteUserID] = actorID.String()
	}
	intent, err := c.open(ctx, razorpay.OrderRequest{
		Amount:   minor,
		Currency: c.currency,
		Receipt:  receiptPrefixes[kind] + recordID.String(),
		Notes:    notes,
	})
	if err != nil {
		return nil, err
	}

	if err := store.BindProviderOrder(ctx, recordID, intent.OrderID, record.Amount); err != nil {
		return nil, err
	}
	orderID := intent.OrderID
	record.ProviderOrderID = &orderID

	return &RecordIntent{Intent: *intent, Record: record}, nil
}

// loadPayable applies the gates every intent shares: the record exists, the
// caller owns it where ownership applies, and it can still be paid.
func (c *IntentCreator) loadPayable(ctx context.Context, store Store, id uuid.UUID, actorID *uuid.UUID) (*Payable, error) {
	record, err := store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if store.UserScoped() {
		if actorID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
		}
		if !record.OwnedBy(*actorID) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "record not owned by caller")
		}
	}
	if record.Paid() {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyPaid, "payment already completed")
	}
	if err := store.CheckPayable(record); err != nil {
		return nil, err
	}
	return record, nil
}

func orderIDFromReceipt(receipt string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimPrefix(receipt, receiptPrefixes[enums.PayableKindOrder]))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "receipt must reference an order id")
	}
	return id, nil
}

func (c *IntentCreator) open(ctx context.Context, req razorpay.OrderRequest) (*Intent, error) {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	order, err := c.provider.CreateOrder(callCtx, req)
	if err != nil {
		c.logg.Error(ctx, "razorpay order creation failed", err)
		var apiErr *razorpay.APIError
		if errors.As(err, &apiErr) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, apiErr.Message)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "payment provider unavailable")
	}

	c.logg.Info(ctx, fmt.Sprintf("razorpay order %s created", order.ID))
	currency := order.Currency
	if currency == "" {
		currency = req.Currency
	}
	return &Intent{
		OrderID:  order.ID,
		Amount:   order.Amount,
		Currency: currency,
		KeyID:    c.provider.KeyID(),
	}, nil
}

func (c *IntentCreator) validateAmount(major decimal.Decimal) (int64, error) {
	if !major.IsPositive() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if major.GreaterThan(c.maxAmount) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("amount must not exceed %s", c.maxAmount.String()))
	}
	minor, err := ToMinorUnits(major)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "amount out of range")
	}
	if minor < minOrderAmount {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("amount must be at least %s", FromMinorUnits(minOrderAmount).StringFixed(2)))
	}
	return minor, nil
}

func (c *IntentCreator) checkProvider(ctx context.Context) error {
	if c.provider == nil || c.provider.KeyID() == "" {
		c.logg.Error(ctx, "razorpay credentials not configured", nil)
		return pkgerrors.New(pkgerrors.CodeConfiguration, "razorpay credentials missing")
	}
	return nil
}
