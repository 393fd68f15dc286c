package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kilnpay/api/middleware"
	"github.com/angelmondragon/kilnpay/api/responses"
	"github.com/angelmondragon/kilnpay/api/validators"
	"github.com/angelmondragon/kilnpay/internal/payments"
	"github.com/angelmondragon/kilnpay/pkg/enums"
	pkgerrors "github.com/angelmondragon/kilnpay/pkg/errors"
	"github.com/angelmondragon/kilnpay/pkg/logger"
)

// IntentCreator opens provider orders for checkouts.
type IntentCreator interface {
	CreateOrderIntent(ctx context.Context, in payments.OrderIntentInput) (*payments.Intent, error)
	CreateRecordIntent(ctx context.Context, kind enums.PayableKind, rawID string, actorID *uuid.UUID) (*payments.RecordIntent, error)
}

// PaymentVerifier settles records from provider callbacks.
type PaymentVerifier interface {
	Verify(ctx context.Context, in payments.VerifyInput) (*payments.VerifyResult, error)
}

type orderIntentRequest struct {
	Amount   decimal.Decimal   `json:"amount"`
	Currency string            `json:"currency" validate:"required,len=3,alpha"`
	Receipt  string            `json:"receipt" validate:"required,max=40"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// callbackFields is what the checkout widget hands back after payment.
type callbackFields struct {
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

type verifyOrderRequest struct {
	callbackFields
	OrderID string `json:"order_id"`
}

type experienceIntentRequest struct {
	BookingID string `json:"booking_id"`
}

type verifyExperienceRequest struct {
	callbackFields
	BookingID string `json:"booking_id"`
}

type verifyResponse struct {
	Success           bool      `json:"success"`
	Verified          bool      `json:"verified"`
	RecordID          uuid.UUID `json:"recordId"`
	RazorpayOrderID   string    `json:"razorpayOrderId"`
	RazorpayPaymentID string    `json:"razorpayPaymentId"`
	PaidAt            time.Time `json:"paidAt"`
}

type experienceIntentResponse struct {
	payments.Intent
	BookingID uuid.UUID `json:"bookingId"`
}

// CreateOrderIntent opens a provider order for one of the caller's orders.
func CreateOrderIntent(svc IntentCreator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeConfiguration, "intent service unavailable"))
			return
		}
		userID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var payload orderIntentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		intent, err := svc.CreateOrderIntent(r.Context(), payments.OrderIntentInput{
			Amount:   payload.Amount,
			Currency: payload.Currency,
			Receipt:  payload.Receipt,
			Notes:    payload.Notes,
			ActorID:  userID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, intent)
	}
}

// VerifyOrderPayment settles a storefront order.
func VerifyOrderPayment(svc PaymentVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload verifyOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err, responses.WithVerified(false))
			return
		}
		verifyUserScoped(w, r, svc, logg, enums.PayableKindOrder, payload.OrderID, payload.callbackFields)
	}
}

// CreateExperienceIntent prices a booking from the stored record.
func CreateExperienceIntent(svc IntentCreator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeConfiguration, "intent service unavailable"))
			return
		}
		var payload experienceIntentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		intent, err := svc.CreateRecordIntent(r.Context(), enums.PayableKindExperienceBooking, payload.BookingID, middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, experienceIntentResponse{Intent: intent.Intent, BookingID: intent.Record.ID})
	}
}

// VerifyExperiencePayment settles an experience booking.
func VerifyExperiencePayment(svc PaymentVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload verifyExperienceRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err, responses.WithVerified(false))
			return
		}
		verifyUserScoped(w, r, svc, logg, enums.PayableKindExperienceBooking, payload.BookingID, payload.callbackFields)
	}
}

func verifyUserScoped(w http.ResponseWriter, r *http.Request, svc PaymentVerifier, logg *logger.Logger, kind enums.PayableKind, recordID string, cb callbackFields) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeConfiguration, "verification service unavailable"), responses.WithVerified(false))
		return
	}
	result, err := svc.Verify(r.Context(), payments.VerifyInput{
		Kind:              kind,
		RecordID:          recordID,
		ProviderOrderID:   cb.RazorpayOrderID,
		ProviderPaymentID: cb.RazorpayPaymentID,
		Signature:         cb.RazorpaySignature,
		ActorID:           middleware.ActorFromContext(r.Context()),
	})
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err, responses.WithVerified(false))
		return
	}
	responses.WriteSuccess(w, verifyResponse{
		Success:           true,
		Verified:          true,
		RecordID:          result.Record.ID,
		RazorpayOrderID:   result.Provider.OrderID,
		RazorpayPaymentID: result.Provider.PaymentID,
		PaidAt:            result.Provider.PaidAt,
	})
}
