package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kilnpay/api/responses"
	"github.com/angelmondragon/kilnpay/api/validators"
	"github.com/angelmondragon/kilnpay/internal/payments"
	"github.com/angelmondragon/kilnpay/pkg/db/models"
	"github.com/angelmondragon/kilnpay/pkg/enums"
	pkgerrors "github.com/angelmondragon/kilnpay/pkg/errors"
	"github.com/angelmondragon/kilnpay/pkg/logger"
)

const customOrderIDParam = "customOrderId"

// CustomOrderAdmin prices commissions and moves them through delivery.
type CustomOrderAdmin interface {
	SetEstimate(ctx context.Context, id uuid.UUID, price decimal.Decimal) (*models.CustomOrder, error)
	AdvanceStatus(ctx context.Context, id uuid.UUID, target enums.CustomOrderStatus) (*models.CustomOrder, error)
}

type customOrderIntentRequest struct {
	CustomOrderID string `json:"customOrderId"`
}

type customOrderIntentResponse struct {
	payments.Intent
	CustomerName  string    `json:"customerName"`
	CustomerEmail string    `json:"customerEmail"`
	CustomOrderID uuid.UUID `json:"customOrderId"`
}

type verifyCustomOrderRequest struct {
	callbackFields
	CustomOrderID string `json:"customOrderId"`
}

type customOrderVerifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type customOrderEstimateRequest struct {
	EstimatedPrice decimal.Decimal `json:"estimated_price"`
}

type customOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type customOrderResponse struct {
	ID             uuid.UUID        `json:"id"`
	CustomerName   string           `json:"customer_name"`
	CustomerEmail  string           `json:"customer_email"`
	Description    string           `json:"description"`
	EstimatedPrice *decimal.Decimal `json:"estimated_price,omitempty"`
	Status         string           `json:"status"`
	PaymentStatus  string           `json:"payment_status"`
	PaidAt         *time.Time       `json:"paid_at,omitempty"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// CreateCustomOrderIntent opens a provider order priced from the studio's
// estimate. Knowing the commission id is the only credential.
func CreateCustomOrderIntent(svc IntentCreator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeConfiguration, "intent service unavailable"))
			return
		}
		var payload customOrderIntentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		intent, err := svc.CreateRecordIntent(r.Context(), enums.PayableKindCustomOrder, payload.CustomOrderID, nil)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, customOrderIntentResponse{
			Intent:        intent.Intent,
			CustomerName:  intent.Record.CustomerName,
			CustomerEmail: intent.Record.CustomerEmail,
			CustomOrderID: intent.Record.ID,
		})
	}
}

// VerifyCustomOrderPayment settles a commission from the widget callback.
func VerifyCustomOrderPayment(svc PaymentVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeConfiguration, "verification service unavailable"))
			return
		}
		var payload verifyCustomOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		_, err := svc.Verify(r.Context(), payments.VerifyInput{
			Kind:              enums.PayableKindCustomOrder,
			RecordID:          payload.CustomOrderID,
			ProviderOrderID:   payload.RazorpayOrderID,
			ProviderPaymentID: payload.RazorpayPaymentID,
			Signature:         payload.RazorpaySignature,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, customOrderVerifyResponse{Success: true, Message: "Payment verified successfully"})
	}
}

func AdminSetCustomOrderEstimate(svc CustomOrderAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeConfiguration, "custom order service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, customOrderIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload customOrderEstimateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.SetEstimate(r.Context(), id, payload.EstimatedPrice)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCustomOrderResponse(order))
	}
}

func AdminAdvanceCustomOrderStatus(svc CustomOrderAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeConfiguration, "custom order service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, customOrderIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload customOrderStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.AdvanceStatus(r.Context(), id, enums.CustomOrderStatus(payload.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCustomOrderResponse(order))
	}
}

func newCustomOrderResponse(order *models.CustomOrder) customOrderResponse {
	if order == nil {
		return customOrderResponse{}
	}
	resp := customOrderResponse{
		ID:            order.ID,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		Description:   order.Description,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		PaidAt:        order.PaidAt,
		UpdatedAt:     order.UpdatedAt,
	}
	if order.EstimatedPrice.Valid {
		price := order.EstimatedPrice.Decimal
		resp.EstimatedPrice = &price
	}
	return resp
}
