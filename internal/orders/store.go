package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/kilnpay/internal/payments"
	"github.com/angelmondragon/kilnpay/pkg/db"
	"github.com/angelmondragon/kilnpay/pkg/db/models"
	"github.com/angelmondragon/kilnpay/pkg/enums"
	pkgerrors "github.com/angelmondragon/kilnpay/pkg/errors"
)

const paymentIDConstraint = "ux_orders_razorpay_payment_id"

// Store adapts orders to the payment pipeline.
type Store struct {
	repo Repository
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo}
}

func (s *Store) Kind() enums.PayableKind { return enums.PayableKindOrder }

func (s *Store) RecordField() string { return "order_id" }

func (s *Store) UserScoped() bool { return true }

func (s *Store) ConfirmationKind() enums.NotificationKind {
	return enums.NotificationKindOrderConfirmed
}

func (s *Store) Load(ctx context.Context, id uuid.UUID) (*payments.Payable, error) {
	order, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return toPayable(order), nil
}

func (s *Store) CheckPayable(p *payments.Payable) error {
	if enums.OrderStatus(p.Status) == enums.OrderStatusCancelled {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order has been cancelled")
	}
	return nil
}

func (s *Store) BindProviderOrder(ctx context.Context, id uuid.UUID, providerOrderID string, amount decimal.Decimal) error {
	ok, err := s.repo.BindRazorpayOrder(ctx, id, providerOrderID, amount)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bind razorpay order")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed while opening payment")
	}
	return nil
}

func (s *Store) MarkPaid(ctx context.Context, tx *gorm.DB, id uuid.UUID, ref payments.ProviderRef) (bool, error) {
	ok, err := s.repo.WithTx(tx).MarkPaid(ctx, id, ref.OrderID, ref.PaymentID, ref.PaidAt)
	if db.IsUniqueViolation(err, paymentIDConstraint) {
		return false, pkgerrors.New(pkgerrors.CodeConflict, "payment already applied to another order")
	}
	return ok, err
}

func toPayable(order *models.Order) *payments.Payable {
	owner := order.UserID
	return &payments.Payable{
		Kind:            enums.PayableKindOrder,
		ID:              order.ID,
		OwnerID:         &owner,
		Amount:          order.TotalAmount,
		PaymentStatus:   order.PaymentStatus,
		Status:          string(order.Status),
		ProviderOrderID: order.RazorpayOrderID,
		CustomerName:    order.CustomerName,
		CustomerEmail:   order.CustomerEmail,
	}
}
