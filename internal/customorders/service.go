package customorders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/kilnpay/internal/payments"
	"github.com/angelmondragon/kilnpay/pkg/db/models"
	"github.com/angelmondragon/kilnpay/pkg/enums"
	pkgerrors "github.com/angelmondragon/kilnpay/pkg/errors"
	"github.com/angelmondragon/kilnpay/pkg/logger"
)

// AdminService is the studio's side of a commission: pricing it and moving it
// through production and delivery.
type AdminService interface {
	SetEstimate(ctx context.Context, id uuid.UUID, price decimal.Decimal) (*models.CustomOrder, error)
	AdvanceStatus(ctx context.Context, id uuid.UUID, target enums.CustomOrderStatus) (*models.CustomOrder, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Notifier  payments.Notifier
	MaxAmount int64
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	tx        txRunner
	notifier  payments.Notifier
	maxAmount decimal.Decimal
	logg      *logger.Logger
}

func NewService(params ServiceParams) (AdminService, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "custom orders repository required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	svc := &service{
		repo:     params.Repo,
		tx:       params.Tx,
		notifier: params.Notifier,
		logg:     params.Logger,
	}
	if params.MaxAmount > 0 {
		svc.maxAmount = decimal.NewFromInt(params.MaxAmount)
	}
	return svc, nil
}

func (s *service) SetEstimate(ctx context.Context, id uuid.UUID, price decimal.Decimal) (*models.CustomOrder, error) {
	if !price.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "estimated_price must be greater than zero")
	}
	if !price.Equal(price.Round(2)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "estimated_price supports at most two decimal places")
	}
	if !s.maxAmount.IsZero() && price.GreaterThan(s.maxAmount) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("estimated_price must not exceed %s", s.maxAmount.String()))
	}

	var updated *models.CustomOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.SetEstimate(ctx, id, price)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set estimate")
		}
		current, err := repo.FindByID(ctx, id)
		if err != nil {
			return mapLookupError(err)
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("custom order in status %s cannot be re-priced", current.Status)).
				WithDetails(map[string]any{"status": current.Status})
		}
		updated = current
		s.notifyStatus(ctx, tx, current, fmt.Sprintf("%s:%s", current.Status, price.StringFixed(2)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithRecord(ctx, string(enums.PayableKindCustomOrder), id.String()), "custom order estimate set")
	return updated, nil
}

// AdvanceStatus moves a paid commission one step along its production
// lifecycle. Payment itself is only recorded by the verifier.
func (s *service) AdvanceStatus(ctx context.Context, id uuid.UUID, target enums.CustomOrderStatus) (*models.CustomOrder, error) {
	if !target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown status %q", target))
	}
	if !target.PaymentCompleted() || target == enums.CustomOrderStatusPaymentDone {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be one of in_progress, in_delivery, delivered")
	}

	var updated *models.CustomOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, id)
		if err != nil {
			return mapLookupError(err)
		}
		next, ok := current.Status.Next()
		if !ok || next != target {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move custom order from %s to %s", current.Status, target)).
				WithDetails(map[string]any{"status": current.Status, "target": target})
		}
		moved, err := repo.TransitionStatus(ctx, id, current.Status, target)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transition status")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "custom order changed concurrently")
		}
		current.Status = target
		updated = current
		s.notifyStatus(ctx, tx, current, string(target))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithRecord(ctx, string(enums.PayableKindCustomOrder), id.String()), fmt.Sprintf("custom order moved to %s", target))
	return updated, nil
}

func (s *service) notifyStatus(ctx context.Context, tx *gorm.DB, order *models.CustomOrder, dedupeSuffix string) {
	if s.notifier == nil {
		return
	}
	details := map[string]string{"status": string(order.Status)}
	if order.EstimatedPrice.Valid {
		details["estimated_price"] = order.EstimatedPrice.Decimal.StringFixed(2)
	}
	n := payments.Notification{
		Kind:      enums.NotificationKindCustomStatusChanged,
		Record:    toPayable(order),
		Details:   details,
		DedupeKey: fmt.Sprintf("%s:%s:%s", enums.NotificationKindCustomStatusChanged, order.ID, dedupeSuffix),
	}
	if err := s.notifier.Notify(ctx, tx, n); err != nil {
		s.logg.Error(ctx, "record custom order status notification", err)
	}
}
