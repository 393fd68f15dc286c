package customorders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/kilnpay/pkg/db/models"
	"github.com/angelmondragon/kilnpay/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.CustomOrder) (*models.CustomOrder, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CustomOrder, error) {
	var order models.CustomOrder
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// SetEstimate prices a request that has not been paid. Any provider order
// opened for an earlier price is unbound, and verification refuses unbound
// records, so the customer has to open a payment at the new price.
func (r *repository) SetEstimate(ctx context.Context, id uuid.UUID, price decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CustomOrder{}).
		Where("id = ? AND payment_status <> ?", id, enums.PaymentStatusPaid).
		Where("status IN ?", []string{string(enums.CustomOrderStatusRequested), string(enums.CustomOrderStatusPaymentPending)}).
		Updates(map[string]any{
			"estimated_price":   price,
			"status":            enums.CustomOrderStatusPaymentPending,
			"payment_status":    enums.PaymentStatusUnpaid,
			"razorpay_order_id": nil,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.CustomOrderStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CustomOrder{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return res.RowsAffected == 1, res.Error
}

// BindRazorpayOrder fails when the estimate moved since the intent was priced.
func (r *repository) BindRazorpayOrder(ctx context.Context, id uuid.UUID, razorpayOrderID string, price decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CustomOrder{}).
		Where("id = ? AND payment_status <> ? AND status = ?", id, enums.PaymentStatusPaid, enums.CustomOrderStatusPaymentPending).
		Where("estimated_price = ?", price).
		Updates(map[string]any{
			"razorpay_order_id": razorpayOrderID,
			"payment_status":    enums.PaymentStatusPending,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, razorpayOrderID, razorpayPaymentID string, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CustomOrder{}).
		Where("id = ? AND payment_status <> ? AND status = ?", id, enums.PaymentStatusPaid, enums.CustomOrderStatusPaymentPending).
		Where("razorpay_order_id = ?", razorpayOrderID).
		Updates(map[string]any{
			"payment_status":      enums.PaymentStatusPaid,
			"status":              enums.CustomOrderStatusPaymentDone,
			"razorpay_order_id":   razorpayOrderID,
			"razorpay_payment_id": razorpayPaymentID,
			"paid_at":             paidAt,
		})
	return res.RowsAffected == 1, res.Error
}
