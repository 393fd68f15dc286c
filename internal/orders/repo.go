package orders

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

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// BindRazorpayOrder records the provider order for an unpaid order whose total
// is still amount. A later bind replaces the earlier provider order.
func (r *repository) BindRazorpayOrder(ctx context.Context, id uuid.UUID, razorpayOrderID string, amount decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status <> ? AND status <> ?", id, enums.PaymentStatusPaid, enums.OrderStatusCancelled).
		Where("total_amount = ?", amount).
		Updates(map[string]any{
			"razorpay_order_id": razorpayOrderID,
			"payment_status":    enums.PaymentStatusPending,
		})
	return res.RowsAffected == 1, res.Error
}

// MarkPaid settles the order only through the provider order bound to it.
func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, razorpayOrderID, razorpayPaymentID string, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status <> ?", id, enums.PaymentStatusPaid).
		Where("razorpay_order_id = ?", razorpayOrderID).
		Updates(map[string]any{
			"payment_status":      enums.PaymentStatusPaid,
			"status":              enums.OrderStatusConfirmed,
			"razorpay_order_id":   razorpayOrderID,
			"razorpay_payment_id": razorpayPaymentID,
			"paid_at":             paidAt,
		})
	return res.RowsAffected == 1, res.Error
}
