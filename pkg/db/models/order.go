package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kilnpay/pkg/enums"
)

// Order is a storefront checkout owned by a signed-in customer.
type Order struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID            uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	TotalAmount       decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Status            enums.OrderStatus   `gorm:"column:status;not null;default:'pending'"`
	PaymentStatus     enums.PaymentStatus `gorm:"column:payment_status;not null;default:'unpaid'"`
	CustomerName      string              `gorm:"column:customer_name;not null"`
	CustomerEmail     string              `gorm:"column:customer_email;not null"`
	RazorpayOrderID   *string             `gorm:"column:razorpay_order_id"`
	RazorpayPaymentID *string             `gorm:"column:razorpay_payment_id"`
	PaidAt            *time.Time          `gorm:"column:paid_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }
