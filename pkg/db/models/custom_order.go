package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kilnpay/pkg/enums"
)

// CustomOrder is a commissioned piece. The studio sets EstimatedPrice before
// the customer can pay, and the customer may not have an account.
type CustomOrder struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID            *uuid.UUID              `gorm:"column:user_id;type:uuid"`
	CustomerName      string                  `gorm:"column:customer_name;not null"`
	CustomerEmail     string                  `gorm:"column:customer_email;not null"`
	Description       string                  `gorm:"column:description;not null"`
	EstimatedPrice    decimal.NullDecimal     `gorm:"column:estimated_price;type:numeric(12,2)"`
	Status            enums.CustomOrderStatus `gorm:"column:status;not null;default:'requested'"`
	PaymentStatus     enums.PaymentStatus     `gorm:"column:payment_status;not null;default:'unpaid'"`
	RazorpayOrderID   *string                 `gorm:"column:razorpay_order_id"`
	RazorpayPaymentID *string                 `gorm:"column:razorpay_payment_id"`
	PaidAt            *time.Time              `gorm:"column:paid_at"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (CustomOrder) TableName() string { return "custom_orders" }
