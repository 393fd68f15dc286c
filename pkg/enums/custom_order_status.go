package enums

import "fmt"

// CustomOrderStatus is the lifecycle of a commissioned piece:
// requested -> payment_pending -> payment_done -> in_progress -> in_delivery -> delivered.
type CustomOrderStatus string

const (
	CustomOrderStatusRequested      CustomOrderStatus = "requested"
	CustomOrderStatusPaymentPending CustomOrderStatus = "payment_pending"
	CustomOrderStatusPaymentDone    CustomOrderStatus = "payment_done"
	CustomOrderStatusInProgress     CustomOrderStatus = "in_progress"
	CustomOrderStatusInDelivery     CustomOrderStatus = "in_delivery"
	CustomOrderStatusDelivered      CustomOrderStatus = "delivered"
)

var customOrderLifecycle = []CustomOrderStatus{
	CustomOrderStatusRequested,
	CustomOrderStatusPaymentPending,
	CustomOrderStatusPaymentDone,
	CustomOrderStatusInProgress,
	CustomOrderStatusInDelivery,
	CustomOrderStatusDelivered,
}

func (s CustomOrderStatus) String() string {
	return string(s)
}

func (s CustomOrderStatus) IsValid() bool {
	return s.position() >= 0
}

// PaymentCompleted reports whether the lifecycle is already past payment.
func (s CustomOrderStatus) PaymentCompleted() bool {
	return s.position() >= CustomOrderStatusPaymentDone.position()
}

// Next returns the status that follows s, if any.
func (s CustomOrderStatus) Next() (CustomOrderStatus, bool) {
	pos := s.position()
	if pos < 0 || pos+1 >= len(customOrderLifecycle) {
		return "", false
	}
	return customOrderLifecycle[pos+1], true
}

func (s CustomOrderStatus) position() int {
	for i, candidate := range customOrderLifecycle {
		if candidate == s {
			return i
		}
	}
	return -1
}

func ParseCustomOrderStatus(value string) (CustomOrderStatus, error) {
	for _, candidate := range customOrderLifecycle {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid custom order status %q", value)
}
