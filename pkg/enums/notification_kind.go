package enums

import "fmt"

// NotificationKind is the transactional e-mail event emitted after a state change.
type NotificationKind string

const (
	NotificationKindOrderConfirmed         NotificationKind = "order_confirmed"
	NotificationKindCustomPaymentConfirmed NotificationKind = "custom_payment_confirmed"
	NotificationKindExperienceConfirmed    NotificationKind = "experience_confirmed"
	NotificationKindCustomStatusChanged    NotificationKind = "custom_status_changed"
)

var validNotificationKinds = []NotificationKind{
	NotificationKindOrderConfirmed,
	NotificationKindCustomPaymentConfirmed,
	NotificationKindExperienceConfirmed,
	NotificationKindCustomStatusChanged,
}

func (k NotificationKind) String() string {
	return string(k)
}

func (k NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
