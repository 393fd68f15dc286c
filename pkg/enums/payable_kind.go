package enums

import "fmt"

// PayableKind names the kind of local record a payment settles.
type PayableKind string

const (
	PayableKindOrder             PayableKind = "order"
	PayableKindCustomOrder       PayableKind = "custom_order"
	PayableKindExperienceBooking PayableKind = "experience_booking"
)

var validPayableKinds = []PayableKind{
	PayableKindOrder,
	PayableKindCustomOrder,
	PayableKindExperienceBooking,
}

// String implements fmt.Stringer.
func (k PayableKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known PayableKind.
func (k PayableKind) IsValid() bool {
	for _, candidate := range validPayableKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParsePayableKind converts raw input into a PayableKind.
func ParsePayableKind(value string) (PayableKind, error) {
	for _, candidate := range validPayableKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payable kind %q", value)
}
