package enums

import "fmt"

// PaymentIntentStatus tracks the lifecycle of a payment intent.
type PaymentIntentStatus string

const (
	PaymentIntentStatusCreated    PaymentIntentStatus = "created"
	PaymentIntentStatusPending    PaymentIntentStatus = "pending"
	PaymentIntentStatusProcessing PaymentIntentStatus = "processing"
	PaymentIntentStatusCompleted  PaymentIntentStatus = "completed"
	PaymentIntentStatusFailed     PaymentIntentStatus = "failed"
	PaymentIntentStatusRefunded   PaymentIntentStatus = "refunded"
)

var validPaymentIntentStatuses = []PaymentIntentStatus{
	PaymentIntentStatusCreated,
	PaymentIntentStatusPending,
	PaymentIntentStatusProcessing,
	PaymentIntentStatusCompleted,
	PaymentIntentStatusFailed,
	PaymentIntentStatusRefunded,
}

// forward lists the statuses reachable in one step from each status.
var paymentIntentTransitions = map[PaymentIntentStatus][]PaymentIntentStatus{
	PaymentIntentStatusCreated:    {PaymentIntentStatusPending, PaymentIntentStatusProcessing, PaymentIntentStatusFailed},
	PaymentIntentStatusPending:    {PaymentIntentStatusProcessing, PaymentIntentStatusFailed},
	PaymentIntentStatusProcessing: {PaymentIntentStatusCompleted, PaymentIntentStatusFailed, PaymentIntentStatusRefunded},
	PaymentIntentStatusCompleted:  {PaymentIntentStatusRefunded},
}

// String implements fmt.Stringer.
func (p PaymentIntentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentIntentStatus.
func (p PaymentIntentStatus) IsValid() bool {
	for _, candidate := range validPaymentIntentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (p PaymentIntentStatus) IsTerminal() bool {
	return p.IsValid() && len(paymentIntentTransitions[p]) == 0
}

// CanTransitionTo reports whether moving from p to next is a forward step.
func (p PaymentIntentStatus) CanTransitionTo(next PaymentIntentStatus) bool {
	for _, candidate := range paymentIntentTransitions[p] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParsePaymentIntentStatus converts raw input into a PaymentIntentStatus.
func ParsePaymentIntentStatus(value string) (PaymentIntentStatus, error) {
	for _, candidate := range validPaymentIntentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment intent status %q", value)
}
