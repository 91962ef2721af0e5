package enums

import "fmt"

// TaskType names the handler a task is dispatched to.
type TaskType string

const (
	TaskTypePaymentSettlement   TaskType = "payment_settlement"
	TaskTypePaymentConfirmation TaskType = "payment_confirmation"
)

var validTaskTypes = []TaskType{
	TaskTypePaymentSettlement,
	TaskTypePaymentConfirmation,
}

// String implements fmt.Stringer.
func (t TaskType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TaskType.
func (t TaskType) IsValid() bool {
	for _, candidate := range validTaskTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTaskType converts raw input into a TaskType.
func ParseTaskType(value string) (TaskType, error) {
	for _, candidate := range validTaskTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid task type %q", value)
}
