package enums

import "testing"

func TestPaymentIntentTransitionsAreForwardOnly(t *testing.T) {
	tests := []struct {
		from PaymentIntentStatus
		to   PaymentIntentStatus
		want bool
	}{
		{PaymentIntentStatusCreated, PaymentIntentStatusPending, true},
		{PaymentIntentStatusCreated, PaymentIntentStatusProcessing, true},
		{PaymentIntentStatusPending, PaymentIntentStatusProcessing, true},
		{PaymentIntentStatusProcessing, PaymentIntentStatusCompleted, true},
		{PaymentIntentStatusProcessing, PaymentIntentStatusFailed, true},
		{PaymentIntentStatusProcessing, PaymentIntentStatusRefunded, true},
		{PaymentIntentStatusCompleted, PaymentIntentStatusRefunded, true},
		{PaymentIntentStatusProcessing, PaymentIntentStatusCreated, false},
		{PaymentIntentStatusCompleted, PaymentIntentStatusProcessing, false},
		{PaymentIntentStatusFailed, PaymentIntentStatusProcessing, false},
		{PaymentIntentStatusRefunded, PaymentIntentStatusCompleted, false},
		{PaymentIntentStatusCreated, PaymentIntentStatusCompleted, false},
		{PaymentIntentStatusCreated, PaymentIntentStatusCreated, false},
	}
	for _, tc := range tests {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s: expected %v got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestPaymentIntentTerminalStatuses(t *testing.T) {
	if !PaymentIntentStatusFailed.IsTerminal() || !PaymentIntentStatusRefunded.IsTerminal() {
		t.Fatalf("failed and refunded should be terminal")
	}
	if PaymentIntentStatusCompleted.IsTerminal() {
		t.Fatalf("completed can still be refunded")
	}
	if PaymentIntentStatus("bogus").IsTerminal() {
		t.Fatalf("unknown status should not be terminal")
	}
}

func TestStatusColumnWidth(t *testing.T) {
	for _, status := range validPaymentIntentStatuses {
		if len(status) > 20 {
			t.Fatalf("status %q exceeds column width", status)
		}
	}
}

func TestParseHelpers(t *testing.T) {
	if _, err := ParsePaymentIntentStatus("processing"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParsePaymentIntentStatus("paid"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
	if status, err := ParseTaskStatus("failed"); err != nil || !status.IsTerminal() {
		t.Fatalf("expected terminal failed status, got %v %v", status, err)
	}
	if _, err := ParseTaskType("email"); err == nil {
		t.Fatalf("expected error for unknown task type")
	}
}
