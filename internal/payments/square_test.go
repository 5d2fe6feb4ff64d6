package payments

import (
	"testing"

	sq "github.com/square/square-go-sdk"
)

func TestNewRefundResultFlattensStatus(t *testing.T) {
	status := "COMPLETED"
	result := newRefundResult(&sq.PaymentRefund{ID: "sq-refund-1", Status: &status})
	if result.RefundID != "sq-refund-1" {
		t.Fatalf("unexpected refund id %q", result.RefundID)
	}
	if result.Status != "COMPLETED" {
		t.Fatalf("unexpected status %q", result.Status)
	}

	// A refund with no status reported yet must not panic.
	empty := newRefundResult(&sq.PaymentRefund{ID: "sq-refund-2"})
	if empty.Status != "" {
		t.Fatalf("expected empty status, got %q", empty.Status)
	}
}

func TestChargeSucceeded(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"COMPLETED", true},
		{"APPROVED", true},
		{"PENDING", false},
		{"FAILED", false},
		{"CANCELED", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := chargeSucceeded(tt.status); got != tt.want {
			t.Fatalf("status %q: expected %v, got %v", tt.status, tt.want, got)
		}
	}
}
