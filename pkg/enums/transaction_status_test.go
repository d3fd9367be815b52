package enums

import "testing"

func TestParseTransactionStatus(t *testing.T) {
	t.Parallel()

	status, err := ParseTransactionStatus("APPROVED")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if status != TransactionStatusApproved {
		t.Fatalf("unexpected status %s", status)
	}

	if _, err := ParseTransactionStatus("approved"); err == nil {
		t.Fatal("status enumeration is case sensitive")
	}
	if _, err := ParseTransactionStatus("SETTLED"); err == nil {
		t.Fatal("unknown status must be rejected")
	}
}

func TestStatusClassification(t *testing.T) {
	t.Parallel()

	if !TransactionStatusCompleted.IsApproved() || !TransactionStatusApproved.IsApproved() {
		t.Fatal("COMPLETED and APPROVED both count as approved")
	}
	if TransactionStatusPending.IsTerminal() || TransactionStatusProcessing.IsTerminal() {
		t.Fatal("PENDING/PROCESSING are transient")
	}
	for _, s := range []TransactionStatus{TransactionStatusFailed, TransactionStatusDeclined, TransactionStatusRejected} {
		if !s.IsReversal() || !s.IsTerminal() {
			t.Fatalf("%s should be a terminal reversal status", s)
		}
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from, to TransactionStatus
		ok       bool
	}{
		{TransactionStatusPending, TransactionStatusProcessing, true},
		{TransactionStatusPending, TransactionStatusCompleted, true},
		{TransactionStatusPending, TransactionStatusDeclined, true},
		{TransactionStatusProcessing, TransactionStatusApproved, true},
		{TransactionStatusProcessing, TransactionStatusPending, false},
		{TransactionStatusApproved, TransactionStatusDeclined, true},
		{TransactionStatusApproved, TransactionStatusRejected, true},
		{TransactionStatusApproved, TransactionStatusPending, false},
		{TransactionStatusApproved, TransactionStatusApproved, true},
		{TransactionStatusCompleted, TransactionStatusFailed, true},
		{TransactionStatusDeclined, TransactionStatusApproved, true},
		{TransactionStatusDeclined, TransactionStatusPending, false},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.ok, got)
		}
	}

	if CanTransition(TransactionStatus("BOGUS"), TransactionStatusPending) {
		t.Fatal("invalid source status must be rejected")
	}
	if CanTransition(TransactionStatusPending, TransactionStatus("BOGUS")) {
		t.Fatal("invalid target status must be rejected")
	}
}

func TestFromGatewayStatus(t *testing.T) {
	t.Parallel()

	cases := map[string]TransactionStatus{
		"APPROVED": TransactionStatusApproved,
		"PENDING":  TransactionStatusPending,
		"DECLINED": TransactionStatusDeclined,
		"VOIDED":   TransactionStatusFailed,
		"ERROR":    TransactionStatusFailed,
		"WHATEVER": TransactionStatusPending,
		"":         TransactionStatusPending,
	}

	for raw, want := range cases {
		if got := FromGatewayStatus(raw); got != want {
			t.Fatalf("FromGatewayStatus(%q) = %s, want %s", raw, got, want)
		}
	}
}
