package enums

import "fmt"

// TransactionStatus tracks the settlement lifecycle of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "PENDING"
	TransactionStatusProcessing TransactionStatus = "PROCESSING"
	TransactionStatusCompleted  TransactionStatus = "COMPLETED"
	TransactionStatusApproved   TransactionStatus = "APPROVED"
	TransactionStatusFailed     TransactionStatus = "FAILED"
	TransactionStatusDeclined   TransactionStatus = "DECLINED"
	TransactionStatusRejected   TransactionStatus = "REJECTED"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusProcessing,
	TransactionStatusCompleted,
	TransactionStatusApproved,
	TransactionStatusFailed,
	TransactionStatusDeclined,
	TransactionStatusRejected,
}

// String implements fmt.Stringer.
func (s TransactionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TransactionStatus.
func (s TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsApproved reports whether the status counts as an approved settlement for
// inventory purposes.
func (s TransactionStatus) IsApproved() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusApproved
}

// IsReversal reports whether the status undoes a previously approved settlement.
func (s TransactionStatus) IsReversal() bool {
	switch s {
	case TransactionStatusFailed, TransactionStatusDeclined, TransactionStatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether inventory has been finalized for the status. The
// record itself stays mutable: a later, more authoritative gateway notification
// may still overwrite a terminal status.
func (s TransactionStatus) IsTerminal() bool {
	return s.IsApproved() || s.IsReversal()
}

// CanTransition reports whether moving from one status to another is allowed.
// Re-applying the current status is always allowed (callers treat it as a
// no-op), and a terminal status may be overwritten by a notification-driven
// transition because the gateway is the settlement authority.
func CanTransition(from, to TransactionStatus) bool {
	if !from.IsValid() || !to.IsValid() {
		return false
	}
	if from == to {
		return true
	}
	switch from {
	case TransactionStatusPending:
		return true
	case TransactionStatusProcessing:
		return to != TransactionStatusPending
	case TransactionStatusApproved, TransactionStatusCompleted:
		// forward overwrite between the approved pair, or the reversal edge
		return to.IsApproved() || to.IsReversal()
	case TransactionStatusFailed, TransactionStatusDeclined, TransactionStatusRejected:
		// a later authoritative notification may still flip the verdict
		return to.IsTerminal()
	}
	return false
}

// FromGatewayStatus maps a Wompi settlement status into the domain status.
// Unknown gateway values stay PENDING so a later notification can settle
// the record.
func FromGatewayStatus(raw string) TransactionStatus {
	switch raw {
	case "APPROVED":
		return TransactionStatusApproved
	case "PENDING":
		return TransactionStatusPending
	case "DECLINED":
		return TransactionStatusDeclined
	case "VOIDED", "ERROR":
		return TransactionStatusFailed
	default:
		return TransactionStatusPending
	}
}

// ParseTransactionStatus converts raw input into a TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}
