package wompi

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegritySignature(t *testing.T) {
	t.Parallel()

	got := IntegritySignature("sale-123", 250000, "COP", "test_integrity_key")

	sum := sha256.Sum256([]byte("sale-123250000COPtest_integrity_key"))
	assert.Equal(t, hex.EncodeToString(sum[:]), got)
	assert.Len(t, got, 64)
}

func signedEvent(t *testing.T, eventsKey string) *Event {
	t.Helper()

	event := &Event{
		Event:     "transaction.updated",
		Timestamp: 1706500000,
		Data: EventData{Transaction: Transaction{
			ID:            "wmp-001",
			Reference:     "sale-123",
			AmountInCents: 250000,
			Currency:      "COP",
			Status:        StatusApproved,
		}},
		Signature: EventSig{
			Properties: []string{"transaction.id", "transaction.status", "transaction.amount_in_cents"},
		},
	}

	payload := fmt.Sprintf("%s%s%d%d%s", "wmp-001", StatusApproved, int64(250000), event.Timestamp, eventsKey)
	sum := sha256.Sum256([]byte(payload))
	event.Signature.Checksum = hex.EncodeToString(sum[:])
	return event
}

func TestVerifyEventChecksum(t *testing.T) {
	t.Parallel()

	event := signedEvent(t, "events_secret")
	require.NoError(t, VerifyEventChecksum(event, "events_secret"))
}

func TestVerifyEventChecksumRejectsMismatch(t *testing.T) {
	t.Parallel()

	event := signedEvent(t, "events_secret")
	event.Data.Transaction.Status = StatusDeclined

	assert.Error(t, VerifyEventChecksum(event, "events_secret"))
}

func TestVerifyEventChecksumRejectsMissingChecksum(t *testing.T) {
	t.Parallel()

	event := signedEvent(t, "events_secret")
	event.Signature.Checksum = ""

	assert.Error(t, VerifyEventChecksum(event, "events_secret"))
}

func TestVerifyEventChecksumSkippedWithoutKey(t *testing.T) {
	t.Parallel()

	event := signedEvent(t, "events_secret")
	event.Signature.Checksum = ""

	assert.NoError(t, VerifyEventChecksum(event, ""))
}

func TestVerifyEventChecksumUnknownProperty(t *testing.T) {
	t.Parallel()

	event := signedEvent(t, "events_secret")
	event.Signature.Properties = []string{"transaction.nope"}

	assert.Error(t, VerifyEventChecksum(event, "events_secret"))
}
