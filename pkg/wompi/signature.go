package wompi

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// IntegritySignature computes the checkout integrity hash the gateway widget
// requires: SHA-256 over reference, amount in cents, currency, and the
// merchant integrity key, hex encoded.
func IntegritySignature(reference string, amountInCents int64, currency, integrityKey string) string {
	payload := fmt.Sprintf("%s%d%s%s", reference, amountInCents, currency, integrityKey)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// VerifyEventChecksum recomputes the checksum Wompi attaches to webhook
// events and compares it in constant time. Events without a checksum are
// accepted when no events key is configured, rejected otherwise.
func VerifyEventChecksum(event *Event, eventsKey string) error {
	if eventsKey == "" {
		return nil
	}
	if event == nil || event.Signature.Checksum == "" {
		return fmt.Errorf("event carries no checksum")
	}

	var b strings.Builder
	for _, prop := range event.Signature.Properties {
		value, err := eventProperty(event, prop)
		if err != nil {
			return err
		}
		b.WriteString(value)
	}
	b.WriteString(strconv.FormatInt(event.Timestamp, 10))
	b.WriteString(eventsKey)

	sum := sha256.Sum256([]byte(b.String()))
	computed := hex.EncodeToString(sum[:])

	expected := strings.ToLower(event.Signature.Checksum)
	if subtle.ConstantTimeCompare([]byte(computed), []byte(expected)) != 1 {
		return fmt.Errorf("event checksum mismatch")
	}
	return nil
}

func eventProperty(event *Event, path string) (string, error) {
	tx := event.Data.Transaction
	switch path {
	case "transaction.id":
		return tx.ID, nil
	case "transaction.reference":
		return tx.Reference, nil
	case "transaction.status":
		return tx.Status, nil
	case "transaction.amount_in_cents":
		return strconv.FormatInt(tx.AmountInCents, 10), nil
	case "transaction.currency":
		return tx.Currency, nil
	default:
		return "", fmt.Errorf("unsupported checksum property %q", path)
	}
}
