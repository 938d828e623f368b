package anet

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials means the API login id or transaction key is not
	// configured. No gateway operation may proceed without them.
	ErrMissingCredentials = errors.New("anet: API login ID or transaction key is missing")

	// ErrEmptyBody is returned when a webhook body is empty or not valid JSON.
	ErrEmptyBody = errors.New("anet: empty or malformed webhook body")

	// ErrMissingEventType is returned when a webhook payload carries no eventType.
	ErrMissingEventType = errors.New("anet: webhook payload missing event type")

	// ErrMissingTransactionID is returned when a charge event carries no
	// transaction id to reconcile against.
	ErrMissingTransactionID = errors.New("anet: charge event missing transaction ID")

	// ErrIntegrityMismatch means the transHashSHA2 returned with a synchronous
	// transaction response did not match the locally computed value. The
	// transaction must be treated as unverified.
	ErrIntegrityMismatch = errors.New("anet: transaction integrity hash mismatch")
)

// ProcessorError is a failure reported by Authorize.net itself, either a
// non-Ok API result or a card decline. Code and Text come straight from the
// gateway response and are safe to surface to the payer.
type ProcessorError struct {
	Code string
	Text string
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("anet: processor error %s: %s", e.Code, e.Text)
}
