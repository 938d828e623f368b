package anet

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// VerifyWebhookSignature validates the X-ANET-Signature header against the
// raw request body. The header has the form "SHA512=<HEXDIGEST>". The digest
// is an HMAC-SHA512 of the body, byte for byte as received, keyed by the
// signature key as UTF-8 text.
//
// Fails closed: a missing, malformed or empty header returns false, as does
// an empty signature key. Both digests are normalized to uppercase hex before
// the constant-time compare, so hex casing does not matter.
func VerifyWebhookSignature(rawBody []byte, headerValue, signatureKey string) bool {
	if strings.TrimSpace(signatureKey) == "" {
		return false
	}

	parts := strings.SplitN(strings.TrimSpace(headerValue), "=", 2)
	if len(parts) != 2 {
		return false
	}
	received := strings.ToUpper(strings.TrimSpace(parts[1]))
	if received == "" {
		return false
	}

	mac := hmac.New(sha512.New, []byte(signatureKey))
	mac.Write(rawBody)
	computed := strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))

	return hmac.Equal([]byte(received), []byte(computed))
}
