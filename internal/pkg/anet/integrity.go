package anet

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strings"
)

// ComputeIntegrityHash builds the transHashSHA2 value Authorize.net returns
// alongside successful transaction responses, so it can be compared against
// the received one. The hashed string is "^<loginID>^<txnID>^<amount>^" with
// the amount formatted to exactly two decimal places, and the HMAC key is
// the hex-decoded signature key (raw bytes, unlike the webhook signature
// which keys on the UTF-8 text).
//
// See https://developer.authorize.net/support/hash_upgrade/
func ComputeIntegrityHash(apiLoginID, transactionID string, amount float64, signatureKey string) (string, error) {
	key, err := hex.DecodeString(strings.TrimSpace(signatureKey))
	if err != nil {
		return "", fmt.Errorf("anet: signature key is not valid hex: %w", err)
	}

	mac := hmac.New(sha512.New, key)
	fmt.Fprintf(mac, "^%s^%s^%.2f^", apiLoginID, transactionID, amount)

	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil))), nil
}

// VerifyIntegrityHash compares a received transHashSHA2 with a locally
// computed one in constant time.
func VerifyIntegrityHash(received, computed string) bool {
	return hmac.Equal(
		[]byte(strings.ToUpper(strings.TrimSpace(received))),
		[]byte(strings.ToUpper(strings.TrimSpace(computed))),
	)
}
