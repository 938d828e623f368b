package anet

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
	"testing"
)

func signBody(body []byte, key string) string {
	mac := hmac.New(sha512.New, []byte(key))
	mac.Write(body)
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"notificationId":"n-1","eventType":"net.authorize.customer.subscription.created","payload":{"id":"42"}}`)
	key := "super-secret-signature-key"

	header := "SHA512=" + signBody(body, key)
	if !VerifyWebhookSignature(body, header, key) {
		t.Fatalf("expected valid signature to verify")
	}

	// Hex casing must not matter.
	if !VerifyWebhookSignature(body, "sha512="+strings.ToLower(signBody(body, key)), key) {
		t.Fatalf("expected lowercase hex digest to verify")
	}
}

func TestVerifyWebhookSignature_FailsClosed(t *testing.T) {
	body := []byte(`{"eventType":"x"}`)
	key := "secret"
	valid := "SHA512=" + signBody(body, key)

	cases := []struct {
		name   string
		body   []byte
		header string
		key    string
	}{
		{"missing header", body, "", key},
		{"no digest", body, "SHA512=", key},
		{"no separator", body, signBody(body, key), key},
		{"empty key", body, valid, ""},
		{"wrong key", body, valid, "other-secret"},
		{"mutated body", []byte(`{"eventType":"y"}`), valid, key},
		{"mutated digest", body, valid + "00", key},
	}
	for _, tc := range cases {
		if VerifyWebhookSignature(tc.body, tc.header, tc.key) {
			t.Fatalf("%s: expected verification to fail", tc.name)
		}
	}
}
