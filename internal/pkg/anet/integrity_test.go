package anet

import (
	"strings"
	"testing"
)

const testSignatureKey = "48D2C629E4A4D2A5E6F4C3B2A1908F7E6D5C4B3A29181716151413121110FFEE"

func TestComputeIntegrityHash_Deterministic(t *testing.T) {
	a, err := ComputeIntegrityHash("login123", "60123456789", 25, testSignatureKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := ComputeIntegrityHash("login123", "60123456789", 25.00, testSignatureKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Fatalf("amounts 25 and 25.00 must hash identically, got %q vs %q", a, b)
	}
	if a != strings.ToUpper(a) {
		t.Fatalf("hash must be uppercase hex")
	}

	c, _ := ComputeIntegrityHash("login123", "60123456789", 25.01, testSignatureKey)
	if a == c {
		t.Fatalf("different amounts must not collide")
	}
	d, _ := ComputeIntegrityHash("login123", "60123456780", 25, testSignatureKey)
	if a == d {
		t.Fatalf("different transaction ids must not collide")
	}
}

func TestComputeIntegrityHash_RejectsNonHexKey(t *testing.T) {
	if _, err := ComputeIntegrityHash("login", "1", 1, "not-hex"); err == nil {
		t.Fatalf("expected error for non-hex signature key")
	}
}

func TestVerifyIntegrityHash(t *testing.T) {
	h, err := ComputeIntegrityHash("login123", "987", 10, testSignatureKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !VerifyIntegrityHash(strings.ToLower(h), h) {
		t.Fatalf("case-insensitive match expected")
	}
	if VerifyIntegrityHash(h+"00", h) {
		t.Fatalf("mismatch expected for tampered hash")
	}
}
