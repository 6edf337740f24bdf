package types

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestComputeHash(t *testing.T) {
	// BLAKE3 of the empty input.
	const empty = "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"
	if got := ComputeHash(nil).Hex(); got != empty {
		t.Errorf("ComputeHash(nil) = %s, want %s", got, empty)
	}
	if ComputeHash([]byte("+")) == ComputeHash([]byte("-")) {
		t.Error("distinct inputs hashed equal")
	}
}

func TestHashText(t *testing.T) {
	h := ComputeHash([]byte("+[>+<-]"))

	parsed, err := HashFromBase58(h.String())
	if err != nil {
		t.Fatalf("HashFromBase58 failed: %v", err)
	}
	if parsed != h {
		t.Error("base58 text does not parse back to the same hash")
	}

	parsed, err = HashFromHex(h.Hex())
	if err != nil {
		t.Fatalf("HashFromHex failed: %v", err)
	}
	if parsed != h {
		t.Error("hex text does not parse back to the same hash")
	}

	if s := h.Short(); len(s) != 8 || !strings.HasPrefix(h.String(), s) {
		t.Errorf("Short() = %q", s)
	}

	// The zero hash is 32 leading zero bytes, which base58 writes as ones.
	var zero Hash
	if !zero.IsZero() || zero.String() != strings.Repeat("1", HashSize) {
		t.Errorf("zero hash = %q", zero.String())
	}
	if h.IsZero() {
		t.Error("non-zero hash reported as zero")
	}
}

func TestHashErrors(t *testing.T) {
	tests := []struct {
		name string
		fn   func() error
	}{
		{"ShortBase58", func() error { _, err := HashFromBase58("abc"); return err }},
		{"ShortHex", func() error { _, err := HashFromHex("abcd"); return err }},
		{"ShortBytes", func() error { _, err := HashFromBytes(make([]byte, 31)); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, ErrInvalidHash) {
				t.Errorf("expected ErrInvalidHash, got %v", err)
			}
		})
	}

	if _, err := HashFromBase58("0OIl"); err == nil {
		t.Error("expected an error for characters outside the base58 alphabet")
	}
	if _, err := HashFromHex("zz"); err == nil {
		t.Error("expected an error for invalid hex")
	}
}

func TestHashJSON(t *testing.T) {
	in := struct{ Program Hash }{ComputeHash([]byte("."))}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), in.Program.String()) {
		t.Errorf("expected base58 text in %s", data)
	}

	var out struct{ Program Hash }
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Program != in.Program {
		t.Error("hash changed through JSON")
	}
}
