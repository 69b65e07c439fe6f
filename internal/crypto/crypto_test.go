package crypto

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func mustEncryptor(t *testing.T, key string) Encryptor {
	t.Helper()
	enc, err := NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}
	return enc
}

func TestNewEncryptorKeyChecks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{name: "missing", key: "", wantErr: ErrMissingKey},
		{name: "short", key: "short", wantErr: ErrInvalidKey},
		{name: "long", key: strings.Repeat("k", 33), wantErr: ErrInvalidKey},
		{name: "aes-256", key: strings.Repeat("k", 32)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewEncryptor(tt.key)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("NewEncryptor() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSealAndOpen(t *testing.T) {
	t.Parallel()

	enc := mustEncryptor(t, strings.Repeat("k", 32))

	first, err := enc.Seal(PurposeAddress, []byte("12B, Lajpat Nagar"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	second, err := enc.Seal(PurposeAddress, []byte("12B, Lajpat Nagar"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if first == second {
		t.Fatal("expected a fresh nonce per seal")
	}
	if !strings.HasPrefix(first, "v1.") {
		t.Fatalf("expected versioned output, got %q", first)
	}

	plaintext, err := enc.Open(PurposeAddress, first)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if string(plaintext) != "12B, Lajpat Nagar" {
		t.Fatalf("Open() = %q", plaintext)
	}
}

func TestOpenRejects(t *testing.T) {
	t.Parallel()

	encA := mustEncryptor(t, strings.Repeat("a", 32))
	encB := mustEncryptor(t, strings.Repeat("b", 32))

	sealed, err := encA.Seal(PurposeAddress, []byte("secret"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	tests := []struct {
		name    string
		enc     Encryptor
		purpose string
		sealed  string
		wantErr error
	}{
		{name: "no version", enc: encA, purpose: PurposeAddress, sealed: "abc", wantErr: ErrUnsupported},
		{name: "bad base64", enc: encA, purpose: PurposeAddress, sealed: "v1.%%%", wantErr: ErrMalformed},
		{name: "too short", enc: encA, purpose: PurposeAddress, sealed: "v1." + base64.RawURLEncoding.EncodeToString([]byte("tiny")), wantErr: ErrMalformed},
		{name: "wrong key", enc: encB, purpose: PurposeAddress, sealed: sealed},
		{name: "wrong purpose", enc: encA, purpose: "user.name", sealed: sealed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := tt.enc.Open(tt.purpose, tt.sealed)
			if err == nil {
				t.Fatal("expected Open() to fail")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Open() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSealOpenJSON(t *testing.T) {
	t.Parallel()

	enc := mustEncryptor(t, strings.Repeat("k", 32))

	type address struct {
		HouseNo string `json:"houseNo"`
		Pincode string `json:"pincode"`
	}
	sealed, err := SealJSON(enc, PurposeAddress, address{HouseNo: "12B", Pincode: "110001"})
	if err != nil {
		t.Fatalf("SealJSON() error = %v", err)
	}
	if strings.Contains(sealed, "110001") {
		t.Fatal("sealed value leaks plaintext")
	}

	var opened address
	if err := OpenJSON(enc, PurposeAddress, sealed, &opened); err != nil {
		t.Fatalf("OpenJSON() error = %v", err)
	}
	if opened.HouseNo != "12B" || opened.Pincode != "110001" {
		t.Fatalf("OpenJSON() = %+v", opened)
	}

	untouched := address{HouseNo: "keep"}
	if err := OpenJSON(enc, PurposeAddress, "", &untouched); err != nil || untouched.HouseNo != "keep" {
		t.Fatalf("empty value should be a no-op, got %+v (%v)", untouched, err)
	}
}
