package secret

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func testProvider(t *testing.T) *Provider {
	t.Helper()
	key := bytes.Repeat([]byte{0x42}, KeySize)
	p, err := New(key)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	p := testProvider(t)

	for _, plaintext := range []string{
		"ABCDEF0123456789",
		"x",
		"a much longer partner API key with spaces and unicode ☃",
	} {
		blob, err := p.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%q) failed: %v", plaintext, err)
		}
		if parts := strings.Split(blob, ":"); len(parts) != 3 {
			t.Fatalf("blob has %d parts, want 3: %q", len(parts), blob)
		}
		got, err := p.Decrypt(blob)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if got != plaintext {
			t.Errorf("round trip mismatch: got %q want %q", got, plaintext)
		}
	}
}

func TestEncryptUniqueIV(t *testing.T) {
	p := testProvider(t)

	a, err := p.Encrypt("same plaintext")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	b, err := p.Encrypt("same plaintext")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical blobs")
	}
}

func TestDecryptTamperedBlob(t *testing.T) {
	p := testProvider(t)

	blob, err := p.Encrypt("secret key material")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	// Flip one byte in each hex section in turn; every variant must fail with
	// ErrInvalidCiphertext.
	parts := strings.Split(blob, ":")
	for i := range parts {
		raw, err := hex.DecodeString(parts[i])
		if err != nil {
			t.Fatalf("part %d is not hex: %v", i, err)
		}
		raw[0] ^= 0xff
		tampered := make([]string, 3)
		copy(tampered, parts)
		tampered[i] = hex.EncodeToString(raw)

		if _, err := p.Decrypt(strings.Join(tampered, ":")); !errors.Is(err, ErrInvalidCiphertext) {
			t.Errorf("tampered part %d: got %v, want ErrInvalidCiphertext", i, err)
		}
	}
}

func TestDecryptMalformed(t *testing.T) {
	p := testProvider(t)

	for _, blob := range []string{
		"",
		"nocolons",
		"one:two",
		"a:b:c:d",
		"zz:zz:zz", // not hex
		"abcd:abcd:abcd", // wrong lengths
	} {
		if _, err := p.Decrypt(blob); !errors.Is(err, ErrInvalidCiphertext) {
			t.Errorf("Decrypt(%q): got %v, want ErrInvalidCiphertext", blob, err)
		}
	}
}

func TestParseKey(t *testing.T) {
	raw := bytes.Repeat([]byte{0xab}, KeySize)

	got, err := ParseKey(hex.EncodeToString(raw))
	if err != nil {
		t.Fatalf("ParseKey hex failed: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Error("hex key round trip mismatch")
	}

	got, err = ParseKey("q6urq6urq6urq6urq6urq6urq6urq6urq6urq6urq6s=")
	if err != nil {
		t.Fatalf("ParseKey base64 failed: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Error("base64 key round trip mismatch")
	}

	for _, bad := range []string{"", "abc", strings.Repeat("z", 64)} {
		if _, err := ParseKey(bad); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("ParseKey(%q): got %v, want ErrInvalidKey", bad, err)
		}
	}
}

func TestShortHash(t *testing.T) {
	if got := ShortHash("ABCDEF0123456789", 4); got != "6789" {
		t.Errorf("ShortHash = %q, want %q", got, "6789")
	}
	if got := ShortHash("ab", 4); got != "ab" {
		t.Errorf("ShortHash on short input = %q, want %q", got, "ab")
	}
}
