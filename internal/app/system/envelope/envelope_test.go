package envelope

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"

	"golang.org/x/crypto/argon2"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	return key
}

func ciphers(t *testing.T) map[string]Cipher {
	t.Helper()
	aead, err := NewAEAD(testKey(t), []byte("test"))
	if err != nil {
		t.Fatalf("NewAEAD() error = %v", err)
	}
	box, err := NewSecretBox(testKey(t))
	if err != nil {
		t.Fatalf("NewSecretBox() error = %v", err)
	}
	return map[string]Cipher{"aead": aead, "secretbox": box}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	payloads := map[string][]byte{
		"empty":  {},
		"short":  []byte("hello"),
		"binary": {0x00, 0xff, 0x10, 0x00, 0x7f},
		"large":  bytes.Repeat([]byte("audit-"), 10000),
	}

	for cname, c := range ciphers(t) {
		for pname, p := range payloads {
			t.Run(cname+"/"+pname, func(t *testing.T) {
				sealed, err := c.Seal(p)
				if err != nil {
					t.Fatalf("Seal() error = %v", err)
				}
				if len(sealed.Tag) == 0 || len(sealed.Nonce) == 0 {
					t.Fatal("Seal() should produce a nonce and a tag")
				}
				got, err := c.Open(sealed)
				if err != nil {
					t.Fatalf("Open() error = %v", err)
				}
				if !bytes.Equal(got, p) {
					t.Errorf("Open() = %x, want %x", got, p)
				}
			})
		}
	}
}

func TestSeal_FreshNonce(t *testing.T) {
	for name, c := range ciphers(t) {
		t.Run(name, func(t *testing.T) {
			a, _ := c.Seal([]byte("same"))
			b, _ := c.Seal([]byte("same"))
			if bytes.Equal(a.Nonce, b.Nonce) {
				t.Error("two seals should not reuse a nonce")
			}
			if bytes.Equal(a.Ciphertext, b.Ciphertext) {
				t.Error("two seals of the same payload should differ")
			}
		})
	}
}

func TestOpen_FlippedBit(t *testing.T) {
	flip := func(b []byte) []byte {
		out := append([]byte(nil), b...)
		out[len(out)/2] ^= 0x01
		return out
	}

	for name, c := range ciphers(t) {
		sealed, err := c.Seal([]byte("login history partition"))
		if err != nil {
			t.Fatalf("Seal() error = %v", err)
		}

		tests := []struct {
			part   string
			mutate func(Sealed) Sealed
		}{
			{"ciphertext", func(s Sealed) Sealed { s.Ciphertext = flip(s.Ciphertext); return s }},
			{"nonce", func(s Sealed) Sealed { s.Nonce = flip(s.Nonce); return s }},
			{"tag", func(s Sealed) Sealed { s.Tag = flip(s.Tag); return s }},
			{"truncated tag", func(s Sealed) Sealed { s.Tag = s.Tag[:len(s.Tag)-1]; return s }},
			{"missing nonce", func(s Sealed) Sealed { s.Nonce = nil; return s }},
		}
		for _, tt := range tests {
			t.Run(name+"/"+tt.part, func(t *testing.T) {
				_, err := c.Open(tt.mutate(sealed))
				if !errors.Is(err, ErrCorrupt) {
					t.Errorf("Open() error = %v, want ErrCorrupt", err)
				}
			})
		}
	}
}

func TestOpen_WrongKey(t *testing.T) {
	a, _ := NewAEAD(testKey(t), nil)
	b, _ := NewAEAD(testKey(t), nil)

	sealed, _ := a.Seal([]byte("secret"))
	if _, err := b.Open(sealed); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Open() with wrong key error = %v, want ErrCorrupt", err)
	}
}

func TestOpen_WrongAssociatedData(t *testing.T) {
	key := testKey(t)
	logs, _ := NewAEAD(key, []byte("login-history"))
	pics, _ := NewAEAD(key, []byte("profile-picture"))

	sealed, _ := logs.Seal([]byte("payload"))
	if _, err := pics.Open(sealed); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Open() across purposes error = %v, want ErrCorrupt", err)
	}
}

func TestNewCipher_KeySize(t *testing.T) {
	if _, err := NewAEAD(make([]byte, 16), nil); !errors.Is(err, ErrKeySize) {
		t.Errorf("NewAEAD(16 bytes) error = %v, want ErrKeySize", err)
	}
	if _, err := NewSecretBox(make([]byte, 31)); !errors.Is(err, ErrKeySize) {
		t.Errorf("NewSecretBox(31 bytes) error = %v, want ErrKeySize", err)
	}
}

func TestParseKey(t *testing.T) {
	raw := bytes.Repeat([]byte{0xab}, KeySize)

	tests := []struct {
		name  string
		input string
		want  []byte
	}{
		{"hex", hex.EncodeToString(raw), raw},
		{"base64", base64.StdEncoding.EncodeToString(raw), raw},
		{"base64 url", base64.RawURLEncoding.EncodeToString(raw), raw},
		{"padded with spaces", "  " + hex.EncodeToString(raw) + "\n", raw},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKey(tt.input, "history")
			if err != nil {
				t.Fatalf("ParseKey() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("ParseKey() = %x, want %x", got, tt.want)
			}
		})
	}
}

func TestParseKey_Passphrase(t *testing.T) {
	a, err := ParseKey("correct horse battery staple", "history")
	if err != nil {
		t.Fatalf("ParseKey() error = %v", err)
	}
	if len(a) != KeySize {
		t.Fatalf("ParseKey() len = %d, want %d", len(a), KeySize)
	}

	again, _ := ParseKey("correct horse battery staple", "history")
	if !bytes.Equal(a, again) {
		t.Error("ParseKey() should be deterministic for a passphrase")
	}

	other, _ := ParseKey("correct horse battery staple", "picture")
	if bytes.Equal(a, other) {
		t.Error("different purposes should derive different keys")
	}

	want := argon2.IDKey([]byte("correct horse battery staple"), purposeSalt("history"), 3, 64*1024, 4, KeySize)
	if !bytes.Equal(a, want) {
		t.Error("passphrase key should be Argon2id(t=3, m=64MiB, p=4) under the purpose salt")
	}
}

func TestPurposeSalt(t *testing.T) {
	a, b := purposeSalt("history"), purposeSalt("picture")
	if len(a) != 16 {
		t.Errorf("salt length = %d, want 16", len(a))
	}
	if bytes.Equal(a, b) {
		t.Error("purposes should not share a salt")
	}
	if !bytes.Equal(a, purposeSalt("history")) {
		t.Error("salt should be fixed per purpose")
	}
}

func TestParseKey_Empty(t *testing.T) {
	if _, err := ParseKey("   ", "history"); !errors.Is(err, ErrNoKey) {
		t.Errorf("ParseKey(blank) error = %v, want ErrNoKey", err)
	}
}
