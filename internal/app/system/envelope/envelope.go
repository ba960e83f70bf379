// internal/app/system/envelope/envelope.go
//
// Package envelope seals whole payloads with a symmetric key and opens them
// again, reporting any tampering or corruption as ErrCorrupt.
//
// Two ciphers are provided:
//   - AEAD (XChaCha20-Poly1305) for audit partitions, which are rewritten and
//     queried programmatically and must detect corruption on every read.
//   - SecretBox (NaCl secretbox) for profile picture artifacts, keyed
//     separately from the audit log.
//
// Both produce a Sealed triple of ciphertext, nonce, and integrity tag.
// Keys are passed explicitly at construction; there is no process-wide key.
package envelope

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/nacl/secretbox"
)

// KeySize is the length in bytes of every key accepted by this package.
const KeySize = 32

var (
	// ErrCorrupt is returned by Open when the payload fails authentication.
	ErrCorrupt = errors.New("envelope: authentication failed (wrong key or corrupted data)")

	// ErrKeySize is returned when a key is not KeySize bytes long.
	ErrKeySize = errors.New("envelope: key must be 32 bytes")

	// ErrNoKey is returned by ParseKey for an empty key string.
	ErrNoKey = errors.New("envelope: no key configured")
)

// Sealed is the stored form of one encrypted payload.
type Sealed struct {
	Ciphertext []byte
	Nonce      []byte
	Tag        []byte
}

// Cipher seals and opens opaque payloads.
type Cipher interface {
	Seal(plaintext []byte) (Sealed, error)
	Open(s Sealed) ([]byte, error)
	// Algorithm names the construction, stored next to sealed data.
	Algorithm() string
}

// ─────────────────────────────────────────────────────────────────────────────
// XChaCha20-Poly1305
// ─────────────────────────────────────────────────────────────────────────────

// AEAD seals with XChaCha20-Poly1305. The optional associated data binds a
// sealed payload to its purpose so a picture cannot be replayed as a log.
type AEAD struct {
	key []byte
	ad  []byte
}

// NewAEAD returns an XChaCha20-Poly1305 cipher for key.
// associatedData may be nil.
func NewAEAD(key []byte, associatedData []byte) (*AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &AEAD{key: k, ad: associatedData}, nil
}

// Algorithm implements Cipher.
func (a *AEAD) Algorithm() string { return "xchacha20poly1305" }

// Seal implements Cipher.
func (a *AEAD) Seal(plaintext []byte) (Sealed, error) {
	aead, err := chacha20poly1305.NewX(a.key)
	if err != nil {
		return Sealed{}, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Sealed{}, fmt.Errorf("envelope: read nonce: %w", err)
	}

	out := aead.Seal(nil, nonce, plaintext, a.ad)
	split := len(out) - aead.Overhead()
	return Sealed{
		Ciphertext: out[:split],
		Nonce:      nonce,
		Tag:        out[split:],
	}, nil
}

// Open implements Cipher.
func (a *AEAD) Open(s Sealed) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(a.key)
	if err != nil {
		return nil, err
	}
	if len(s.Nonce) != aead.NonceSize() || len(s.Tag) != aead.Overhead() {
		return nil, ErrCorrupt
	}

	buf := make([]byte, 0, len(s.Ciphertext)+len(s.Tag))
	buf = append(buf, s.Ciphertext...)
	buf = append(buf, s.Tag...)

	plaintext, err := aead.Open(nil, s.Nonce, buf, a.ad)
	if err != nil {
		return nil, ErrCorrupt
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// NaCl secretbox
// ─────────────────────────────────────────────────────────────────────────────

const secretboxNonceSize = 24

// SecretBox seals with NaCl secretbox (XSalsa20-Poly1305).
type SecretBox struct {
	key [KeySize]byte
}

// NewSecretBox returns a secretbox cipher for key.
func NewSecretBox(key []byte) (*SecretBox, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	sb := &SecretBox{}
	copy(sb.key[:], key)
	return sb, nil
}

// Algorithm implements Cipher.
func (b *SecretBox) Algorithm() string { return "secretbox" }

// Seal implements Cipher. secretbox prepends its tag to the box; it is split
// out so both ciphers store the same triple.
func (b *SecretBox) Seal(plaintext []byte) (Sealed, error) {
	var nonce [secretboxNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return Sealed{}, fmt.Errorf("envelope: read nonce: %w", err)
	}

	box := secretbox.Seal(nil, plaintext, &nonce, &b.key)
	return Sealed{
		Ciphertext: box[secretbox.Overhead:],
		Nonce:      nonce[:],
		Tag:        box[:secretbox.Overhead],
	}, nil
}

// Open implements Cipher.
func (b *SecretBox) Open(s Sealed) ([]byte, error) {
	if len(s.Nonce) != secretboxNonceSize || len(s.Tag) != secretbox.Overhead {
		return nil, ErrCorrupt
	}
	var nonce [secretboxNonceSize]byte
	copy(nonce[:], s.Nonce)

	box := make([]byte, 0, len(s.Tag)+len(s.Ciphertext))
	box = append(box, s.Tag...)
	box = append(box, s.Ciphertext...)

	plaintext, ok := secretbox.Open(nil, box, &nonce, &b.key)
	if !ok {
		return nil, ErrCorrupt
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Keys
// ─────────────────────────────────────────────────────────────────────────────

// GenerateKey returns a random key. Data sealed with it is unreadable once
// the key is lost, so it is only suitable for development or tests.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("envelope: generate key: %w", err)
	}
	return key, nil
}

// ParseKey decodes a configured key. A 32-byte value in hex or base64
// (standard or URL alphabet) is used as is; anything else is treated as a
// passphrase and stretched with DeriveKey under purpose.
func ParseKey(s, purpose string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrNoKey
	}

	if b, err := hex.DecodeString(s); err == nil && len(b) == KeySize {
		return b, nil
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil && len(b) == KeySize {
			return b, nil
		}
	}

	return DeriveKey([]byte(s), purpose)
}

// Argon2id cost for passphrase keys.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
)

// DeriveKey stretches secret into a KeySize key with Argon2id. The salt is
// fixed per purpose, so the same secret and purpose always give the same key
// and distinct purposes give independent keys.
func DeriveKey(secret []byte, purpose string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrNoKey
	}
	return argon2.IDKey(secret, purposeSalt(purpose), argonTime, argonMemory, argonThreads, KeySize), nil
}

func purposeSalt(purpose string) []byte {
	sum := sha256.Sum256([]byte("stratadues/" + purpose))
	return sum[:16]
}
