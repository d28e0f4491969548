// Package presign implements cachegate's Ed25519-signed presigned-URL
// scheme: encoding, signing, and the ordered verification contract that
// authenticates a request before it ever reaches the store or cache.
package presign

import (
	"crypto/ed25519"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// Version is the only RequestDescriptor version cachegate currently accepts.
const Version = 1

// Descriptor is the canonical input to signature verification. The encoder
// emits fields in declaration order, under the JSON names v, exp, m, b, p;
// neither the order nor the names may change, since they are part of the
// signed payload's wire format.
type Descriptor struct {
	Version  int    `json:"v"`
	ExpireAt int64  `json:"exp"`
	Method   string `json:"m"`
	BucketID string `json:"b"`
	Path     string `json:"p"`
}

// AuthError is the taxonomy of presign verification failures. Every variant
// collapses to the same generic 401 at the HTTP surface; the variant itself
// is only for logging, never echoed to the caller, to avoid giving an
// attacker an oracle into why their token failed.
type AuthError int

const (
	_ AuthError = iota
	ErrMalformed
	ErrBadSignature
	ErrUnsupportedVersion
	ErrExpired
	ErrMismatch
)

func (e AuthError) Error() string {
	switch e {
	case ErrMalformed:
		return "presign: malformed token"
	case ErrBadSignature:
		return "presign: bad signature"
	case ErrUnsupportedVersion:
		return "presign: unsupported version"
	case ErrExpired:
		return "presign: expired"
	case ErrMismatch:
		return "presign: mismatch"
	default:
		return "presign: auth failure"
	}
}

var b64 = base64.URLEncoding.WithPadding(base64.NoPadding)

// Sign JSON-encodes descriptor with the canonical field order and returns
// the wire token "<payload_b64url>.<signature_b64url>".
func Sign(d Descriptor, privateKey ed25519.PrivateKey) (string, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("presign: marshal descriptor: %w", err)
	}
	sig := ed25519.Sign(privateKey, payload)
	return b64.EncodeToString(payload) + "." + b64.EncodeToString(sig), nil
}

// Verify runs the full ordered verification contract from §4.1 against a
// raw "sig" query value and the request actually observed by the handler.
// now is wall-clock seconds, passed in rather than read internally so tests
// can control expiry deterministically.
func Verify(rawToken string, observedMethod, observedBucket, observedPath string, publicKey ed25519.PublicKey, now int64) error {
	parts := strings.Split(rawToken, ".")
	if len(parts) != 2 {
		return ErrMalformed
	}

	payload, err := b64.DecodeString(parts[0])
	if err != nil {
		return ErrMalformed
	}
	sig, err := b64.DecodeString(parts[1])
	if err != nil {
		return ErrMalformed
	}

	if len(sig) != ed25519.SignatureSize {
		return ErrBadSignature
	}
	if !ed25519Verify(publicKey, payload, sig) {
		return ErrBadSignature
	}

	var d Descriptor
	if err := json.Unmarshal(payload, &d); err != nil {
		return ErrMalformed
	}
	if d.Version != Version {
		return ErrUnsupportedVersion
	}

	if now >= d.ExpireAt {
		return ErrExpired
	}

	if subtle.ConstantTimeCompare([]byte(d.Method), []byte(observedMethod)) != 1 {
		return ErrMismatch
	}
	if subtle.ConstantTimeCompare([]byte(d.BucketID), []byte(observedBucket)) != 1 {
		return ErrMismatch
	}
	if subtle.ConstantTimeCompare([]byte(d.Path), []byte(observedPath)) != 1 {
		return ErrMismatch
	}

	return nil
}

// ed25519Verify wraps ed25519.Verify; ed25519.Verify already performs a
// constant-time comparison internally, this indirection just keeps the call
// site readable and gives the constant-time intent a name.
func ed25519Verify(publicKey ed25519.PublicKey, payload, sig []byte) bool {
	return ed25519.Verify(publicKey, payload, sig)
}

// VerifyBearer does a constant-time comparison of an Authorization: Bearer
// token against the configured static token. A missing configured token
// disables bearer auth entirely — callers must check that before invoking.
func VerifyBearer(presented, configured string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}

// DecodePublicKey decodes a base64url, unpadded 32-byte Ed25519 public key.
func DecodePublicKey(s string) (ed25519.PublicKey, error) {
	raw, err := b64.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("presign: decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("presign: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// DecodePrivateKey decodes a base64url, unpadded 32-byte Ed25519 seed and
// expands it into a full private key.
func DecodePrivateKey(s string) (ed25519.PrivateKey, error) {
	raw, err := b64.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("presign: decode private key: %w", err)
	}
	if len(raw) != ed25519.SeedSize {
		return nil, fmt.Errorf("presign: private key seed must be %d bytes, got %d", ed25519.SeedSize, len(raw))
	}
	return ed25519.NewKeyFromSeed(raw), nil
}

// EncodeKey base64url-encodes key bytes without padding, the wire format
// §6 specifies for both halves of a generated keypair.
func EncodeKey(raw []byte) string {
	return b64.EncodeToString(raw)
}
