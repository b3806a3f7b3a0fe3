// Package vapid handles the wire format of VAPID keys used to authorize
// Web Push subscriptions. It is the single sanctioned path for loading and
// validating the application server key: a malformed key surfaces here as a
// named error instead of an opaque browser-level crypto failure at
// subscribe time.
package vapid

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// PublicKeyLength is the byte length of an uncompressed P-256 point.
const PublicKeyLength = 65

// uncompressedPointMarker is the leading byte of an uncompressed EC point.
const uncompressedPointMarker = 0x04

// Predefined codec errors. All of them indicate a configuration or
// deployment bug, never a transient condition.
var (
	ErrInvalidKeyFormat = errors.New("vapid key is not valid base64url")
	ErrInvalidKeyLength = errors.New("vapid public key must decode to exactly 65 bytes")
	ErrInvalidKeyMarker = errors.New("vapid public key must start with the uncompressed point marker 0x04")
)

// Decode converts a base64url-encoded VAPID key to its raw bytes.
// It accepts padded and unpadded input and the standard base64 alphabet,
// because keys copied between tools drift between the two conventions.
func Decode(key string) ([]byte, error) {
	s := strings.TrimSpace(key)
	s = strings.ReplaceAll(s, "+", "-")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.TrimRight(s, "=")
	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}

	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKeyFormat, err.Error())
	}
	return raw, nil
}

// Encode is the inverse of Decode, producing unpadded base64url.
// It is used by the server-side key generator.
func Encode(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Validate checks that raw bytes form a usable applicationServerKey.
func Validate(raw []byte) error {
	if len(raw) != PublicKeyLength {
		return fmt.Errorf("%w, got %d", ErrInvalidKeyLength, len(raw))
	}
	if raw[0] != uncompressedPointMarker {
		return fmt.Errorf("%w, got 0x%02x", ErrInvalidKeyMarker, raw[0])
	}
	return nil
}

// DecodePublicKey decodes and validates a public key in one step.
// Anything failing this check must never be handed to the Push API.
func DecodePublicKey(key string) ([]byte, error) {
	raw, err := Decode(key)
	if err != nil {
		return nil, err
	}
	if err := Validate(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// KeyPair holds a base64url-encoded VAPID key pair. The private key is
// server-held and never leaves the delivery service.
type KeyPair struct {
	PublicKey  string
	PrivateKey string
}

// GenerateKeyPair creates a new P-256 VAPID key pair and verifies that the
// public half round-trips through the codec before handing it out.
func GenerateKeyPair() (KeyPair, error) {
	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return KeyPair{}, fmt.Errorf("generating vapid key pair: %w", err)
	}

	if _, err := DecodePublicKey(publicKey); err != nil {
		return KeyPair{}, fmt.Errorf("generated key failed validation: %w", err)
	}

	return KeyPair{
		PublicKey:  publicKey,
		PrivateKey: privateKey,
	}, nil
}

// KeyPairFromEnv loads the key pair from VAPID_PUBLIC_KEY and
// VAPID_PRIVATE_KEY. A missing or malformed key fails loudly so operators
// see the deployment bug instead of a silently degraded push feature.
func KeyPairFromEnv() (KeyPair, error) {
	publicKey := os.Getenv("VAPID_PUBLIC_KEY")
	privateKey := os.Getenv("VAPID_PRIVATE_KEY")

	if publicKey == "" || privateKey == "" {
		return KeyPair{}, errors.New("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set")
	}

	if _, err := DecodePublicKey(publicKey); err != nil {
		return KeyPair{}, err
	}

	return KeyPair{
		PublicKey:  publicKey,
		PrivateKey: privateKey,
	}, nil
}
