// Package keycodec implements the native text encoding for Arisen key pairs.
//
// A native key string is a prefix ("PublicKey-" or "PrivateKey-") followed by
// the CB58 encoding of a one-byte curve version, the raw key bytes, and a
// four-byte SHA-256d checksum trailer.
package keycodec

import (
	"fmt"
	"strings"

	"github.com/ava-labs/avalanchego/utils/cb58"
)

// Curve identifies the elliptic curve of a key pair.
type Curve byte

const (
	// CurveK1 is secp256k1.
	CurveK1 Curve = 0x00
	// CurveR1 is NIST P-256 (secp256r1), the only curve supported by the
	// hardware secure element.
	CurveR1 Curve = 0x01
)

const (
	// PublicKeyPrefix starts every native public key string.
	PublicKeyPrefix = "PublicKey-"
	// PrivateKeyPrefix starts every native private key string.
	PrivateKeyPrefix = "PrivateKey-"

	// CompressedPublicKeyLen is the length of a compressed EC point.
	CompressedPublicKeyLen = 33
	// UncompressedPublicKeyLen is the length of an uncompressed EC point.
	UncompressedPublicKeyLen = 65
	// PrivateScalarLen is the length of a raw private scalar.
	PrivateScalarLen = 32
)

// String returns the tag token for the curve ("k1" or "r1").
func (c Curve) String() string {
	switch c {
	case CurveK1:
		return "k1"
	case CurveR1:
		return "r1"
	default:
		return fmt.Sprintf("curve(0x%02x)", byte(c))
	}
}

// Valid reports whether c is a known curve.
func (c Curve) Valid() bool {
	return c == CurveK1 || c == CurveR1
}

// CurveFromString parses a curve tag token ("k1" or "r1").
func CurveFromString(s string) (Curve, error) {
	switch s {
	case "k1":
		return CurveK1, nil
	case "r1":
		return CurveR1, nil
	default:
		return 0, fmt.Errorf("unknown curve %q", s)
	}
}

// EncodePublicKey encodes a compressed public key into its native string form.
// The compressed key must be 33 bytes with a 0x02 or 0x03 leading byte.
func EncodePublicKey(curve Curve, compressed []byte) (string, error) {
	if !curve.Valid() {
		return "", fmt.Errorf("unknown curve 0x%02x", byte(curve))
	}
	if len(compressed) != CompressedPublicKeyLen {
		return "", fmt.Errorf("invalid compressed public key: expected %d bytes, got %d", CompressedPublicKeyLen, len(compressed))
	}
	if compressed[0] != 0x02 && compressed[0] != 0x03 {
		return "", fmt.Errorf("invalid compressed public key: leading byte 0x%02x", compressed[0])
	}
	encoded, err := encodePayload(curve, compressed)
	if err != nil {
		return "", err
	}
	return PublicKeyPrefix + encoded, nil
}

// EncodePrivateKey encodes a 32-byte private scalar into its native string form.
func EncodePrivateKey(curve Curve, scalar []byte) (string, error) {
	if !curve.Valid() {
		return "", fmt.Errorf("unknown curve 0x%02x", byte(curve))
	}
	if len(scalar) != PrivateScalarLen {
		return "", fmt.Errorf("invalid private scalar: expected %d bytes, got %d", PrivateScalarLen, len(scalar))
	}
	encoded, err := encodePayload(curve, scalar)
	if err != nil {
		return "", err
	}
	return PrivateKeyPrefix + encoded, nil
}

func encodePayload(curve Curve, raw []byte) (string, error) {
	payload := make([]byte, 0, 1+len(raw))
	payload = append(payload, byte(curve))
	payload = append(payload, raw...)
	encoded, err := cb58.Encode(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode key: %w", err)
	}
	return encoded, nil
}

// DecodePublicKey parses a native public key string and returns its curve and
// raw compressed key bytes. The checksum is validated by the CB58 decode.
func DecodePublicKey(s string) (Curve, []byte, error) {
	curve, raw, err := decodePayload(s, PublicKeyPrefix)
	if err != nil {
		return 0, nil, err
	}
	if len(raw) != CompressedPublicKeyLen {
		return 0, nil, fmt.Errorf("invalid public key payload: expected %d bytes, got %d", CompressedPublicKeyLen, len(raw))
	}
	return curve, raw, nil
}

// DecodePrivateKey parses a native private key string and returns its curve
// and raw 32-byte scalar.
func DecodePrivateKey(s string) (Curve, []byte, error) {
	curve, raw, err := decodePayload(s, PrivateKeyPrefix)
	if err != nil {
		return 0, nil, err
	}
	if len(raw) != PrivateScalarLen {
		return 0, nil, fmt.Errorf("invalid private key payload: expected %d bytes, got %d", PrivateScalarLen, len(raw))
	}
	return curve, raw, nil
}

// DecodeVersion recovers the curve from a native public key string without
// returning the key bytes.
func DecodeVersion(s string) (Curve, error) {
	curve, _, err := decodePayload(s, PublicKeyPrefix)
	if err != nil {
		return 0, err
	}
	return curve, nil
}

func decodePayload(s, prefix string) (Curve, []byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, prefix) {
		return 0, nil, fmt.Errorf("missing %q prefix", prefix)
	}
	payload, err := cb58.Decode(strings.TrimPrefix(s, prefix))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(payload) < 1 {
		return 0, nil, fmt.Errorf("empty key payload")
	}
	curve := Curve(payload[0])
	if !curve.Valid() {
		return 0, nil, fmt.Errorf("unknown curve version 0x%02x", payload[0])
	}
	return curve, payload[1:], nil
}
