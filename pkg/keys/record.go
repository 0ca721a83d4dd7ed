// Package keys models the identity of an elliptic-curve key pair held in a
// secure store: its native public key text, curve, biometric protection
// class, and the metadata that outlives the key material itself.
package keys

import (
	"errors"
	"fmt"

	"github.com/ArisenIO/vault-cli/pkg/keycodec"
)

var (
	// ErrNoSource is returned when construction is attempted with neither
	// storage attributes nor a native public key.
	ErrNoSource = errors.New("key record needs storage attributes or a native public key")

	// ErrPublicKeyMismatch is returned when the public key derived from
	// storage does not match the expected one, which means the caller and
	// the store disagree about which key this is.
	ErrPublicKeyMismatch = errors.New("derived public key does not match expected public key")
)

// Record is the identity of one key pair. It is immutable after construction
// except for its caller-owned metadata bag. A retired record describes a key
// whose material has been deleted from the store but whose identity and
// metadata survive.
type Record struct {
	nativePublicKey string
	label           string
	tag             string
	accessGroup     string

	curve          keycodec.Curve
	bio            BioFactor
	hardwareBacked bool
	retired        bool

	privateKeyHandle Handle
	publicKeyHandle  Handle

	compressedPublicKey   []byte
	uncompressedPublicKey []byte

	metadata map[string]any
}

// New builds a key record from secure-store attributes, from a bare native
// public key (the retired path), or from both (in which case the key derived
// from storage must match the expected one exactly).
//
// Construction is all-or-nothing: on any failure no record is returned.
// metadata is copied; nil means an empty bag.
func New(expectedPublicKey string, storage *StorageAttributes, metadata map[string]any) (*Record, error) {
	if storage == nil {
		return newRetired(expectedPublicKey, metadata)
	}

	curve := keycodec.CurveR1
	if !storage.HardwareBacked {
		curve = ParseTag(storage.Tag).Curve
	}

	nativePublicKey, err := keycodec.EncodePublicKey(curve, storage.CompressedPublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to derive native public key: %w", err)
	}
	if expectedPublicKey != "" && expectedPublicKey != nativePublicKey {
		return nil, ErrPublicKeyMismatch
	}

	return &Record{
		nativePublicKey:       nativePublicKey,
		label:                 storage.Label,
		tag:                   storage.Tag,
		accessGroup:           storage.AccessGroup,
		curve:                 curve,
		bio:                   ParseTag(storage.Tag).Bio,
		hardwareBacked:        storage.HardwareBacked,
		privateKeyHandle:      storage.PrivateKeyHandle,
		publicKeyHandle:       storage.PublicKeyHandle,
		compressedPublicKey:   copyBytes(storage.CompressedPublicKey),
		uncompressedPublicKey: copyBytes(storage.UncompressedPublicKey),
		metadata:              copyMetadata(metadata),
	}, nil
}

func newRetired(nativePublicKey string, metadata map[string]any) (*Record, error) {
	if nativePublicKey == "" {
		return nil, ErrNoSource
	}

	// Legacy keys may carry an unparseable version token; keep the record
	// and fall back to R1 rather than discarding usable metadata.
	curve, err := keycodec.DecodeVersion(nativePublicKey)
	if err != nil {
		curve = keycodec.CurveR1
	}

	return &Record{
		nativePublicKey: nativePublicKey,
		curve:           curve,
		bio:             BioNone,
		retired:         true,
		metadata:        copyMetadata(metadata),
	}, nil
}

// NativePublicKey returns the native public key text, the record's unique
// identifier.
func (r *Record) NativePublicKey() string { return r.nativePublicKey }

// Label returns the storage label, empty when absent.
func (r *Record) Label() string { return r.label }

// Tag returns the raw storage tag string, empty when absent.
func (r *Record) Tag() string { return r.tag }

// AccessGroup returns the storage access group; empty for retired records.
func (r *Record) AccessGroup() string { return r.accessGroup }

// Curve returns the key's curve, fixed at construction.
func (r *Record) Curve() keycodec.Curve { return r.curve }

// BioFactor returns the biometric protection class.
func (r *Record) BioFactor() BioFactor { return r.bio }

// HardwareBacked reports whether the private key is confined to the secure
// hardware element.
func (r *Record) HardwareBacked() bool { return r.hardwareBacked }

// Retired reports whether the record was built from metadata only, with no
// backing key material.
func (r *Record) Retired() bool { return r.retired }

// PrivateKeyHandle returns the opaque private key reference; absent for
// retired records.
func (r *Record) PrivateKeyHandle() Handle { return r.privateKeyHandle }

// PublicKeyHandle returns the opaque public key reference; absent for
// retired records.
func (r *Record) PublicKeyHandle() Handle { return r.publicKeyHandle }

// CompressedPublicKey returns a copy of the 33-byte compressed point, nil for
// retired records.
func (r *Record) CompressedPublicKey() []byte { return copyBytes(r.compressedPublicKey) }

// UncompressedPublicKey returns a copy of the 65-byte uncompressed point, nil
// for retired records.
func (r *Record) UncompressedPublicKey() []byte { return copyBytes(r.uncompressedPublicKey) }

// Metadata returns a copy of the caller-owned metadata bag.
func (r *Record) Metadata() map[string]any { return copyMetadata(r.metadata) }

// SetMetadata replaces the metadata bag. This is the only permitted mutation
// of a constructed record; callers sharing a record across goroutines must
// serialize it themselves.
func (r *Record) SetMetadata(metadata map[string]any) {
	r.metadata = copyMetadata(metadata)
}

// NativePrivateKey derives the native private key text by exporting the raw
// key material through the store's exporter. The result is computed on every
// call, never cached.
//
// The second return is false when the private key is structurally absent:
// the record is retired, the key is hardware-backed, there is no private key
// handle, the export fails, or the exported representation is shorter than
// 32 bytes. Only the trailing 32 bytes of the export are the private scalar;
// the representation may prepend curve-dependent leading bytes.
func (r *Record) NativePrivateKey(exporter PrivateKeyExporter) (string, bool) {
	if r.retired || r.hardwareBacked || r.privateKeyHandle.Absent() || exporter == nil {
		return "", false
	}

	raw, err := exporter.ExportPrivateKey(r.privateKeyHandle)
	if err != nil {
		return "", false
	}
	if len(raw) < keycodec.PrivateScalarLen {
		return "", false
	}

	scalar := raw[len(raw)-keycodec.PrivateScalarLen:]
	encoded, err := keycodec.EncodePrivateKey(r.curve, scalar)
	if err != nil {
		return "", false
	}
	return encoded, true
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func copyMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
