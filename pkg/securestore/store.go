// Package securestore defines the secure-storage collaborator contract and
// provides a file-backed software implementation of it. The key-identity
// core only consumes the Store interface; hardware-backed stores (secure
// element, keychain) live behind the same contract in platform-specific
// implementations.
package securestore

import (
	"github.com/ArisenIO/vault-cli/pkg/keycodec"
	"github.com/ArisenIO/vault-cli/pkg/keys"
)

// Store holds actual key material and answers for it. Implementations own
// all mutable state and any serialization of concurrent access; the
// key-identity core never touches the material directly.
//
// A hardware-backed implementation reports HardwareBacked attributes,
// supports only the R1 curve, and fails every ExportPrivateKey call.
type Store interface {
	// CreateKey generates a new key pair and returns its storage attributes.
	CreateKey(curve keycodec.Curve, bio keys.BioFactor, label string) (*keys.StorageAttributes, error)

	// ImportKey stores an externally supplied 32-byte private scalar.
	ImportKey(curve keycodec.Curve, scalar []byte, label string) (*keys.StorageAttributes, error)

	// Attributes returns the storage attributes of every stored key.
	Attributes() ([]keys.StorageAttributes, error)

	// DeleteKey removes the key material behind the handle. Metadata kept
	// outside the store (the vault index) is unaffected.
	DeleteKey(h keys.Handle) error

	// SignDigest signs a precomputed digest with the key behind the handle.
	SignDigest(h keys.Handle, digest []byte) ([]byte, error)

	keys.PrivateKeyExporter
}
