package keys

// Handle is an opaque reference to key material held by the secure-storage
// collaborator. The core never dereferences a handle; it only forwards it
// back to the store for export, signing, or deletion. The zero value means
// the handle is absent.
type Handle string

// Absent reports whether the handle references nothing.
func (h Handle) Absent() bool {
	return h == ""
}

// StorageAttributes describes one stored key as reported by the secure
// store: its identifiers, protection attributes, opaque handles, and raw
// public-key bytes in standard EC point encoding.
type StorageAttributes struct {
	Label       string
	Tag         string
	AccessGroup string

	// HardwareBacked is true when the private key lives inside the secure
	// hardware element and can never be exported.
	HardwareBacked bool

	PrivateKeyHandle Handle
	PublicKeyHandle  Handle

	// CompressedPublicKey is the 33-byte compressed point (0x02/0x03 lead).
	CompressedPublicKey []byte
	// UncompressedPublicKey is the 65-byte uncompressed point (0x04 lead).
	UncompressedPublicKey []byte
}

// PrivateKeyExporter exports the raw external representation of a stored
// private key. The representation may carry curve-dependent leading bytes;
// only the trailing 32 bytes are the private scalar. Hardware-backed keys
// are never exportable.
type PrivateKeyExporter interface {
	ExportPrivateKey(h Handle) ([]byte, error)
}
