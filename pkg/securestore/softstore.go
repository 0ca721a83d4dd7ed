package securestore

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/ava-labs/avalanchego/utils/crypto/secp256k1"
	"github.com/ava-labs/avalanchego/utils/hashing"
	dsecp "github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/ArisenIO/vault-cli/pkg/keycodec"
	"github.com/ArisenIO/vault-cli/pkg/keys"
)

const (
	indexFile    = "store.json"
	keyExtension = ".key"

	// DefaultAccessGroup is the access group reported for software keys.
	DefaultAccessGroup = "software"
)

// PasswordFunc supplies the password protecting an encrypted key, identified
// by its label. It is called lazily, only when sealed material must be
// opened or written.
type PasswordFunc func(label string) ([]byte, error)

// Options configures a SoftStore.
type Options struct {
	// AccessGroup reported in storage attributes. Defaults to
	// DefaultAccessGroup.
	AccessGroup string

	// Password, when set, causes new keys to be sealed at rest and is
	// consulted to open sealed keys. When nil, keys are stored as plain
	// native key text.
	Password PasswordFunc
}

// softIndex is the on-disk index tracking all stored keys by handle.
type softIndex struct {
	Version int                  `json:"version"`
	Keys    map[string]softEntry `json:"keys"`
}

// softEntry holds the public half of a stored key so that attribute listing
// never needs the private material or its password.
type softEntry struct {
	Label                 string    `json:"label,omitempty"`
	Tag                   string    `json:"tag,omitempty"`
	Curve                 string    `json:"curve"`
	Encrypted             bool      `json:"encrypted,omitempty"`
	CompressedPublicKey   string    `json:"compressed_public_key"`
	UncompressedPublicKey string    `json:"uncompressed_public_key"`
	CreatedAt             time.Time `json:"created_at"`
}

// keyFile is an individual private key file (sealed or plain).
type keyFile struct {
	Version int    `json:"version"`
	Curve   string `json:"curve"`

	// For plain keys: native private key text.
	Key string `json:"key,omitempty"`

	// For sealed keys.
	Encrypted bool       `json:"encrypted,omitempty"`
	Sealed    *sealedKey `json:"sealed,omitempty"`
}

// SoftStore is a file-backed software implementation of Store. Keys live
// under basePath as one JSON file per key plus an index; private material is
// sealed with Argon2id + AES-256-GCM when a password source is configured.
// Software keys are never hardware-backed.
type SoftStore struct {
	basePath    string
	accessGroup string
	password    PasswordFunc
	index       *softIndex
}

var _ Store = (*SoftStore)(nil)

// OpenSoftStore loads or creates a software store rooted at basePath.
func OpenSoftStore(basePath string, opts Options) (*SoftStore, error) {
	if err := os.MkdirAll(basePath, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	// MkdirAll does not tighten permissions on a pre-existing directory.
	if err := os.Chmod(basePath, 0o700); err != nil {
		return nil, fmt.Errorf("failed to secure store directory: %w", err)
	}

	s := &SoftStore{
		basePath:    basePath,
		accessGroup: opts.AccessGroup,
		password:    opts.Password,
	}
	if s.accessGroup == "" {
		s.accessGroup = DefaultAccessGroup
	}

	data, err := os.ReadFile(filepath.Join(basePath, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			s.index = &softIndex{Version: 1, Keys: make(map[string]softEntry)}
			return s, nil
		}
		return nil, fmt.Errorf("failed to read store index: %w", err)
	}

	s.index = &softIndex{}
	if err := json.Unmarshal(data, s.index); err != nil {
		return nil, fmt.Errorf("failed to parse store index: %w", err)
	}
	if s.index.Keys == nil {
		s.index.Keys = make(map[string]softEntry)
	}
	return s, nil
}

func (s *SoftStore) save() error {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.basePath, indexFile), data, 0o600); err != nil {
		return fmt.Errorf("failed to write store index: %w", err)
	}
	return nil
}

// CreateKey generates a new key pair on the given curve.
func (s *SoftStore) CreateKey(curve keycodec.Curve, bio keys.BioFactor, label string) (*keys.StorageAttributes, error) {
	scalar, compressed, uncompressed, err := generateKeyPair(curve)
	if err != nil {
		return nil, err
	}
	defer clearBytes(scalar)
	return s.storeKey(curve, bio, label, scalar, compressed, uncompressed)
}

// ImportKey stores an externally supplied private scalar.
func (s *SoftStore) ImportKey(curve keycodec.Curve, scalar []byte, label string) (*keys.StorageAttributes, error) {
	compressed, uncompressed, err := derivePublicKey(curve, scalar)
	if err != nil {
		return nil, err
	}
	return s.storeKey(curve, keys.BioNone, label, scalar, compressed, uncompressed)
}

func (s *SoftStore) storeKey(curve keycodec.Curve, bio keys.BioFactor, label string, scalar, compressed, uncompressed []byte) (*keys.StorageAttributes, error) {
	handle := handleFor(compressed)
	if _, exists := s.index.Keys[string(handle)]; exists {
		return nil, fmt.Errorf("key already stored (handle %s)", handle)
	}

	kf := &keyFile{Version: 1, Curve: curve.String()}
	if s.password != nil {
		password, err := s.password(label)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain password: %w", err)
		}
		sealed, err := sealKey(scalar, password)
		if err != nil {
			return nil, fmt.Errorf("failed to seal key: %w", err)
		}
		kf.Encrypted = true
		kf.Sealed = sealed
	} else {
		native, err := keycodec.EncodePrivateKey(curve, scalar)
		if err != nil {
			return nil, fmt.Errorf("failed to encode key: %w", err)
		}
		kf.Key = native
	}

	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key file: %w", err)
	}
	if err := os.WriteFile(s.keyPath(handle), data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}

	tag := keys.TagSet{Curve: curve, Bio: bio}.String()
	s.index.Keys[string(handle)] = softEntry{
		Label:                 label,
		Tag:                   tag,
		Curve:                 curve.String(),
		Encrypted:             kf.Encrypted,
		CompressedPublicKey:   hex.EncodeToString(compressed),
		UncompressedPublicKey: hex.EncodeToString(uncompressed),
		CreatedAt:             time.Now().UTC(),
	}
	if err := s.save(); err != nil {
		return nil, err
	}

	return s.attributes(handle, s.index.Keys[string(handle)])
}

// Attributes returns the storage attributes of every stored key.
func (s *SoftStore) Attributes() ([]keys.StorageAttributes, error) {
	out := make([]keys.StorageAttributes, 0, len(s.index.Keys))
	for handle, entry := range s.index.Keys {
		attrs, err := s.attributes(keys.Handle(handle), entry)
		if err != nil {
			return nil, err
		}
		out = append(out, *attrs)
	}
	return out, nil
}

func (s *SoftStore) attributes(handle keys.Handle, entry softEntry) (*keys.StorageAttributes, error) {
	compressed, err := hex.DecodeString(entry.CompressedPublicKey)
	if err != nil {
		return nil, fmt.Errorf("corrupt index entry %s: %w", handle, err)
	}
	uncompressed, err := hex.DecodeString(entry.UncompressedPublicKey)
	if err != nil {
		return nil, fmt.Errorf("corrupt index entry %s: %w", handle, err)
	}
	return &keys.StorageAttributes{
		Label:                 entry.Label,
		Tag:                   entry.Tag,
		AccessGroup:           s.accessGroup,
		HardwareBacked:        false,
		PrivateKeyHandle:      handle,
		PublicKeyHandle:       handle,
		CompressedPublicKey:   compressed,
		UncompressedPublicKey: uncompressed,
	}, nil
}

// DeleteKey removes the key material behind the handle.
func (s *SoftStore) DeleteKey(h keys.Handle) error {
	if _, exists := s.index.Keys[string(h)]; !exists {
		return fmt.Errorf("key %s not found", h)
	}
	if err := os.Remove(s.keyPath(h)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove key file: %w", err)
	}
	delete(s.index.Keys, string(h))
	return s.save()
}

// SignDigest signs a precomputed digest. K1 signatures are 65-byte
// [R || S || V]; R1 signatures are ASN.1 DER.
func (s *SoftStore) SignDigest(h keys.Handle, digest []byte) ([]byte, error) {
	curve, scalar, err := s.loadScalar(h)
	if err != nil {
		return nil, err
	}
	defer clearBytes(scalar)

	switch curve {
	case keycodec.CurveK1:
		key, err := secp256k1.ToPrivateKey(scalar)
		if err != nil {
			return nil, fmt.Errorf("corrupt stored key %s: %w", h, err)
		}
		return key.SignHash(digest)
	case keycodec.CurveR1:
		key, err := r1PrivateKey(scalar)
		if err != nil {
			return nil, fmt.Errorf("corrupt stored key %s: %w", h, err)
		}
		return ecdsa.SignASN1(rand.Reader, key, digest)
	default:
		return nil, fmt.Errorf("unknown curve %q", curve)
	}
}

// ExportPrivateKey returns the key's external representation: the raw
// 32-byte scalar for K1, the X9.63 form (04 || X || Y || K) for R1.
func (s *SoftStore) ExportPrivateKey(h keys.Handle) ([]byte, error) {
	curve, scalar, err := s.loadScalar(h)
	if err != nil {
		return nil, err
	}

	if curve == keycodec.CurveR1 {
		key, err := r1PrivateKey(scalar)
		if err != nil {
			clearBytes(scalar)
			return nil, fmt.Errorf("corrupt stored key %s: %w", h, err)
		}
		uncompressed := elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
		out := append(uncompressed, scalar...)
		clearBytes(scalar)
		return out, nil
	}
	return scalar, nil
}

func (s *SoftStore) loadScalar(h keys.Handle) (keycodec.Curve, []byte, error) {
	entry, exists := s.index.Keys[string(h)]
	if !exists {
		return 0, nil, fmt.Errorf("key %s not found", h)
	}

	data, err := os.ReadFile(s.keyPath(h))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read key file: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return 0, nil, fmt.Errorf("failed to parse key file: %w", err)
	}

	curve, err := keycodec.CurveFromString(kf.Curve)
	if err != nil {
		return 0, nil, fmt.Errorf("corrupt key file %s: %w", h, err)
	}

	if kf.Encrypted {
		if s.password == nil {
			return 0, nil, fmt.Errorf("key %s is encrypted, password required", h)
		}
		password, err := s.password(entry.Label)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to obtain password: %w", err)
		}
		scalar, err := kf.Sealed.open(password)
		if err != nil {
			return 0, nil, err
		}
		return curve, scalar, nil
	}

	textCurve, scalar, err := keycodec.DecodePrivateKey(kf.Key)
	if err != nil {
		return 0, nil, fmt.Errorf("corrupt key file %s: %w", h, err)
	}
	if textCurve != curve {
		return 0, nil, fmt.Errorf("corrupt key file %s: curve mismatch", h)
	}
	return curve, scalar, nil
}

func (s *SoftStore) keyPath(h keys.Handle) string {
	return filepath.Join(s.basePath, string(h)+keyExtension)
}

// handleFor derives the opaque handle for a key: hex of the 20-byte hash of
// its compressed public key.
func handleFor(compressed []byte) keys.Handle {
	return keys.Handle(hex.EncodeToString(hashing.PubkeyBytesToAddress(compressed)))
}

func generateKeyPair(curve keycodec.Curve) (scalar, compressed, uncompressed []byte, err error) {
	switch curve {
	case keycodec.CurveK1:
		key, err := secp256k1.NewPrivateKey()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to generate key: %w", err)
		}
		scalar = key.Bytes()
	case keycodec.CurveR1:
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to generate key: %w", err)
		}
		scalar = key.D.FillBytes(make([]byte, keycodec.PrivateScalarLen))
	default:
		return nil, nil, nil, fmt.Errorf("unknown curve 0x%02x", byte(curve))
	}

	compressed, uncompressed, err = derivePublicKey(curve, scalar)
	if err != nil {
		clearBytes(scalar)
		return nil, nil, nil, err
	}
	return scalar, compressed, uncompressed, nil
}

func derivePublicKey(curve keycodec.Curve, scalar []byte) (compressed, uncompressed []byte, err error) {
	if len(scalar) != keycodec.PrivateScalarLen {
		return nil, nil, fmt.Errorf("invalid private scalar: expected %d bytes, got %d", keycodec.PrivateScalarLen, len(scalar))
	}

	switch curve {
	case keycodec.CurveK1:
		key, err := secp256k1.ToPrivateKey(scalar)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid private key: %w", err)
		}
		compressed = key.PublicKey().Bytes()
		point, err := dsecp.ParsePubKey(compressed)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid public key point: %w", err)
		}
		uncompressed = point.SerializeUncompressed()
		return compressed, uncompressed, nil
	case keycodec.CurveR1:
		key, err := r1PrivateKey(scalar)
		if err != nil {
			return nil, nil, err
		}
		p256 := elliptic.P256()
		compressed = elliptic.MarshalCompressed(p256, key.PublicKey.X, key.PublicKey.Y)
		uncompressed = elliptic.Marshal(p256, key.PublicKey.X, key.PublicKey.Y)
		return compressed, uncompressed, nil
	default:
		return nil, nil, fmt.Errorf("unknown curve 0x%02x", byte(curve))
	}
}

// r1PrivateKey rebuilds a P-256 private key from its raw scalar.
func r1PrivateKey(scalar []byte) (*ecdsa.PrivateKey, error) {
	p256 := elliptic.P256()
	d := new(big.Int).SetBytes(scalar)
	if d.Sign() == 0 || d.Cmp(p256.Params().N) >= 0 {
		return nil, fmt.Errorf("private scalar out of range")
	}
	x, y := p256.ScalarBaseMult(scalar)
	return &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: p256, X: x, Y: y},
		D:         d,
	}, nil
}

// clearBytes securely zeros a byte slice to prevent sensitive data from lingering in memory.
func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
