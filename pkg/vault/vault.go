// Package vault manages key identities over a secure store. It owns the
// metadata that survives key deletion, so callers see retired keys alongside
// live ones.
package vault

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ArisenIO/vault-cli/pkg/keycodec"
	"github.com/ArisenIO/vault-cli/pkg/keys"
	"github.com/ArisenIO/vault-cli/pkg/securestore"
)

var (
	// ErrKeyNotFound is returned when no live or retired key matches the
	// given native public key.
	ErrKeyNotFound = errors.New("key not found")

	// ErrKeyRetired is returned when an operation needs key material but
	// only metadata remains.
	ErrKeyRetired = errors.New("key is retired, its material has been deleted")
)

// Vault pairs a secure store with a persistent metadata index. It is not
// safe for concurrent use; callers sharing a vault must serialize access.
type Vault struct {
	store     securestore.Store
	indexPath string
	index     *metaIndex
}

// Open loads or creates a vault whose metadata index lives at indexPath.
func Open(store securestore.Store, indexPath string) (*Vault, error) {
	idx, err := loadIndex(indexPath)
	if err != nil {
		return nil, err
	}
	return &Vault{store: store, indexPath: indexPath, index: idx}, nil
}

// Store returns the underlying secure store.
func (v *Vault) Store() securestore.Store {
	return v.store
}

// AllKeys returns a record for every live key in the store plus one for
// every retired identity in the index.
func (v *Vault) AllKeys() ([]*keys.Record, error) {
	attrs, err := v.store.Attributes()
	if err != nil {
		return nil, fmt.Errorf("failed to list store: %w", err)
	}

	records := make([]*keys.Record, 0, len(attrs)+len(v.index.Entries))
	live := make(map[string]bool, len(attrs))
	for i := range attrs {
		record, err := keys.New("", &attrs[i], nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build record: %w", err)
		}
		if entry, ok := v.index.Entries[record.NativePublicKey()]; ok {
			record.SetMetadata(entry.Metadata)
		}
		live[record.NativePublicKey()] = true
		records = append(records, record)
	}

	// Whatever the index knows that the store no longer holds is retired,
	// whether or not it went through DeleteKey.
	for pub, entry := range v.index.Entries {
		if live[pub] {
			continue
		}
		record, err := keys.New(pub, nil, entry.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to build retired record: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

// GetKey returns the record identified by a native public key.
func (v *Vault) GetKey(nativePublicKey string) (*keys.Record, error) {
	records, err := v.AllKeys()
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if record.NativePublicKey() == nativePublicKey {
			return record, nil
		}
	}
	return nil, ErrKeyNotFound
}

// NewKey generates a key in the store and registers its identity.
func (v *Vault) NewKey(curve keycodec.Curve, bio keys.BioFactor, label string) (*keys.Record, error) {
	attrs, err := v.store.CreateKey(curve, bio, label)
	if err != nil {
		return nil, fmt.Errorf("failed to create key: %w", err)
	}
	return v.register(attrs)
}

// ImportKey parses a private key in native or hex text form, stores it, and
// registers its identity. Hex input carries no curve tag, so hexCurve
// decides; native input overrides it.
func (v *Vault) ImportKey(privateKeyText string, hexCurve keycodec.Curve, label string) (*keys.Record, error) {
	curve, scalar, err := ParsePrivateKeyText(privateKeyText, hexCurve)
	if err != nil {
		return nil, err
	}
	attrs, err := v.store.ImportKey(curve, scalar, label)
	if err != nil {
		return nil, fmt.Errorf("failed to import key: %w", err)
	}
	return v.register(attrs)
}

func (v *Vault) register(attrs *keys.StorageAttributes) (*keys.Record, error) {
	record, err := keys.New("", attrs, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build record: %w", err)
	}
	v.index.Entries[record.NativePublicKey()] = metaEntry{
		Label:     record.Label(),
		Tag:       record.Tag(),
		CreatedAt: time.Now().UTC(),
	}
	if err := v.index.save(v.indexPath); err != nil {
		return nil, err
	}
	return record, nil
}

// DeleteKey removes the key material from the store. The identity and its
// metadata stay in the index, so the key shows up as retired afterwards.
func (v *Vault) DeleteKey(nativePublicKey string) error {
	record, err := v.GetKey(nativePublicKey)
	if err != nil {
		return err
	}
	if record.Retired() {
		return ErrKeyRetired
	}

	if err := v.store.DeleteKey(record.PrivateKeyHandle()); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	entry, ok := v.index.Entries[nativePublicKey]
	if !ok {
		entry = metaEntry{Label: record.Label(), Tag: record.Tag(), CreatedAt: time.Now().UTC()}
	}
	now := time.Now().UTC()
	entry.Retired = true
	entry.RetiredAt = &now
	v.index.Entries[nativePublicKey] = entry
	return v.index.save(v.indexPath)
}

// PurgeKey drops a retired identity from the index entirely. Live keys must
// be deleted first.
func (v *Vault) PurgeKey(nativePublicKey string) error {
	record, err := v.GetKey(nativePublicKey)
	if err != nil {
		return err
	}
	if !record.Retired() {
		return fmt.Errorf("key is live, delete it before purging")
	}
	delete(v.index.Entries, nativePublicKey)
	return v.index.save(v.indexPath)
}

// UpdateMetadata replaces the caller-owned metadata bag for a key identity,
// live or retired.
func (v *Vault) UpdateMetadata(nativePublicKey string, metadata map[string]any) error {
	record, err := v.GetKey(nativePublicKey)
	if err != nil {
		return err
	}

	entry, ok := v.index.Entries[nativePublicKey]
	if !ok {
		entry = metaEntry{Label: record.Label(), Tag: record.Tag(), CreatedAt: time.Now().UTC()}
	}
	entry.Metadata = metadata
	v.index.Entries[nativePublicKey] = entry
	return v.index.save(v.indexPath)
}

// SignDigest signs a precomputed digest with the key identified by its
// native public key.
func (v *Vault) SignDigest(nativePublicKey string, digest []byte) ([]byte, error) {
	record, err := v.GetKey(nativePublicKey)
	if err != nil {
		return nil, err
	}
	if record.Retired() {
		return nil, ErrKeyRetired
	}
	return v.store.SignDigest(record.PrivateKeyHandle(), digest)
}

// ExportPrivateKey derives the native private key text for a key. The bool
// is false when the private key is structurally absent (retired or
// hardware-backed keys, malformed exports).
func (v *Vault) ExportPrivateKey(nativePublicKey string) (string, bool, error) {
	record, err := v.GetKey(nativePublicKey)
	if err != nil {
		return "", false, err
	}
	text, ok := record.NativePrivateKey(v.store)
	return text, ok, nil
}

// ParsePrivateKeyText parses a private key from its native text form or from
// hex (with optional 0x prefix). Native text carries its own curve tag; hex
// does not, so hexCurve is used for it.
func ParsePrivateKeyText(s string, hexCurve keycodec.Curve) (keycodec.Curve, []byte, error) {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, keycodec.PrivateKeyPrefix) {
		return keycodec.DecodePrivateKey(s)
	}

	scalar, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to decode private key (tried native and hex): %w", err)
	}
	if len(scalar) != keycodec.PrivateScalarLen {
		return 0, nil, fmt.Errorf("invalid private key: expected %d bytes, got %d", keycodec.PrivateScalarLen, len(scalar))
	}
	return hexCurve, scalar, nil
}
