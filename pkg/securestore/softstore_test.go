package securestore

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ArisenIO/vault-cli/pkg/keycodec"
	"github.com/ArisenIO/vault-cli/pkg/keys"
)

// testK1Scalar is a valid secp256k1 private key for testing.
var testK1Scalar = []byte{
	0x56, 0x28, 0x9e, 0x99, 0xc9, 0x4b, 0x69, 0x12,
	0xbf, 0xc1, 0x2a, 0xdc, 0x09, 0x3c, 0x9b, 0x51,
	0x12, 0x4f, 0x0d, 0xc5, 0x4a, 0xc7, 0xa7, 0x66,
	0xb2, 0xbc, 0x5c, 0xcf, 0x55, 0x8d, 0x80, 0x27,
}

// testR1Scalar is a valid P-256 private key for testing.
var testR1Scalar = bytes.Repeat([]byte{0x11}, 32)

func setupTestStore(t *testing.T, opts Options) (*SoftStore, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := OpenSoftStore(dir, opts)
	if err != nil {
		t.Fatalf("OpenSoftStore() error = %v", err)
	}
	return s, dir
}

func TestOpenSoftStore_CreatesSecureDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "store")
	if _, err := OpenSoftStore(dir, Options{}); err != nil {
		t.Fatalf("OpenSoftStore() error = %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("os.Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o700 {
		t.Errorf("store directory permissions = %o, want 700", perm)
	}
}

func TestCreateKey_K1(t *testing.T) {
	s, _ := setupTestStore(t, Options{})

	attrs, err := s.CreateKey(keycodec.CurveK1, keys.BioNone, "mykey")
	if err != nil {
		t.Fatalf("CreateKey() error = %v", err)
	}

	if len(attrs.CompressedPublicKey) != keycodec.CompressedPublicKeyLen {
		t.Errorf("compressed key length = %d, want %d", len(attrs.CompressedPublicKey), keycodec.CompressedPublicKeyLen)
	}
	if lead := attrs.CompressedPublicKey[0]; lead != 0x02 && lead != 0x03 {
		t.Errorf("compressed key leading byte = 0x%02x", lead)
	}
	if len(attrs.UncompressedPublicKey) != keycodec.UncompressedPublicKeyLen {
		t.Errorf("uncompressed key length = %d, want %d", len(attrs.UncompressedPublicKey), keycodec.UncompressedPublicKeyLen)
	}
	if attrs.UncompressedPublicKey[0] != 0x04 {
		t.Errorf("uncompressed key leading byte = 0x%02x, want 0x04", attrs.UncompressedPublicKey[0])
	}
	if attrs.Tag != "k1" {
		t.Errorf("tag = %q, want k1", attrs.Tag)
	}
	if attrs.Label != "mykey" {
		t.Errorf("label = %q, want mykey", attrs.Label)
	}
	if attrs.AccessGroup != DefaultAccessGroup {
		t.Errorf("access group = %q, want %q", attrs.AccessGroup, DefaultAccessGroup)
	}
	if attrs.HardwareBacked {
		t.Error("software key reports hardware-backed")
	}
	if attrs.PrivateKeyHandle.Absent() || attrs.PublicKeyHandle.Absent() {
		t.Error("handles absent on created key")
	}
}

func TestCreateKey_R1WithBio(t *testing.T) {
	s, _ := setupTestStore(t, Options{})

	attrs, err := s.CreateKey(keycodec.CurveR1, keys.BioFlex, "biokey")
	if err != nil {
		t.Fatalf("CreateKey() error = %v", err)
	}

	if attrs.Tag != "flex" {
		t.Errorf("tag = %q, want flex", attrs.Tag)
	}
	if ts := keys.ParseTag(attrs.Tag); ts.Curve != keycodec.CurveR1 || ts.Bio != keys.BioFlex {
		t.Errorf("ParseTag(%q) = %+v, want r1/flex", attrs.Tag, ts)
	}
	if lead := attrs.CompressedPublicKey[0]; lead != 0x02 && lead != 0x03 {
		t.Errorf("compressed key leading byte = 0x%02x", lead)
	}
}

func TestImportExport_K1(t *testing.T) {
	s, _ := setupTestStore(t, Options{})

	attrs, err := s.ImportKey(keycodec.CurveK1, append([]byte(nil), testK1Scalar...), "imported")
	if err != nil {
		t.Fatalf("ImportKey() error = %v", err)
	}

	exported, err := s.ExportPrivateKey(attrs.PrivateKeyHandle)
	if err != nil {
		t.Fatalf("ExportPrivateKey() error = %v", err)
	}
	if !bytes.Equal(exported, testK1Scalar) {
		t.Errorf("ExportPrivateKey() = %x, want %x", exported, testK1Scalar)
	}
}

func TestImportExport_R1ExternalRepresentation(t *testing.T) {
	s, _ := setupTestStore(t, Options{})

	attrs, err := s.ImportKey(keycodec.CurveR1, append([]byte(nil), testR1Scalar...), "imported")
	if err != nil {
		t.Fatalf("ImportKey() error = %v", err)
	}

	exported, err := s.ExportPrivateKey(attrs.PrivateKeyHandle)
	if err != nil {
		t.Fatalf("ExportPrivateKey() error = %v", err)
	}

	// X9.63: 04 || X || Y || K, so 97 bytes with the scalar at the tail.
	if len(exported) != 97 {
		t.Fatalf("ExportPrivateKey() length = %d, want 97", len(exported))
	}
	if exported[0] != 0x04 {
		t.Errorf("export leading byte = 0x%02x, want 0x04", exported[0])
	}
	if !bytes.Equal(exported[len(exported)-32:], testR1Scalar) {
		t.Error("export does not end with the private scalar")
	}
	if !bytes.Equal(exported[:65], attrs.UncompressedPublicKey) {
		t.Error("export does not start with the uncompressed public key")
	}
}

func TestImportKey_Duplicate(t *testing.T) {
	s, _ := setupTestStore(t, Options{})

	if _, err := s.ImportKey(keycodec.CurveK1, append([]byte(nil), testK1Scalar...), "one"); err != nil {
		t.Fatalf("ImportKey() error = %v", err)
	}
	if _, err := s.ImportKey(keycodec.CurveK1, append([]byte(nil), testK1Scalar...), "two"); err == nil {
		t.Fatal("ImportKey() expected error for duplicate key")
	}
}

func TestImportKey_InvalidScalar(t *testing.T) {
	s, _ := setupTestStore(t, Options{})

	if _, err := s.ImportKey(keycodec.CurveK1, testK1Scalar[:16], "short"); err == nil {
		t.Fatal("ImportKey() expected error for short scalar")
	}
	if _, err := s.ImportKey(keycodec.CurveR1, make([]byte, 32), "zero"); err == nil {
		t.Fatal("ImportKey() expected error for zero scalar")
	}
}

func TestSignDigest(t *testing.T) {
	s, _ := setupTestStore(t, Options{})
	digest := sha256.Sum256([]byte("payload"))

	k1Attrs, err := s.ImportKey(keycodec.CurveK1, append([]byte(nil), testK1Scalar...), "k1")
	if err != nil {
		t.Fatalf("ImportKey() error = %v", err)
	}
	k1Sig, err := s.SignDigest(k1Attrs.PrivateKeyHandle, digest[:])
	if err != nil {
		t.Fatalf("SignDigest() error = %v", err)
	}
	// Recoverable [R || S || V] signature.
	if len(k1Sig) != 65 {
		t.Errorf("K1 signature length = %d, want 65", len(k1Sig))
	}

	r1Attrs, err := s.ImportKey(keycodec.CurveR1, append([]byte(nil), testR1Scalar...), "r1")
	if err != nil {
		t.Fatalf("ImportKey() error = %v", err)
	}
	r1Sig, err := s.SignDigest(r1Attrs.PrivateKeyHandle, digest[:])
	if err != nil {
		t.Fatalf("SignDigest() error = %v", err)
	}

	x, y := elliptic.UnmarshalCompressed(elliptic.P256(), r1Attrs.CompressedPublicKey)
	if x == nil {
		t.Fatal("failed to unmarshal R1 public key")
	}
	pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
	if !ecdsa.VerifyASN1(pub, digest[:], r1Sig) {
		t.Error("R1 signature does not verify")
	}
}

func TestAttributes_SurvivesReopen(t *testing.T) {
	s, dir := setupTestStore(t, Options{})

	created, err := s.CreateKey(keycodec.CurveK1, keys.BioFixed, "persistent")
	if err != nil {
		t.Fatalf("CreateKey() error = %v", err)
	}

	reopened, err := OpenSoftStore(dir, Options{})
	if err != nil {
		t.Fatalf("OpenSoftStore() error = %v", err)
	}
	attrs, err := reopened.Attributes()
	if err != nil {
		t.Fatalf("Attributes() error = %v", err)
	}
	if len(attrs) != 1 {
		t.Fatalf("Attributes() returned %d keys, want 1", len(attrs))
	}
	if !bytes.Equal(attrs[0].CompressedPublicKey, created.CompressedPublicKey) {
		t.Error("reopened attributes do not match created key")
	}
	if attrs[0].Tag != "k1 fixed" {
		t.Errorf("tag = %q, want %q", attrs[0].Tag, "k1 fixed")
	}
}

func TestDeleteKey(t *testing.T) {
	s, dir := setupTestStore(t, Options{})

	attrs, err := s.CreateKey(keycodec.CurveR1, keys.BioNone, "doomed")
	if err != nil {
		t.Fatalf("CreateKey() error = %v", err)
	}

	if err := s.DeleteKey(attrs.PrivateKeyHandle); err != nil {
		t.Fatalf("DeleteKey() error = %v", err)
	}

	remaining, err := s.Attributes()
	if err != nil {
		t.Fatalf("Attributes() error = %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("Attributes() returned %d keys after delete, want 0", len(remaining))
	}
	if _, err := s.ExportPrivateKey(attrs.PrivateKeyHandle); err == nil {
		t.Error("ExportPrivateKey() succeeded after delete")
	}
	if _, err := os.Stat(filepath.Join(dir, string(attrs.PrivateKeyHandle)+keyExtension)); !os.IsNotExist(err) {
		t.Error("key file still exists after delete")
	}

	if err := s.DeleteKey(attrs.PrivateKeyHandle); err == nil {
		t.Error("DeleteKey() expected error for missing key")
	}
}

func TestEncryptedKeys(t *testing.T) {
	password := []byte("a perfectly fine password")
	passwordFn := func(string) ([]byte, error) { return password, nil }

	s, dir := setupTestStore(t, Options{Password: passwordFn})

	attrs, err := s.CreateKey(keycodec.CurveK1, keys.BioNone, "sealed")
	if err != nil {
		t.Fatalf("CreateKey() error = %v", err)
	}

	// The key file on disk must be sealed, with no plaintext key text.
	data, err := os.ReadFile(filepath.Join(dir, string(attrs.PrivateKeyHandle)+keyExtension))
	if err != nil {
		t.Fatalf("failed to read key file: %v", err)
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		t.Fatalf("failed to parse key file: %v", err)
	}
	if !kf.Encrypted || kf.Sealed == nil {
		t.Fatal("key file is not sealed")
	}
	if kf.Key != "" {
		t.Error("sealed key file contains plaintext key text")
	}

	// Export works with the password.
	exported, err := s.ExportPrivateKey(attrs.PrivateKeyHandle)
	if err != nil {
		t.Fatalf("ExportPrivateKey() error = %v", err)
	}
	if len(exported) != keycodec.PrivateScalarLen {
		t.Errorf("export length = %d, want %d", len(exported), keycodec.PrivateScalarLen)
	}

	// Without a password source, sealed material is unreachable.
	locked, err := OpenSoftStore(dir, Options{})
	if err != nil {
		t.Fatalf("OpenSoftStore() error = %v", err)
	}
	if _, err := locked.ExportPrivateKey(attrs.PrivateKeyHandle); err == nil {
		t.Error("ExportPrivateKey() succeeded without password")
	}

	// With the wrong password, decryption fails.
	wrong, err := OpenSoftStore(dir, Options{Password: func(string) ([]byte, error) {
		return []byte("not the password"), nil
	}})
	if err != nil {
		t.Fatalf("OpenSoftStore() error = %v", err)
	}
	if _, err := wrong.ExportPrivateKey(attrs.PrivateKeyHandle); err == nil {
		t.Error("ExportPrivateKey() succeeded with wrong password")
	}

	// Listing attributes never needs the password.
	if _, err := locked.Attributes(); err != nil {
		t.Errorf("Attributes() error = %v", err)
	}
}

func TestStore_RecordIntegration(t *testing.T) {
	s, _ := setupTestStore(t, Options{})

	attrs, err := s.ImportKey(keycodec.CurveK1, append([]byte(nil), testK1Scalar...), "mykey")
	if err != nil {
		t.Fatalf("ImportKey() error = %v", err)
	}

	record, err := keys.New("", attrs, nil)
	if err != nil {
		t.Fatalf("keys.New() error = %v", err)
	}
	if record.Curve() != keycodec.CurveK1 {
		t.Errorf("Curve() = %v, want K1", record.Curve())
	}

	native, ok := record.NativePrivateKey(s)
	if !ok {
		t.Fatal("NativePrivateKey() absent for live software key")
	}
	curve, scalar, err := keycodec.DecodePrivateKey(native)
	if err != nil {
		t.Fatalf("DecodePrivateKey() error = %v", err)
	}
	if curve != keycodec.CurveK1 || !bytes.Equal(scalar, testK1Scalar) {
		t.Error("derived native private key does not round-trip to the scalar")
	}
}
