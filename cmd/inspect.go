package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ArisenIO/vault-cli/pkg/keycodec"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <key-string>",
	Short: "Decode a native key string",
	Long: `Decode a native PublicKey-... or PrivateKey-... string and show its
curve and raw payload. The checksum is validated; nothing is stored.

Examples:
  arisen-vault inspect PublicKey-...
  arisen-vault inspect PrivateKey-...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := strings.TrimSpace(args[0])

		switch {
		case strings.HasPrefix(s, keycodec.PublicKeyPrefix):
			curve, compressed, err := keycodec.DecodePublicKey(s)
			if err != nil {
				return err
			}
			fmt.Printf("  Kind:        public key\n")
			fmt.Printf("  Curve:       %s\n", curve)
			fmt.Printf("  Compressed:  0x%x\n", compressed)
		case strings.HasPrefix(s, keycodec.PrivateKeyPrefix):
			curve, scalar, err := keycodec.DecodePrivateKey(s)
			if err != nil {
				return err
			}
			fmt.Printf("  Kind:    private key\n")
			fmt.Printf("  Curve:   %s\n", curve)
			fmt.Printf("  Scalar:  0x%x\n", scalar)
			clearBytes(scalar)
		default:
			return fmt.Errorf("expected a %q or %q string", keycodec.PublicKeyPrefix, keycodec.PrivateKeyPrefix)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

// decodeHex decodes a hex string while accepting optional 0x/0X prefix.
func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")

	decoded, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

// decodeHexExactLength decodes hex and enforces exact decoded byte length.
func decodeHexExactLength(s string, expected int) ([]byte, error) {
	decoded, err := decodeHex(s)
	if err != nil {
		return nil, err
	}
	if len(decoded) != expected {
		return nil, fmt.Errorf("invalid length: expected %d bytes, got %d", expected, len(decoded))
	}
	return decoded, nil
}
