package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	// sign flags
	signKey    string
	signDigest string
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a digest with a vault key",
	Long: `Sign a precomputed 32-byte digest with the key identified by its
native public key.

K1 signatures are 65-byte recoverable [R || S || V]; R1 signatures are
ASN.1 DER. Retired keys cannot sign.

Examples:
  arisen-vault sign --key PublicKey-... --digest 0x9f86d08...
  arisen-vault sign --key PublicKey-... --digest 9f86d08...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if signKey == "" {
			return fmt.Errorf("--key is required")
		}
		if signDigest == "" {
			return fmt.Errorf("--digest is required")
		}

		digest, err := decodeHexExactLength(signDigest, 32)
		if err != nil {
			return fmt.Errorf("invalid digest: %w", err)
		}

		v, err := openVault(passwordSource(false))
		if err != nil {
			return err
		}

		sig, err := v.SignDigest(strings.TrimSpace(signKey), digest)
		if err != nil {
			return err
		}

		fmt.Printf("0x%x\n", sig)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(signCmd)
	signCmd.Flags().StringVar(&signKey, "key", "", "Native public key of the signing key (required)")
	signCmd.Flags().StringVar(&signDigest, "digest", "", "32-byte digest to sign, hex encoded (required)")
}
