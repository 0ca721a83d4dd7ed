package cmd

import (
	"crypto/subtle"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ArisenIO/vault-cli/pkg/securestore"
	"github.com/ArisenIO/vault-cli/pkg/vault"
)

const (
	// envPassword is the environment variable consulted before prompting
	// for the password protecting encrypted keys.
	envPassword = "ARISEN_VAULT_PASSWORD"

	vaultDir    = ".arisen-vault"
	storeSubdir = "keys"
	vaultIndex  = "vault.json"

	minPasswordLen = 8
)

var (
	// Global flags
	storePath   string // Vault directory (default ~/.arisen-vault)
	accessGroup string // Access group reported for software keys
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "arisen-vault",
	Short:         "Arisen key vault CLI",
	SilenceErrors: true,
	SilenceUsage:  true,
	Long: `Arisen key management: generate, inspect, retire and sign with
elliptic-curve keys held in a local secure store.

Example usage:
  arisen-vault keys generate --curve k1 --label mykey
  arisen-vault keys list
  arisen-vault sign --key PublicKey-... --digest 0x...
  arisen-vault keys delete PublicKey-...

Environment Variables:
  ARISEN_VAULT_PASSWORD  Password for encrypted keys (safer than prompting in scripts)`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storePath, "store-path", "", "Vault directory (default ~/.arisen-vault)")
	rootCmd.PersistentFlags().StringVar(&accessGroup, "access-group", securestore.DefaultAccessGroup, "Access group reported for software keys")
}

// vaultPath returns the configured vault directory, defaulting to
// ~/.arisen-vault.
func vaultPath() (string, error) {
	if storePath != "" {
		return storePath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, vaultDir), nil
}

// openVault opens the vault over a software store. password may be nil when
// the command never touches sealed material and new keys should be stored as
// plain text.
func openVault(password securestore.PasswordFunc) (*vault.Vault, error) {
	base, err := vaultPath()
	if err != nil {
		return nil, err
	}
	store, err := securestore.OpenSoftStore(filepath.Join(base, storeSubdir), securestore.Options{
		AccessGroup: accessGroup,
		Password:    password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	v, err := vault.Open(store, filepath.Join(base, vaultIndex))
	if err != nil {
		return nil, fmt.Errorf("failed to open vault: %w", err)
	}
	return v, nil
}

// passwordSource returns a PasswordFunc that reads ARISEN_VAULT_PASSWORD or
// prompts with hidden input. confirm asks for the password twice, for key
// creation. The password is resolved once and reused within the command.
func passwordSource(confirm bool) securestore.PasswordFunc {
	var cached []byte
	return func(label string) ([]byte, error) {
		if cached != nil {
			return cached, nil
		}
		if envPwd := os.Getenv(envPassword); envPwd != "" {
			if len(envPwd) < minPasswordLen {
				return nil, fmt.Errorf("%s must be at least %d characters", envPassword, minPasswordLen)
			}
			cached = []byte(envPwd)
			return cached, nil
		}
		if label != "" {
			fmt.Printf("Key: %s\n", label)
		}
		pwd, err := promptPassword(confirm)
		if err != nil {
			return nil, err
		}
		cached = pwd
		return cached, nil
	}
}

// promptPassword prompts for a password. If confirm is true, asks for confirmation.
// The returned password must be cleared by the caller when no longer needed.
func promptPassword(confirm bool) ([]byte, error) {
	fmt.Print("Enter password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}

	if len(password) < minPasswordLen {
		clearBytes(password)
		return nil, fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}

	if confirm {
		fmt.Print("Confirm password: ")
		confirmPwd, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			clearBytes(password)
			return nil, fmt.Errorf("failed to read password confirmation: %w", err)
		}

		// Use constant-time comparison to prevent timing attacks
		if subtle.ConstantTimeCompare(password, confirmPwd) != 1 {
			clearBytes(password)
			clearBytes(confirmPwd)
			return nil, fmt.Errorf("passwords do not match")
		}
		clearBytes(confirmPwd)
	}

	return password, nil
}

// clearBytes securely zeros a byte slice to prevent sensitive data from lingering in memory.
func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
