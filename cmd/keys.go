package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ArisenIO/vault-cli/pkg/keycodec"
	"github.com/ArisenIO/vault-cli/pkg/keys"
	"github.com/ArisenIO/vault-cli/pkg/securestore"
)

var (
	// keys flags
	keyCurve   string
	keyBio     string
	keyLabel   string
	keyEncrypt bool
	keyPrivate string
	keyFormat  string
	keyForce   bool
	showRaw    bool
	metaSet    []string
	metaClear  bool
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Key management operations",
	Long: `Manage keys held in the vault at ~/.arisen-vault/

Private material lives in the secure store; key identities and their
metadata live in the vault index and survive deletion (retired keys).
Encrypted keys use Argon2id for key derivation and AES-256-GCM for encryption.

Subcommands:
  generate  Generate a new key pair
  import    Import a private key
  list      List all keys, live and retired
  show      Show one key in detail
  export    Export a private key
  delete    Delete key material (the identity is retired, not forgotten)
  purge     Forget a retired key identity
  annotate  Attach metadata to a key`,
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new key pair",
	Long: `Generate a new key pair in the secure store.

Keys are encrypted by default. Use --encrypt=false to store unencrypted keys (unsafe).
When encryption is enabled, set ARISEN_VAULT_PASSWORD for non-interactive use
or follow the password prompt.

Examples:
  arisen-vault keys generate --curve k1 --label mykey
  arisen-vault keys generate --curve r1 --bio flex --label mykey
  arisen-vault keys generate --label mykey --encrypt=false`,
	RunE: func(cmd *cobra.Command, args []string) error {
		curve, err := keycodec.CurveFromString(keyCurve)
		if err != nil {
			return err
		}
		bio, err := keys.BioFromString(keyBio)
		if err != nil {
			return err
		}

		var password securestore.PasswordFunc
		if keyEncrypt {
			password = passwordSource(true)
		}
		v, err := openVault(password)
		if err != nil {
			return err
		}

		record, err := v.NewKey(curve, bio, keyLabel)
		if err != nil {
			return err
		}

		fmt.Printf("Key generated successfully!\n")
		printRecord(record)
		fmt.Println()
		fmt.Println("WARNING: Back up your key! Use 'arisen-vault keys export' to view the private key.")
		return nil
	},
}

var keysImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a private key",
	Long: `Import a private key into the secure store.

Accepts native PrivateKey-... text (which carries its own curve) or raw hex
(32 bytes, --curve decides). If --private-key is not provided, you will be
prompted to enter it (hidden input).

Examples:
  arisen-vault keys import --label mykey --private-key "PrivateKey-..."
  arisen-vault keys import --label mykey --curve k1 --private-key 0x...
  arisen-vault keys import --label mykey`,
	RunE: func(cmd *cobra.Command, args []string) error {
		curve, err := keycodec.CurveFromString(keyCurve)
		if err != nil {
			return err
		}

		keyStr := keyPrivate
		if keyStr == "" {
			// Prompt for key (hidden input)
			fmt.Print("Enter private key: ")
			inputBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Println()
			if err != nil {
				return fmt.Errorf("failed to read private key: %w", err)
			}
			keyStr = string(inputBytes)
			clearBytes(inputBytes)
		}

		var password securestore.PasswordFunc
		if keyEncrypt {
			password = passwordSource(true)
		}
		v, err := openVault(password)
		if err != nil {
			return err
		}

		record, err := v.ImportKey(keyStr, curve, keyLabel)
		if err != nil {
			return err
		}

		fmt.Printf("Key imported successfully!\n")
		printRecord(record)
		return nil
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all keys, live and retired",
	Long: `List every key identity the vault knows about, including retired
keys whose material has been deleted.

Examples:
  arisen-vault keys list
  arisen-vault keys list --show-raw`,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault(nil)
		if err != nil {
			return err
		}

		records, err := v.AllKeys()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No keys found. Use 'arisen-vault keys generate' or 'arisen-vault keys import' to add a key.")
			return nil
		}

		sort.Slice(records, func(i, j int) bool {
			if records[i].Label() != records[j].Label() {
				return records[i].Label() < records[j].Label()
			}
			return records[i].NativePublicKey() < records[j].NativePublicKey()
		})

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		if showRaw {
			fmt.Fprintln(w, "LABEL\tCURVE\tBIO\tSTATUS\tACCESS GROUP\tTAG\tPUBLIC KEY")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.Label(), r.Curve(), bioName(r.BioFactor()), statusName(r), r.AccessGroup(), r.Tag(), r.NativePublicKey())
			}
		} else {
			fmt.Fprintln(w, "LABEL\tCURVE\tBIO\tSTATUS\tPUBLIC KEY")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					r.Label(), r.Curve(), bioName(r.BioFactor()), statusName(r), r.NativePublicKey())
			}
		}
		w.Flush()

		fmt.Printf("\nTotal: %d key(s)\n", len(records))
		return nil
	},
}

var keysShowCmd = &cobra.Command{
	Use:   "show <public-key>",
	Short: "Show one key in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault(nil)
		if err != nil {
			return err
		}

		record, err := v.GetKey(strings.TrimSpace(args[0]))
		if err != nil {
			return err
		}

		printRecord(record)
		if raw := record.CompressedPublicKey(); raw != nil {
			fmt.Printf("  Compressed:    0x%x\n", raw)
		}
		if raw := record.UncompressedPublicKey(); raw != nil {
			fmt.Printf("  Uncompressed:  0x%x\n", raw)
		}
		if meta := record.Metadata(); len(meta) > 0 {
			data, err := json.MarshalIndent(meta, "  ", "  ")
			if err != nil {
				return fmt.Errorf("failed to render metadata: %w", err)
			}
			fmt.Printf("  Metadata:      %s\n", data)
		}
		return nil
	},
}

var keysExportCmd = &cobra.Command{
	Use:   "export <public-key>",
	Short: "Export a private key",
	Long: `Export a key by displaying its private key.

WARNING: This will display your private key in plaintext!

Hardware-backed and retired keys have no exportable private key.
If the key is encrypted, you will be prompted for the password.

Examples:
  arisen-vault keys export PublicKey-...
  arisen-vault keys export PublicKey-... --format hex`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := openVault(passwordSource(false))
		if err != nil {
			return err
		}

		text, ok, err := v.ExportPrivateKey(strings.TrimSpace(args[0]))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("key has no exportable private key (hardware-backed or retired)")
		}

		switch keyFormat {
		case "native", "":
			fmt.Println(text)
		case "hex":
			_, scalar, err := keycodec.DecodePrivateKey(text)
			if err != nil {
				return err
			}
			fmt.Printf("0x%x\n", scalar)
			clearBytes(scalar)
		default:
			return fmt.Errorf("unsupported format: %s (use native or hex)", keyFormat)
		}
		return nil
	},
}

var keysDeleteCmd = &cobra.Command{
	Use:   "delete <public-key>",
	Short: "Delete key material (the identity is retired, not forgotten)",
	Long: `Delete a key's material from the secure store.

The key identity and its metadata are kept and the key shows up as retired
in 'keys list'. Use 'keys purge' to forget it entirely.

Examples:
  arisen-vault keys delete PublicKey-...
  arisen-vault keys delete PublicKey-... --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pub := strings.TrimSpace(args[0])

		v, err := openVault(nil)
		if err != nil {
			return err
		}

		if !keyForce {
			fmt.Printf("Are you sure you want to delete the material behind %s? Signing with it will no longer be possible.\n", pub)
			if !confirmYes() {
				fmt.Println("Deletion cancelled.")
				return nil
			}
		}

		if err := v.DeleteKey(pub); err != nil {
			return err
		}

		fmt.Printf("Key material deleted. The identity is retained as retired; 'keys purge' forgets it.\n")
		return nil
	},
}

var keysPurgeCmd = &cobra.Command{
	Use:   "purge <public-key>",
	Short: "Forget a retired key identity",
	Long: `Remove a retired key identity and its metadata from the vault index.

Only retired keys can be purged; delete a live key first.

Examples:
  arisen-vault keys purge PublicKey-...
  arisen-vault keys purge PublicKey-... --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pub := strings.TrimSpace(args[0])

		v, err := openVault(nil)
		if err != nil {
			return err
		}

		if !keyForce {
			fmt.Printf("Are you sure you want to forget %s? Its metadata cannot be recovered.\n", pub)
			if !confirmYes() {
				fmt.Println("Purge cancelled.")
				return nil
			}
		}

		if err := v.PurgeKey(pub); err != nil {
			return err
		}

		fmt.Printf("Key identity purged.\n")
		return nil
	},
}

var keysAnnotateCmd = &cobra.Command{
	Use:   "annotate <public-key>",
	Short: "Attach metadata to a key",
	Long: `Set metadata entries on a key identity, live or retired.

Values are parsed as JSON when possible, otherwise stored as strings.

Examples:
  arisen-vault keys annotate PublicKey-... --set note=legacy
  arisen-vault keys annotate PublicKey-... --set weight=2 --set tags='["ops"]'
  arisen-vault keys annotate PublicKey-... --clear`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pub := strings.TrimSpace(args[0])
		if !metaClear && len(metaSet) == 0 {
			return fmt.Errorf("nothing to do: pass --set k=v or --clear")
		}

		v, err := openVault(nil)
		if err != nil {
			return err
		}

		metadata := map[string]any{}
		if !metaClear {
			record, err := v.GetKey(pub)
			if err != nil {
				return err
			}
			metadata = record.Metadata()
		}
		for _, kv := range metaSet {
			k, val, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return fmt.Errorf("invalid --set %q: expected key=value", kv)
			}
			var parsed any
			if err := json.Unmarshal([]byte(val), &parsed); err != nil {
				parsed = val
			}
			metadata[k] = parsed
		}

		if err := v.UpdateMetadata(pub, metadata); err != nil {
			return err
		}
		fmt.Printf("Metadata updated (%d entries).\n", len(metadata))
		return nil
	},
}

// printRecord prints the identity fields shared by all key subcommands.
func printRecord(r *keys.Record) {
	fmt.Printf("  Public key:    %s\n", r.NativePublicKey())
	fmt.Printf("  Curve:         %s\n", r.Curve())
	fmt.Printf("  Bio factor:    %s\n", bioName(r.BioFactor()))
	fmt.Printf("  Status:        %s\n", statusName(r))
	if r.Label() != "" {
		fmt.Printf("  Label:         %s\n", r.Label())
	}
	if !r.Retired() {
		fmt.Printf("  Access group:  %s\n", r.AccessGroup())
		fmt.Printf("  Hardware:      %v\n", r.HardwareBacked())
	}
}

func bioName(b keys.BioFactor) string {
	if name := b.String(); name != "" {
		return name
	}
	return "none"
}

func statusName(r *keys.Record) string {
	if r.Retired() {
		return "retired"
	}
	return "live"
}

// confirmYes reads a confirmation line from stdin.
func confirmYes() bool {
	fmt.Print("Type 'yes' to confirm: ")
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(strings.ToLower(response)) == "yes"
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysGenerateCmd)
	keysCmd.AddCommand(keysImportCmd)
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysShowCmd)
	keysCmd.AddCommand(keysExportCmd)
	keysCmd.AddCommand(keysDeleteCmd)
	keysCmd.AddCommand(keysPurgeCmd)
	keysCmd.AddCommand(keysAnnotateCmd)

	// Generate flags
	keysGenerateCmd.Flags().StringVar(&keyCurve, "curve", "r1", "Curve: k1 or r1")
	keysGenerateCmd.Flags().StringVar(&keyBio, "bio", "none", "Biometric binding: none, fixed or flex")
	keysGenerateCmd.Flags().StringVar(&keyLabel, "label", "", "Label for the key")
	keysGenerateCmd.Flags().BoolVar(&keyEncrypt, "encrypt", true, "Encrypt the key with a password (default true)")

	// Import flags
	keysImportCmd.Flags().StringVar(&keyCurve, "curve", "r1", "Curve for hex input: k1 or r1 (native input carries its own)")
	keysImportCmd.Flags().StringVar(&keyLabel, "label", "", "Label for the key")
	keysImportCmd.Flags().StringVar(&keyPrivate, "private-key", "", "Private key (PrivateKey-... or 0x... format; discouraged, prefer the prompt)")
	keysImportCmd.Flags().BoolVar(&keyEncrypt, "encrypt", true, "Encrypt the key with a password (default true)")

	// List flags
	keysListCmd.Flags().BoolVar(&showRaw, "show-raw", false, "Show access group and raw tag columns")

	// Export flags
	keysExportCmd.Flags().StringVar(&keyFormat, "format", "native", "Output format: native or hex")

	// Delete/purge flags
	keysDeleteCmd.Flags().BoolVar(&keyForce, "force", false, "Skip confirmation prompt")
	keysPurgeCmd.Flags().BoolVar(&keyForce, "force", false, "Skip confirmation prompt")

	// Annotate flags
	keysAnnotateCmd.Flags().StringArrayVar(&metaSet, "set", nil, "Metadata entry key=value (repeatable)")
	keysAnnotateCmd.Flags().BoolVar(&metaClear, "clear", false, "Replace the metadata bag instead of merging")
}
