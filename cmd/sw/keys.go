package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/salewatch/salewatch/internal/idgen"
	"github.com/salewatch/salewatch/internal/secret"
	"github.com/salewatch/salewatch/internal/types"
)

var (
	keyName  string
	keyValue string
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage partner API credentials",
}

var keysAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a partner API key",
	Long:  `Add a partner API key. Prompts for the key without echo unless --key is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := keyName
		if name == "" {
			name = "Partner"
		}
		key := keyValue
		if key == "" {
			var err error
			key, err = promptForKey()
			if err != nil {
				return err
			}
		}
		if key == "" {
			return fmt.Errorf("no key provided")
		}

		id, err := idgen.NewCredentialID()
		if err != nil {
			return err
		}
		blob, err := secrets.Encrypt(key)
		if err != nil {
			return err
		}
		cred := &types.Credential{
			ID:           id,
			DisplayName:  name,
			KeyHash:      secret.ShortHash(key, 4),
			EncryptedKey: blob,
		}
		if err := store.CreateCredential(rootCtx, cred); err != nil {
			return err
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(cred)
		}
		fmt.Printf("Added credential %s (%s, ...%s)\n", cred.ID, cred.DisplayName, cred.KeyHash)
		return nil
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := store.ListCredentials(rootCtx)
		if err != nil {
			return err
		}
		if jsonOutput {
			if creds == nil {
				creds = []*types.Credential{}
			}
			return json.NewEncoder(os.Stdout).Encode(creds)
		}
		if len(creds) == 0 {
			fmt.Println("No credentials. Add one with: sw keys add")
			return nil
		}
		for _, c := range creds {
			fmt.Printf("%s  %-24s ...%s  added %s\n",
				c.ID, c.DisplayName, c.KeyHash, c.CreatedAt.Format("2006-01-02"))
		}
		return nil
	},
}

var keysRenameCmd = &cobra.Command{
	Use:   "rename ID NAME",
	Short: "Rename a credential",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := store.RenameCredential(rootCtx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Renamed %s to %q\n", args[0], args[1])
		return nil
	},
}

var keysDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a credential and all its synced data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := store.DeleteCredential(rootCtx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s (sync state, tasks and records removed)\n", args[0])
		return nil
	},
}

// promptForKey reads the key from the terminal without echo, falling back to
// a plain line read when stdin is not a terminal (piped input).
func promptForKey() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		var key string
		if _, err := fmt.Fscanln(os.Stdin, &key); err != nil {
			return "", fmt.Errorf("failed to read key: %w", err)
		}
		return strings.TrimSpace(key), nil
	}

	fmt.Fprint(os.Stderr, "Partner API key: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func init() {
	keysAddCmd.Flags().StringVar(&keyName, "name", "", "Display name for the credential")
	keysAddCmd.Flags().StringVar(&keyValue, "key", "", "Plaintext API key (omit to be prompted)")

	keysCmd.AddCommand(keysAddCmd, keysListCmd, keysRenameCmd, keysDeleteCmd)
	rootCmd.AddCommand(keysCmd)
}
