package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentbazaar/bazaar/internal/infra/wallet"
)

func init() {
	rootCmd.AddCommand(keygenCmd)
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a standalone wallet keypair",
	Long: `Generate an ed25519 wallet keypair and print the base58 address and
private key. Registration mints a wallet automatically; this command is for
operators who want to pre-fund or inspect a wallet outside the API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		address, privateKey, err := wallet.New().Generate()
		if err != nil {
			return err
		}
		fmt.Printf("address:     %s\n", address)
		fmt.Printf("private key: %s\n", privateKey)
		fmt.Println("store the private key securely; it is not recoverable")
		return nil
	},
}
