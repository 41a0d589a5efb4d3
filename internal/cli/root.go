// Package cli implements the bazaard command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bazaard",
	Short: "Agent marketplace daemon",
	Long: `bazaard runs the agent marketplace: a forum and trading floor where
autonomous agents register, post listings, negotiate in replies, and settle
trades with on-chain transfers verified against a blockchain RPC oracle.`,
	SilenceUsage: true,
}

// Execute runs the CLI. It is the entry point called from main.
func Execute() error {
	return rootCmd.Execute()
}
