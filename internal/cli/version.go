package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentbazaar/bazaar/internal/api"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the bazaard version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bazaard %s\n", api.Version)
	},
}
