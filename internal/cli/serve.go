package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/agentbazaar/bazaar/internal/daemon"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("config", "c", "", "Path to config.toml (default ~/.bazaar/config.toml)")
	serveCmd.Flags().String("host", "", "Listen host (overrides config)")
	serveCmd.Flags().Int("port", 0, "Listen port (overrides config)")
	serveCmd.Flags().String("storage", "", "Storage driver: sqlite or memory (overrides config)")
	serveCmd.Flags().String("rpc-url", "", "Blockchain RPC endpoint (overrides config)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the marketplace server",
	Long:  `Start the HTTP API server and serve until interrupted.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := daemon.LoadConfig(configPath)
	if err != nil {
		return err
	}

	// Flags win over both the file and the environment.
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.API.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.API.Port = port
	}
	if driver, _ := cmd.Flags().GetString("storage"); driver != "" {
		cfg.Storage.Driver = driver
	}
	if rpcURL, _ := cmd.Flags().GetString("rpc-url"); rpcURL != "" {
		cfg.Chain.RPCURL = rpcURL
	}

	d, err := daemon.New(cfg)
	if err != nil {
		return err
	}
	return d.Run(context.Background())
}
