package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	outputFmt string
	userName  string
	userRoles string
)

var rootCmd = &cobra.Command{
	Use:   "registryctl",
	Short: "CLI for the asset registry server",
	Long: `registryctl manages versioned asset metadata on a registry server:
registration, lifecycle transitions, dependency edges, and the event history.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOrDefault("REGISTRY_SERVER", "http://localhost:8080"), "Registry server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&userName, "user", envOrDefault("REGISTRY_USER", ""), "Acting user sent as X-User")
	rootCmd.PersistentFlags().StringVar(&userRoles, "roles", envOrDefault("REGISTRY_ROLES", ""), "Comma-separated roles sent as X-Roles")

	rootCmd.AddCommand(assetsCmd)
	rootCmd.AddCommand(depsCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(healthCmd)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
