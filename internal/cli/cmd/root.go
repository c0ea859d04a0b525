package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	envName   string
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:           "tournamentctl",
	Short:         "Account administration for the tournament gateway",
	Long:          "Provision accounts, hash passwords and fetch tokens for the tournament gateway.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envName, "env", os.Getenv("APP_ENV"), "config environment (config/envs/<env>.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("TOURNAMENT_URL", "http://localhost:8000"), "gateway base URL")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
