package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coldkeep/vaultengine/pkg/config"
	"github.com/coldkeep/vaultengine/pkg/log"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var cfgPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vaultd",
	Short: "vaultd runs the digital-legacy vault persistence engine",
	Long: `vaultd hosts the vault engine: vault lifecycle, invitations,
chunked content upload, payment verification, and the daily
maintenance sweep, all persisted in a single embedded bbolt file.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"vaultd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to vaultd YAML config (optional)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", true, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(maintainCmd)
	rootCmd.AddCommand(vaultCmd)
	rootCmd.AddCommand(billingCmd)
	rootCmd.AddCommand(adminCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func loadConfig() (config.File, error) {
	return config.Load(cfgPath)
}
