// Package main is the CLI entry point for bidbot.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/bidbot/internal/config"
	"github.com/eliteGoblin/bidbot/internal/domain"
	"github.com/eliteGoblin/bidbot/internal/infra"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bidbot",
	Short: "Auction bid bot - bids the moment an auction opens",
	Long: `bidbot watches an auction page, detects the moment bidding opens,
clicks the bid button, has the payload signed by the local signing agent
(NCALayer) and confirms the bid.

One run is one attempt: the bid button is pressed at most once.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Prints version, commit, and build time. Use --json for machine-readable output and --check to look up the latest published release.",
	Run:   runVersion,
}

var (
	configPath   string
	jsonOutput   bool
	checkRelease bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the YAML configuration file")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	versionCmd.Flags().BoolVar(&checkRelease, "check", false, "Check GitHub for a newer release")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(secretCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads --config, warning on stderr when the file does not exist.
func loadConfig() (config.Config, error) {
	cfg, found, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if !found {
		fmt.Fprintf(os.Stderr, "Config %s not found, using defaults (run 'bidbot config init' to create it)\n", configPath)
	}
	return cfg, nil
}

// openSecrets opens the encrypted store. A nil store is returned, with the
// error, when it cannot be opened; callers fall back to plain config values.
func openSecrets(paths infra.Paths) (*infra.EncryptedStore, error) {
	store, err := infra.OpenStore(paths.DataDir)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// applySecrets fills secrets kept in the store over the plain config values.
func applySecrets(cfg *config.Config, store domain.SecretStore) {
	cfg.Signing.Password = infra.SecretOrDefault(store, infra.SecretAgentPassword, cfg.Signing.Password)
	cfg.Telegram.BotToken = infra.SecretOrDefault(store, infra.SecretTelegramToken, cfg.Telegram.BotToken)
}

func createLogger(level, file string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{"stderr"}
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0700); err == nil {
			config.OutputPaths = append(config.OutputPaths, file)
		}
	}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(strings.ToLower(level)); err == nil {
		config.Level = zap.NewAtomicLevelAt(lvl)
	}

	logger, err := config.Build()
	if err != nil {
		// Fallback to stderr only if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		out, _ := json.Marshal(map[string]string{
			"version":    Version,
			"commit":     Commit,
			"build_time": BuildTime,
		})
		fmt.Println(string(out))
	} else {
		fmt.Printf("bidbot %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}

	if !checkRelease {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	status, err := infra.NewReleaseChecker().Check(ctx, Version)
	switch {
	case err != nil:
		fmt.Printf("Release check failed: %v\n", err)
	case status.UpdateDue:
		fmt.Printf("Newer release available: %s (%s)\n", status.Latest, status.URL)
	default:
		fmt.Println("Up to date")
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
