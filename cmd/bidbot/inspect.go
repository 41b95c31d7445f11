package main

import (
	"fmt"
	"net"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/bidbot/internal/config"
	"github.com/eliteGoblin/bidbot/internal/domain"
	"github.com/eliteGoblin/bidbot/internal/infra"
	"github.com/eliteGoblin/bidbot/internal/usecase"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration, signing agent and last outcome",
	Long:  `Shows the effective auction settings, whether the signing agent is running, whether the callback port is free, and the last recorded bid outcome.`,
	RunE:  runStatus,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded bid outcomes",
	RunE:  runHistory,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show reaction time statistics over recorded outcomes",
	RunE:  runStats,
}

var (
	historyLimit int
	fromStore    bool
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Show at most this many recent outcomes (0 for all)")
	historyCmd.Flags().BoolVar(&fromStore, "from-store", false, "Read the encrypted store instead of the result log")
	statsCmd.Flags().BoolVar(&fromStore, "from-store", false, "Read the encrypted store instead of the result log")
}

// loadHistory returns recorded outcomes, oldest first.
func loadHistory(cfg config.Config) ([]domain.BidOutcome, error) {
	paths := infra.PathsFor(cfg.DataDir)
	if fromStore {
		store, err := openSecrets(paths)
		if err != nil {
			return nil, fmt.Errorf("failed to open encrypted store: %w", err)
		}
		defer store.Close()
		return store.List()
	}

	resultPath := cfg.Logging.ResultLog
	if resultPath == "" {
		resultPath = paths.ResultLog
	}
	return infra.NewFileResultLog(resultPath, zap.NewNop()).List()
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	paths := infra.PathsFor(cfg.DataDir)

	fmt.Println("\n=== bidbot Status ===")
	fmt.Printf("Config: %s\n", configPath)
	fmt.Printf("Auction: %s\n", cfg.Auction.URL)
	fmt.Printf("Price limit: %d\n", cfg.Auction.PriceLimit)
	fmt.Printf("Poll interval: %s (session timeout %s)\n", cfg.Auction.PollInterval, cfg.Auction.SessionTimeout)
	fmt.Printf("Signing transports: %s\n", strings.Join(cfg.Signing.Transports, ", "))
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Config problems:\n  %s\n", strings.ReplaceAll(err.Error(), "\n", "\n  "))
	}

	probe := infra.NewAgentProbe(infra.NewProcessFinder(), zap.NewNop())
	if pids := probe.Running(); len(pids) > 0 {
		fmt.Printf("Signing agent: RUNNING (pids %v)\n", pids)
	} else {
		fmt.Println("Signing agent: NOT RUNNING")
	}

	if ln, err := net.Listen("tcp", cfg.Callback.Addr); err != nil {
		fmt.Printf("Callback port: %s IN USE\n", cfg.Callback.Addr)
	} else {
		_ = ln.Close()
		fmt.Printf("Callback port: %s free\n", cfg.Callback.Addr)
	}

	if store, err := openSecrets(paths); err == nil {
		keys, _ := store.SecretKeys()
		_ = store.Close()
		if len(keys) > 0 {
			fmt.Printf("Stored secrets: %s\n", strings.Join(keys, ", "))
		}
	}

	outcomes, err := loadHistory(cfg)
	switch {
	case err != nil:
		fmt.Printf("Last outcome: unavailable (%v)\n", err)
	case len(outcomes) == 0:
		fmt.Println("Last outcome: none recorded")
	default:
		last := outcomes[len(outcomes)-1]
		fmt.Printf("Last outcome: %s at %s\n", outcomeLabel(last), formatTime(last.Timestamp))
	}
	fmt.Println("=====================")
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	outcomes, err := loadHistory(cfg)
	if err != nil {
		return err
	}
	if len(outcomes) == 0 {
		fmt.Println("No bid outcomes recorded yet")
		return nil
	}
	if historyLimit > 0 && len(outcomes) > historyLimit {
		outcomes = outcomes[len(outcomes)-historyLimit:]
	}

	fmt.Printf("%-19s  %-24s  %10s  %-9s  %s\n", "TIME", "RESULT", "REACTION", "TRANSPORT", "URL")
	for _, o := range outcomes {
		fmt.Printf("%-19s  %-24s  %8.1fms  %-9s  %s\n",
			formatTime(o.Timestamp), outcomeLabel(o), o.ReactionTimeMs, dash(o.Transport), o.URL)
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	outcomes, err := loadHistory(cfg)
	if err != nil {
		return err
	}
	fmt.Println(usecase.BuildReport(outcomes).String())
	return nil
}

func outcomeLabel(o domain.BidOutcome) string {
	if o.Success {
		return "confirmed"
	}
	label := string(o.Error)
	if o.Partial {
		label += " (partial)"
	}
	return label
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
