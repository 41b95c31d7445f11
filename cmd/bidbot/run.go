package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/bidbot/internal/config"
	"github.com/eliteGoblin/bidbot/internal/daemon"
	"github.com/eliteGoblin/bidbot/internal/domain"
	"github.com/eliteGoblin/bidbot/internal/handshake"
	"github.com/eliteGoblin/bidbot/internal/infra"
	"github.com/eliteGoblin/bidbot/internal/usecase"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Monitor the auction and bid when it opens",
	Long: `Opens the auction page, polls it until bidding opens, then clicks the
bid button, signs the payload through the signing agent and confirms.

Stops when the bid is confirmed, fails, the session timeout elapses,
or on Ctrl+C. Exits non-zero unless the bid was confirmed.`,
	RunE: runRun,
}

var (
	flagURL          string
	flagPriceLimit   int64
	flagPollInterval time.Duration
	flagHeadless     bool
	flagLogLevel     string
	flagAgentPort    int
	flagStorage      string
	flagMetricsAddr  string
	flagSelectors    map[string]string
)

func init() {
	f := runCmd.Flags()
	f.StringVar(&flagURL, "url", "", "Auction lot URL")
	f.Int64Var(&flagPriceLimit, "price-limit", 0, "Maximum price (recorded with the outcome)")
	f.DurationVar(&flagPollInterval, "poll-interval", 0, "Page poll interval (50ms-5s)")
	f.BoolVar(&flagHeadless, "headless", false, "Run the browser without a window")
	f.StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	f.IntVar(&flagAgentPort, "agent-port", 0, "Signing agent HTTP port")
	f.StringVar(&flagStorage, "storage", "", "Signing key storage type (e.g. PKCS12)")
	f.StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	f.StringToStringVar(&flagSelectors, "selector", nil, "Override a selector, role=css (repeatable)")
}

// applyRunFlags overrides config values with flags the operator set.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("url") {
		cfg.Auction.URL = flagURL
	}
	if f.Changed("price-limit") {
		cfg.Auction.PriceLimit = flagPriceLimit
	}
	if f.Changed("poll-interval") {
		cfg.Auction.PollInterval = flagPollInterval
	}
	if f.Changed("headless") {
		cfg.Browser.Headless = flagHeadless
	}
	if f.Changed("log-level") {
		cfg.Logging.Level = flagLogLevel
	}
	if f.Changed("agent-port") {
		cfg.Signing.AgentPort = flagAgentPort
	}
	if f.Changed("storage") {
		cfg.Signing.Storage = flagStorage
	}
	if f.Changed("metrics-addr") {
		cfg.Metrics.Addr = flagMetricsAddr
	}
	for role, sel := range flagSelectors {
		cfg.Auction.Selectors[strings.TrimSpace(role)] = sel
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, &cfg)

	paths := infra.PathsFor(cfg.DataDir)
	if err := paths.Ensure(); err != nil {
		return err
	}
	logFile := cfg.Logging.File
	if logFile == "" {
		logFile = paths.LogFile
	}
	logger := createLogger(cfg.Logging.Level, logFile)
	defer func() { _ = logger.Sync() }()

	// The store mirrors outcomes and holds secrets; a bid still runs without it.
	var secrets domain.SecretStore
	store, err := openSecrets(paths)
	if err != nil {
		logger.Warn("encrypted store unavailable, using plain config secrets", zap.Error(err))
	} else {
		defer store.Close()
		secrets = store
	}
	applySecrets(&cfg, secrets)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			logger.Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	report, err := runSession(ctx, cfg, paths, store, logger)
	if err != nil {
		return err
	}
	return reportExit(report)
}

// runSession wires every collaborator for one session and runs it.
func runSession(ctx context.Context, cfg config.Config, paths infra.Paths, store *infra.EncryptedStore, logger *zap.Logger) (usecase.Report, error) {
	screenshotDir := ""
	if cfg.Logging.Screenshots {
		screenshotDir = paths.ScreenshotDir
	}

	logger.Info("opening auction page",
		zap.String("url", cfg.Auction.URL),
		zap.Bool("headless", cfg.Browser.Headless))

	surface, err := infra.OpenPlaywrightSurface(infra.SurfaceConfig{
		URL:               cfg.Auction.URL,
		Headless:          cfg.Browser.Headless,
		UserAgent:         cfg.Browser.UserAgent,
		NavigationTimeout: cfg.Browser.Timeout,
		InstallBrowsers:   cfg.Browser.InstallBrowsers,
		ScreenshotDir:     screenshotDir,
		Selectors:         cfg.Selectors(),
	}, logger)
	if err != nil {
		return usecase.Report{}, fmt.Errorf("failed to open auction page: %w", err)
	}

	hs := handshake.New(handshake.Config{
		Addr:              cfg.Callback.Addr,
		Timeout:           cfg.Signing.SignatureTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}, logger)

	invoker, err := buildInvoker(cfg, hs, logger)
	if err != nil {
		_ = surface.Close()
		return usecase.Report{}, err
	}

	resultPath := cfg.Logging.ResultLog
	if resultPath == "" {
		resultPath = paths.ResultLog
	}
	fileLog := infra.NewFileResultLog(resultPath, logger)
	var results domain.ResultLog = fileLog
	if store != nil {
		results = infra.NewMultiResultLog(logger, fileLog, store)
	}

	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		_ = surface.Close()
		return usecase.Report{}, err
	}

	reg := prometheus.NewRegistry()
	recorder := infra.NewPrometheusRecorder(reg)

	orchestrator := usecase.NewOrchestrator(usecase.OrchestratorConfig{
		PollInterval:     cfg.Auction.PollInterval,
		SessionTimeout:   cfg.Auction.SessionTimeout,
		SignatureTimeout: cfg.Signing.SignatureTimeout,
		URL:              cfg.Auction.URL,
		PriceLimit:       cfg.Auction.PriceLimit,
		Screenshots:      cfg.Logging.Screenshots,
		NotifyProgress:   cfg.Auction.NotifyProgress,
	}, usecase.OrchestratorDeps{
		Surface:   surface,
		Detector:  usecase.NewDetector(surface, nil, logger),
		Invoker:   invoker,
		Handshake: hs,
		Results:   results,
		Notifier:  notifier,
		Metrics:   recorder,
	}, logger)

	deps := daemon.RunnerDeps{
		Session:    orchestrator,
		Callback:   hs,
		Supervisor: daemon.NewAgentSupervisor(infra.NewAgentProbe(infra.NewProcessFinder(), logger), logger),
		Closers:    []io.Closer{surface},
	}
	if cfg.Metrics.Addr != "" {
		deps.Metrics = infra.NewMetricsServer(cfg.Metrics.Addr, reg, logger)
	}

	runner := daemon.NewRunner(daemon.RunnerConfig{
		AgentCheckInterval: cfg.Supervision.AgentCheckInterval,
		HeartbeatInterval:  cfg.Supervision.HeartbeatInterval,
	}, deps, logger)

	return runner.Run(ctx)
}

// buildInvoker creates the signing transports in configured order.
func buildInvoker(cfg config.Config, sink domain.SignatureSink, logger *zap.Logger) (*infra.Invoker, error) {
	var transports []domain.SigningTransport
	for _, name := range cfg.Signing.Transports {
		switch name {
		case config.TransportHTTP:
			transports = append(transports, infra.NewHTTPTransport(infra.HTTPTransportConfig{
				BaseURL:  cfg.Signing.AgentURL,
				Port:     cfg.Signing.AgentPort,
				Storage:  cfg.Signing.Storage,
				Password: cfg.Signing.Password,
				Timeout:  cfg.Signing.DispatchTimeout,
			}, sink, logger))
		case config.TransportURI:
			transports = append(transports, infra.NewURITransport(cfg.Signing.URIScheme, logger))
		default:
			return nil, fmt.Errorf("unknown signing transport %q", name)
		}
	}
	return infra.NewInvoker(logger, transports...), nil
}

func buildNotifier(cfg config.Config, logger *zap.Logger) (domain.Notifier, error) {
	if !cfg.Telegram.Enabled {
		return infra.NewLogNotifier(logger), nil
	}
	n, err := infra.NewTelegramNotifier(infra.TelegramConfig{
		BotToken: cfg.Telegram.BotToken,
		ChatID:   cfg.Telegram.ChatID,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure telegram: %w", err)
	}
	return n, nil
}

// errBidNotConfirmed makes the process exit non-zero without repeating the report.
var errBidNotConfirmed = errors.New("bid not confirmed")

func reportExit(report usecase.Report) error {
	fmt.Println("\n=== Session Result ===")
	if report.Outcome != nil {
		o := report.Outcome
		if o.Success {
			fmt.Println("Result: BID CONFIRMED")
		} else {
			fmt.Printf("Result: FAILED (%s)\n", o.Error)
			fmt.Printf("        %s\n", o.Error.Describe())
			if o.Partial {
				fmt.Println("        The bid button was already pressed; check the auction page.")
			}
		}
		fmt.Printf("Reaction time: %.1f ms\n", o.ReactionTimeMs)
		fmt.Printf("Detection lag: %.1f ms\n", o.DetectionLagMs)
		if o.Transport != "" {
			fmt.Printf("Signed via: %s\n", o.Transport)
		}
	} else {
		fmt.Printf("Result: NOT TRIGGERED (%s)\n", report.Code)
		fmt.Printf("        %s\n", report.Code.Describe())
	}
	fmt.Println("======================")

	if report.Code != domain.CodeNone {
		return errBidNotConfirmed
	}
	return nil
}
