// Package config loads bidbot's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/bidbot/internal/domain"
)

// DefaultPath is the configuration file used when --config is not given.
const DefaultPath = "bidbot.yaml"

const (
	MinPollInterval = 50 * time.Millisecond
	MaxPollInterval = 5 * time.Second

	masked = "********"
)

// Transport names accepted in signing.transports.
const (
	TransportHTTP = "http"
	TransportURI  = "uri"
)

// Config is the full bidbot configuration.
type Config struct {
	Auction     AuctionConfig     `yaml:"auction"`
	Signing     SigningConfig     `yaml:"signing"`
	Callback    CallbackConfig    `yaml:"callback"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	Logging     LoggingConfig     `yaml:"logging"`
	Browser     BrowserConfig     `yaml:"browser"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Supervision SupervisionConfig `yaml:"supervision"`

	// DataDir holds the encrypted store, logs and screenshots. Empty means ~/.bidbot.
	DataDir string `yaml:"data_dir"`
}

type AuctionConfig struct {
	URL            string            `yaml:"url"`
	PriceLimit     int64             `yaml:"price_limit"`
	PollInterval   time.Duration     `yaml:"poll_interval"`
	SessionTimeout time.Duration     `yaml:"session_timeout"`
	NotifyProgress bool              `yaml:"notify_progress"`
	Selectors      map[string]string `yaml:"selectors"`
}

type SigningConfig struct {
	Transports       []string      `yaml:"transports"`
	AgentPort        int           `yaml:"agent_port"`
	AgentURL         string        `yaml:"agent_url,omitempty"`
	Storage          string        `yaml:"storage"`
	Password         string        `yaml:"password"`
	URIScheme        string        `yaml:"uri_scheme"`
	DispatchTimeout  time.Duration `yaml:"dispatch_timeout"`
	SignatureTimeout time.Duration `yaml:"signature_timeout"`
}

type CallbackConfig struct {
	Addr string `yaml:"addr"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	File        string `yaml:"file,omitempty"`
	ResultLog   string `yaml:"result_log,omitempty"`
	Screenshots bool   `yaml:"screenshots"`
}

type BrowserConfig struct {
	Headless        bool          `yaml:"headless"`
	Timeout         time.Duration `yaml:"timeout"`
	UserAgent       string        `yaml:"user_agent"`
	InstallBrowsers bool          `yaml:"install_browsers"`
}

type MetricsConfig struct {
	// Addr serves Prometheus metrics when set, e.g. 127.0.0.1:9464.
	Addr string `yaml:"addr"`
}

type SupervisionConfig struct {
	AgentCheckInterval time.Duration `yaml:"agent_check_interval"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		Auction: AuctionConfig{
			URL:            "https://auction-site.com/lot/123",
			PriceLimit:     1000000,
			PollInterval:   200 * time.Millisecond,
			SessionTimeout: time.Hour,
			Selectors: map[string]string{
				string(domain.RoleBidButton):        "button.bid-button",
				string(domain.RoleTimer):            ".auction-timer",
				string(domain.RoleStatus):           ".auction-status",
				string(domain.RoleSignData):         "#signData",
				string(domain.RoleSignatureInput):   "#signatureInput",
				string(domain.RoleConfirmButton):    `button[type="submit"]`,
				string(domain.RoleSuccessIndicator): ".success-message, .bid-confirmed",
			},
		},
		Signing: SigningConfig{
			Transports:       []string{TransportHTTP, TransportURI},
			AgentPort:        13579,
			Storage:          "PKCS12",
			URIScheme:        "ncalayer",
			DispatchTimeout:  10 * time.Second,
			SignatureTimeout: 30 * time.Second,
		},
		Callback: CallbackConfig{Addr: "127.0.0.1:13600"},
		Logging: LoggingConfig{
			Level:       "info",
			Screenshots: true,
		},
		Browser: BrowserConfig{
			Timeout:   30 * time.Second,
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		},
		Supervision: SupervisionConfig{
			AgentCheckInterval: 30 * time.Second,
			HeartbeatInterval:  time.Minute,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults and
// found=false; keys absent from the file keep their default values.
func Load(path string) (cfg Config, found bool, err error) {
	cfg = Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, false, nil
	}
	if err != nil {
		return cfg, false, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, true, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, true, nil
}

// Save writes cfg to path as YAML with owner-only permissions.
func Save(cfg Config, path string) error {
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Marshal renders cfg as YAML.
func (c Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return data, nil
}

// Masked returns a copy with secrets replaced, for display.
func (c Config) Masked() Config {
	out := c
	if out.Signing.Password != "" {
		out.Signing.Password = masked
	}
	if out.Telegram.BotToken != "" {
		out.Telegram.BotToken = masked
	}
	out.Auction.Selectors = make(map[string]string, len(c.Auction.Selectors))
	for k, v := range c.Auction.Selectors {
		out.Auction.Selectors[k] = v
	}
	return out
}

// Selectors returns the selector map keyed by role.
func (c Config) Selectors() map[domain.SelectorRole]string {
	out := make(map[domain.SelectorRole]string, len(c.Auction.Selectors))
	for k, v := range c.Auction.Selectors {
		out[domain.SelectorRole(k)] = v
	}
	return out
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Auction.URL) == "" {
		errs = append(errs, errors.New("auction.url is required"))
	}
	if c.Auction.PollInterval < MinPollInterval || c.Auction.PollInterval > MaxPollInterval {
		errs = append(errs, fmt.Errorf("auction.poll_interval %s outside [%s, %s]",
			c.Auction.PollInterval, MinPollInterval, MaxPollInterval))
	}
	if c.Auction.SessionTimeout <= 0 {
		errs = append(errs, errors.New("auction.session_timeout must be positive"))
	}
	for _, role := range domain.RequiredRoles {
		if strings.TrimSpace(c.Auction.Selectors[string(role)]) == "" {
			errs = append(errs, fmt.Errorf("auction.selectors.%s is required", role))
		}
	}

	if len(c.Signing.Transports) == 0 {
		errs = append(errs, errors.New("signing.transports needs at least one transport"))
	}
	for _, t := range c.Signing.Transports {
		if t != TransportHTTP && t != TransportURI {
			errs = append(errs, fmt.Errorf("signing.transports: unknown transport %q", t))
		}
	}
	if c.Signing.AgentPort <= 0 || c.Signing.AgentPort > 65535 {
		errs = append(errs, fmt.Errorf("signing.agent_port %d is not a valid port", c.Signing.AgentPort))
	}
	if c.Signing.SignatureTimeout <= 0 {
		errs = append(errs, errors.New("signing.signature_timeout must be positive"))
	}
	if strings.TrimSpace(c.Callback.Addr) == "" {
		errs = append(errs, errors.New("callback.addr is required"))
	}

	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		errs = append(errs, errors.New("telegram.bot_token and telegram.chat_id are required when telegram is enabled"))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q must be debug, info, warn or error", c.Logging.Level))
	}

	return errors.Join(errs...)
}
