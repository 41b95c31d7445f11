package infra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/eliteGoblin/bidbot/internal/domain"
)

const (
	DefaultViewportWidth  = 1920
	DefaultViewportHeight = 1080
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// SurfaceConfig configures the browser-backed auction page.
type SurfaceConfig struct {
	URL               string
	Headless          bool
	UserAgent         string
	NavigationTimeout time.Duration
	InstallBrowsers   bool
	ScreenshotDir     string // empty disables screenshots
	Selectors         map[domain.SelectorRole]string
}

// PlaywrightSurface drives the auction page in Chromium.
type PlaywrightSurface struct {
	config SurfaceConfig
	logger *zap.Logger

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	closed  bool
}

// OpenPlaywrightSurface launches Chromium and navigates to the auction URL.
func OpenPlaywrightSurface(config SurfaceConfig, logger *zap.Logger) (*PlaywrightSurface, error) {
	if config.URL == "" {
		return nil, errors.New("auction URL is required")
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.NavigationTimeout <= 0 {
		config.NavigationTimeout = 30 * time.Second
	}

	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if config.InstallBrowsers {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	s := &PlaywrightSurface{config: config, logger: logger, pw: pw}

	s.browser, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(config.Headless),
		Args: []string{
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--disable-blink-features=AutomationControlled",
		},
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	s.context, err = s.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  DefaultViewportWidth,
			Height: DefaultViewportHeight,
		},
		UserAgent: playwright.String(config.UserAgent),
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	s.page, err = s.context.NewPage()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	s.page.SetDefaultTimeout(millis(config.NavigationTimeout))

	logger.Info("opening auction page", zap.String("url", config.URL))
	if _, err := s.page.Goto(config.URL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(millis(config.NavigationTimeout)),
	}); err != nil {
		s.Close()
		return nil, fmt.Errorf("navigation failed: %w", err)
	}

	return s, nil
}

// Selector returns the CSS selector bound to role.
func (s *PlaywrightSurface) Selector(role domain.SelectorRole) (string, error) {
	return selectorFor(s.config.Selectors, role)
}

func selectorFor(selectors map[domain.SelectorRole]string, role domain.SelectorRole) (string, error) {
	sel := strings.TrimSpace(selectors[role])
	if sel == "" {
		return "", fmt.Errorf("no selector configured for role %s", role)
	}
	return sel, nil
}

func (s *PlaywrightSurface) ReadState(ctx context.Context, role domain.SelectorRole) (domain.ElementState, error) {
	if err := ctx.Err(); err != nil {
		return domain.ElementState{}, err
	}
	sel, err := s.Selector(role)
	if err != nil {
		return domain.ElementState{}, err
	}

	el, err := s.page.QuerySelector(sel)
	if err != nil {
		return domain.ElementState{}, fmt.Errorf("selector query failed: %w", err)
	}
	if el == nil {
		return domain.ElementState{}, fmt.Errorf("%s (%s): %w", role, sel, domain.ErrElementAbsent)
	}
	defer el.Dispose()

	var state domain.ElementState
	if state.Enabled, err = el.IsEnabled(); err != nil {
		return domain.ElementState{}, fmt.Errorf("enabled check failed: %w", err)
	}
	if state.Text, err = el.TextContent(); err != nil {
		return domain.ElementState{}, fmt.Errorf("text extraction failed: %w", err)
	}
	// Sign data usually sits in a hidden input's value attribute.
	if state.Value, err = el.GetAttribute("value"); err != nil {
		return domain.ElementState{}, fmt.Errorf("value extraction failed: %w", err)
	}
	return state, nil
}

func (s *PlaywrightSurface) Trigger(ctx context.Context, role domain.SelectorRole, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sel, err := s.Selector(role)
	if err != nil {
		return err
	}
	return untilDone(ctx, func() error {
		if err := s.page.Click(sel, playwright.PageClickOptions{
			Timeout: playwright.Float(millis(boundTimeout(ctx, timeout))),
		}); err != nil {
			return fmt.Errorf("click failed: %w", err)
		}
		return nil
	})
}

func (s *PlaywrightSurface) Fill(ctx context.Context, role domain.SelectorRole, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sel, err := s.Selector(role)
	if err != nil {
		return err
	}
	return untilDone(ctx, func() error {
		if err := s.page.Fill(sel, value, playwright.PageFillOptions{
			Timeout: playwright.Float(millis(boundTimeout(ctx, s.config.NavigationTimeout))),
		}); err != nil {
			return fmt.Errorf("fill failed: %w", err)
		}
		return nil
	})
}

func (s *PlaywrightSurface) WaitFor(ctx context.Context, role domain.SelectorRole, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sel, err := s.Selector(role)
	if err != nil {
		return err
	}
	return untilDone(ctx, func() error {
		if _, err := s.page.WaitForSelector(sel, playwright.PageWaitForSelectorOptions{
			State:   playwright.WaitForSelectorStateAttached,
			Timeout: playwright.Float(millis(boundTimeout(ctx, timeout))),
		}); err != nil {
			if errors.Is(err, playwright.ErrTimeout) {
				return fmt.Errorf("%s (%s): %w", role, sel, domain.ErrElementAbsent)
			}
			return fmt.Errorf("wait failed: %w", err)
		}
		return nil
	})
}

// Screenshot saves a full-page PNG into the screenshot directory.
func (s *PlaywrightSurface) Screenshot(name string) (string, error) {
	if s.config.ScreenshotDir == "" {
		return "", errors.New("screenshots disabled")
	}
	if err := os.MkdirAll(s.config.ScreenshotDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create screenshot directory: %w", err)
	}

	path := screenshotPath(s.config.ScreenshotDir, name, time.Now())
	if _, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	}); err != nil {
		return "", fmt.Errorf("screenshot failed: %w", err)
	}
	s.logger.Debug("screenshot saved", zap.String("path", path))
	return path, nil
}

func screenshotPath(dir, name string, at time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.png", name, at.Format("20060102_150405.000000")))
}

// Close releases page, context, browser and the driver. Safe to call twice.
func (s *PlaywrightSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.page != nil {
		errs = append(errs, s.page.Close())
	}
	if s.context != nil {
		errs = append(errs, s.context.Close())
	}
	if s.browser != nil {
		errs = append(errs, s.browser.Close())
	}
	if s.pw != nil {
		errs = append(errs, s.pw.Stop())
	}
	return errors.Join(errs...)
}

// untilDone runs a blocking driver call and returns early when ctx ends. The
// call itself keeps running until its own timeout; callers bound it with
// boundTimeout so it cannot outlive ctx by much.
func untilDone(ctx context.Context, call func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	result := make(chan error, 1)
	go func() {
		result <- call()
	}()
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// boundTimeout shortens timeout to what is left before ctx's deadline.
func boundTimeout(ctx context.Context, timeout time.Duration) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return timeout
	}
	if remaining := time.Until(deadline); remaining < timeout {
		if remaining < time.Millisecond {
			return time.Millisecond
		}
		return remaining
	}
	return timeout
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Ensure PlaywrightSurface implements the surface ports.
var (
	_ domain.Surface       = (*PlaywrightSurface)(nil)
	_ domain.Screenshotter = (*PlaywrightSurface)(nil)
)
