package infra

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/bidbot/internal/domain"
)

// DefaultAgentScheme is the URI scheme registered by the signing agent.
const DefaultAgentScheme = "ncalayer"

// CommandRunner abstracts process launching for testing.
type CommandRunner interface {
	// Start launches the command without waiting for it to exit.
	Start(name string, args ...string) error
	// LookPath reports whether name is on PATH.
	LookPath(name string) (string, error)
}

// RealCommandRunner launches real system commands.
type RealCommandRunner struct{}

// Start launches the command and reaps it in the background.
// The opener outlives the dispatch deadline, so no context is attached.
func (r *RealCommandRunner) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

func (r *RealCommandRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// OpenerCommand returns the OS command that hands a URI to its registered handler.
func OpenerCommand(goos string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler"}
	default:
		return "xdg-open", nil
	}
}

// URITransport invokes the agent through its custom URI scheme.
type URITransport struct {
	scheme    string
	goos      string
	cmdRunner CommandRunner
	logger    *zap.Logger
}

// NewURITransport creates a URI transport for the current OS.
func NewURITransport(scheme string, logger *zap.Logger) *URITransport {
	return NewURITransportWithDeps(scheme, runtime.GOOS, &RealCommandRunner{}, logger)
}

// NewURITransportWithDeps creates a URI transport with injectable dependencies (for testing).
func NewURITransportWithDeps(scheme, goos string, cmdRunner CommandRunner, logger *zap.Logger) *URITransport {
	if scheme == "" {
		scheme = DefaultAgentScheme
	}
	return &URITransport{
		scheme:    scheme,
		goos:      goos,
		cmdRunner: cmdRunner,
		logger:    logger,
	}
}

func (t *URITransport) Name() string {
	return "uri"
}

// Available reports whether the OS opener can be found.
func (t *URITransport) Available() bool {
	name, _ := OpenerCommand(t.goos)
	_, err := t.cmdRunner.LookPath(name)
	return err == nil
}

// BuildURI encodes the payload and callback into a sign URI.
// Spaces are encoded as %20; the agent does not decode '+'.
func (t *URITransport) BuildURI(payload, callbackURL string) string {
	var b strings.Builder
	b.WriteString(t.scheme)
	b.WriteString("://sign?data=")
	b.WriteString(pathSafeEscape(payload))
	if callbackURL != "" {
		b.WriteString("&callback=")
		b.WriteString(pathSafeEscape(callbackURL))
	}
	return b.String()
}

func (t *URITransport) Dispatch(ctx context.Context, req domain.SigningRequest, callbackURL string) error {
	uri := t.BuildURI(req.Payload, callbackURL)
	name, args := OpenerCommand(t.goos)

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.cmdRunner.Start(name, append(args, uri)...); err != nil {
		return fmt.Errorf("failed to open %s URI: %w", t.scheme, err)
	}

	t.logger.Debug("agent URI opened",
		zap.String("opener", name),
		zap.Int("uri_len", len(uri)))
	return nil
}

func pathSafeEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// Ensure URITransport implements domain.SigningTransport.
var _ domain.SigningTransport = (*URITransport)(nil)
