package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/bidbot/internal/domain"
)

// DefaultAgentPort is the port NCALayer-style agents listen on.
const DefaultAgentPort = 13579

const maxAgentResponseBytes = 1 << 20

// HTTPTransportConfig configures the local HTTP RPC transport.
type HTTPTransportConfig struct {
	BaseURL  string // defaults to http://localhost:<Port>
	Port     int
	Storage  string // key storage type, e.g. PKCS12
	Password string
	Timeout  time.Duration
}

type signRequestBody struct {
	Data     string `json:"data"`
	Storage  string `json:"storage"`
	Password string `json:"password"`
}

type signResponseBody struct {
	Signature string `json:"signature"`
	Error     string `json:"error"`
}

// HTTPTransport posts the payload to the agent's local /sign endpoint.
// A signature in the response is delivered straight into the handshake;
// otherwise the agent is expected to call back.
type HTTPTransport struct {
	config HTTPTransportConfig
	client *http.Client
	sink   domain.SignatureSink
	logger *zap.Logger
}

// NewHTTPTransport creates the HTTP transport.
func NewHTTPTransport(config HTTPTransportConfig, sink domain.SignatureSink, logger *zap.Logger) *HTTPTransport {
	if config.Port == 0 {
		config.Port = DefaultAgentPort
	}
	if config.BaseURL == "" {
		config.BaseURL = fmt.Sprintf("http://localhost:%d", config.Port)
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &HTTPTransport{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		sink:   sink,
		logger: logger,
	}
}

func (t *HTTPTransport) Name() string {
	return "http"
}

func (t *HTTPTransport) Available() bool {
	return t.config.BaseURL != ""
}

func (t *HTTPTransport) Dispatch(ctx context.Context, req domain.SigningRequest, callbackURL string) error {
	body, err := json.Marshal(signRequestBody{
		Data:     req.Payload,
		Storage:  t.config.Storage,
		Password: t.config.Password,
	})
	if err != nil {
		return fmt.Errorf("failed to encode sign request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(t.config.BaseURL, "/")+"/sign", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build sign request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("agent unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent answered %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxAgentResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read agent response: %w", err)
	}

	var parsed signResponseBody
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil {
			// The agent accepted the request; the signature will come by callback.
			t.logger.Debug("agent response is not JSON, waiting for callback", zap.Error(err))
			return nil
		}
	}

	switch {
	case parsed.Signature != "":
		t.sink.Deliver(req.RequestID, parsed.Signature)
	case parsed.Error != "":
		t.sink.Reject(req.RequestID, parsed.Error)
	}
	return nil
}

// Ensure HTTPTransport implements domain.SigningTransport.
var _ domain.SigningTransport = (*HTTPTransport)(nil)
