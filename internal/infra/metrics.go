package infra

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/eliteGoblin/bidbot/internal/domain"
)

// PrometheusRecorder implements domain.MetricsSink using Prometheus metrics.
type PrometheusRecorder struct {
	sessionsTotal prometheus.Counter
	triggersTotal *prometheus.CounterVec
	outcomesTotal *prometheus.CounterVec
	reactionTime  prometheus.Histogram
}

// NewPrometheusRecorder registers the bidbot metrics on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		sessionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bidbot_sessions_total",
				Help: "Monitoring sessions started",
			},
		),
		triggersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bidbot_triggers_total",
				Help: "Bid triggers fired, by the heuristic that detected the opening",
			},
			[]string{"method"},
		),
		outcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bidbot_outcomes_total",
				Help: "Recorded bid outcomes by result and error code",
			},
			[]string{"result", "code"},
		),
		reactionTime: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bidbot_reaction_time_seconds",
				Help:    "Time from trigger to confirmation for successful bids",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
	}
}

func (p *PrometheusRecorder) SessionStarted(session *domain.MonitoringSession) {
	p.sessionsTotal.Inc()
}

func (p *PrometheusRecorder) TriggerIssued(session *domain.MonitoringSession, detection domain.DetectionResult) {
	p.triggersTotal.WithLabelValues(string(detection.Method)).Inc()
}

func (p *PrometheusRecorder) OutcomeRecorded(session *domain.MonitoringSession, outcome domain.BidOutcome) {
	result := "success"
	if !outcome.Success {
		result = "failure"
	}
	code := string(outcome.Error)
	if code == "" {
		code = "none"
	}
	p.outcomesTotal.WithLabelValues(result, code).Inc()

	if outcome.Success {
		p.reactionTime.Observe(outcome.ReactionTimeMs / 1000)
	}
}

// MetricsServer exposes a gatherer over HTTP at /metrics.
type MetricsServer struct {
	addr     string
	server   *http.Server
	listener net.Listener
	logger   *zap.Logger
}

// NewMetricsServer creates a metrics endpoint bound to addr.
func NewMetricsServer(addr string, gatherer prometheus.Gatherer, logger *zap.Logger) *MetricsServer {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &MetricsServer{
		addr: addr,
		server: &http.Server{
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start binds and serves in the background.
func (m *MetricsServer) Start() error {
	ln, err := net.Listen("tcp", m.addr)
	if err != nil {
		return fmt.Errorf("failed to bind metrics endpoint on %s: %w", m.addr, err)
	}
	m.listener = ln
	go func() {
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics endpoint stopped", zap.Error(err))
		}
	}()
	m.logger.Info("metrics endpoint started", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address.
func (m *MetricsServer) Addr() string {
	if m.listener != nil {
		return m.listener.Addr().String()
	}
	return m.addr
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.server.Shutdown(ctx)
}

// Ensure PrometheusRecorder implements domain.MetricsSink.
var _ domain.MetricsSink = (*PrometheusRecorder)(nil)
