//go:build integration

package integration

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/eliteGoblin/bidbot/internal/daemon"
	"github.com/eliteGoblin/bidbot/internal/domain"
	"github.com/eliteGoblin/bidbot/internal/handshake"
	"github.com/eliteGoblin/bidbot/internal/infra"
	"github.com/eliteGoblin/bidbot/internal/usecase"
	"github.com/eliteGoblin/bidbot/test/fixtures"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Send(ctx context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func (n *recordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

type sessionTimings struct {
	session   time.Duration
	signature time.Duration
}

// bidHarness wires real infrastructure around a scripted page and fake agent.
type bidHarness struct {
	page      *fixtures.AuctionPage
	agent     *fixtures.FakeAgent
	hs        *handshake.Handshake
	results   *infra.FileResultLog
	notifier  *recordingNotifier
	runner    *daemon.Runner
	callbackU string
}

func newBidHarness(page *fixtures.AuctionPage, agent *fixtures.FakeAgent, timings sessionTimings) *bidHarness {
	logger := zap.NewNop()
	hs := handshake.New(handshake.Config{Addr: "127.0.0.1:0", Timeout: 5 * time.Second}, logger)
	Expect(hs.Start()).To(Succeed())

	results := infra.NewFileResultLog(filepath.Join(GinkgoT().TempDir(), infra.DefaultResultLogName), logger)
	notifier := &recordingNotifier{}
	invoker := infra.NewInvoker(logger, infra.NewHTTPTransport(infra.HTTPTransportConfig{
		BaseURL: agent.URL(),
		Storage: "PKCS12",
		Timeout: time.Second,
	}, hs, logger))

	orchestrator := usecase.NewOrchestrator(usecase.OrchestratorConfig{
		PollInterval:     10 * time.Millisecond,
		SessionTimeout:   timings.session,
		SignatureTimeout: timings.signature,
		TriggerTimeout:   time.Second,
		PayloadTimeout:   time.Second,
		SuccessWait:      time.Second,
		URL:              "https://auction.test/lot/1",
		PriceLimit:       1000,
	}, usecase.OrchestratorDeps{
		Surface:   page,
		Invoker:   invoker,
		Handshake: hs,
		Results:   results,
		Notifier:  notifier,
		Metrics:   infra.NewPrometheusRecorder(prometheus.NewRegistry()),
	}, logger)

	runner := daemon.NewRunner(daemon.RunnerConfig{}, daemon.RunnerDeps{
		Session:  orchestrator,
		Callback: hs,
	}, logger)

	return &bidHarness{
		page:      page,
		agent:     agent,
		hs:        hs,
		results:   results,
		notifier:  notifier,
		runner:    runner,
		callbackU: "http://" + hs.Addr() + handshake.CallbackPath,
	}
}

func (h *bidHarness) run(ctx context.Context) usecase.Report {
	report, err := h.runner.Run(ctx)
	Expect(err).NotTo(HaveOccurred())
	return report
}

func (h *bidHarness) recorded() []domain.BidOutcome {
	outcomes, err := h.results.List()
	Expect(err).NotTo(HaveOccurred())
	return outcomes
}

var _ = Describe("Bid session", func() {
	var agent *fixtures.FakeAgent

	AfterEach(func() {
		if agent != nil {
			agent.Close()
		}
	})

	Context("when the auction opens and the agent calls back with a signature", func() {
		It("confirms the bid exactly once", func() {
			page := fixtures.NewAuctionPage(3, "ABCXYZ")
			agent = fixtures.NewFakeAgent(fixtures.AgentCallback, "SIG123")
			h := newBidHarness(page, agent, sessionTimings{session: 5 * time.Second, signature: 2 * time.Second})
			agent.UseCallback(h.callbackU, 50*time.Millisecond, 1)

			report := h.run(context.Background())

			Expect(report.Code).To(Equal(domain.CodeNone))
			Expect(report.Detection.Method).To(Equal(domain.MethodButtonEnabled))
			Expect(page.ButtonReads()).To(BeNumerically(">=", 3))
			Expect(page.Clicks(domain.RoleBidButton)).To(Equal(1))
			Expect(page.Filled(domain.RoleSignatureInput)).To(Equal("SIG123"))

			Expect(agent.Requests()).To(HaveLen(1))
			Expect(agent.Requests()[0].Data).To(Equal("ABCXYZ"))

			outcomes := h.recorded()
			Expect(outcomes).To(HaveLen(1))
			Expect(outcomes[0].Success).To(BeTrue())
			Expect(outcomes[0].Error).To(Equal(domain.CodeNone))
			Expect(outcomes[0].Transport).To(Equal("http"))
			Expect(outcomes[0].ReactionTimeMs).To(BeNumerically(">=", 50))
			Expect(h.notifier.Messages()).To(HaveLen(1))
		})
	})

	Context("when the agent signs inline in its response", func() {
		It("confirms without waiting for a callback", func() {
			page := fixtures.NewAuctionPage(1, "ABCXYZ")
			agent = fixtures.NewFakeAgent(fixtures.AgentSignInline, "INLINE")
			h := newBidHarness(page, agent, sessionTimings{session: 5 * time.Second, signature: 2 * time.Second})

			report := h.run(context.Background())

			Expect(report.Code).To(Equal(domain.CodeNone))
			Expect(page.Filled(domain.RoleSignatureInput)).To(Equal("INLINE"))
		})
	})

	Context("when the signature never arrives", func() {
		It("fails with SigningTimeout after pressing the button once", func() {
			page := fixtures.NewAuctionPage(3, "ABCXYZ")
			agent = fixtures.NewFakeAgent(fixtures.AgentSilent, "")
			h := newBidHarness(page, agent, sessionTimings{session: 5 * time.Second, signature: 300 * time.Millisecond})

			start := time.Now()
			report := h.run(context.Background())

			Expect(time.Since(start)).To(BeNumerically("<", 2*time.Second))
			Expect(report.Code).To(Equal(domain.CodeSigningTimeout))
			Expect(page.Clicks(domain.RoleBidButton)).To(Equal(1))
			Expect(page.Clicks(domain.RoleConfirmButton)).To(Equal(0))

			outcomes := h.recorded()
			Expect(outcomes).To(HaveLen(1))
			Expect(outcomes[0].Success).To(BeFalse())
			Expect(outcomes[0].Error).To(Equal(domain.CodeSigningTimeout))
			Expect(outcomes[0].Partial).To(BeTrue())
			Expect(h.notifier.Messages()).To(HaveLen(1))
		})

		It("ignores a callback that arrives after the timeout", func() {
			page := fixtures.NewAuctionPage(1, "ABCXYZ")
			agent = fixtures.NewFakeAgent(fixtures.AgentCallback, "LATE")
			h := newBidHarness(page, agent, sessionTimings{session: 5 * time.Second, signature: 100 * time.Millisecond})
			agent.UseCallback(h.callbackU, 300*time.Millisecond, 1)

			report := h.run(context.Background())
			Expect(report.Code).To(Equal(domain.CodeSigningTimeout))
			Expect(page.Filled(domain.RoleSignatureInput)).To(BeEmpty())
		})
	})

	Context("when the auction never opens", func() {
		It("times out without triggering or recording an outcome", func() {
			page := fixtures.NewAuctionPage(fixtures.NeverOpens, "ABCXYZ")
			agent = fixtures.NewFakeAgent(fixtures.AgentSignInline, "SIG")
			h := newBidHarness(page, agent, sessionTimings{session: 200 * time.Millisecond, signature: time.Second})

			report := h.run(context.Background())

			Expect(report.Code).To(Equal(domain.CodeSessionTimeout))
			Expect(report.Outcome).To(BeNil())
			Expect(page.Clicks(domain.RoleBidButton)).To(Equal(0))
			Expect(agent.Requests()).To(BeEmpty())
			Expect(h.recorded()).To(BeEmpty())
			Expect(h.notifier.Messages()).To(HaveLen(1))
		})
	})

	Context("when the agent calls back twice", func() {
		It("uses the first signature and acknowledges the duplicate", func() {
			page := fixtures.NewAuctionPage(1, "ABCXYZ")
			agent = fixtures.NewFakeAgent(fixtures.AgentCallback, "FIRST")
			h := newBidHarness(page, agent, sessionTimings{session: 5 * time.Second, signature: 2 * time.Second})
			agent.UseCallback(h.callbackU, 20*time.Millisecond, 2)

			report := h.run(context.Background())

			Expect(report.Code).To(Equal(domain.CodeNone))
			Expect(page.Filled(domain.RoleSignatureInput)).To(Equal("FIRST"))
			Expect(h.recorded()).To(HaveLen(1))
		})
	})

	Context("when the agent refuses to sign", func() {
		It("fails with SigningRejected", func() {
			page := fixtures.NewAuctionPage(1, "ABCXYZ")
			agent = fixtures.NewFakeAgent(fixtures.AgentReject, "")
			h := newBidHarness(page, agent, sessionTimings{session: 5 * time.Second, signature: 2 * time.Second})

			report := h.run(context.Background())
			Expect(report.Code).To(Equal(domain.CodeSigningRejected))
			Expect(report.Outcome).NotTo(BeNil())
			Expect(report.Outcome.Partial).To(BeTrue())
		})
	})

	Context("when the agent is down", func() {
		It("fails with SigningDispatchFailed", func() {
			page := fixtures.NewAuctionPage(1, "ABCXYZ")
			agent = fixtures.NewFakeAgent(fixtures.AgentDown, "")
			h := newBidHarness(page, agent, sessionTimings{session: 5 * time.Second, signature: 2 * time.Second})

			report := h.run(context.Background())
			Expect(report.Code).To(Equal(domain.CodeSigningDispatchFailed))
			Expect(page.Clicks(domain.RoleBidButton)).To(Equal(1))
		})
	})

	Context("when the operator stops the run while polling", func() {
		It("ends Cancelled without an outcome", func() {
			page := fixtures.NewAuctionPage(fixtures.NeverOpens, "ABCXYZ")
			agent = fixtures.NewFakeAgent(fixtures.AgentSignInline, "SIG")
			h := newBidHarness(page, agent, sessionTimings{session: 10 * time.Second, signature: time.Second})

			ctx, cancel := context.WithCancel(context.Background())
			time.AfterFunc(50*time.Millisecond, cancel)

			report := h.run(ctx)
			Expect(report.Code).To(Equal(domain.CodeCancelled))
			Expect(report.Outcome).To(BeNil())
		})
	})
})
