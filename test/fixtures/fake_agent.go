package fixtures

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// AgentMode selects how the fake signing agent answers /sign.
type AgentMode int

const (
	// AgentSignInline returns the signature in the /sign response.
	AgentSignInline AgentMode = iota
	// AgentCallback accepts the request and posts the signature to the callback URL.
	AgentCallback
	// AgentSilent accepts the request and never answers.
	AgentSilent
	// AgentReject answers with an explicit error.
	AgentReject
	// AgentDown answers 503.
	AgentDown
)

// SignRequest is a /sign body the fake agent received.
type SignRequest struct {
	Data     string `json:"data"`
	Storage  string `json:"storage"`
	Password string `json:"password"`
}

// FakeAgent is an httptest stand-in for the local signing agent.
type FakeAgent struct {
	server *httptest.Server

	mu          sync.Mutex
	mode        AgentMode
	signature   string
	callbackURL string
	delay       time.Duration
	repeat      int
	requests    []SignRequest
	callbacks   []int
}

// NewFakeAgent starts a fake agent answering in mode with signature.
func NewFakeAgent(mode AgentMode, signature string) *FakeAgent {
	a := &FakeAgent{mode: mode, signature: signature, repeat: 1}
	mux := http.NewServeMux()
	mux.HandleFunc("/sign", a.handleSign)
	a.server = httptest.NewServer(mux)
	return a
}

// URL is the agent base URL.
func (a *FakeAgent) URL() string { return a.server.URL }

// Close stops the agent.
func (a *FakeAgent) Close() { a.server.Close() }

// UseCallback configures where AgentCallback posts, after delay, repeat times.
// Repeats carry a different signature so tests can tell which one was used.
func (a *FakeAgent) UseCallback(callbackURL string, delay time.Duration, repeat int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callbackURL = callbackURL
	a.delay = delay
	if repeat > 0 {
		a.repeat = repeat
	}
}

// Requests returns every /sign body received.
func (a *FakeAgent) Requests() []SignRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]SignRequest(nil), a.requests...)
}

// CallbackStatuses returns the HTTP status of each callback the agent sent.
func (a *FakeAgent) CallbackStatuses() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int(nil), a.callbacks...)
}

func (a *FakeAgent) handleSign(w http.ResponseWriter, r *http.Request) {
	var body SignRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	a.requests = append(a.requests, body)
	mode, signature := a.mode, a.signature
	callbackURL, delay, repeat := a.callbackURL, a.delay, a.repeat
	a.mu.Unlock()

	w.Header().Set("content-type", "application/json")
	switch mode {
	case AgentSignInline:
		_ = json.NewEncoder(w).Encode(map[string]string{"signature": signature})
	case AgentCallback:
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
		go a.sendCallbacks(callbackURL, signature, delay, repeat)
	case AgentSilent:
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
	case AgentReject:
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "wrong password"})
	case AgentDown:
		w.WriteHeader(http.StatusServiceUnavailable)
	}
}

func (a *FakeAgent) sendCallbacks(url, signature string, delay time.Duration, repeat int) {
	time.Sleep(delay)
	for i := 0; i < repeat; i++ {
		sig := signature
		if i > 0 {
			sig = signature + "-dup"
		}
		status, err := PostCallback(url, sig)
		if err != nil {
			status = -1
		}
		a.mu.Lock()
		a.callbacks = append(a.callbacks, status)
		a.mu.Unlock()
	}
}

// PostCallback posts {"signature": signature} to url and returns the status code.
func PostCallback(url, signature string) (int, error) {
	body, _ := json.Marshal(map[string]string{"signature": signature})
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
