package infra

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sentMessageReply = `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`

type botRequest struct {
	path      string
	chatID    string
	text      string
	parseMode string
}

// newBotServer records sendMessage calls and answers with reply.
func newBotServer(t *testing.T, status int, reply string) (*httptest.Server, func() botRequest) {
	t.Helper()
	var mu sync.Mutex
	var last botRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the SDK posts multipart form data
		_ = r.ParseMultipartForm(1 << 20)
		mu.Lock()
		last = botRequest{
			path:      r.URL.Path,
			chatID:    r.FormValue("chat_id"),
			text:      r.FormValue("text"),
			parseMode: r.FormValue("parse_mode"),
		}
		mu.Unlock()
		w.Header().Set("content-type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, func() botRequest {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func TestTelegramNotifier_Send(t *testing.T) {
	srv, last := newBotServer(t, http.StatusOK, sentMessageReply)

	n, err := NewTelegramNotifier(TelegramConfig{APIBase: srv.URL, BotToken: "123:abc", ChatID: "42"}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, n.Send(context.Background(), "<b>bid submitted</b>"))

	got := last()
	assert.Equal(t, "/bot123:abc/sendMessage", got.path)
	assert.Equal(t, "42", got.chatID)
	assert.Equal(t, "HTML", got.parseMode)
	assert.Equal(t, "<b>bid submitted</b>", got.text)
}

func TestTelegramNotifier_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "api error", status: http.StatusBadRequest, body: `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`},
		{name: "ok false", status: http.StatusOK, body: `{"ok":false}`},
		{name: "garbage", status: http.StatusBadGateway, body: `<html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newBotServer(t, tt.status, tt.body)

			n, err := NewTelegramNotifier(TelegramConfig{APIBase: srv.URL, BotToken: "t", ChatID: "c"}, zap.NewNop())
			require.NoError(t, err)

			assert.Error(t, n.Send(context.Background(), "hi"))
		})
	}
}

func TestTelegramNotifier_UnreachableRedactsToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	n, err := NewTelegramNotifier(TelegramConfig{APIBase: base, BotToken: "SECRET-TOKEN", ChatID: "c"}, zap.NewNop())
	require.NoError(t, err)

	err = n.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET-TOKEN")
}

func TestNewTelegramNotifier_RequiresCredentials(t *testing.T) {
	_, err := NewTelegramNotifier(TelegramConfig{ChatID: "c"}, zap.NewNop())
	assert.Error(t, err)
	_, err = NewTelegramNotifier(TelegramConfig{BotToken: "t"}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewTelegramNotifier_DoesNotContactServer(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	_, err := NewTelegramNotifier(TelegramConfig{APIBase: srv.URL, BotToken: "t", ChatID: "c"}, zap.NewNop())
	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestRedactToken(t *testing.T) {
	err := redactToken(assert.AnError, "")
	assert.Equal(t, assert.AnError, err)

	err = redactToken(errTokenInURL, "123:abc")
	assert.NotContains(t, err.Error(), "123:abc")
	assert.Contains(t, err.Error(), "<redacted>")
}

var errTokenInURL = &httpURLError{url: "https://api.telegram.org/bot123:abc/sendMessage"}

type httpURLError struct{ url string }

func (e *httpURLError) Error() string { return "Post \"" + e.url + "\": connection refused" }

func TestLogNotifier_NeverFails(t *testing.T) {
	assert.NoError(t, NewLogNotifier(zap.NewNop()).Send(context.Background(), "hello"))
}
