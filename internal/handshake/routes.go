package handshake

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxCallbackBodyBytes = 1 << 20

// callbackBody is the agent's callback. Only signature is validated;
// any other field the agent sends is ignored.
type callbackBody struct {
	Signature string `json:"signature"`
	Token     string `json:"token,omitempty"`
}

// Routes returns the callback router.
func (h *Handshake) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "success")
	})
	r.Post(CallbackPath, h.handleCallback)
	return r
}

func (h *Handshake) handleCallback(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCallbackBodyBytes)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeStatus(w, http.StatusBadRequest, "error")
			return
		}
		h.logger.Warn("failed to read callback body", zap.Error(err))
		writeStatus(w, http.StatusInternalServerError, "error")
		return
	}

	var body callbackBody
	if err := json.Unmarshal(raw, &body); err != nil {
		h.logger.Warn("malformed callback body", zap.Error(err))
		writeStatus(w, http.StatusBadRequest, "error")
		return
	}
	if strings.TrimSpace(body.Signature) == "" {
		h.logger.Warn("callback without signature")
		writeStatus(w, http.StatusBadRequest, "error")
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		token = body.Token
	}

	// Late and duplicate callbacks are acknowledged so the agent does not retry.
	h.deliverByToken(token, body.Signature)
	writeStatus(w, http.StatusOK, "success")
}

func writeStatus(w http.ResponseWriter, status int, value string) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": value})
}
