package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/maisonlune/storefront/errs"
	"github.com/maisonlune/storefront/internal/assistant"
	"github.com/maisonlune/storefront/internal/observability"
)

type chatRequest struct {
	Messages []assistant.Message `json:"messages"`
}

// assistantChat relays the conversation upstream and streams the event
// stream back. Upstream 429 and 402 keep their status.
func (s *httpServer) assistantChat(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		writeError(w, http.StatusServiceUnavailable, "assistant not configured")
		return
	}
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages required")
		return
	}

	body, err := s.assistant.Open(r.Context(), req.Messages)
	if err != nil {
		status := http.StatusBadGateway
		switch errs.CodeOf(err) {
		case errs.CodeInvalid:
			status = http.StatusBadRequest
		case errs.CodeRateLimited:
			status = http.StatusTooManyRequests
		case errs.CodePaymentRequired:
			status = http.StatusPaymentRequired
		default:
			observability.Log().Error("assistant gateway failed", observability.F("error", err))
		}
		writeError(w, status, errorMessage(err))
		return
	}
	defer func() {
		_ = body.Close()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	flush := func() {
		_ = rc.Flush()
	}
	flush()
	if err := assistant.StreamTo(r.Context(), w, flush, body); err != nil && !errors.Is(err, context.Canceled) {
		observability.Log().Error("assistant stream interrupted", observability.F("error", err))
	}
}
