// Package assistant relays shopping-assistant conversations to an
// OpenAI-compatible chat gateway.
package assistant

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/maisonlune/storefront/errs"
	"github.com/maisonlune/storefront/internal/infra/config"
)

const component = "assistant"

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// Proxy forwards conversations with the configured system prompt prepended.
// It keeps no conversation state.
type Proxy struct {
	gatewayURL   string
	apiKey       string
	model        string
	systemPrompt string
	http         *http.Client
}

// New builds a Proxy from config. The HTTP client has no overall timeout so
// long streams are not cut; cfg.Timeout bounds the wait for response headers.
func New(cfg config.AssistantConfig) (*Proxy, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("assistant: gateway not configured")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("assistant: api key required")
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout
	return &Proxy{
		gatewayURL:   cfg.GatewayURL,
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		http:         &http.Client{Transport: transport},
	}, nil
}

// WithHTTPClient replaces the HTTP client.
func (p *Proxy) WithHTTPClient(c *http.Client) *Proxy {
	if c != nil {
		p.http = c
	}
	return p
}

// Open starts a streamed completion and returns the upstream body. The caller
// must close it. Upstream 429 and 402 map to rate_limited and
// payment_required; any other failure is remote_error.
func (p *Proxy) Open(ctx context.Context, messages []Message) (io.ReadCloser, error) {
	cleaned := make([]Message, 0, len(messages)+1)
	cleaned = append(cleaned, Message{Role: "system", Content: p.systemPrompt})
	for _, m := range messages {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		if role == "system" || strings.TrimSpace(m.Content) == "" {
			continue
		}
		cleaned = append(cleaned, Message{Role: role, Content: m.Content})
	}
	if len(cleaned) == 1 {
		return nil, errs.New(component, errs.CodeInvalid, errs.WithMessage("messages required"))
	}

	body, err := json.Marshal(chatRequest{Model: p.model, Messages: cleaned, Stream: true})
	if err != nil {
		return nil, errs.New(component, errs.CodeInvalid, errs.WithMessage("encode request"), errs.WithCause(err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.gatewayURL, bytes.NewReader(body))
	if err != nil {
		return nil, errs.New(component, errs.CodeInvalid, errs.WithMessage("build request"), errs.WithCause(err))
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, errs.New(component, errs.CodeRemote,
			errs.WithMessage("gateway unreachable"),
			errs.WithCause(err))
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.Body, nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
	code := errs.CodeRemote
	message := "gateway error " + strconv.Itoa(resp.StatusCode)
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		code = errs.CodeRateLimited
		message = "Rate limits exceeded, please try again later."
	case http.StatusPaymentRequired:
		code = errs.CodePaymentRequired
		message = "Payment required, please add funds to your workspace."
	}
	return nil, errs.New(component, code,
		errs.WithHTTP(resp.StatusCode),
		errs.WithMessage(message),
		errs.WithRawMessage(strings.TrimSpace(string(raw))))
}

// StreamTo copies src to w, flushing after every chunk. It stops when ctx ends.
func StreamTo(ctx context.Context, w io.Writer, flush func(), src io.Reader) error {
	buf := make([]byte, 4<<10)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if flush != nil {
				flush()
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
