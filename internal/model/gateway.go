// ABOUTME: HTTP gateway to the upstream completion model provider
// ABOUTME: Formats conversation turns into the provider prompt dialect and retries transient failures

package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// Invocation errors
var (
	ErrTimeout   = errors.New("model request timed out")
	ErrRejected  = errors.New("model request rejected")
	ErrMalformed = errors.New("malformed model response")
)

// anthropicVersion tags every request with the provider dialect version
const anthropicVersion = "bedrock-2023-05-31"

// stopSequences terminate generation at the next turn boundary
var stopSequences = []string{"\n\nHuman:", "\n\nAssistant:"}

// retryDelay is the pause between transient-failure attempts
const retryDelay = 100 * time.Millisecond

// Turn roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one conversational exchange supplied as model context.
type Turn struct {
	Role    string
	Content string
}

// InvokeOptions carries per-call overrides. Nil pointer fields fall back to
// the configured defaults. Values are passed through to the provider
// verbatim, without clamping.
type InvokeOptions struct {
	SystemPrompt string
	MaxTokens    *int
	Temperature  *float64
	TopP         *float64
}

// Usage reports token accounting for one invocation.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Reply is the parsed model response.
type Reply struct {
	Text       string
	StopReason string
	Usage      Usage
	Model      string
}

// Config holds the gateway's provider settings.
type Config struct {
	Endpoint    string
	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64
	MaxAttempts int

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Gateway invokes the upstream completion provider over HTTP.
type Gateway struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// NewGateway creates a model gateway. Pass nil logger for default.
func NewGateway(cfg Config, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.ReadTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: cfg.ConnectTimeout,
				}).DialContext,
			},
		},
		logger: logger.With("component", "model"),
	}
}

// invokeRequest is the provider wire format.
type invokeRequest struct {
	Model            string   `json:"model"`
	Prompt           string   `json:"prompt"`
	MaxTokens        int      `json:"max_tokens_to_sample"`
	Temperature      float64  `json:"temperature"`
	TopP             float64  `json:"top_p"`
	StopSequences    []string `json:"stop_sequences"`
	AnthropicVersion string   `json:"anthropic_version"`
}

// invokeResponse is the provider wire format for completions.
type invokeResponse struct {
	Completion string `json:"completion"`
	StopReason string `json:"stop_reason"`
	Usage      *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// BuildPrompt renders turns into the provider's Human/Assistant dialect.
// A system prompt becomes a synthetic leading exchange; the trailing
// "\n\nAssistant:" cue tells the model to produce the next reply.
func BuildPrompt(turns []Turn, systemPrompt string) string {
	var b strings.Builder

	if systemPrompt != "" {
		b.WriteString("\n\nHuman: ")
		b.WriteString(systemPrompt)
		b.WriteString("\n\nAssistant: Understood, I will follow those instructions.")
	}

	for _, turn := range turns {
		if turn.Role == RoleAssistant {
			b.WriteString("\n\nAssistant: ")
		} else {
			b.WriteString("\n\nHuman: ")
		}
		b.WriteString(turn.Content)
	}

	b.WriteString("\n\nAssistant:")
	return b.String()
}

// EstimateTokens approximates the token count of text. The provider bills
// roughly one token per four characters of English text.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// Invoke sends the turns to the provider and returns its reply. Transient
// transport failures and provider 5xx responses are retried up to the
// configured attempt budget; provider rejections (4xx) are not.
func (g *Gateway) Invoke(ctx context.Context, turns []Turn, opts InvokeOptions) (*Reply, error) {
	req := invokeRequest{
		Model:            g.cfg.Model,
		Prompt:           BuildPrompt(turns, opts.SystemPrompt),
		MaxTokens:        g.cfg.MaxTokens,
		Temperature:      g.cfg.Temperature,
		TopP:             g.cfg.TopP,
		StopSequences:    stopSequences,
		AnthropicVersion: anthropicVersion,
	}
	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.TopP != nil {
		req.TopP = *opts.TopP
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling invoke request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
			case <-time.After(retryDelay):
			}
		}

		reply, err := g.invokeOnce(ctx, body, req.Prompt)
		if err == nil {
			return reply, nil
		}
		if !isTransient(err) {
			return nil, err
		}

		lastErr = err
		g.logger.Warn("model invocation failed, retrying",
			"attempt", attempt,
			"max_attempts", g.cfg.MaxAttempts,
			"error", err)
	}

	return nil, fmt.Errorf("model invocation failed after %d attempts: %w", g.cfg.MaxAttempts, lastErr)
}

// invokeOnce performs a single HTTP round trip to the provider.
func (g *Gateway) invokeOnce(ctx context.Context, body []byte, prompt string) (*Reply, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building invoke request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		// Timeouts and other transport failures are treated alike: both
		// mean the provider never gave a usable answer this attempt.
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrTimeout, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: upstream status %d", ErrTimeout, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, truncate(respBody, 200))
	}

	var parsed invokeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if parsed.Completion == "" {
		return nil, fmt.Errorf("%w: empty completion", ErrMalformed)
	}

	reply := &Reply{
		Text:       strings.TrimSpace(parsed.Completion),
		StopReason: parsed.StopReason,
		Model:      g.cfg.Model,
	}
	if parsed.Usage != nil {
		reply.Usage = Usage{
			InputTokens:  parsed.Usage.InputTokens,
			OutputTokens: parsed.Usage.OutputTokens,
		}
	} else {
		reply.Usage = Usage{
			InputTokens:  EstimateTokens(prompt),
			OutputTokens: EstimateTokens(reply.Text),
		}
	}

	return reply, nil
}

// isTransient reports whether an invocation error is worth retrying.
// Rejections and malformed responses are final; everything wrapped in
// ErrTimeout (transport failures, timeouts, upstream 5xx) is retried.
func isTransient(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
