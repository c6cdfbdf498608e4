// Package ai talks to the Anthropic API on behalf of the chat session.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/mcpterm/mcpterm/internal/debug"
	"github.com/mcpterm/mcpterm/internal/telemetry"
	"github.com/mcpterm/mcpterm/internal/types"
)

const (
	// DefaultModel is used unless MCT_AI_MODEL overrides it.
	DefaultModel = "claude-3-5-haiku-latest"

	maxRetries     = 3
	initialBackoff = 1 * time.Second
	maxTokens      = 2048
)

// ErrAPIKeyRequired is returned when no Anthropic key is configured.
var ErrAPIKeyRequired = errors.New("API key required")

// Message is one prior turn handed to the model as conversation context.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Answer is the model's reply plus usage accounting.
type Answer struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Provider answers one prompt given prior conversation turns.
type Provider interface {
	Ask(ctx context.Context, prompt string, history []Message) (Answer, error)
}

// Client wraps the Anthropic API.
type Client struct {
	client         anthropic.Client
	model          anthropic.Model
	maxRetries     int
	initialBackoff time.Duration
}

const systemPrompt = `You are a terminal assistant. Answer questions about shell commands,
system administration, and development workflows. Keep answers short and practical.
When the user asks for a command, lead with the command itself.`

// NewClient creates an Anthropic client. ANTHROPIC_API_KEY takes precedence
// over the explicit apiKey.
func NewClient(apiKey string) (*Client, error) {
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY", ErrAPIKeyRequired)
	}

	model := DefaultModel
	if m := os.Getenv("MCT_AI_MODEL"); m != "" {
		model = m
	}

	aiMetricsOnce.Do(initAIMetrics)

	return &Client{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:          anthropic.Model(model),
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
	}, nil
}

// aiMetrics holds lazily-initialized OTel instruments for Anthropic API calls.
var aiMetrics struct {
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	duration     metric.Float64Histogram
}

var aiMetricsOnce sync.Once

func initAIMetrics() {
	m := telemetry.Meter("github.com/mcpterm/mcpterm/internal/ai")
	aiMetrics.inputTokens, _ = m.Int64Counter("mct.ai.input_tokens",
		metric.WithDescription("Anthropic API input tokens consumed"),
		metric.WithUnit("{token}"),
	)
	aiMetrics.outputTokens, _ = m.Int64Counter("mct.ai.output_tokens",
		metric.WithDescription("Anthropic API output tokens generated"),
		metric.WithUnit("{token}"),
	)
	aiMetrics.duration, _ = m.Float64Histogram("mct.ai.request.duration",
		metric.WithDescription("Anthropic API request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
}

// Ask sends the prompt with prior turns as context. Cancellation of ctx maps
// to types.ErrAICancelled so the controller can tell "user pressed ESC" from
// an API failure.
func (c *Client) Ask(ctx context.Context, prompt string, history []Message) (Answer, error) {
	msgs := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		if m.Role == "assistant" {
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)))

	ans, err := c.callWithRetry(ctx, msgs)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Answer{}, types.ErrAICancelled
		}
		return Answer{}, err
	}
	ans.Text = ExtractAnswer(ans.Text)
	return ans, nil
}

func (c *Client) callWithRetry(ctx context.Context, msgs []anthropic.MessageParam) (Answer, error) {
	tracer := telemetry.Tracer("github.com/mcpterm/mcpterm/internal/ai")
	ctx, span := tracer.Start(ctx, "anthropic.messages.new")
	defer span.End()
	span.SetAttributes(
		attribute.String("mct.ai.model", string(c.model)),
	)

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: msgs,
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			debug.Logf("ai: retry %d after %s: %v", attempt, backoff, lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Answer{}, ctx.Err()
			}
		}

		t0 := time.Now()
		message, err := c.client.Messages.New(ctx, params)
		ms := float64(time.Since(t0).Milliseconds())

		if err == nil {
			modelAttr := attribute.String("mct.ai.model", string(c.model))
			if aiMetrics.inputTokens != nil {
				aiMetrics.inputTokens.Add(ctx, message.Usage.InputTokens, metric.WithAttributes(modelAttr))
				aiMetrics.outputTokens.Add(ctx, message.Usage.OutputTokens, metric.WithAttributes(modelAttr))
				aiMetrics.duration.Record(ctx, ms, metric.WithAttributes(modelAttr))
			}
			span.SetAttributes(
				attribute.Int64("mct.ai.input_tokens", message.Usage.InputTokens),
				attribute.Int64("mct.ai.output_tokens", message.Usage.OutputTokens),
				attribute.Int("mct.ai.attempts", attempt+1),
			)

			var text strings.Builder
			for _, block := range message.Content {
				if block.Type == "text" {
					text.WriteString(block.Text)
				}
			}
			if text.Len() == 0 {
				return Answer{}, fmt.Errorf("unexpected response format: no text blocks")
			}
			return Answer{
				Text:         text.String(),
				InputTokens:  message.Usage.InputTokens,
				OutputTokens: message.Usage.OutputTokens,
			}, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return Answer{}, ctx.Err()
		}

		if !isRetryable(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Answer{}, fmt.Errorf("non-retryable error: %w", err)
		}
	}

	if lastErr != nil {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, lastErr.Error())
	}
	return Answer{}, fmt.Errorf("%w: failed after %d attempts: %v", types.ErrNetworkTransient, c.maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	return false
}

// ExtractAnswer pulls the displayable answer out of raw model text. Some
// models wrap the answer in a JSON object; prefer the well-known fields,
// fall back to the raw text.
func ExtractAnswer(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return trimmed
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return trimmed
	}

	for _, key := range []string{"directAnswer", "response", "message", "output"} {
		if v, ok := obj[key]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	if v, ok := obj["error"]; ok {
		if s, ok := v.(string); ok && s != "" {
			return "Error: " + s
		}
	}
	return trimmed
}
