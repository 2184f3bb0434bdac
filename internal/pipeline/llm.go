package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"regexp"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultLLMModel is the low-cost model used for both map and reduce
// calls unless overridden.
const DefaultLLMModel = "claude-3-5-haiku-latest"

var statusCodeRe = regexp.MustCompile(`(?:status(?:\s+code)?[:=\s]+)(\d{3})`)

type llmFailureClass int

const (
	failureTimeout llmFailureClass = iota
	failureRateLimit
	failureServer
	failureClient
)

// TokenUsage accumulates inference cost counters.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

func (u *TokenUsage) Add(o TokenUsage) {
	u.Input += o.Input
	u.Output += o.Output
}

// LLMCaller is the inference-service port: prompt and instructions in,
// generated text plus token counters out. Transient failures surface as
// errors and are retried by Caller.
type LLMCaller interface {
	Generate(ctx context.Context, system, prompt string, maxTokens int) (string, TokenUsage, error)
	ModelName() string
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicCaller implements LLMCaller against the Anthropic API.
type AnthropicCaller struct {
	messages AnthropicMessager
	model    string
}

func NewAnthropicCallerFromEnv(model string) (*AnthropicCaller, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	if model == "" {
		model = DefaultLLMModel
	}
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicCaller{messages: &c.Messages, model: model}, nil
}

func (a *AnthropicCaller) ModelName() string { return a.model }

func (a *AnthropicCaller) Generate(ctx context.Context, system, prompt string, maxTokens int) (string, TokenUsage, error) {
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   int64(maxTokens),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return "", TokenUsage{}, err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	usage := TokenUsage{Input: int(resp.Usage.InputTokens), Output: int(resp.Usage.OutputTokens)}
	return sb.String(), usage, nil
}

// Caller wraps an LLMCaller with per-call timeout and bounded retry with
// linear backoff for transient transport failures. Non-retryable client
// errors fail immediately.
type Caller struct {
	llm      LLMCaller
	attempts int
	base     time.Duration
	timeout  time.Duration
}

func NewCaller(llm LLMCaller, attempts int, base, timeout time.Duration) *Caller {
	if attempts <= 0 {
		attempts = 3
	}
	if base <= 0 {
		base = 2 * time.Second
	}
	return &Caller{llm: llm, attempts: attempts, base: base, timeout: timeout}
}

func (c *Caller) ModelName() string { return c.llm.ModelName() }

func (c *Caller) Generate(ctx context.Context, stage, system, prompt string, maxTokens int) (string, TokenUsage, error) {
	total := TokenUsage{}
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		callCtx := ctx
		var cancel context.CancelFunc
		if c.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		}
		started := time.Now()
		raw, usage, err := c.llm.Generate(callCtx, system, prompt, maxTokens)
		if cancel != nil {
			cancel()
		}
		total.Add(usage)
		if err == nil {
			log.Printf("deedflow llm_call stage=%s attempt=%d elapsed_ms=%d in_tokens=%d out_tokens=%d",
				stage, attempt, time.Since(started).Milliseconds(), usage.Input, usage.Output)
			return raw, total, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			// The invocation itself was cancelled; do not keep retrying.
			return "", total, ctx.Err()
		}
		class := classifyTransportError(err)
		log.Printf("deedflow llm_transport_error stage=%s attempt=%d class=%d elapsed_ms=%d err=%q",
			stage, attempt, class, time.Since(started).Milliseconds(), err.Error())
		if class == failureClient {
			return "", total, fmt.Errorf("%s inference failure: %w", stage, err)
		}
		if attempt < c.attempts {
			select {
			case <-ctx.Done():
				return "", total, ctx.Err()
			case <-time.After(c.base * time.Duration(attempt)):
			}
		}
	}
	return "", total, fmt.Errorf("%s inference failed after %d attempts: %w", stage, c.attempts, lastErr)
}

// stripCodeFences and extractJSONObject clean model output that arrives
// wrapped in markdown fences or surrounded by stray prose.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

func extractJSONObject(s string) string {
	s = stripCodeFences(s)
	if strings.HasPrefix(s, "{") {
		return s
	}
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return s
	}
	end := strings.LastIndexByte(s, '}')
	if end > start {
		return s[start : end+1]
	}
	return s[start:]
}

func classifyTransportError(err error) llmFailureClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return failureTimeout
	}
	msg := strings.ToLower(err.Error())
	if m := statusCodeRe.FindStringSubmatch(msg); len(m) == 2 {
		switch {
		case strings.HasPrefix(m[1], "429"):
			return failureRateLimit
		case strings.HasPrefix(m[1], "5"):
			return failureServer
		case strings.HasPrefix(m[1], "4"):
			return failureClient
		}
	}
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "throttl"), strings.Contains(msg, "overloaded"):
		return failureRateLimit
	case strings.Contains(msg, "status 4"), strings.Contains(msg, "status=4"), strings.Contains(msg, "status code: 4"):
		return failureClient
	default:
		return failureServer
	}
}
