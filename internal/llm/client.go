package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ent0n29/mamashield/internal/observability"
)

const (
	defaultTimeout = 30 * time.Second
	temperature    = 0.3
	maxTokensJSON  = 300
	maxTokensPlain = 200

	// Plain replies carry at most this many characters of the disclaimer
	// so the advice itself keeps most of the SMS budget.
	disclaimerBudget = 100
)

// DefaultModels is the ordered fallback list tried on each completion.
var DefaultModels = []string{"grok-4.1-fast", "grok-4"}

// Options configure the provider-backed client.
type Options struct {
	APIKey          string
	BaseURL         string
	Models          []string
	Timeout         time.Duration
	EmergencyNumber string
	Disclaimer      string
	Metrics         *observability.Metrics
	Logger          *zap.Logger
}

// Client calls an OpenAI-compatible chat endpoint, walking an ordered
// model list and degrading to a safe reply when the provider fails.
type Client struct {
	api             *openai.Client
	models          []string
	timeout         time.Duration
	emergencyNumber string
	disclaimer      string
	metrics         *observability.Metrics
	logger          *zap.Logger
}

func NewClient(opts Options) *Client {
	config := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}

	models := opts.Models
	if len(models) == 0 {
		models = DefaultModels
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	number := strings.TrimSpace(opts.EmergencyNumber)
	if number == "" {
		number = "1195"
	}

	disclaimer := strings.TrimSpace(opts.Disclaimer)
	if runes := []rune(disclaimer); len(runes) > disclaimerBudget {
		disclaimer = string(runes[:disclaimerBudget])
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		api:             openai.NewClientWithConfig(config),
		models:          models,
		timeout:         timeout,
		emergencyNumber: number,
		disclaimer:      disclaimer,
		metrics:         opts.Metrics,
		logger:          logger,
	}
}

func (c *Client) Complete(ctx context.Context, req Request) Reply {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		if req.JSONMode {
			maxTokens = maxTokensJSON
		} else {
			maxTokens = maxTokensPlain
		}
	}

	for i, model := range c.models {
		call := openai.ChatCompletionRequest{
			Model:       model,
			Messages:    messages,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		}
		if req.JSONMode {
			call.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.api.CreateChatCompletion(callCtx, call)
		cancel()

		if err != nil {
			c.countProviderError(err)
			if IsModelNotFound(err) && i < len(c.models)-1 {
				c.logger.Warn("model unavailable, trying next",
					zap.String("model", model),
					zap.Error(err))
				continue
			}
			c.logger.Error("chat completion failed",
				zap.String("model", model),
				zap.Error(err))
			return c.safeReply()
		}
		if len(resp.Choices) == 0 {
			c.logger.Error("chat completion returned no choices",
				zap.String("model", model))
			return c.safeReply()
		}

		text := strings.TrimSpace(resp.Choices[0].Message.Content)
		if !req.JSONMode && c.disclaimer != "" {
			text = text + " " + c.disclaimer
		}
		return Reply{Text: text, Model: model}
	}
	return c.safeReply()
}

func (c *Client) safeReply() Reply {
	if c.metrics != nil {
		c.metrics.ObserveIndicator("llm_degraded")
	}
	return Reply{
		Text:     fmt.Sprintf("Sorry, technical issue. Call your clinic or %s now.", c.emergencyNumber),
		Degraded: true,
	}
}

func (c *Client) countProviderError(err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.ProviderErrors.WithLabelValues("llm", errorCode(err)).Inc()
}
