// Package llm implements the support classifier on an OpenAI-compatible
// chat-completion endpoint.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/adapters/resilience"
	"github.com/spec-kit/helpdesk-intake/internal/config"
	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

const (
	DefaultModel = "gpt-4o-mini"

	maxTitleLen       = 80
	maxDescriptionLen = 500
	promoConfidence   = 0.95
)

// Completer is the subset of *openai.Client the classifier uses.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Classifier implements service.Classifier.
type Classifier struct {
	client          Completer
	model           string
	temperature     float32
	maxTokens       int
	categories      []config.CategorySettings
	defaultCategory string
	cb              *gobreaker.CircuitBreaker
	logger          *zap.Logger
}

// NewClassifier builds an OpenAI client from cfg. A non-empty BaseURL points
// it at any compatible gateway.
func NewClassifier(cfg config.LLMConfig, settings *config.Settings, logger *zap.Logger) *Classifier {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return NewClassifierWithClient(openai.NewClientWithConfig(clientCfg), cfg, settings, logger)
}

// NewClassifierWithClient is NewClassifier with an injected client.
func NewClassifierWithClient(client Completer, cfg config.LLMConfig, settings *config.Settings, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 400
	}
	return &Classifier{
		client:          client,
		model:           model,
		temperature:     float32(cfg.Temperature),
		maxTokens:       maxTokens,
		categories:      settings.Categories,
		defaultCategory: settings.DefaultCategory,
		cb:              resilience.NewBreaker("llm", logger),
		logger:          logger.With(zap.String("component", "llm")),
	}
}

type supportReply struct {
	IsSupport  bool       `json:"is_support"`
	Confidence confidence `json:"confidence"`
	Reasoning  string     `json:"reasoning"`
}

// IsSupport asks the model whether the email needs the helpdesk.
func (c *Classifier) IsSupport(ctx context.Context, subject, preview string) (domain.ClassificationResult, error) {
	if isObviousPromotion(subject) {
		c.logger.Debug("promotional subject, skipping model", zap.String("subject", subject))
		return domain.ClassificationResult{IsSupport: false, Confidence: promoConfidence, Reasoning: "promotional content"}, nil
	}

	var reply supportReply
	if err := c.ask(ctx, "is_support", classifySystemPrompt, emailPrompt(subject, preview), &reply); err != nil {
		return domain.ClassificationResult{}, err
	}
	return domain.ClassificationResult{
		IsSupport:  reply.IsSupport,
		Confidence: float64(reply.Confidence),
		Reasoning:  reply.Reasoning,
	}, nil
}

type summaryReply struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    priority `json:"priority"`
}

// Summarize drafts the ticket title, description and priority.
func (c *Classifier) Summarize(ctx context.Context, subject, preview string) (domain.Summary, error) {
	var reply summaryReply
	if err := c.ask(ctx, "summarize", summarizeSystemPrompt, emailPrompt(subject, preview), &reply); err != nil {
		return domain.Summary{}, err
	}
	return domain.Summary{
		Title:       clip(reply.Title, maxTitleLen),
		Description: clip(reply.Description, maxDescriptionLen),
		Priority:    domain.ClampPriority(int(reply.Priority)),
	}, nil
}

type categoryReply struct {
	Category    string     `json:"category"`
	Subcategory string     `json:"subcategory"`
	Confidence  confidence `json:"confidence"`
}

// Categorize picks one of the configured categories. Names the model
// invents are mapped onto a configured one.
func (c *Classifier) Categorize(ctx context.Context, title, description string) (domain.Categorization, error) {
	system := fmt.Sprintf(categorizeSystemPrompt, categoryList(c.categories))

	var reply categoryReply
	if err := c.ask(ctx, "categorize", system, ticketPrompt(title, description), &reply); err != nil {
		return domain.Categorization{}, err
	}

	known := make([]string, 0, len(c.categories))
	for _, cat := range c.categories {
		known = append(known, cat.Name)
	}
	category := normalizeCategory(reply.Category, known, c.defaultCategory)
	if category != reply.Category {
		c.logger.Debug("category normalized", zap.String("suggested", reply.Category), zap.String("category", category))
	}
	return domain.Categorization{
		Category:    category,
		Subcategory: strings.TrimSpace(reply.Subcategory),
		Confidence:  float64(reply.Confidence),
	}, nil
}

func (c *Classifier) ask(ctx context.Context, op, system, user string, out interface{}) error {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	resp, err := resilience.Do(c.cb, op, func() (openai.ChatCompletionResponse, error) {
		return c.client.CreateChatCompletion(ctx, req)
	})
	if err != nil {
		return err
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("%s: empty completion: %w", op, domain.ErrAdapter)
	}

	content := stripFences(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("%s: unparseable reply %q: %w: %w", op, clip(content, 120), domain.ErrAdapter, err)
	}
	return nil
}

// confidence accepts a number or one of high, medium, low.
type confidence float64

func (c *confidence) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "high":
			*c = 0.9
		case "medium":
			*c = 0.6
		case "low":
			*c = 0.3
		default:
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("confidence %q", s)
			}
			*c = confidence(f)
		}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*c = confidence(f)
	return nil
}

// priority accepts 2, "2" or "2 (High)".
type priority int

func (p *priority) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		end := 0
		for end < len(s) && s[end] >= '0' && s[end] <= '9' {
			end++
		}
		n, err := strconv.Atoi(s[:end])
		if err != nil {
			*p = 0
			return nil
		}
		*p = priority(n)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = priority(int(n))
	return nil
}
