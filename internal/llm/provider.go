package llm

import (
	"context"
	"strings"

	"github.com/sells-group/member-qa/internal/resilience"
	"github.com/sells-group/member-qa/pkg/anthropic"
	"github.com/sells-group/member-qa/pkg/gemini"
)

// Prompt is a question with the member context assembled for it.
type Prompt struct {
	Instructions string
	Context      string // one JSON record per line
	Question     string
}

// Text renders the prompt as a single string, used for size estimates and
// for providers without a separate system channel.
func (p Prompt) Text() string {
	var b strings.Builder
	b.WriteString(p.Instructions)
	if p.Context != "" {
		b.WriteString("\n\n")
		b.WriteString(p.Context)
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(p.Question)
	return b.String()
}

// Completion is a provider reply.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Provider is a prompt-in, text-out LLM backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, p Prompt) (Completion, error)
}

// contextCacheTTL is how long the provider may cache the member context.
const contextCacheTTL = "5m"

// AnthropicProvider serves prompts through the Claude Messages API.
type AnthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicProvider wraps client.
func NewAnthropicProvider(client anthropic.Client, model string, maxTokens int64) *AnthropicProvider {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &AnthropicProvider{client: client, model: model, maxTokens: maxTokens}
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Complete implements Provider. The member context goes in a cached system
// block so repeated questions against one snapshot reuse it.
func (p *AnthropicProvider) Complete(ctx context.Context, pr Prompt) (Completion, error) {
	temp := 0.0
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(pr.Instructions, pr.Context, contextCacheTTL),
		Messages:    []anthropic.Message{{Role: "user", Content: pr.Question}},
		Temperature: &temp,
	})
	if err != nil {
		return Completion{}, markTransient(err, anthropic.StatusCode(err))
	}
	resp.Usage.LogCost(p.model, "llm_answer")
	return Completion{
		Text:         resp.Text(),
		Model:        resp.Model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// GeminiProvider serves prompts through the Gemini API.
type GeminiProvider struct {
	client    gemini.Client
	model     string
	maxTokens int32
}

// NewGeminiProvider wraps client.
func NewGeminiProvider(client gemini.Client, model string, maxTokens int32) *GeminiProvider {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &GeminiProvider{client: client, model: model, maxTokens: maxTokens}
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return "gemini" }

// Complete implements Provider.
func (p *GeminiProvider) Complete(ctx context.Context, pr Prompt) (Completion, error) {
	temp := float32(0)
	system := pr.Instructions
	if pr.Context != "" {
		system += "\n\n" + pr.Context
	}
	resp, err := p.client.GenerateText(ctx, gemini.Request{
		Model:           p.model,
		System:          system,
		Prompt:          pr.Question,
		MaxOutputTokens: p.maxTokens,
		Temperature:     &temp,
	})
	if err != nil {
		return Completion{}, markTransient(err, gemini.StatusCode(err))
	}
	resp.Usage.LogCost(p.model, "llm_answer")
	return Completion{
		Text:         resp.Text,
		Model:        p.model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// markTransient tags retryable HTTP statuses so the guard retries them.
func markTransient(err error, status int) error {
	if resilience.IsTransientHTTPStatus(status) {
		return resilience.NewTransientError(err, status)
	}
	return err
}
