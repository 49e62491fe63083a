// Package llm provides the Planner/Reader/Mapper roles' optional LLM
// assistance: worklist-reordering prompts for the Planner, peek-window
// hints for the Reader, and allow-list-constrained disambiguation for
// the Mapper. A Client with no configured credential is a valid,
// inert client: every method returns an empty result rather than an
// error, so callers never need to special-case "LLM disabled". Request
// pacing is grounded on rohankatakam-coderisk's internal/github/client.go,
// which wraps its outbound API calls in a golang.org/x/time/rate.Limiter
// the same way — here capping outbound completions rather than GitHub
// API calls, so the Mapper's now-concurrent dynamic-resolution pass
// can't burst past the configured provider's rate limit.
package llm

import (
	"context"
	"log/slog"
	"os"
	"strings"

	typedopenai "github.com/openai/openai-go/v3"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// defaultRequestsPerSecond caps outbound completions absent an explicit
// override, conservative enough for free-tier OpenAI/Gemini quotas.
const defaultRequestsPerSecond = 5

// Provider identifies which backend a Client is configured against.
type Provider string

const (
	ProviderNone   Provider = "none"
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// Config selects a Client's provider and model by credential
// availability, mirroring the corpus's env-driven provider-selection
// idiom: the first usable credential wins, OpenAI before Gemini.
type Config struct {
	Enabled      bool
	OpenAIAPIKey string
	OpenAIModel  string
	GeminiAPIKey string
	GeminiModel  string
}

// Client wraps whichever provider Config selected. The zero-value
// Client (as returned by New with an all-empty, disabled Config) is
// ProviderNone and answers every call with an empty result.
type Client struct {
	provider Provider
	model    string
	openai   *openai.Client
	typed    *typedopenai.Client // low-level fallback for §4.12's schema-retry path
	gemini   *genai.Client
	log      *slog.Logger
	limiter  *rate.Limiter
}

// New selects a provider from cfg and constructs a Client. It never
// returns an error: a credential that fails to initialize falls back to
// ProviderNone rather than failing the run, since LLM assistance is
// always optional per spec.
func New(ctx context.Context, cfg Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{provider: ProviderNone, log: log, limiter: rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), 1)}
	if !cfg.Enabled {
		return c
	}
	switch {
	case cfg.OpenAIAPIKey != "":
		c.provider = ProviderOpenAI
		c.model = firstNonEmptyModel(cfg.OpenAIModel, "gpt-4o-mini")
		c.openai = openai.NewClient(cfg.OpenAIAPIKey)
		os.Setenv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
		typed := typedopenai.NewClient()
		c.typed = &typed
	case cfg.GeminiAPIKey != "":
		client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.GeminiAPIKey})
		if err != nil {
			log.Warn("llm: gemini client init failed, disabling LLM assistance", "error", err)
			return c
		}
		c.provider = ProviderGemini
		c.model = firstNonEmptyModel(cfg.GeminiModel, "gemini-2.0-flash")
		c.gemini = client
	}
	return c
}

// Provider reports which backend this Client is using.
func (c *Client) Provider() Provider { return c.provider }

// Enabled reports whether this Client has a usable provider.
func (c *Client) Enabled() bool { return c.provider != ProviderNone }

// Complete sends systemPrompt + userPrompt to the configured provider
// and returns the raw text reply. Any transport or schema error is
// logged and swallowed: callers receive an empty string, never a Go
// error, since the Mapper/Reader/Planner always have a heuristic
// fallback path.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) string {
	if c.provider == ProviderNone {
		return ""
	}
	if err := c.limiter.Wait(ctx); err != nil {
		c.log.Warn("llm: rate limiter wait aborted", "error", err)
		return ""
	}
	switch c.provider {
	case ProviderOpenAI:
		return c.completeOpenAI(ctx, systemPrompt, userPrompt)
	case ProviderGemini:
		return c.completeGemini(ctx, systemPrompt, userPrompt)
	default:
		return ""
	}
}

// completeOpenAI issues the primary completion through sashabaranov/go-openai.
// A request that fails, or a response that transports successfully but
// carries no usable content (the "schema validation fails" case per spec
// §4.12), falls back once to the typed openai-go/v3 client before giving up.
func (c *Client) completeOpenAI(ctx context.Context, systemPrompt, userPrompt string) string {
	resp, err := c.openai.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err == nil && len(resp.Choices) > 0 && strings.TrimSpace(resp.Choices[0].Message.Content) != "" {
		return resp.Choices[0].Message.Content
	}
	if err != nil {
		c.log.Warn("llm: openai completion failed, falling back to typed client", "error", err)
	}
	return c.completeOpenAITyped(ctx, systemPrompt, userPrompt)
}

func (c *Client) completeOpenAITyped(ctx context.Context, systemPrompt, userPrompt string) string {
	if c.typed == nil {
		return ""
	}
	params := typedopenai.ChatCompletionNewParams{
		Messages: []typedopenai.ChatCompletionMessageParamUnion{
			typedopenai.SystemMessage(systemPrompt),
			typedopenai.UserMessage(userPrompt),
		},
		Model: typedopenai.ChatModel(c.model),
	}
	completion, err := c.typed.Chat.Completions.New(ctx, params)
	if err != nil {
		c.log.Warn("llm: typed openai fallback failed", "error", err)
		return ""
	}
	if len(completion.Choices) == 0 {
		return ""
	}
	return completion.Choices[0].Message.Content
}

func (c *Client) completeGemini(ctx context.Context, systemPrompt, userPrompt string) string {
	var systemInstruction *genai.Content
	if systemPrompt != "" {
		systemInstruction = genai.Text(systemPrompt)[0]
	}
	genConfig := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
		Temperature:       ptrFloat32(0),
	}
	resp, err := c.gemini.Models.GenerateContent(ctx, c.model, genai.Text(userPrompt), genConfig)
	if err != nil {
		c.log.Warn("llm: gemini completion failed", "error", err)
		return ""
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	return resp.Candidates[0].Content.Parts[0].Text
}

func ptrFloat32(f float64) *float32 {
	f32 := float32(f)
	return &f32
}

func firstNonEmptyModel(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
