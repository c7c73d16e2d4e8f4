// Package llm defines the contract NetSage uses to talk to language
// models. Plugins that need a model (the assist chat, health summaries)
// depend only on these types; the concrete Ollama and OpenAI adapters
// live under internal/llm and are selected by configuration.
//
// This package is Apache 2.0 licensed, part of the public plugin SDK.
package llm

import "context"

// Roles a chat message can carry.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the model's output plus accounting. Done is false when the
// model stopped early, for example on a token limit.
type Response struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   Usage  `json:"usage"`
	Done    bool   `json:"done"`
}

// Provider is implemented by every model backend.
type Provider interface {
	// Generate completes a single prompt.
	Generate(ctx context.Context, prompt string, opts ...CallOption) (*Response, error)

	// Chat completes a conversation.
	Chat(ctx context.Context, messages []Message, opts ...CallOption) (*Response, error)
}

// HealthReporter is an optional extension for backends that can be probed.
// Callers discover it by type assertion on a Provider.
type HealthReporter interface {
	// Heartbeat reports whether the backend is reachable.
	Heartbeat(ctx context.Context) error

	// ListModels names the models the backend can serve.
	ListModels(ctx context.Context) ([]string, error)
}

// CallConfig is the per-call configuration after options are applied.
type CallConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
	StreamFunc  func(ctx context.Context, chunk []byte) error
}

// CallOption adjusts one Generate or Chat call.
type CallOption func(*CallConfig)

// WithModel overrides the provider's default model for this call.
func WithModel(model string) CallOption {
	return func(c *CallConfig) { c.Model = model }
}

// WithTemperature sets the sampling temperature. Zero is deterministic.
func WithTemperature(temp float64) CallOption {
	return func(c *CallConfig) { c.Temperature = temp }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(max int) CallOption {
	return func(c *CallConfig) { c.MaxTokens = max }
}

// WithStreamFunc switches the call to streaming. fn receives each chunk as
// it arrives; returning an error aborts the stream.
func WithStreamFunc(fn func(ctx context.Context, chunk []byte) error) CallOption {
	return func(c *CallConfig) { c.StreamFunc = fn }
}

// ApplyOptions folds opts over the default call configuration.
func ApplyOptions(opts ...CallOption) CallConfig {
	cfg := CallConfig{
		Temperature: 0.7,
		MaxTokens:   2048,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
