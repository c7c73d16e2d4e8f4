package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/HerbHall/netsage/pkg/llm"
	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ llm.Provider       = (*Provider)(nil)
	_ llm.HealthReporter = (*Provider)(nil)
)

// Provider talks to a local Ollama server over its REST API. Both the
// generate and chat endpoints answer with newline-delimited JSON, so one
// streaming reader serves both.
type Provider struct {
	baseURL    string
	httpClient *http.Client
	cfg        Config
	logger     *zap.Logger
}

// New creates an Ollama provider. Connectivity is not verified here; call
// Heartbeat for an early health check.
func New(cfg Config, logger *zap.Logger) (*Provider, error) {
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("parse ollama url %q: %w", cfg.URL, err)
	}

	return &Provider{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// tokenCounts carries Ollama's per-completion accounting fields.
type tokenCounts struct {
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

// fragment is one decoded line of an Ollama NDJSON response.
type fragment struct {
	text   string
	done   bool
	counts tokenCounts
}

// Generate completes a single prompt via /api/generate.
func (p *Provider) Generate(ctx context.Context, prompt string, opts ...llm.CallOption) (*llm.Response, error) {
	cfg := llm.ApplyOptions(opts...)
	model := p.pickModel(cfg)

	req := generateRequest{
		Model:   model,
		Prompt:  prompt,
		Stream:  wantStream(cfg),
		Options: modelOptions(cfg),
	}
	return p.completion(ctx, "/api/generate", req, cfg, model, func(line []byte) (fragment, bool) {
		var chunk generateResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fragment{}, false
		}
		return fragment{text: chunk.Response, done: chunk.Done, counts: chunk.tokenCounts}, true
	})
}

// Chat completes a conversation via /api/chat.
func (p *Provider) Chat(ctx context.Context, messages []llm.Message, opts ...llm.CallOption) (*llm.Response, error) {
	if len(messages) == 0 {
		return nil, llm.NewProviderError(llm.ErrCodeInvalidRequest, "messages must not be empty", nil)
	}

	cfg := llm.ApplyOptions(opts...)
	model := p.pickModel(cfg)

	apiMessages := make([]chatMessage, len(messages))
	for i, m := range messages {
		apiMessages[i] = chatMessage{Role: m.Role, Content: m.Content}
	}

	req := chatRequest{
		Model:    model,
		Messages: apiMessages,
		Stream:   wantStream(cfg),
		Options:  modelOptions(cfg),
	}
	return p.completion(ctx, "/api/chat", req, cfg, model, func(line []byte) (fragment, bool) {
		var chunk chatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fragment{}, false
		}
		return fragment{text: chunk.Message.Content, done: chunk.Done, counts: chunk.tokenCounts}, true
	})
}

// completion posts the payload and folds the NDJSON response into one
// llm.Response, forwarding text to cfg.StreamFunc when streaming. Lines
// that fail to decode are skipped.
func (p *Provider) completion(ctx context.Context, path string, payload any, cfg llm.CallConfig, model string, decode func([]byte) (fragment, bool)) (*llm.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", path, err)
	}

	respBody, err := p.post(ctx, path, body)
	if err != nil {
		return nil, mapError(err)
	}
	defer respBody.Close()

	var (
		content strings.Builder
		counts  tokenCounts
		done    bool
	)
	scanner := bufio.NewScanner(respBody)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		frag, ok := decode(line)
		if !ok {
			continue
		}

		if frag.text != "" {
			content.WriteString(frag.text)
			if cfg.StreamFunc != nil {
				if sErr := cfg.StreamFunc(ctx, []byte(frag.text)); sErr != nil {
					return nil, sErr
				}
			}
		}
		if frag.done {
			counts = frag.counts
			done = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, mapError(err)
	}

	return &llm.Response{
		Content: content.String(),
		Model:   model,
		Usage: llm.Usage{
			PromptTokens:     counts.PromptEvalCount,
			CompletionTokens: counts.EvalCount,
			TotalTokens:      counts.PromptEvalCount + counts.EvalCount,
		},
		Done: done,
	}, nil
}

// Heartbeat checks whether the Ollama server answers at all.
func (p *Provider) Heartbeat(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/", http.NoBody)
	if err != nil {
		return mapError(err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return mapError(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return mapError(api.StatusError{StatusCode: resp.StatusCode, ErrorMessage: "heartbeat failed"})
	}
	return nil
}

// ListModels returns the names of locally pulled models.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return nil, mapError(err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, mapError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, mapError(parseStatusError(resp))
	}

	var result listResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}

	names := make([]string, len(result.Models))
	for i := range result.Models {
		names[i] = result.Models[i].Name
	}
	return names, nil
}

// post sends a POST and returns the body; the caller closes it.
func (p *Provider) post(ctx context.Context, path string, body []byte) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, parseStatusError(resp)
	}

	return resp.Body, nil
}

func (p *Provider) pickModel(cfg llm.CallConfig) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	return p.cfg.Model
}

// wantStream maps the call config onto Ollama's stream field: an explicit
// false for buffered calls, omitted (Ollama's default is streaming) when a
// stream func is set.
func wantStream(cfg llm.CallConfig) *bool {
	if cfg.StreamFunc != nil {
		return nil
	}
	noStream := false
	return &noStream
}

// parseStatusError turns an error response into an api.StatusError so
// mapError can classify it by status code.
func parseStatusError(resp *http.Response) api.StatusError {
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return api.StatusError{StatusCode: resp.StatusCode, ErrorMessage: resp.Status}
	}
	msg := errResp.Error
	if msg == "" {
		msg = resp.Status
	}
	return api.StatusError{StatusCode: resp.StatusCode, ErrorMessage: msg}
}

// modelOptions converts call config into Ollama's options map.
func modelOptions(cfg llm.CallConfig) map[string]any {
	opts := make(map[string]any)
	if cfg.Temperature > 0 {
		opts["temperature"] = cfg.Temperature
	}
	if cfg.MaxTokens > 0 {
		opts["num_predict"] = cfg.MaxTokens
	}
	return opts
}

// Wire types for the Ollama REST API.

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  *bool          `json:"stream,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   *bool          `json:"stream,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	tokenCounts
}

type chatResponse struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	tokenCounts
}

type listResponse struct {
	Models []listModel `json:"models"`
}

type listModel struct {
	Name string `json:"name"`
}
