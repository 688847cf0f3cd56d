package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voxbrief/internal/config"
	"voxbrief/internal/services"
)

const (
	stageAnalyze     = "analyze"
	jsonResponseType = "json_object"

	DefaultBaseURL     = "https://api.openai.com/v1/chat/completions"
	DefaultModel       = "gpt-3.5-turbo"
	DefaultMaxTokens   = 500
	DefaultTemperature = 0.7
)

// Analyzer turns a transcript into a Result using credential to authorize
// the request.
type Analyzer interface {
	Analyze(ctx context.Context, transcript, credential string) (Result, error)
}

// Config captures the request shape sent to the chat-completion endpoint.
type Config struct {
	BaseURL   string
	Model     string
	MaxTokens int
	// Temperature defaults to DefaultTemperature when nil.
	Temperature *float64
	// Timeout bounds one request; zero leaves it unbounded.
	Timeout time.Duration
}

// ConfigFromSettings maps the [analysis] config section.
func ConfigFromSettings(cfg config.Analysis) Config {
	c := Config{
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: Float64(cfg.Temperature),
	}
	if cfg.TimeoutSeconds > 0 {
		c.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return c
}

// New returns the analyzer for the configured provider.
func New(cfg config.Analysis) Analyzer {
	if strings.EqualFold(strings.TrimSpace(cfg.Provider), config.AnalysisProviderOpenAI) {
		return NewOpenAIAnalyzer(ConfigFromSettings(cfg))
	}
	return NewClient(ConfigFromSettings(cfg))
}

// Client posts chat-completion requests over plain HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	client := &Client{
		cfg:        cfg.withDefaults(),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c Config) withDefaults() Config {
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	c.Model = strings.TrimSpace(c.Model)
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Temperature == nil {
		c.Temperature = Float64(DefaultTemperature)
	}
	return c
}

// Float64 returns a pointer to v for Config.Temperature.
func Float64(v float64) *float64 {
	return &v
}

// HTTPStatusError reports a non-2xx response.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("analysis request: http %d: %s", e.StatusCode, summarizePayloadSnippet(e.Body))
}

// Analyze issues exactly one chat-completion request for transcript.
func (c *Client) Analyze(ctx context.Context, transcript, credential string) (Result, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Result{}, errMissingCredential()
	}
	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: userPrompt(transcript)},
		},
		MaxTokens:      c.cfg.MaxTokens,
		Temperature:    *c.cfg.Temperature,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}
	content, err := c.complete(ctx, payload, credential)
	if err != nil {
		return Result{}, err
	}
	return parseResult(content)
}

// HealthCheck issues a minimal request to verify the credential and model.
func (c *Client) HealthCheck(ctx context.Context, credential string) error {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return errMissingCredential()
	}
	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You must respond with JSON only."},
			{Role: "user", Content: "Respond with {\"ok\":true}"},
		},
		MaxTokens:      16,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}
	content, err := c.complete(ctx, payload, credential)
	if err != nil {
		return err
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		return services.Wrap(services.ErrFormat, stageAnalyze, "health", "parse payload", err)
	}
	if !parsed.OK {
		return services.Wrap(services.ErrFormat, stageAnalyze, "health", "unexpected response", nil)
	}
	return nil
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	MaxTokens      int               `json:"max_tokens"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatCompletionMessage `json:"message"`
		// Some providers return the streaming schema (delta) even when
		// stream=false.
		Delta        chatCompletionMessage `json:"delta"`
		Text         string                `json:"text"`
		FinishReason string                `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type chatCompletionMessage struct {
	Content string `json:"content"`
	Refusal string `json:"refusal"`
}

func (c *Client) complete(ctx context.Context, payload chatCompletionRequest, credential string) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", services.Wrap(services.ErrService, stageAnalyze, "request", "encode body", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, stageAnalyze, "request", "invalid analysis url", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrService, stageAnalyze, "request", "analysis service unreachable", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrService, stageAnalyze, "request", "read body", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		statusErr := &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		return "", services.Wrap(services.ErrService, stageAnalyze, "request", fmt.Sprintf("analysis service returned http %d", resp.StatusCode), statusErr)
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", services.Wrap(services.ErrFormat, stageAnalyze, "decode", "response is not valid JSON", fmt.Errorf("%w (payload snippet: %s)", err, summarizePayloadSnippet(string(body))))
	}
	if completion.Error != nil {
		return "", services.Wrap(services.ErrService, stageAnalyze, "request", "api error: "+strings.TrimSpace(completion.Error.Message), nil)
	}
	content, finishReason, refusal := extractCompletionPayload(completion)
	if content == "" {
		return "", services.Wrap(services.ErrFormat, stageAnalyze, "decode",
			fmt.Sprintf("empty content (finish_reason=%q, refusal=%q)", finishReason, refusal), nil)
	}
	return content, nil
}

func extractCompletionPayload(completion chatCompletionResponse) (content, finishReason, refusal string) {
	for _, choice := range completion.Choices {
		if finishReason == "" {
			finishReason = strings.TrimSpace(choice.FinishReason)
		}
		if refusal == "" {
			refusal = firstNonEmpty(choice.Message.Refusal, choice.Delta.Refusal)
		}
		if content = firstNonEmpty(choice.Message.Content, choice.Delta.Content, choice.Text); content != "" {
			return content, finishReason, refusal
		}
	}
	return "", finishReason, refusal
}

// parseResult decodes model content into a normalized Result.
func parseResult(content string) (Result, error) {
	var result Result
	if err := DecodeLLMJSON(content, &result); err != nil {
		return Result{}, services.Wrap(services.ErrFormat, stageAnalyze, "decode", "analysis is not the expected JSON object", err)
	}
	return result.normalize(), nil
}

func errMissingCredential() error {
	return services.Wrap(services.ErrConfiguration, stageAnalyze, "credential", "API key is not set", nil)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// DecodeLLMJSON decodes JSON from model output, tolerating code fences and
// prose around the object.
func DecodeLLMJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}

	directErr := json.Unmarshal([]byte(trimmed), target)
	if directErr == nil {
		return nil
	}

	sanitized := sanitizeJSONPayload(trimmed)
	if sanitized == "" || sanitized == trimmed {
		return fmt.Errorf("%w (payload snippet: %s)", directErr, summarizePayloadSnippet(trimmed))
	}
	if err := json.Unmarshal([]byte(sanitized), target); err != nil {
		return fmt.Errorf("%w (sanitized payload snippet: %s)", err, summarizePayloadSnippet(sanitized))
	}
	return nil
}

func sanitizeJSONPayload(content string) string {
	trimmed := strings.TrimSpace(stripCodeFenceBlock(content))
	if trimmed == "" {
		return ""
	}
	if trimmed[0] == '{' {
		return trimmed
	}
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return strings.TrimSpace(trimmed[start : end+1])
		}
	}
	return trimmed
}

func stripCodeFenceBlock(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimLeft(trimmed[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = strings.TrimLeft(body[4:], " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func summarizePayloadSnippet(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	if clean == "" {
		return "<empty>"
	}
	const limit = 160
	if runes := []rune(clean); len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
