package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"voxbrief/internal/services"
)

// OpenAIAnalyzer calls the chat-completion API through go-openai. A client is
// built per call because the credential may change between sessions.
type OpenAIAnalyzer struct {
	cfg     Config
	baseURL string
}

// NewOpenAIAnalyzer creates the SDK-backed analyzer. cfg.BaseURL is the API
// root (for example https://api.openai.com/v1); a full chat-completions URL
// is trimmed back to it.
func NewOpenAIAnalyzer(cfg Config) *OpenAIAnalyzer {
	cfg = cfg.withDefaults()
	base := strings.TrimRight(cfg.BaseURL, "/")
	base = strings.TrimSuffix(base, "/chat/completions")
	return &OpenAIAnalyzer{cfg: cfg, baseURL: base}
}

// Analyze issues exactly one chat-completion request for transcript.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, transcript, credential string) (Result, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Result{}, errMissingCredential()
	}
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	clientCfg := openai.DefaultConfig(credential)
	clientCfg.BaseURL = a.baseURL
	client := openai.NewClientWithConfig(clientCfg)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(transcript)},
		},
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: float32(*a.cfg.Temperature),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return Result{}, classifySDKError(err)
	}
	var content, finishReason string
	for _, choice := range resp.Choices {
		if finishReason == "" {
			finishReason = string(choice.FinishReason)
		}
		if content = strings.TrimSpace(choice.Message.Content); content != "" {
			break
		}
	}
	if content == "" {
		return Result{}, services.Wrap(services.ErrFormat, stageAnalyze, "decode",
			fmt.Sprintf("empty content (finish_reason=%q)", finishReason), nil)
	}
	return parseResult(content)
}

func classifySDKError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return services.Wrap(services.ErrService, stageAnalyze, "request",
			fmt.Sprintf("analysis service returned http %d", apiErr.HTTPStatusCode), err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return services.Wrap(services.ErrService, stageAnalyze, "request",
			fmt.Sprintf("analysis service returned http %d", reqErr.HTTPStatusCode), err)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return services.Wrap(services.ErrFormat, stageAnalyze, "decode", "response is not valid JSON", err)
	}
	return services.Wrap(services.ErrService, stageAnalyze, "request", "analysis service unreachable", err)
}
