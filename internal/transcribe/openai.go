package transcribe

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"voxbrief/internal/audio"
	"voxbrief/internal/config"
	"voxbrief/internal/services"
)

// OpenAIDefaultModel is the hosted transcription model used when none is set.
const OpenAIDefaultModel = openai.Whisper1

// OpenAI transcribes through the hosted audio transcription endpoint. The
// service chunks long audio itself, so Options.ChunkLength and Stride are
// not sent.
type OpenAI struct {
	client *openai.Client
	model  string
	apiKey string
}

// NewOpenAI creates an OpenAI transcription backend.
func NewOpenAI(cfg config.Transcription) *OpenAI {
	key := strings.TrimSpace(cfg.APIKey)
	clientCfg := openai.DefaultConfig(key)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = strings.TrimRight(base, "/")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = OpenAIDefaultModel
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		apiKey: key,
	}
}

// Name returns the configured model name for logging.
func (o *OpenAI) Name() string {
	return "openai/" + o.model
}

// Load verifies that a credential is configured. The hosted model needs no
// local preparation.
func (o *OpenAI) Load(context.Context) error {
	if o.apiKey == "" {
		return services.Wrap(services.ErrConfiguration, stageTranscribe, "load", "transcription api key required", nil)
	}
	return nil
}

// Transcribe uploads buf as a 16 kHz mono WAV file.
func (o *OpenAI) Transcribe(ctx context.Context, buf audio.Buffer, opts Options) (string, error) {
	if o.apiKey == "" {
		return "", services.Wrap(services.ErrConfiguration, stageTranscribe, "openai", "transcription api key required", nil)
	}
	wav, err := audio.EncodeBuffer(buf)
	if err != nil {
		return "", services.Wrap(services.ErrTranscription, stageTranscribe, "prepare", "encode audio", err)
	}
	req := openai.AudioRequest{
		Model:    o.model,
		FilePath: recordingBaseName + ".wav",
		Reader:   bytes.NewReader(wav),
		Language: LanguageCode(opts.Language),
		Format:   openai.AudioResponseFormatJSON,
	}
	if opts.ReturnTimestamps {
		req.Format = openai.AudioResponseFormatVerboseJSON
		req.TimestampGranularities = []openai.TranscriptionTimestampGranularity{openai.TranscriptionTimestampGranularitySegment}
	}
	resp, err := o.client.CreateTranscription(ctx, req)
	if err != nil {
		return "", services.Wrap(services.ErrTranscription, stageTranscribe, "openai", describeAPIError(err), err)
	}
	return resp.Text, nil
}

func describeAPIError(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return "transcription api returned http " + strconv.Itoa(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return "transcription request failed with http " + strconv.Itoa(reqErr.HTTPStatusCode)
	}
	return "transcription request failed"
}
