package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voxbrief/internal/audio"
	"voxbrief/internal/config"
	"voxbrief/internal/services"
)

type stubTranscriber struct {
	text string
	err  error
	opts Options
}

func (s *stubTranscriber) Transcribe(_ context.Context, _ audio.Buffer, opts Options) (string, error) {
	s.opts = opts
	return s.text, s.err
}

func oneSecond() audio.Buffer {
	return audio.NewBuffer(make([]float32, audio.SampleRate))
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if opts.ChunkLength != 30*time.Second || opts.Stride != 5*time.Second {
		t.Fatalf("unexpected chunking %v/%v", opts.ChunkLength, opts.Stride)
	}
	if opts.Language != "english" || opts.ReturnTimestamps {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestInvoke(t *testing.T) {
	t.Run("trims text and forwards options", func(t *testing.T) {
		stub := &stubTranscriber{text: "  hello world \n"}
		text, err := Invoke(context.Background(), stub, oneSecond(), DefaultOptions())
		if err != nil {
			t.Fatalf("Invoke returned error: %v", err)
		}
		if text != "hello world" {
			t.Fatalf("unexpected text %q", text)
		}
		if stub.opts.Language != "english" {
			t.Fatalf("expected options to be forwarded, got %+v", stub.opts)
		}
	})
	t.Run("backend failure is a transcription error", func(t *testing.T) {
		_, err := Invoke(context.Background(), &stubTranscriber{err: errors.New("cuda out of memory")}, oneSecond(), DefaultOptions())
		if !errors.Is(err, services.ErrTranscription) {
			t.Fatalf("expected ErrTranscription, got %v", err)
		}
		if !strings.Contains(err.Error(), "cuda out of memory") {
			t.Fatalf("expected cause in error, got %v", err)
		}
	})
	t.Run("empty transcript is a transcription error", func(t *testing.T) {
		_, err := Invoke(context.Background(), &stubTranscriber{text: "   "}, oneSecond(), DefaultOptions())
		if !errors.Is(err, services.ErrTranscription) {
			t.Fatalf("expected ErrTranscription, got %v", err)
		}
	})
	t.Run("empty buffer is rejected", func(t *testing.T) {
		stub := &stubTranscriber{text: "never"}
		_, err := Invoke(context.Background(), stub, audio.Buffer{}, DefaultOptions())
		if !errors.Is(err, services.ErrTranscription) {
			t.Fatalf("expected ErrTranscription, got %v", err)
		}
	})
}

func TestLanguageCode(t *testing.T) {
	tests := map[string]string{
		"english": "en",
		"English": "en",
		"en":      "en",
		"eng":     "en",
		"en-US":   "en",
		"french":  "fr",
		"German":  "de",
		"":        "",
		"1234":    "",
	}
	for input, want := range tests {
		if got := LanguageCode(input); got != want {
			t.Errorf("LanguageCode(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestWhisperXBuildArgs(t *testing.T) {
	w := NewWhisperX(config.Transcription{Model: "small"}, t.TempDir(), nil)
	args := strings.Join(w.buildArgs("/tmp/recording.wav", "/tmp/out", DefaultOptions()), " ")
	for _, want := range []string{
		"--index-url " + PypiIndexURL,
		"whisperx /tmp/recording.wav",
		"--model small",
		"--output_format json",
		"--chunk_size 30",
		"--language en",
		"--no_align",
		"--device cpu",
	} {
		if !strings.Contains(args, want) {
			t.Fatalf("expected %q in %q", want, args)
		}
	}

	cuda := NewWhisperX(config.Transcription{CUDAEnabled: true}, t.TempDir(), nil)
	args = strings.Join(cuda.buildArgs("a.wav", "out", Options{ReturnTimestamps: true}), " ")
	if !strings.Contains(args, "--device cuda") || !strings.Contains(args, CUDAIndexURL) {
		t.Fatalf("expected cuda args, got %q", args)
	}
	if strings.Contains(args, "--no_align") {
		t.Fatalf("expected alignment when timestamps requested, got %q", args)
	}
	if !strings.Contains(args, "--model "+WhisperXDefaultModel) {
		t.Fatalf("expected default model, got %q", args)
	}
}

func TestWhisperXTranscribeReadsSegments(t *testing.T) {
	w := NewWhisperX(config.Transcription{}, t.TempDir(), nil)
	var source string
	w.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		if name != UVXCommand {
			t.Fatalf("unexpected command %s", name)
		}
		var outDir string
		for i, arg := range args {
			if arg == "whisperx" {
				source = args[i+1]
			}
			if arg == "--output_dir" {
				outDir = args[i+1]
			}
		}
		if _, err := os.Stat(source); err != nil {
			t.Fatalf("expected source wav to exist: %v", err)
		}
		payload := map[string]any{
			"segments": []map[string]any{
				{"text": " We met with Acme Corp. ", "start": 0.0, "end": 1.2},
				{"text": "", "start": 1.2, "end": 1.3},
				{"text": "They ship widgets.", "start": 1.3, "end": 2.0},
			},
		}
		data, _ := json.Marshal(payload)
		return os.WriteFile(filepath.Join(outDir, "recording.json"), data, 0o644)
	})

	text, err := w.Transcribe(context.Background(), oneSecond(), DefaultOptions())
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	if text != "We met with Acme Corp. They ship widgets." {
		t.Fatalf("unexpected text %q", text)
	}
	if _, err := os.Stat(source); !os.IsNotExist(err) {
		t.Fatalf("expected temp audio to be removed, stat err=%v", err)
	}
}

func TestWhisperXTranscribeFailure(t *testing.T) {
	w := NewWhisperX(config.Transcription{}, t.TempDir(), nil)
	w.WithCommandRunner(func(context.Context, string, ...string) error {
		return errors.New("exit status 1")
	})
	_, err := w.Transcribe(context.Background(), oneSecond(), DefaultOptions())
	if !errors.Is(err, services.ErrTranscription) {
		t.Fatalf("expected ErrTranscription, got %v", err)
	}
}

func TestWhisperXLoad(t *testing.T) {
	w := NewWhisperX(config.Transcription{}, t.TempDir(), nil)
	w.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	if err := w.Load(context.Background()); !errors.Is(err, services.ErrTranscription) {
		t.Fatalf("expected ErrTranscription when uvx missing, got %v", err)
	}

	var called []string
	w.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		called = append([]string{name}, args...)
		return nil
	})
	if err := w.Load(context.Background()); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !strings.Contains(strings.Join(called, " "), "whisperx --help") {
		t.Fatalf("unexpected load command %v", called)
	}
}

func TestOpenAITranscribe(t *testing.T) {
	var gotAuth, gotModel, gotLanguage string
	var gotFileSize int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")
		if file, _, err := r.FormFile("file"); err == nil {
			gotFileSize, _ = io.Copy(io.Discard, file)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "hello from the meeting"})
	}))
	defer server.Close()

	o := NewOpenAI(config.Transcription{APIKey: "sk-test", BaseURL: server.URL + "/v1/"})
	text, err := o.Transcribe(context.Background(), oneSecond(), DefaultOptions())
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	if text != "hello from the meeting" {
		t.Fatalf("unexpected text %q", text)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotModel != OpenAIDefaultModel || gotLanguage != "en" {
		t.Fatalf("unexpected form model=%q language=%q", gotModel, gotLanguage)
	}
	if gotFileSize <= 44 {
		t.Fatalf("expected wav upload, got %d bytes", gotFileSize)
	}
}

func TestOpenAITranscribeHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	o := NewOpenAI(config.Transcription{APIKey: "sk-bad", BaseURL: server.URL + "/v1"})
	_, err := o.Transcribe(context.Background(), oneSecond(), DefaultOptions())
	if !errors.Is(err, services.ErrTranscription) {
		t.Fatalf("expected ErrTranscription, got %v", err)
	}
	if !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected status code in error, got %v", err)
	}
}

func TestOpenAILoadRequiresKey(t *testing.T) {
	o := NewOpenAI(config.Transcription{})
	if err := o.Load(context.Background()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if err := NewOpenAI(config.Transcription{APIKey: "k"}).Load(context.Background()); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
}

func TestOptionsFromSettings(t *testing.T) {
	opts := OptionsFromSettings(config.Transcription{})
	if opts != DefaultOptions() {
		t.Fatalf("expected defaults, got %+v", opts)
	}
	opts = OptionsFromSettings(config.Transcription{ChunkLengthSeconds: 20, StrideSeconds: 2, Language: "french", ReturnTimestamps: true})
	if opts.ChunkLength != 20*time.Second || opts.Stride != 2*time.Second || opts.Language != "french" || !opts.ReturnTimestamps {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestNewBackendSelectsProvider(t *testing.T) {
	if _, ok := NewBackend(config.Transcription{Backend: "openai"}, t.TempDir(), nil).(*OpenAI); !ok {
		t.Fatal("expected openai backend")
	}
	if _, ok := NewBackend(config.Transcription{Backend: "whisperx"}, t.TempDir(), nil).(*WhisperX); !ok {
		t.Fatal("expected whisperx backend")
	}
}
