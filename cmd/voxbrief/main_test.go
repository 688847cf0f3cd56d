package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"voxbrief/internal/config"
	"voxbrief/internal/session"
	"voxbrief/internal/testsupport"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// fakeOpenAI serves both the transcription and chat-completion endpoints.
func fakeOpenAI(t *testing.T, transcript string) *httptest.Server {
	t.Helper()
	content := `{"contextualAnalysis":"A product planning meeting.","companies":[{"name":"Acme Corp","industry":"manufacturing"}],"products":[{"name":"Widget line","description":"New range of widgets."}],"relatedInfo":"Consider competitor pricing."}`
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"text": transcript})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{
				map[string]any{
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": content},
				},
			},
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func analyzeConfig(t *testing.T, serverURL string) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t,
		testsupport.WithAPIKey("sk-test"),
		testsupport.WithAnalysisURL(serverURL+"/v1/chat/completions"),
	)
	cfg.Transcription.Backend = config.TranscriptionBackendOpenAI
	cfg.Transcription.Model = "whisper-1"
	cfg.Transcription.APIKey = "sk-test"
	cfg.Transcription.BaseURL = serverURL + "/v1"
	return cfg
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, err := runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("expected output to name %s, got %q", target, out)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if string(data) != config.SampleConfig() {
		t.Fatal("written config does not match the sample")
	}

	if _, err := runCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}
	if _, err := runCLI(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigShowMasksSecrets(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAPIKey("sk-abcdefghijklmnop"))
	path := writeTestConfig(t, cfg)

	out, err := runCLI(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "sk-abcdefghijklmnop") {
		t.Fatalf("api key leaked in output:\n%s", out)
	}
	if !strings.Contains(out, "sk-a****mnop") {
		t.Fatalf("expected masked key in output:\n%s", out)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)

	out, err := runCLI(t, "--config", path, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestStatusReportsChecks(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	path := writeTestConfig(t, cfg)

	out, err := runCLI(t, "--config", path, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"Configuration", "Checks", "FFmpeg", "Work directory", "[OK]", "Capture device"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestAnalyzeFileRendersResult(t *testing.T) {
	server := fakeOpenAI(t, "Our meeting covered Acme Corp's new widget line")
	cfg := analyzeConfig(t, server.URL)
	path := writeTestConfig(t, cfg)

	input := filepath.Join(testsupport.BaseDir(cfg), "meeting.wav")
	if err := os.WriteFile(input, testsupport.ToneWAV(t, 48000, 2, 1, 440, 0.5), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	out, err := runCLI(t, "--config", path, "analyze", input)
	if err != nil {
		t.Fatalf("analyze: %v\n%s", err, out)
	}
	for _, want := range []string{session.StatusDone, "Acme Corp", "Manufacturing", "Widget line", "competitor pricing"} {
		if !strings.Contains(out, want) {
			t.Errorf("analyze output missing %q:\n%s", want, out)
		}
	}
}

func TestAnalyzeJSONOutput(t *testing.T) {
	server := fakeOpenAI(t, "Our meeting covered Acme Corp's new widget line")
	cfg := analyzeConfig(t, server.URL)
	path := writeTestConfig(t, cfg)

	input := filepath.Join(testsupport.BaseDir(cfg), "meeting.wav")
	if err := os.WriteFile(input, testsupport.ToneWAV(t, 16000, 1, 1, 440, 0.5), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	out, err := runCLI(t, "--config", path, "analyze", "--json", input)
	if err != nil {
		t.Fatalf("analyze --json: %v\n%s", err, out)
	}
	var snap session.Snapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("decode snapshot: %v\n%s", err, out)
	}
	if snap.State != session.StateDone {
		t.Fatalf("expected done state, got %s (%s)", snap.State, snap.Status)
	}
	if snap.Result == nil || len(snap.Result.Companies) != 1 || snap.Result.Companies[0].Name != "Acme Corp" {
		t.Fatalf("unexpected result %+v", snap.Result)
	}
}

func TestAnalyzeEmptyTranscriptFails(t *testing.T) {
	server := fakeOpenAI(t, "   ")
	cfg := analyzeConfig(t, server.URL)
	path := writeTestConfig(t, cfg)

	input := filepath.Join(testsupport.BaseDir(cfg), "silence.wav")
	if err := os.WriteFile(input, testsupport.ToneWAV(t, 16000, 1, 1, 440, 0), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	out, err := runCLI(t, "--config", path, "analyze", input)
	if err == nil {
		t.Fatalf("expected failure for empty transcript, got output:\n%s", out)
	}
	if strings.Contains(out, "Acme Corp") {
		t.Fatalf("analysis should not run after an empty transcript:\n%s", out)
	}
}

func TestMaskSecret(t *testing.T) {
	cases := map[string]string{
		"":                    "",
		"short":               "****",
		"sk-abcdefghijklmnop": "sk-a****mnop",
	}
	for input, want := range cases {
		if got := maskSecret(input); got != want {
			t.Errorf("maskSecret(%q) = %q, want %q", input, got, want)
		}
	}
}
