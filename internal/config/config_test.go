package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"voxbrief/internal/config"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("VOXBRIEF_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	return home
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	home := isolateEnv(t)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	wantWork := filepath.Join(home, ".local", "share", "voxbrief", "work")
	if cfg.Paths.WorkDir != wantWork {
		t.Fatalf("unexpected work dir: got %q want %q", cfg.Paths.WorkDir, wantWork)
	}
	if cfg.Transcription.ChunkLengthSeconds != 30 || cfg.Transcription.StrideSeconds != 5 {
		t.Fatalf("unexpected chunking defaults: %+v", cfg.Transcription)
	}
	if cfg.Transcription.Language != "english" || cfg.Transcription.ReturnTimestamps {
		t.Fatalf("unexpected language defaults: %+v", cfg.Transcription)
	}
	if cfg.Analysis.MaxTokens != 500 || cfg.Analysis.Temperature != 0.7 {
		t.Fatalf("unexpected analysis defaults: %+v", cfg.Analysis)
	}
	if cfg.HasCredential() {
		t.Fatal("expected no credential by default")
	}
	if cfg.AnalysisTimeout() != 0 {
		t.Fatalf("expected unbounded analysis timeout, got %s", cfg.AnalysisTimeout())
	}
}

func TestLoadUsesEnvCredentialFallback(t *testing.T) {
	isolateEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Analysis.APIKey != "sk-openai" {
		t.Fatalf("expected OPENAI_API_KEY fallback, got %q", cfg.Analysis.APIKey)
	}

	t.Setenv("VOXBRIEF_API_KEY", "vb-key")
	cfg, _, _, err = config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Analysis.APIKey != "vb-key" {
		t.Fatalf("expected VOXBRIEF_API_KEY to win, got %q", cfg.Analysis.APIKey)
	}
}

func TestLoadCustomPathNormalizesValues(t *testing.T) {
	isolateEnv(t)
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.toml")
	content := `
[paths]
work_dir = "~/vb-work"

[capture]
backend = " Command "
sample_rate = 16000
channels = 1

[transcription]
backend = "OPENAI"

[analysis]
provider = "openai"
api_key = "  sk-test  "

[server]
allowed_origins = [" http://a ", ""]

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	home, _ := os.UserHomeDir()
	if cfg.Paths.WorkDir != filepath.Join(home, "vb-work") {
		t.Fatalf("unexpected work dir %q", cfg.Paths.WorkDir)
	}
	if cfg.Capture.Backend != config.CaptureBackendCommand {
		t.Fatalf("expected normalized backend, got %q", cfg.Capture.Backend)
	}
	if cfg.Transcription.Backend != config.TranscriptionBackendOpenAI || cfg.Transcription.Model != "whisper-1" {
		t.Fatalf("unexpected transcription config %+v", cfg.Transcription)
	}
	if cfg.Transcription.APIKey != "sk-test" {
		t.Fatalf("expected transcription key to fall back to analysis key, got %q", cfg.Transcription.APIKey)
	}
	if cfg.Analysis.APIKey != "sk-test" {
		t.Fatalf("expected trimmed api key, got %q", cfg.Analysis.APIKey)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "http://a" {
		t.Fatalf("unexpected origins %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config %+v", cfg.Logging)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	isolateEnv(t)
	cases := map[string]string{
		"capture backend":   "[capture]\nbackend = \"alsa-direct\"\n",
		"channels":          "[capture]\nchannels = 6\n",
		"stride":            "[transcription]\nchunk_length_seconds = 5\nstride_seconds = 5\n",
		"provider":          "[analysis]\nprovider = \"grpc\"\n",
		"temperature":       "[analysis]\ntemperature = 3.5\n",
		"log format":        "[logging]\nformat = \"xml\"\n",
		"unknown key fails": "[analysis]\nmodle = \"typo\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, _, _, err := config.Load(path); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestSampleConfigParsesAndValidates(t *testing.T) {
	isolateEnv(t)
	var cfg config.Config
	if err := toml.Unmarshal([]byte(config.SampleConfig()), &cfg); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}

	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	loaded, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(sample) returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	if loaded.Analysis.Provider != config.AnalysisProviderHTTP {
		t.Fatalf("unexpected provider %q", loaded.Analysis.Provider)
	}
	if !strings.HasPrefix(loaded.Paths.LockDir, string(filepath.Separator)) {
		t.Fatalf("expected absolute lock dir, got %q", loaded.Paths.LockDir)
	}
}

func TestEnsureDirectoriesCreatesPaths(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.LockDir = filepath.Join(base, "locks")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.WorkDir, cfg.Paths.LogDir, cfg.Paths.LockDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
