package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"voxbrief/internal/config"
	"voxbrief/internal/services"
)

const acmeTranscript = "Our meeting covered Acme Corp's new widget line"

func completionBody(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
			},
		},
	}
}

func acmeContent() string {
	return `{"contextualAnalysis":"A product planning meeting.","companies":[{"name":"Acme Corp","industry":"manufacturing"}],"products":[{"name":"Widget line","description":"New range of widgets."}],"relatedInfo":"Consider competitor pricing."}`
}

func TestAnalyzeAcmeCorp(t *testing.T) {
	var calls atomic.Int32
	var captured chatCompletionRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(completionBody(acmeContent()))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Model: "demo-model"})
	result, err := client.Analyze(context.Background(), acmeTranscript, "sk-live")
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if len(result.Companies) != 1 || result.Companies[0].Name != "Acme Corp" {
		t.Fatalf("expected one company Acme Corp, got %+v", result.Companies)
	}
	if result.Companies[0].Industry != "Manufacturing" {
		t.Fatalf("expected title-cased industry, got %q", result.Companies[0].Industry)
	}
	if result.ContextualAnalysis != "A product planning meeting." || result.RelatedInfo == "" {
		t.Fatalf("unexpected text fields %+v", result)
	}

	if calls.Load() != 1 {
		t.Fatalf("expected exactly one request, got %d", calls.Load())
	}
	if auth != "Bearer sk-live" {
		t.Fatalf("unexpected authorization header %q", auth)
	}
	if captured.Model != "demo-model" || captured.MaxTokens != 500 || captured.Temperature != 0.7 {
		t.Fatalf("unexpected request shape %+v", captured)
	}
	if captured.ResponseFormat["type"] != "json_object" {
		t.Fatalf("expected json_object response format, got %v", captured.ResponseFormat)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" || captured.Messages[1].Role != "user" {
		t.Fatalf("unexpected messages %+v", captured.Messages)
	}
	if !strings.Contains(captured.Messages[1].Content, acmeTranscript) {
		t.Fatalf("expected transcript in user message, got %q", captured.Messages[1].Content)
	}
}

func TestAnalyzeEmptyCredentialMakesNoRequest(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	for _, analyzer := range []Analyzer{
		NewClient(Config{BaseURL: server.URL}),
		NewOpenAIAnalyzer(Config{BaseURL: server.URL}),
	} {
		_, err := analyzer.Analyze(context.Background(), acmeTranscript, "  ")
		if !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("expected ErrConfiguration, got %v", err)
		}
		if services.Kind(err) != "ConfigError" {
			t.Fatalf("expected ConfigError kind, got %q", services.Kind(err))
		}
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no network calls, got %d", calls.Load())
	}
}

func TestAnalyzeNon2xxIsServiceErrorWithoutRetry(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusInternalServerError} {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"error":{"message":"nope"}}`)
		}))

		_, err := NewClient(Config{BaseURL: server.URL}).Analyze(context.Background(), acmeTranscript, "sk")
		server.Close()

		if !errors.Is(err, services.ErrService) {
			t.Fatalf("status %d: expected ErrService, got %v", status, err)
		}
		var statusErr *HTTPStatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != status {
			t.Fatalf("status %d: expected HTTPStatusError, got %v", status, err)
		}
		if calls.Load() != 1 {
			t.Fatalf("status %d: expected one call, got %d", status, calls.Load())
		}
	}
}

func TestAnalyzeMalformedBodyIsFormatError(t *testing.T) {
	tests := map[string]func(w http.ResponseWriter){
		"body not json": func(w http.ResponseWriter) {
			_, _ = io.WriteString(w, "<html>gateway</html>")
		},
		"content not json": func(w http.ResponseWriter) {
			_ = json.NewEncoder(w).Encode(completionBody("I could not find any companies."))
		},
		"wrong shape": func(w http.ResponseWriter) {
			_ = json.NewEncoder(w).Encode(completionBody(`{"companies":"Acme"}`))
		},
		"empty content": func(w http.ResponseWriter) {
			_ = json.NewEncoder(w).Encode(completionBody(""))
		},
	}
	for name, respond := range tests {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				respond(w)
			}))
			defer server.Close()

			_, err := NewClient(Config{BaseURL: server.URL}).Analyze(context.Background(), acmeTranscript, "sk")
			if !errors.Is(err, services.ErrFormat) {
				t.Fatalf("expected ErrFormat, got %v", err)
			}
		})
	}
}

func TestAnalyzeToleratesCodeFenceAndLists(t *testing.T) {
	content := "```json\n{\"contextualAnalysis\":[\"First point\",\"Second point\"],\"companies\":[{\"name\":\" Acme Corp \"},{\"name\":\"acme corp\"},{\"name\":\"\"}],\"products\":[],\"relatedInfo\":null}\n```"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completionBody(content))
	}))
	defer server.Close()

	result, err := NewClient(Config{BaseURL: server.URL}).Analyze(context.Background(), acmeTranscript, "sk")
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if result.ContextualAnalysis != "First point\nSecond point" {
		t.Fatalf("unexpected overview %q", result.ContextualAnalysis)
	}
	if len(result.Companies) != 1 || result.Companies[0].Name != "Acme Corp" {
		t.Fatalf("expected deduplicated company, got %+v", result.Companies)
	}
	if result.RelatedInfo != "" || len(result.Products) != 0 {
		t.Fatalf("expected empty fields, got %+v", result)
	}
}

func TestAnalyzeEmptyResultIsValid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completionBody(`{"contextualAnalysis":"","companies":[],"products":[],"relatedInfo":""}`))
	}))
	defer server.Close()

	result, err := NewClient(Config{BaseURL: server.URL}).Analyze(context.Background(), "hello there", "sk")
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if !result.Empty() {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completionBody("```json\n{\"ok\":true}\n```"))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	if err := client.HealthCheck(context.Background(), "sk"); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
	if err := client.HealthCheck(context.Background(), ""); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestOpenAIAnalyzer(t *testing.T) {
	var path, auth string
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		resp := completionBody(acmeContent())
		resp["id"] = "chatcmpl-1"
		resp["object"] = "chat.completion"
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	analyzer := NewOpenAIAnalyzer(Config{BaseURL: server.URL + "/v1/chat/completions"})
	result, err := analyzer.Analyze(context.Background(), acmeTranscript, "sk-sdk")
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if path != "/v1/chat/completions" {
		t.Fatalf("unexpected path %q", path)
	}
	if auth != "Bearer sk-sdk" {
		t.Fatalf("unexpected authorization header %q", auth)
	}
	if temp, _ := body["temperature"].(float64); temp < 0.69 || temp > 0.71 {
		t.Fatalf("expected default temperature 0.7, got %v", body["temperature"])
	}
	if body["max_tokens"] != float64(500) {
		t.Fatalf("expected max_tokens 500, got %v", body["max_tokens"])
	}
	if format, _ := body["response_format"].(map[string]any); format["type"] != "json_object" {
		t.Fatalf("expected json_object response format, got %v", body["response_format"])
	}
	if len(result.Companies) != 1 || result.Companies[0].Name != "Acme Corp" {
		t.Fatalf("expected Acme Corp, got %+v", result.Companies)
	}
}

func TestOpenAIAnalyzerErrors(t *testing.T) {
	t.Run("non-2xx", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"error":{"message":"forbidden","type":"invalid_request_error"}}`)
		}))
		defer server.Close()

		_, err := NewOpenAIAnalyzer(Config{BaseURL: server.URL + "/v1"}).Analyze(context.Background(), acmeTranscript, "sk")
		if !errors.Is(err, services.ErrService) {
			t.Fatalf("expected ErrService, got %v", err)
		}
	})
	t.Run("malformed content", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(completionBody("not json"))
		}))
		defer server.Close()

		_, err := NewOpenAIAnalyzer(Config{BaseURL: server.URL + "/v1"}).Analyze(context.Background(), acmeTranscript, "sk")
		if !errors.Is(err, services.ErrFormat) {
			t.Fatalf("expected ErrFormat, got %v", err)
		}
	})
}

func TestNewSelectsProvider(t *testing.T) {
	if _, ok := New(config.Analysis{Provider: "openai"}).(*OpenAIAnalyzer); !ok {
		t.Fatal("expected OpenAIAnalyzer for openai provider")
	}
	if _, ok := New(config.Analysis{Provider: "http"}).(*Client); !ok {
		t.Fatal("expected Client for http provider")
	}
}

func TestDecodeLLMJSONProse(t *testing.T) {
	var out struct {
		OK bool `json:"ok"`
	}
	if err := DecodeLLMJSON("Sure! Here you go: {\"ok\":true} Hope that helps.", &out); err != nil {
		t.Fatalf("DecodeLLMJSON returned error: %v", err)
	}
	if !out.OK {
		t.Fatal("expected ok=true")
	}
	if err := DecodeLLMJSON("   ", &out); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestTemperatureDefaultsAndOverrides(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want float64
	}{
		{"unset uses default", Config{}, DefaultTemperature},
		{"explicit zero kept", Config{Temperature: Float64(0)}, 0},
		{"explicit value kept", Config{Temperature: Float64(1.2)}, 1.2},
		{"from settings", ConfigFromSettings(config.Analysis{Temperature: 0.3}), 0.3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured chatCompletionRequest
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewDecoder(r.Body).Decode(&captured)
				_ = json.NewEncoder(w).Encode(completionBody(acmeContent()))
			}))
			defer server.Close()

			cfg := tc.cfg
			cfg.BaseURL = server.URL
			if _, err := NewClient(cfg).Analyze(context.Background(), acmeTranscript, "sk"); err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			if captured.Temperature != tc.want {
				t.Fatalf("expected temperature %v, got %v", tc.want, captured.Temperature)
			}
		})
	}
}
