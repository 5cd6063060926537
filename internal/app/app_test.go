package app_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/tmassist/internal/app"
	"github.com/MrWong99/tmassist/internal/config"
	"github.com/MrWong99/tmassist/internal/observe"
	"github.com/MrWong99/tmassist/pkg/provider/llm"
	llmmock "github.com/MrWong99/tmassist/pkg/provider/llm/mock"
)

// testConfig returns a defaulted config whose files live in a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Server: config.ServerConfig{ListenAddr: "127.0.0.1:0", LogLevel: config.LogInfo},
		Memory: config.MemoryConfig{Path: filepath.Join(dir, "translation.txt")},
		Prompt: config.PromptConfig{InstructionsPath: filepath.Join(dir, "instructions.txt")},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

// testProviders returns mock providers that answer with four candidates.
func testProviders() (*app.Providers, *llmmock.Provider) {
	primary := &llmmock.Provider{
		TokenCount:       50,
		CompleteResponse: &llm.CompletionResponse{Content: "```\n{\"translations\": [\"1\", \"2\", \"3\", \"4\"]}\n```"},
	}
	return &app.Providers{Primary: primary, Fallback: &llmmock.Provider{TokenCount: 50}}, primary
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()
	if _, err := app.New(context.Background(), testConfig(t), &app.Providers{}); err == nil {
		t.Fatal("New() error = nil, want error for missing providers")
	}
}

func TestNew_InvalidMemoryFormat(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Memory.Format = "csv"
	providers, _ := testProviders()
	if _, err := app.New(context.Background(), cfg, providers, app.WithMetrics(testMetrics(t))); err == nil {
		t.Fatal("New() error = nil, want error for unknown memory format")
	}
}

func TestHandler_Wiring(t *testing.T) {
	t.Parallel()

	providers, primary := testProviders()
	a, err := app.New(context.Background(), testConfig(t), providers,
		app.WithMetrics(testMetrics(t)),
		app.WithSentences([]string{"猿も木から落ちる。"}),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	h := a.Handler()

	tests := []struct {
		method, path, body string
		wantStatus         int
		wantBody           string
	}{
		{"GET", "/healthz", "", http.StatusOK, `"ok"`},
		{"GET", "/readyz", "", http.StatusOK, `"memory":"ok"`},
		{"GET", "/metrics", "", http.StatusOK, ""},
		{"GET", "/get_current_sentence", "", http.StatusOK, "猿も木から落ちる。"},
		{"POST", "/translate", `{"original_sentence":"猿も木から落ちる。"}`, http.StatusOK, `["1","2","3","4"]`},
		{"GET", "/", "", http.StatusOK, "gemini-2.0-flash-001"},
	}
	for _, tc := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body)))
		if rec.Code != tc.wantStatus {
			t.Errorf("%s %s status = %d, want %d", tc.method, tc.path, rec.Code, tc.wantStatus)
		}
		if !strings.Contains(rec.Body.String(), tc.wantBody) {
			t.Errorf("%s %s body = %s, want it to contain %s", tc.method, tc.path, rec.Body, tc.wantBody)
		}
		if rec.Header().Get("X-Correlation-ID") == "" {
			t.Errorf("%s %s: middleware did not set X-Correlation-ID", tc.method, tc.path)
		}
	}
	if primary.CompleteCallCount() != 1 {
		t.Errorf("primary completions = %d, want 1", primary.CompleteCallCount())
	}
}

func TestNew_LoadsSourceDocument(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Source.Path = filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(cfg.Source.Path, []byte("一つ目。二つ目！\n\n三つ目？"), 0o644); err != nil {
		t.Fatal(err)
	}
	providers, _ := testProviders()
	a, err := app.New(context.Background(), cfg, providers, app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/get_current_sentence", nil))
	var state struct {
		Sentence string `json:"sentence"`
		Total    int    `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&state); err != nil {
		t.Fatal(err)
	}
	if state.Total != 3 || state.Sentence != "一つ目。" {
		t.Errorf("state = %+v, want first of 3 sentences", state)
	}
}

func TestNew_MissingSourceDocument(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Source.Path = filepath.Join(t.TempDir(), "missing.txt")
	providers, _ := testProviders()
	if _, err := app.New(context.Background(), cfg, providers, app.WithMetrics(testMetrics(t))); err == nil {
		t.Fatal("New() error = nil, want error for missing source document")
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	providers, _ := testProviders()
	a, err := app.New(context.Background(), testConfig(t), providers,
		app.WithMetrics(testMetrics(t)),
		app.WithListener(ln),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	addrCtx, addrCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer addrCancel()
	addr := a.Addr(addrCtx)
	if addr == "" {
		t.Fatal("server did not report its address")
	}

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /healthz status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			t.Fatalf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return within 5s after context cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
}
