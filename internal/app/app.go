// Package app wires all tmassist subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// drains in-flight requests.
//
// For testing, inject collaborators via functional options (WithStore,
// WithSentences, WithMetrics). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/tmassist/internal/config"
	"github.com/MrWong99/tmassist/internal/cursor"
	"github.com/MrWong99/tmassist/internal/gateway"
	"github.com/MrWong99/tmassist/internal/glossary"
	"github.com/MrWong99/tmassist/internal/health"
	"github.com/MrWong99/tmassist/internal/memory"
	"github.com/MrWong99/tmassist/internal/observe"
	"github.com/MrWong99/tmassist/internal/prompt"
	"github.com/MrWong99/tmassist/internal/source"
	"github.com/MrWong99/tmassist/internal/web"
	"github.com/MrWong99/tmassist/pkg/provider/llm"
)

// Providers holds the backend for each model slot. Populated by main.go via
// the config registry.
type Providers struct {
	Primary  llm.Provider
	Fallback llm.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New.
	store        memory.Store
	instructions *prompt.Instructions
	builder      *prompt.Builder
	gateway      *gateway.Gateway
	cursor       *cursor.Cursor
	sentences    []string
	metrics      *observe.Metrics
	handler      http.Handler
	server       *http.Server

	// listener, when set, is used by Run instead of binding ListenAddr.
	listener net.Listener
	addr     chan string

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a translation-memory store instead of opening one from
// config.
func WithStore(s memory.Store) Option {
	return func(a *App) { a.store = s }
}

// WithSentences supplies the sentence list instead of loading source.path.
func WithSentences(sentences []string) Option {
	return func(a *App) { a.sentences = sentences }
}

// WithMetrics records to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithListener serves on l instead of binding cfg.Server.ListenAddr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// New creates an App from cfg. cfg must already be defaulted and validated.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Primary == nil || providers.Fallback == nil {
		return nil, errors.New("app: primary and fallback providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		addr:      make(chan string, 1),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initMemory(); err != nil {
		return nil, fmt.Errorf("app: init memory: %w", err)
	}
	a.initPrompt()
	if err := a.initGateway(); err != nil {
		return nil, fmt.Errorf("app: init gateway: %w", err)
	}
	if err := a.initCursor(ctx); err != nil {
		return nil, fmt.Errorf("app: init cursor: %w", err)
	}
	if err := a.initHTTP(); err != nil {
		return nil, fmt.Errorf("app: init http: %w", err)
	}
	return a, nil
}

func (a *App) initMemory() error {
	if a.store != nil {
		return nil
	}
	mc := a.cfg.Memory
	store, err := memory.Open(memory.Options{
		Format:     memory.Format(mc.Format),
		Path:       mc.Path,
		Labels:     mc.LabelsEnabled(),
		SourceLang: mc.SourceLang,
		TargetLang: mc.TargetLang,
	})
	if err != nil {
		return err
	}
	a.store = store
	slog.Info("translation memory ready", "format", store.Format(), "path", store.Path())
	return nil
}

func (a *App) initPrompt() {
	a.instructions = prompt.NewInstructions(a.cfg.Prompt.InstructionsPath)

	inline := make([]glossary.Entry, 0, len(a.cfg.Glossary.Reference))
	for _, t := range a.cfg.Glossary.Reference {
		inline = append(inline, glossary.Entry{Term: t.Term, Rendering: t.Rendering})
	}
	opts := []prompt.Option{prompt.WithInstructions(a.instructions)}
	if a.cfg.Glossary.Path != "" || len(inline) > 0 {
		opts = append(opts, prompt.WithGlossary(glossary.New(a.cfg.Glossary.Path, inline)))
	}
	if a.cfg.Prompt.TargetLanguage != "" {
		opts = append(opts, prompt.WithTargetLanguage(a.cfg.Prompt.TargetLanguage))
	}
	a.builder = prompt.NewBuilder(a.store, opts...)
}

func (a *App) initGateway() error {
	gc := a.cfg.Gateway
	opts := []gateway.Option{
		gateway.WithRetryDelay(gc.RetryDelay),
		gateway.WithRequestsPerMinute(gc.RequestsPerMinute),
		gateway.WithBreaker(gc.CircuitBreaker.MaxFailures, gc.CircuitBreaker.ResetTimeout),
		gateway.WithMetrics(a.metrics),
	}
	if gc.MaxRetries != nil {
		opts = append(opts, gateway.WithMaxRetries(*gc.MaxRetries))
	}

	p, f := a.cfg.Providers.Primary, a.cfg.Providers.Fallback
	gw, err := gateway.New(
		gateway.Model{Name: p.Model, Provider: a.providers.Primary, Budget: p.TokenBudget},
		gateway.Model{Name: f.Model, Provider: a.providers.Fallback, Budget: f.TokenBudget},
		opts...,
	)
	if err != nil {
		return err
	}
	a.gateway = gw
	return nil
}

func (a *App) initCursor(ctx context.Context) error {
	if a.sentences == nil && a.cfg.Source.Path != "" {
		sentences, err := source.NewLoader().Load(ctx, a.cfg.Source.Path)
		if err != nil {
			return err
		}
		a.sentences = sentences
		slog.Info("source document loaded", "location", a.cfg.Source.Path, "sentences", len(sentences))
	}
	a.cursor = cursor.New(a.sentences)
	return nil
}

func (a *App) initHTTP() error {
	primary, fallback := a.gateway.Models()
	srv, err := web.New(web.Deps{
		Translator:   a.gateway,
		Builder:      a.builder,
		Store:        a.store,
		Instructions: a.instructions,
		Cursor:       a.cursor,
	},
		web.WithMetrics(a.metrics),
		web.WithPageInfo(web.PageInfo{
			SourceLang: a.cfg.Memory.SourceLang,
			TargetLang: a.cfg.Memory.TargetLang,
			Models:     []string{primary.Name, fallback.Name},
		}),
	)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	srv.Register(mux)
	health.New(
		health.Writable("memory", a.store.Path()),
		health.Probe("gateway", a.gateway.Healthy),
	).Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler(nil))

	a.handler = observe.Middleware(a.metrics)(mux)
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if a.cfg.Server.TLS != nil {
		a.server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return nil
}

// Handler returns the fully wired HTTP handler, including middleware.
func (a *App) Handler() http.Handler { return a.handler }

// Addr blocks until Run has bound its listener and returns the address, or
// returns "" when ctx is done first.
func (a *App) Addr(ctx context.Context) string {
	select {
	case addr := <-a.addr:
		a.addr <- addr
		return addr
	case <-ctx.Done():
		return ""
	}
}

// Run serves HTTP and blocks until ctx is cancelled or the server fails.
// On cancellation the server is shut down gracefully and Run returns
// ctx.Err().
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.server.Addr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", a.server.Addr, err)
		}
	}
	a.addr <- ln.Addr().String()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tc := a.cfg.Server.TLS; tc != nil {
			err = a.server.ServeTLS(ln, tc.CertFile, tc.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Shutdown stops the HTTP server, waiting for in-flight requests until ctx
// expires. It is safe to call after Run has returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
			shutdownErr = err
			return
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
