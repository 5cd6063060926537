// Command tmassist serves the translation-memory assistant: a small web page
// that asks a language model for alternative renderings of each sentence of a
// source document and records the accepted ones.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MrWong99/tmassist/internal/app"
	"github.com/MrWong99/tmassist/internal/config"
	"github.com/MrWong99/tmassist/internal/observe"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCommand()
	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "tmassist: %v\n", err)
		return 1
	}
	return 0
}

// flags holds values shared by every subcommand.
type flags struct {
	configPath string
	// explicitConfig reports whether --config was given on the command line.
	explicitConfig bool
	v              *viper.Viper
}

// ── Commands ──────────────────────────────────────────────────────────────────

func newRootCommand() *cobra.Command {
	f := &flags{v: config.NewViper()}

	root := &cobra.Command{
		Use:   "tmassist",
		Short: "Translation-memory assistant backed by large language models",
		Long: `tmassist walks through a source document sentence by sentence, asks a
language model for four alternative translations of each and stores the
accepted translation in a translation memory that feeds later prompts.

Examples:
  tmassist                         # serve the editing page (default)
  tmassist serve --listen :8080    # serve on another address
  tmassist models                  # list models of the primary provider
  tmassist memory list             # print the stored translations`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if fl := cmd.Flag("config"); fl != nil {
				f.explicitConfig = fl.Changed
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), f)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "config.yaml", "path to the YAML configuration file")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.String("primary-model", "", "model id of the primary slot")
	pf.String("fallback-model", "", "model id of the fallback slot")
	pf.String("memory-format", "", "translation memory format: text, yaml or tmx")
	pf.String("memory-path", "", "translation memory file")
	pf.String("source", "", "source document: a local text file or an http(s) URL")
	_ = f.v.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = f.v.BindPFlag("primary.model", pf.Lookup("primary-model"))
	_ = f.v.BindPFlag("fallback.model", pf.Lookup("fallback-model"))
	_ = f.v.BindPFlag("memory.format", pf.Lookup("memory-format"))
	_ = f.v.BindPFlag("memory.path", pf.Lookup("memory-path"))
	_ = f.v.BindPFlag("source.path", pf.Lookup("source"))

	root.AddCommand(newServeCommand(f), newModelsCommand(f), newMemoryCommand(f))
	return root
}

func newServeCommand(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the translation editing page and its JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), f)
		},
	}
	cmd.Flags().String("listen", "", "TCP listen address (default :5001)")
	_ = f.v.BindPFlag("listen_addr", cmd.Flags().Lookup("listen"))
	return cmd
}

// ── Serve ─────────────────────────────────────────────────────────────────────

func serve(ctx context.Context, f *flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("tmassist starting",
		"version", version,
		"config", f.configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(tctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		return err
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		return err
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("goodbye")
	return nil
}

// ── Configuration ─────────────────────────────────────────────────────────────

// loadConfig reads the config file, overlays TMASSIST_* environment
// variables and bound flags, then applies defaults and validates. A missing
// file is only an error when --config was given explicitly.
func loadConfig(f *flags) (*config.Config, error) {
	cfg := &config.Config{}
	file, err := os.Open(f.configPath)
	switch {
	case err == nil:
		defer file.Close()
		cfg, err = config.Decode(file)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", f.configPath, err)
		}
	case errors.Is(err, os.ErrNotExist) && !f.explicitConfig:
		// Defaults plus environment.
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", f.configPath)
	default:
		return nil, fmt.Errorf("open config: %w", err)
	}

	config.ApplyOverrides(cfg, f.v)
	if err := config.Finalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       tmassist startup summary        ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Primary", slotLabel(cfg.Providers.Primary))
	printRow("Fallback", slotLabel(cfg.Providers.Fallback))
	printRow("Memory", string(cfg.Memory.Format)+" "+cfg.Memory.Path)
	printRow("Languages", cfg.Memory.SourceLang+" -> "+cfg.Memory.TargetLang)
	if cfg.Source.Path != "" {
		printRow("Source", cfg.Source.Path)
	} else {
		printRow("Source", "(none)")
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func slotLabel(e config.ProviderEntry) string {
	if e.Model == "" {
		return e.Name
	}
	return e.Name + " / " + e.Model
}

func printRow(label, value string) {
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}
