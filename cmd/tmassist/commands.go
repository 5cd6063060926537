package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/tmassist/internal/config"
	"github.com/MrWong99/tmassist/internal/memory"
)

// ── models ────────────────────────────────────────────────────────────────────

func newModelsCommand(f *flags) *cobra.Command {
	var slot string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models available to a configured provider",
		Long: `models queries the provider of the primary (or, with --slot fallback, the
fallback) slot for the models its credentials can use. Gemini reports the
input token limit of each model, which is a good starting point for
token_budget.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			entry, err := slotEntry(cfg, slot)
			if err != nil {
				return err
			}

			reg := config.NewRegistry()
			registerBuiltinProviders(reg)
			lister, err := reg.CreateLister(entry)
			if err != nil {
				return fmt.Errorf("%s provider %q cannot list models: %w", slot, entry.Name, err)
			}
			models, err := lister.ListModels(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tINPUT TOKENS")
			for _, m := range models {
				limit := "-"
				if m.InputTokenLimit > 0 {
					limit = fmt.Sprint(m.InputTokenLimit)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", m.ID, m.DisplayName, limit)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&slot, "slot", "primary", "model slot whose provider is queried: primary or fallback")
	return cmd
}

func slotEntry(cfg *config.Config, slot string) (config.ProviderEntry, error) {
	switch slot {
	case "primary":
		return cfg.Providers.Primary, nil
	case "fallback":
		return cfg.Providers.Fallback, nil
	default:
		return config.ProviderEntry{}, fmt.Errorf("unknown slot %q (want primary or fallback)", slot)
	}
}

// ── memory ────────────────────────────────────────────────────────────────────

func newMemoryCommand(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect the translation memory",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print every stored translation in insertion order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			store, err := memory.Open(memory.Options{
				Format:     memory.Format(cfg.Memory.Format),
				Path:       cfg.Memory.Path,
				Labels:     cfg.Memory.LabelsEnabled(),
				SourceLang: cfg.Memory.SourceLang,
				TargetLang: cfg.Memory.TargetLang,
			})
			if err != nil {
				return err
			}
			return listMemory(cmd.OutOrStdout(), store)
		},
	})
	return cmd
}

func listMemory(w io.Writer, store memory.Store) error {
	recs, err := store.LoadAll()
	if errors.Is(err, memory.ErrNotFound) {
		fmt.Fprintf(w, "no translations stored yet in %s\n", store.Path())
		return nil
	}
	if err != nil {
		return err
	}
	for i, r := range recs {
		fmt.Fprintf(w, "%d. [%s] %s\n   [%s] %s\n", i+1, r.SourceLang, r.Original, r.TargetLang, r.Translation)
	}
	fmt.Fprintf(w, "%d translation(s) in %s (%s)\n", len(recs), store.Path(), store.Format())
	return nil
}
