// Package memory persists accepted translations and replays them as prompt
// context.
//
// Three on-disk encodings are supported: a labeled plain-text log, a YAML list
// and a TMX 1.4 document. All of them are append-only from the caller's point
// of view; records are never updated, deduplicated or deleted.
//
// Stores do not lock. The server assumes a single operator and a single
// process; two writers racing on the same file can lose or interleave records.
package memory

import (
	"errors"
	"fmt"
	"strings"
)

// Format names an on-disk encoding.
type Format string

const (
	FormatText Format = "text"
	FormatYAML Format = "yaml"
	FormatTMX  Format = "tmx"
)

// ErrNotFound is returned by LoadAll when the backing file does not exist.
var ErrNotFound = errors.New("memory: store not found")

// ErrMalformed is wrapped into a StoreError when an existing document cannot
// be appended to without rewriting it.
var ErrMalformed = errors.New("memory: malformed document")

// Record is one accepted translation.
type Record struct {
	Original    string
	Translation string
	SourceLang  string
	TargetLang  string
}

// Store is an append-only translation memory.
type Store interface {
	// Append durably adds rec.
	Append(rec Record) error

	// LoadAll returns every record in insertion order. It returns an error
	// matching ErrNotFound when the backing file does not exist.
	LoadAll() ([]Record, error)

	// RenderContext returns the text block prepended to prompts. An empty or
	// missing store renders as the empty string.
	RenderContext() (string, error)

	// Path returns the backing file location.
	Path() string

	// Format returns the encoding of the backing file.
	Format() Format
}

// StoreError describes a failed file operation on a store.
type StoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("memory: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Options configures [Open].
type Options struct {
	Format Format
	Path   string

	// Labels enables the "Original:"/"Translation:" labels of the text format.
	Labels bool

	// SourceLang and TargetLang are recorded for every record in the text and
	// YAML formats, and written as the fixed tuv tags in the TMX format.
	SourceLang string
	TargetLang string
}

// Open returns the Store variant selected by opts.Format.
func Open(opts Options) (Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("memory: path must not be empty")
	}
	switch opts.Format {
	case FormatText, "":
		return NewTextStore(opts.Path, opts.Labels, opts.SourceLang, opts.TargetLang), nil
	case FormatYAML:
		return NewYAMLStore(opts.Path, opts.SourceLang, opts.TargetLang), nil
	case FormatTMX:
		return NewTMXStore(opts.Path, opts.SourceLang, opts.TargetLang), nil
	default:
		return nil, fmt.Errorf("memory: unknown format %q", opts.Format)
	}
}

// renderLabeled formats records the way the labeled text log stores them.
func renderLabeled(recs []Record) string {
	var b strings.Builder
	for _, r := range recs {
		b.WriteString("Original: ")
		b.WriteString(r.Original)
		b.WriteString("\nTranslation: ")
		b.WriteString(r.Translation)
		b.WriteString("\n\n")
	}
	return b.String()
}
