// Package glossary loads reference terminology that is injected into
// translation prompts.
package glossary

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// Entry is one glossary term and its preferred rendering.
type Entry struct {
	Term      string
	Rendering string
}

// Glossary combines an optional CSV file with inline entries. The file is
// re-read on every call so operator edits apply to the next prompt.
type Glossary struct {
	path   string
	inline []Entry
}

// New returns a Glossary reading path (may be empty) followed by inline.
func New(path string, inline []Entry) *Glossary {
	return &Glossary{path: path, inline: inline}
}

// Entries returns the CSV entries followed by the inline ones. A missing file
// contributes nothing.
func (g *Glossary) Entries() ([]Entry, error) {
	var out []Entry
	if g.path != "" {
		f, err := os.Open(g.path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("glossary: open %q: %w", g.path, err)
		default:
			entries, err := Parse(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("glossary: parse %q: %w", g.path, err)
			}
			out = append(out, entries...)
		}
	}
	return append(out, g.inline...), nil
}

// Parse reads two-column CSV rows. Lines starting with '#' are comments and a
// leading "term,rendering" header row is skipped.
func Parse(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []Entry
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if len(rec) < 2 {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: want 2 columns, got %d", line, len(rec))
		}
		term, rendering := strings.TrimSpace(rec[0]), strings.TrimSpace(rec[1])
		if len(out) == 0 && strings.EqualFold(term, "term") && strings.EqualFold(rendering, "rendering") {
			continue
		}
		out = append(out, Entry{Term: term, Rendering: rendering})
	}
}
