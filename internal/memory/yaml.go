package memory

import (
	"errors"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlEntry is the on-disk shape of one YAML record.
type yamlEntry struct {
	Original    string `yaml:"original"`
	Translation string `yaml:"translation"`
}

// YAMLStore keeps the memory as a single YAML list. Every Append reads the
// whole document, appends in memory and rewrites the file.
type YAMLStore struct {
	path       string
	sourceLang string
	targetLang string
}

// NewYAMLStore returns a YAMLStore backed by path.
func NewYAMLStore(path, sourceLang, targetLang string) *YAMLStore {
	return &YAMLStore{path: path, sourceLang: sourceLang, targetLang: targetLang}
}

func (s *YAMLStore) Path() string   { return s.path }
func (s *YAMLStore) Format() Format { return FormatYAML }

func (s *YAMLStore) read() ([]yamlEntry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var entries []yamlEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Append rewrites the document with rec added at the end.
func (s *YAMLStore) Append(rec Record) error {
	entries, err := s.read()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &StoreError{Op: "append", Path: s.path, Err: err}
	}
	entries = append(entries, yamlEntry{Original: rec.Original, Translation: rec.Translation})

	data, err := yaml.Marshal(entries)
	if err != nil {
		return &StoreError{Op: "append", Path: s.path, Err: err}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return &StoreError{Op: "append", Path: s.path, Err: err}
	}
	return nil
}

// LoadAll returns the records in document order.
func (s *YAMLStore) LoadAll() ([]Record, error) {
	entries, err := s.read()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &StoreError{Op: "load", Path: s.path, Err: ErrNotFound}
	}
	if err != nil {
		return nil, &StoreError{Op: "load", Path: s.path, Err: err}
	}
	recs := make([]Record, 0, len(entries))
	for _, e := range entries {
		recs = append(recs, Record{
			Original:    e.Original,
			Translation: e.Translation,
			SourceLang:  s.sourceLang,
			TargetLang:  s.targetLang,
		})
	}
	return recs, nil
}

// RenderContext renders the records as labeled lines.
func (s *YAMLStore) RenderContext() (string, error) {
	recs, err := s.LoadAll()
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return renderLabeled(recs), nil
}

var _ Store = (*YAMLStore)(nil)
