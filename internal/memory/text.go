package memory

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"strings"
)

const (
	labelOriginal    = "Original: "
	labelTranslation = "Translation: "
)

// TextStore is the plain-text log. With labels each record is written as
//
//	Original: <original>
//	Translation: <translation>
//	<blank line>
//
// and without labels as a single "<translation>" line.
type TextStore struct {
	path       string
	labels     bool
	sourceLang string
	targetLang string
}

// NewTextStore returns a TextStore backed by path.
func NewTextStore(path string, labels bool, sourceLang, targetLang string) *TextStore {
	return &TextStore{path: path, labels: labels, sourceLang: sourceLang, targetLang: targetLang}
}

func (s *TextStore) Path() string   { return s.path }
func (s *TextStore) Format() Format { return FormatText }

// Append writes rec with a single O_APPEND write.
func (s *TextStore) Append(rec Record) error {
	var entry string
	if s.labels {
		entry = labelOriginal + rec.Original + "\n" + labelTranslation + rec.Translation + "\n\n"
	} else {
		entry = rec.Translation + "\n"
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &StoreError{Op: "append", Path: s.path, Err: err}
	}
	if _, err := f.WriteString(entry); err != nil {
		f.Close()
		return &StoreError{Op: "append", Path: s.path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &StoreError{Op: "append", Path: s.path, Err: err}
	}
	return nil
}

// RenderContext returns the file contents verbatim.
func (s *TextStore) RenderContext() (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", &StoreError{Op: "read", Path: s.path, Err: err}
	}
	return string(data), nil
}

// LoadAll parses the log back into records. A labeled block runs from its
// "Original:" line to the next blank line; unlabeled lines inside it continue
// whichever field came last, so multi-line originals and translations come
// back whole. In unlabeled files every non-empty line outside a block is a
// translation with no original.
func (s *TextStore) LoadAll() ([]Record, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &StoreError{Op: "load", Path: s.path, Err: ErrNotFound}
	}
	if err != nil {
		return nil, &StoreError{Op: "load", Path: s.path, Err: err}
	}
	defer f.Close()

	p := &textParser{store: s}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		p.line(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, &StoreError{Op: "load", Path: s.path, Err: err}
	}
	p.flush()
	return p.recs, nil
}

// textField is the field a continuation line belongs to.
type textField int

const (
	fieldNone textField = iota
	fieldOriginal
	fieldTranslation
)

type textParser struct {
	store *TextStore
	recs  []Record
	cur   Record
	field textField
}

func (p *textParser) line(line string) {
	switch {
	case strings.HasPrefix(line, labelOriginal):
		p.flush()
		p.cur = Record{Original: strings.TrimPrefix(line, labelOriginal)}
		p.field = fieldOriginal
	case strings.HasPrefix(line, labelTranslation):
		if p.field != fieldOriginal {
			p.flush()
			p.cur = Record{}
		}
		p.cur.Translation = strings.TrimPrefix(line, labelTranslation)
		p.field = fieldTranslation
	case strings.TrimSpace(line) == "":
		if p.field == fieldOriginal {
			p.cur.Original += "\n"
			return
		}
		p.flush()
	case p.field == fieldOriginal:
		p.cur.Original += "\n" + line
	case p.field == fieldTranslation:
		p.cur.Translation += "\n" + line
	case !p.store.labels:
		p.recs = append(p.recs, p.store.tag(Record{Translation: line}))
	}
}

// flush emits the pending record once it has a translation. An original
// without a translation is dropped.
func (p *textParser) flush() {
	if p.field == fieldTranslation {
		p.recs = append(p.recs, p.store.tag(p.cur))
	}
	p.cur = Record{}
	p.field = fieldNone
}

func (s *TextStore) tag(r Record) Record {
	r.SourceLang = s.sourceLang
	r.TargetLang = s.targetLang
	return r
}

var _ Store = (*TextStore)(nil)
