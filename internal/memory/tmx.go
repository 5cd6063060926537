package memory

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TMX header attributes written into synthesized documents.
const (
	tmxCreationTool        = "tmassist"
	tmxCreationToolVersion = "1.0"
	tmxVersion             = "1.4"
	tmxDataType            = "plaintext"
	tmxSegType             = "sentence"
	tmxAdminLang           = "en"
	tmxOTMF                = "tmassist"

	// tmxDateLayout is the TMX basic date format (ISO 8601, UTC).
	tmxDateLayout = "20060102T150405Z"

	tmxBodyClose = "</body>"
)

// TMXStore keeps the memory as a TMX 1.4 document. Units are inserted
// immediately before the last closing body tag so prior units are never
// touched.
//
// Both tuv tags are fixed from configuration. The target tag is not derived
// from the language a translation was actually written in.
type TMXStore struct {
	path       string
	sourceLang string
	targetLang string
	now        func() time.Time
	newID      func() string
}

// NewTMXStore returns a TMXStore backed by path.
func NewTMXStore(path, sourceLang, targetLang string) *TMXStore {
	return &TMXStore{
		path:       path,
		sourceLang: sourceLang,
		targetLang: targetLang,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

func (s *TMXStore) Path() string   { return s.path }
func (s *TMXStore) Format() Format { return FormatTMX }

// Append inserts a new translation unit. A missing file is created with a
// fresh header; an existing file without a closing body tag is rejected.
func (s *TMXStore) Append(rec Record) error {
	unit := s.renderUnit(rec)

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		data = []byte(s.renderDocument(unit))
	case err != nil:
		return &StoreError{Op: "append", Path: s.path, Err: err}
	default:
		idx := bytes.LastIndex(data, []byte(tmxBodyClose))
		if idx < 0 {
			return &StoreError{Op: "append", Path: s.path, Err: fmt.Errorf("%w: no %s tag", ErrMalformed, tmxBodyClose)}
		}
		// Insert at the start of the closing tag's line when only indentation
		// precedes it, keeping the document's layout.
		at := idx
		if ls := bytes.LastIndexByte(data[:idx], '\n') + 1; len(bytes.TrimSpace(data[ls:idx])) == 0 {
			at = ls
		} else {
			unit = "\n" + unit
		}
		var b bytes.Buffer
		b.Grow(len(data) + len(unit))
		b.Write(data[:at])
		b.WriteString(unit)
		b.Write(data[at:])
		data = b.Bytes()
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return &StoreError{Op: "append", Path: s.path, Err: err}
	}
	return nil
}

func (s *TMXStore) renderDocument(units string) string {
	var b strings.Builder
	b.WriteString(xml.Header)
	fmt.Fprintf(&b, "<tmx version=\"%s\">\n", tmxVersion)
	fmt.Fprintf(&b, "  <header creationtool=\"%s\" creationtoolversion=\"%s\" segtype=\"%s\" o-tmf=\"%s\" adminlang=\"%s\" srclang=\"%s\" datatype=\"%s\"/>\n",
		tmxCreationTool, tmxCreationToolVersion, tmxSegType, tmxOTMF, tmxAdminLang, escapeText(s.sourceLang), tmxDataType)
	b.WriteString("  <body>\n")
	b.WriteString(units)
	b.WriteString("  " + tmxBodyClose + "\n")
	b.WriteString("</tmx>\n")
	return b.String()
}

func (s *TMXStore) renderUnit(rec Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "    <tu tuid=\"%s\" creationdate=\"%s\">\n", s.newID(), s.now().UTC().Format(tmxDateLayout))
	fmt.Fprintf(&b, "      <tuv xml:lang=\"%s\"><seg>%s</seg></tuv>\n", escapeText(s.sourceLang), escapeText(rec.Original))
	fmt.Fprintf(&b, "      <tuv xml:lang=\"%s\"><seg>%s</seg></tuv>\n", escapeText(s.targetLang), escapeText(rec.Translation))
	b.WriteString("    </tu>\n")
	return b.String()
}

// tmxDocument mirrors the parts of a TMX file that LoadAll reads.
type tmxDocument struct {
	XMLName xml.Name  `xml:"tmx"`
	Units   []tmxUnit `xml:"body>tu"`
}

type tmxUnit struct {
	Variants []tmxVariant `xml:"tuv"`
}

type tmxVariant struct {
	Lang string `xml:"lang,attr"`
	Seg  string `xml:"seg"`
}

// LoadAll decodes the document. Within each unit the first tuv is the source
// and the second the target; language tags are reported as read.
func (s *TMXStore) LoadAll() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &StoreError{Op: "load", Path: s.path, Err: ErrNotFound}
	}
	if err != nil {
		return nil, &StoreError{Op: "load", Path: s.path, Err: err}
	}

	var doc tmxDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &StoreError{Op: "load", Path: s.path, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}

	recs := make([]Record, 0, len(doc.Units))
	for _, u := range doc.Units {
		var rec Record
		if len(u.Variants) > 0 {
			rec.Original = u.Variants[0].Seg
			rec.SourceLang = u.Variants[0].Lang
		}
		if len(u.Variants) > 1 {
			rec.Translation = u.Variants[1].Seg
			rec.TargetLang = u.Variants[1].Lang
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// RenderContext renders the units as labeled lines.
func (s *TMXStore) RenderContext() (string, error) {
	recs, err := s.LoadAll()
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return renderLabeled(recs), nil
}

func escapeText(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

var _ Store = (*TMXStore)(nil)
