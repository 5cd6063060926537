// Package prompt assembles the translation prompt sent to the model.
//
// A prompt is rebuilt from disk for every request: the accumulated
// translation memory, the glossary and the operator's instruction file are
// all re-read, so edits take effect immediately.
package prompt

import (
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/MrWong99/tmassist/internal/glossary"
)

// ContextSource renders previously accepted translations.
type ContextSource interface {
	RenderContext() (string, error)
}

// GlossarySource yields reference terminology.
type GlossarySource interface {
	Entries() ([]glossary.Entry, error)
}

const promptTemplate = `{{.Context}}{{if .Glossary}}Reference glossary:
{{range .Glossary}}- {{.Term}}: {{.Rendering}}
{{end}}
{{end}}Considering the examples above, translate the following sentence into {{if .TargetLanguage}}{{.TargetLanguage}}, giving {{end}}4 different variations, showing subtle nuances where possible using a JSON blob inside a code block like the example below:
` + "```" + `
{
  "original_phrase": "The big red fox ate a steak at McDonalds.",
  "translations": [
      "A grande raposa vermelha comeu um bife no McDonald's.",
      "A raposa grande e ruiva comeu um bife no McDonald's.",
      "A raposa vermelha e grande devorou um filé no McDonald's.",
      "Uma raposa grande, de pelo avermelhado, comeu um bife no McDonald's."
  ]
}
` + "```" + `
{{if .Instructions}}
{{.Instructions}}
{{end}}

Original sentence: {{.Sentence}}


`

var tmpl = template.Must(template.New("prompt").Parse(promptTemplate))

type promptData struct {
	Context        string
	Glossary       []glossary.Entry
	TargetLanguage string
	Instructions   string
	Sentence       string
}

// Builder renders prompts from its collaborators. Glossary and instructions
// are optional.
type Builder struct {
	memory         ContextSource
	glossary       GlossarySource
	instructions   *Instructions
	targetLanguage string
}

// Option is a functional option for Builder.
type Option func(*Builder)

// WithGlossary adds a reference glossary block to every prompt.
func WithGlossary(g GlossarySource) Option {
	return func(b *Builder) { b.glossary = g }
}

// WithInstructions appends the contents of the operator instruction file.
func WithInstructions(in *Instructions) Option {
	return func(b *Builder) { b.instructions = in }
}

// WithTargetLanguage names the target language in the instruction sentence.
func WithTargetLanguage(lang string) Option {
	return func(b *Builder) { b.targetLanguage = lang }
}

// NewBuilder returns a Builder drawing context from memory.
func NewBuilder(memory ContextSource, opts ...Option) *Builder {
	b := &Builder{memory: memory}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build renders the prompt for sentence. The sentence is interpolated
// verbatim. hint carries translations the client believes are saved; the
// store on disk is authoritative, so hint is only logged.
func (b *Builder) Build(sentence string, hint []string) (string, error) {
	if len(hint) > 0 {
		slog.Debug("ignoring client-supplied translation hint", "count", len(hint))
	}

	data := promptData{Sentence: sentence, TargetLanguage: b.targetLanguage}

	ctx, err := b.memory.RenderContext()
	if err != nil {
		return "", fmt.Errorf("prompt: render memory: %w", err)
	}
	data.Context = ctx

	if b.glossary != nil {
		entries, err := b.glossary.Entries()
		if err != nil {
			return "", fmt.Errorf("prompt: load glossary: %w", err)
		}
		data.Glossary = entries
	}

	if b.instructions != nil {
		text, err := b.instructions.Read()
		if err != nil {
			return "", fmt.Errorf("prompt: read instructions: %w", err)
		}
		data.Instructions = strings.TrimSpace(text)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("prompt: execute template: %w", err)
	}
	return sb.String(), nil
}
