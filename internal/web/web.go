// Package web serves the translation editing page and its JSON endpoints.
//
// Handlers are thin adapters: they decode the request, call into the prompt
// builder, model gateway, reply parser, translation memory or sentence
// cursor, and convert any error into a {"error": message} body whose status
// is chosen by [statusFor].
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"

	"github.com/MrWong99/tmassist/internal/cursor"
	"github.com/MrWong99/tmassist/internal/gateway"
	"github.com/MrWong99/tmassist/internal/memory"
	"github.com/MrWong99/tmassist/internal/observe"
	"github.com/MrWong99/tmassist/internal/reply"
)

//go:embed templates/index.html
var templates embed.FS

// maxBodyBytes caps request bodies; the largest legitimate body is an
// edited instruction file.
const maxBodyBytes = 1 << 20

// Translator produces raw model output for a prompt.
type Translator interface {
	Completion(ctx context.Context, prompt string, opts ...gateway.CallOption) (*gateway.Result, error)
}

// PromptBuilder assembles the prompt for a sentence.
type PromptBuilder interface {
	Build(sentence string, hint []string) (string, error)
}

// InstructionFile is the operator-editable part of the prompt.
type InstructionFile interface {
	Read() (string, error)
	Write(text string) error
}

// Deps are the collaborators a [Server] adapts to HTTP. All fields are
// required.
type Deps struct {
	Translator   Translator
	Builder      PromptBuilder
	Store        memory.Store
	Instructions InstructionFile
	Cursor       *cursor.Cursor
}

// PageInfo is rendered into the editing page.
type PageInfo struct {
	SourceLang string
	TargetLang string
	// Models lists the selectable model ids, primary first.
	Models []string
}

// Option configures a [Server].
type Option func(*Server)

// WithMetrics records translation outcomes to m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithPageInfo sets the languages and models shown on the editing page.
func WithPageInfo(info PageInfo) Option {
	return func(s *Server) { s.page = info }
}

// Server implements the HTTP endpoints.
type Server struct {
	deps    Deps
	metrics *observe.Metrics
	page    PageInfo
	tmpl    *template.Template
}

// New validates deps and parses the embedded page template.
func New(deps Deps, opts ...Option) (*Server, error) {
	var errs []error
	if deps.Translator == nil {
		errs = append(errs, errors.New("translator is nil"))
	}
	if deps.Builder == nil {
		errs = append(errs, errors.New("prompt builder is nil"))
	}
	if deps.Store == nil {
		errs = append(errs, errors.New("store is nil"))
	}
	if deps.Instructions == nil {
		errs = append(errs, errors.New("instructions are nil"))
	}
	if deps.Cursor == nil {
		errs = append(errs, errors.New("cursor is nil"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("web: %w", err)
	}

	tmpl, err := template.ParseFS(templates, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("web: parse template: %w", err)
	}
	s := &Server{deps: deps, tmpl: tmpl}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s, nil
}

// Register adds every route to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.index)

	mux.HandleFunc("GET /get_current_sentence", s.cursorHandler((*cursor.Cursor).Current))
	mux.HandleFunc("POST /next_sentence", s.cursorHandler((*cursor.Cursor).Next))
	mux.HandleFunc("POST /previous_sentence", s.cursorHandler((*cursor.Cursor).Previous))
	mux.HandleFunc("POST /reset_cursor", s.cursorHandler((*cursor.Cursor).Reset))

	mux.HandleFunc("POST /translate", s.translate)
	mux.HandleFunc("POST /save_translation", s.saveTranslation)
	mux.HandleFunc("GET /get_translations", s.getTranslations)

	mux.HandleFunc("GET /get_prompt", s.getPrompt)
	mux.HandleFunc("POST /update_prompt", s.updatePrompt)
}

// ── Page ─────────────────────────────────────────────────────────────────────

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, s.page); err != nil {
		observe.Logger(r.Context()).Error("web: render page", "err", err)
	}
}

// ── Cursor ───────────────────────────────────────────────────────────────────

func (s *Server) cursorHandler(move func(*cursor.Cursor) cursor.State) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, move(s.deps.Cursor))
	}
}

// ── Translation ──────────────────────────────────────────────────────────────

type translateRequest struct {
	OriginalSentence  string            `json:"original_sentence"`
	SavedTranslations []json.RawMessage `json:"saved_translations"`
	Model             string            `json:"model"`
}

type translateResponse struct {
	Alternatives []string `json:"alternatives"`
	Model        string   `json:"model,omitempty"`
}

func (s *Server) translate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req translateRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, "translate", err)
		return
	}
	if req.OriginalSentence == "" {
		s.fail(w, r, "translate", missing("No sentence provided"))
		return
	}

	prompt, err := s.deps.Builder.Build(req.OriginalSentence, hintStrings(req.SavedTranslations))
	if err != nil {
		s.fail(w, r, "translate", err)
		return
	}

	var opts []gateway.CallOption
	if req.Model != "" {
		opts = append(opts, gateway.WithModel(req.Model))
	}
	res, err := s.deps.Translator.Completion(ctx, prompt, opts...)
	if err != nil {
		s.fail(w, r, "translate", err)
		return
	}

	alternatives, err := reply.Parse(res.Text)
	if err != nil {
		s.fail(w, r, "translate", err)
		return
	}

	s.metrics.RecordTranslation(ctx, "ok")
	observe.Logger(ctx).Info("web: translated",
		"model", res.Model, "tokens", res.PromptTokens, "attempts", res.Attempts, "escalated", res.Escalated)
	writeJSON(w, http.StatusOK, translateResponse{Alternatives: alternatives, Model: res.Model})
}

// hintStrings flattens the client's saved translations into strings. Plain
// JSON strings are unquoted; anything else is kept as raw JSON text.
func hintStrings(raw []json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, m := range raw {
		var s string
		if err := json.Unmarshal(m, &s); err == nil {
			out = append(out, s)
			continue
		}
		out = append(out, string(m))
	}
	return out
}

// ── Memory ───────────────────────────────────────────────────────────────────

type saveRequest struct {
	OriginalSentence string `json:"original_sentence"`
	Translation      string `json:"translation"`
}

func (s *Server) saveTranslation(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, "save", err)
		return
	}
	if req.OriginalSentence == "" || req.Translation == "" {
		s.fail(w, r, "save", missing("Missing data"))
		return
	}

	err := s.deps.Store.Append(memory.Record{
		Original:    req.OriginalSentence,
		Translation: req.Translation,
	})
	if err != nil {
		s.fail(w, r, "save", err)
		return
	}
	s.metrics.RecordSaved(r.Context(), string(s.deps.Store.Format()))
	writeJSON(w, http.StatusOK, map[string]string{"success": "Translation saved successfully"})
}

type translationEntry struct {
	OriginalSentence   string `json:"original_sentence"`
	OriginalLanguage   string `json:"original_language"`
	TranslatedSentence string `json:"translated_sentence"`
	TranslatedLanguage string `json:"translated_language"`
}

func (s *Server) getTranslations(w http.ResponseWriter, r *http.Request) {
	recs, err := s.deps.Store.LoadAll()
	if err != nil {
		s.fail(w, r, "load", err)
		return
	}
	out := make([]translationEntry, len(recs))
	for i, rec := range recs {
		out[i] = translationEntry{
			OriginalSentence:   rec.Original,
			OriginalLanguage:   rec.SourceLang,
			TranslatedSentence: rec.Translation,
			TranslatedLanguage: rec.TargetLang,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// ── Instructions ─────────────────────────────────────────────────────────────

func (s *Server) getPrompt(w http.ResponseWriter, r *http.Request) {
	text, err := s.deps.Instructions.Read()
	if err != nil {
		s.fail(w, r, "read prompt", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"prompt": text})
}

type updatePromptRequest struct {
	Prompt *string `json:"prompt"`
}

func (s *Server) updatePrompt(w http.ResponseWriter, r *http.Request) {
	var req updatePromptRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, "update prompt", err)
		return
	}
	if req.Prompt == nil {
		s.fail(w, r, "update prompt", missing("No prompt provided"))
		return
	}
	if err := s.deps.Instructions.Write(*req.Prompt); err != nil {
		s.fail(w, r, "update prompt", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"success": "Prompt updated successfully"})
}

// ── Helpers ──────────────────────────────────────────────────────────────────

// decode reads a JSON body into v. Unknown fields are ignored; an empty or
// malformed body is reported as missing input.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return missing("Request body is empty")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return missing("Request body too large")
		}
		return missing("Invalid JSON: " + strings.TrimPrefix(err.Error(), "json: "))
	}
	return nil
}

// fail logs err and writes it as the response body.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	log := observe.Logger(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("web: "+op+" failed", "err", err)
	} else {
		log.Warn("web: "+op+" rejected", "status", status, "err", err)
	}
	if op == "translate" {
		s.metrics.RecordTranslation(r.Context(), outcome(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// outcome labels a failed translation for the translations counter.
func outcome(err error) string {
	switch {
	case errors.Is(err, ErrMissingInput):
		return "bad_request"
	case errors.Is(err, gateway.ErrUnknownModel):
		return "unknown_model"
	case errors.Is(err, gateway.ErrPromptTooLarge):
		return "too_large"
	case errors.Is(err, gateway.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, reply.ErrFormat):
		return "bad_reply"
	default:
		return "error"
	}
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}
