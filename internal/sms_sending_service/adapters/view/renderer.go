// Package view renders message bodies from text/template files.
//
// A view named "reminders.appointment" lives at reminders/appointment.tmpl.
// When the context carries a locale, localized variants such as
// reminders/appointment.fr-CA.tmpl and reminders/appointment.fr.tmpl are
// tried first.
package view

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"sync"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/aradsms/textsms/internal/sms_sending_service/domain"
)

const Extension = ".tmpl"

var ErrTemplateNotFound = errors.New("sms template not found")

// Renderer loads templates lazily from fsys and caches the parsed result.
type Renderer struct {
	fsys   fs.FS
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]*template.Template
}

func NewRenderer(fsys fs.FS, logger *slog.Logger) *Renderer {
	return &Renderer{
		fsys:   fsys,
		logger: logger.With("component", "view_renderer"),
		cache:  make(map[string]*template.Template),
	}
}

// Render executes the most specific template available for the context
// locale. Surrounding whitespace is trimmed from the output.
func (r *Renderer) Render(ctx context.Context, name string, data map[string]any) (string, error) {
	for _, file := range candidates(name, domain.LocaleFromContext(ctx)) {
		tmpl, err := r.load(file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return "", fmt.Errorf("execute template %s: %w", file, err)
		}
		r.logger.DebugContext(ctx, "Rendered template", "view", name, "file", file)
		return strings.TrimSpace(buf.String()), nil
	}
	return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
}

// Flush drops every cached template.
func (r *Renderer) Flush() {
	r.mu.Lock()
	r.cache = make(map[string]*template.Template)
	r.mu.Unlock()
}

func (r *Renderer) load(file string) (*template.Template, error) {
	r.mu.RLock()
	tmpl, ok := r.cache[file]
	r.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	src, err := fs.ReadFile(r.fsys, file)
	if err != nil {
		return nil, err
	}
	tmpl, err = template.New(path.Base(file)).Funcs(funcs).Option("missingkey=zero").Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", file, err)
	}

	r.mu.Lock()
	r.cache[file] = tmpl
	r.mu.Unlock()
	return tmpl, nil
}

func candidates(name, locale string) []string {
	base := strings.ReplaceAll(strings.TrimSuffix(name, Extension), ".", "/")
	var files []string
	for _, l := range domain.LocaleFallbacks(locale) {
		files = append(files, base+"."+l+Extension)
	}
	return append(files, base+Extension)
}

var funcs = template.FuncMap{
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"title": func(s string) string { return cases.Title(language.Und).String(s) },
	"trim":  strings.TrimSpace,
	"default": func(fallback, value any) any {
		if value == nil {
			return fallback
		}
		if s, ok := value.(string); ok && s == "" {
			return fallback
		}
		return value
	},
}
