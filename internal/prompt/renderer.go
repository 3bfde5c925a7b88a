// Package prompt renders the instruction text sent to the language model.
//
// Templates are pongo2 (Django/Jinja-like) files. Every form template extends
// base.tpl, which lists the schema fields; forms override the "task" and
// "rules" blocks. Templates ship embedded in the binary and may be shadowed
// by files in an operator supplied directory.
package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"

	"github.com/tjfontaine/formflow/internal/schema"
)

//go:embed templates/*.tpl
var embedded embed.FS

const (
	// BaseTemplate is the generic template used by forms without their own.
	BaseTemplate = "base"

	extension = ".tpl"
)

// Template renders the prompt for one form. Render must be deterministic.
type Template interface {
	Render(s *schema.Schema, utterance string) (string, error)
}

// Option configures a Set.
type Option func(*config)

type config struct {
	dir string
}

// WithDir adds a directory whose templates take precedence over the
// embedded ones.
func WithDir(dir string) Option {
	return func(c *config) {
		c.dir = dir
	}
}

// Set loads and caches compiled templates.
type Set struct {
	set *pongo2.TemplateSet

	mu       sync.Mutex
	compiled map[string]*Renderer
}

// NewSet creates a template set over the embedded templates.
func NewSet(opts ...Option) (*Set, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	var loaders []pongo2.TemplateLoader
	if cfg.dir != "" {
		loader, err := pongo2.NewLocalFileSystemLoader(cfg.dir)
		if err != nil {
			return nil, fmt.Errorf("prompt: create local loader: %w", err)
		}
		loaders = append(loaders, loader)
	}
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		return nil, fmt.Errorf("prompt: open embedded templates: %w", err)
	}
	loaders = append(loaders, pongo2.NewFSLoader(sub))

	return &Set{
		set:      pongo2.NewSet("formflow", loaders...),
		compiled: make(map[string]*Renderer),
	}, nil
}

// Lookup returns the renderer for the named template, compiling it once.
func (s *Set) Lookup(name string) (*Renderer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.compiled[name]; ok {
		return r, nil
	}
	tpl, err := s.set.FromFile(name + extension)
	if err != nil {
		return nil, fmt.Errorf("prompt: load template %q: %w", name, err)
	}
	r := &Renderer{name: name, tpl: tpl}
	s.compiled[name] = r
	return r, nil
}

// MustLookup is like Lookup but panics on a missing or broken template.
func (s *Set) MustLookup(name string) *Renderer {
	r, err := s.Lookup(name)
	if err != nil {
		panic(err)
	}
	return r
}

// Renderer is a compiled template. It is safe for concurrent use.
type Renderer struct {
	name string
	tpl  *pongo2.Template
}

var _ Template = (*Renderer)(nil)

// Name returns the template name.
func (r *Renderer) Name() string { return r.name }

// Render executes the template for s and utterance.
func (r *Renderer) Render(s *schema.Schema, utterance string) (string, error) {
	var buf bytes.Buffer
	if err := r.tpl.ExecuteWriter(Context(s, utterance), &buf); err != nil {
		return "", fmt.Errorf("prompt: execute template %q: %w", r.name, err)
	}
	return strings.TrimSpace(buf.String()) + "\n", nil
}

type fieldView struct {
	Name        string
	Kind        string
	Description string
	Requirement string
	Default     string
	Options     []optionView
}

type optionView struct {
	Value string
	Label string
}

// Context builds the template variables: user_input, fields and keys.
func Context(s *schema.Schema, utterance string) pongo2.Context {
	fields := s.Fields()
	views := make([]fieldView, len(fields))
	keys := make([]string, len(fields))

	for i, f := range fields {
		v := fieldView{
			Name:        f.Name,
			Kind:        string(f.Kind),
			Description: f.Description,
			Requirement: f.Required.String(),
		}
		if f.HasDefault() {
			v.Default = formatValue(f.Default)
		}
		for _, o := range f.Options {
			v.Options = append(v.Options, optionView{Value: formatValue(o.Value), Label: o.Label})
		}
		views[i] = v
		keys[i] = `"` + f.Name + `"`
	}

	return pongo2.Context{
		"user_input": utterance,
		"fields":     views,
		"keys":       strings.Join(keys, ", "),
	}
}

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", v)
}
