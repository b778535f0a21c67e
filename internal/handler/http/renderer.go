package httphandler

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
)

// Template layout of the filesystem given to the renderer.
const (
	layoutGlob   = "templates/layout/*.html"
	partialsGlob = "templates/partials/*.html"
	pagesGlob    = "templates/pages/*.html"

	baseTemplate = "base"
)

// ErrTemplateNotFound is returned when neither a page nor a partial has the name.
var ErrTemplateNotFound = errors.New("template not found")

// TemplateRenderer implements echo.Renderer for HTML template rendering.
//
// Every page is parsed into its own clone of the layout and partials, so
// pages may each define "content". Names ending in .html render a page through
// the layout; any other name renders a partial.
type TemplateRenderer struct {
	mu       sync.RWMutex
	pages    map[string]*template.Template
	logger   *slog.Logger
	devMode  bool
	fsys     fs.FS
	funcs    template.FuncMap
	partials *template.Template
}

// TemplateRendererConfig holds configuration for the template renderer.
type TemplateRendererConfig struct {
	// FS contains the templates directory.
	FS fs.FS
	// Logger is the structured logger.
	Logger *slog.Logger
	// DevMode enables template reloading on each request.
	DevMode bool
}

// NewTemplateRenderer parses all templates.
func NewTemplateRenderer(cfg TemplateRendererConfig) (*TemplateRenderer, error) {
	r := &TemplateRenderer{
		logger:  cfg.Logger,
		devMode: cfg.DevMode,
		fsys:    cfg.FS,
		funcs:   TemplateFuncs(),
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	if err := r.loadTemplates(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *TemplateRenderer) loadTemplates() error {
	shared := template.New("").Funcs(r.funcs)
	for _, glob := range []string{layoutGlob, partialsGlob} {
		var err error
		shared, err = parseGlob(shared, r.fsys, glob)
		if err != nil {
			return err
		}
	}

	pageFiles, err := fs.Glob(r.fsys, pagesGlob)
	if err != nil {
		return fmt.Errorf("glob pages: %w", err)
	}

	pages := make(map[string]*template.Template, len(pageFiles))
	for _, file := range pageFiles {
		clone, cloneErr := shared.Clone()
		if cloneErr != nil {
			return fmt.Errorf("clone layout for %s: %w", file, cloneErr)
		}
		content, readErr := fs.ReadFile(r.fsys, file)
		if readErr != nil {
			return fmt.Errorf("read %s: %w", file, readErr)
		}
		name := strings.TrimPrefix(file, "templates/")
		if _, parseErr := clone.New(name).Parse(string(content)); parseErr != nil {
			r.logger.Error("failed to parse template",
				slog.String("path", file),
				slog.String("error", parseErr.Error()))
			return fmt.Errorf("parse %s: %w", file, parseErr)
		}
		pages[name] = clone
		r.logger.Debug("loaded template", slog.String("name", name))
	}

	// Partials execute on their own clone so the shared set stays clonable.
	partials, err := shared.Clone()
	if err != nil {
		return fmt.Errorf("clone partials: %w", err)
	}

	r.mu.Lock()
	r.pages = pages
	r.partials = partials
	r.mu.Unlock()
	return nil
}

func parseGlob(t *template.Template, fsys fs.FS, glob string) (*template.Template, error) {
	files, err := fs.Glob(fsys, glob)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", glob, err)
	}
	for _, file := range files {
		content, readErr := fs.ReadFile(fsys, file)
		if readErr != nil {
			return nil, fmt.Errorf("read %s: %w", file, readErr)
		}
		if _, parseErr := t.New(path.Base(file)).Parse(string(content)); parseErr != nil {
			return nil, fmt.Errorf("parse %s: %w", file, parseErr)
		}
	}
	return t, nil
}

// Render implements echo.Renderer.
func (r *TemplateRenderer) Render(w io.Writer, name string, data any, _ echo.Context) error {
	if r.devMode {
		if err := r.loadTemplates(); err != nil {
			r.logger.Error("failed to reload templates", slog.String("error", err.Error()))
			return fmt.Errorf("failed to reload templates: %w", err)
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if strings.HasSuffix(name, ".html") {
		page, ok := r.pages[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
		}
		return page.ExecuteTemplate(w, baseTemplate, data)
	}

	if r.partials.Lookup(name) == nil {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return r.partials.ExecuteTemplate(w, name, data)
}

// RenderString renders a partial into memory.
func (r *TemplateRenderer) RenderString(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf, name, data, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Pages lists the names of the loaded pages.
func (r *TemplateRenderer) Pages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.pages))
	for name := range r.pages {
		names = append(names, name)
	}
	return names
}
