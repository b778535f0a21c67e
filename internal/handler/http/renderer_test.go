package httphandler_test

import (
	"bytes"
	"html/template"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/instwave/digest-web/internal/handler/http"
	"github.com/instwave/digest-web/web"
)

func TestTemplateRenderer_LoadsEmbeddedPages(t *testing.T) {
	r, err := httphandler.NewTemplateRenderer(httphandler.TemplateRendererConfig{FS: web.TemplatesFS})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"pages/admin.html",
		"pages/dashboard.html",
		"pages/digest.html",
		"pages/login.html",
		"pages/not_found.html",
		"pages/register.html",
		"pages/subscribe.html",
	}, r.Pages())
}

func TestTemplateRenderer_UnknownTemplate(t *testing.T) {
	r, err := httphandler.NewTemplateRenderer(httphandler.TemplateRendererConfig{FS: web.TemplatesFS})
	require.NoError(t, err)

	var buf bytes.Buffer
	err = r.Render(&buf, "pages/missing.html", httphandler.PageData{}, nil)
	require.ErrorIs(t, err, httphandler.ErrTemplateNotFound)

	_, err = r.RenderString("missing_partial", httphandler.PageData{})
	require.ErrorIs(t, err, httphandler.ErrTemplateNotFound)
}

func TestTemplateRenderer_PartialWithoutTranslator(t *testing.T) {
	r, err := httphandler.NewTemplateRenderer(httphandler.TemplateRendererConfig{FS: web.TemplatesFS})
	require.NoError(t, err)

	out, err := r.RenderString("toasts", httphandler.PageData{})
	require.NoError(t, err)
	assert.Contains(t, string(out), `id="toast-region"`)
}

func testTemplateFS(greeting string) fstest.MapFS {
	return fstest.MapFS{
		"templates/layout/base.html": {Data: []byte(
			`{{define "base"}}<main>{{template "content" .}}</main>{{end}}`)},
		"templates/partials/badge.html": {Data: []byte(
			`{{define "badge"}}<b>{{upper .}}</b>{{end}}`)},
		"templates/pages/home.html": {Data: []byte(
			`{{define "content"}}` + greeting + ` {{template "badge" .}}{{end}}`)},
		"templates/pages/about.html": {Data: []byte(
			`{{define "content"}}about {{.}}{{end}}`)},
	}
}

func TestTemplateRenderer_PagesHaveIsolatedContent(t *testing.T) {
	r, err := httphandler.NewTemplateRenderer(httphandler.TemplateRendererConfig{FS: testTemplateFS("hello")})
	require.NoError(t, err)

	home, err := r.RenderString("pages/home.html", "kim")
	require.NoError(t, err)
	assert.Equal(t, "<main>hello <b>KIM</b></main>", string(home))

	about, err := r.RenderString("pages/about.html", "kim")
	require.NoError(t, err)
	assert.Equal(t, "<main>about kim</main>", string(about))

	badge, err := r.RenderString("badge", "<x>")
	require.NoError(t, err)
	assert.Equal(t, "<b>&lt;X&gt;</b>", string(badge))
}

func TestTemplateRenderer_DevModeReloads(t *testing.T) {
	fsys := testTemplateFS("hello")
	r, err := httphandler.NewTemplateRenderer(httphandler.TemplateRendererConfig{FS: fsys, DevMode: true})
	require.NoError(t, err)

	fsys["templates/pages/home.html"] = &fstest.MapFile{Data: []byte(`{{define "content"}}reloaded{{end}}`)}

	out, err := r.RenderString("pages/home.html", nil)
	require.NoError(t, err)
	assert.Equal(t, "<main>reloaded</main>", string(out))
}

func TestTemplateRenderer_ParseError(t *testing.T) {
	fsys := testTemplateFS("hello")
	fsys["templates/pages/broken.html"] = &fstest.MapFile{Data: []byte(`{{define "content"}}{{.Oops`)}

	_, err := httphandler.NewTemplateRenderer(httphandler.TemplateRendererConfig{FS: fsys})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pages/broken.html")
}

func TestTemplateFuncs(t *testing.T) {
	funcs := httphandler.TemplateFuncs()
	exec := func(t *testing.T, text string, data any) string {
		t.Helper()
		tmpl, err := template.New("t").Funcs(funcs).Parse(text)
		require.NoError(t, err)
		var buf strings.Builder
		require.NoError(t, tmpl.Execute(&buf, data))
		return buf.String()
	}

	tests := []struct {
		name string
		text string
		data any
		want string
	}{
		{"initials", `{{initials .}}`, "Ada Byron King", "AB"},
		{"initials korean", `{{initials .}}`, "김 민준", "김민"},
		{"truncate short", `{{truncate 10 .}}`, "short", "short"},
		{"truncate long", `{{truncate 8 .}}`, "abcdefghijk", "abcde..."},
		{"join", `{{join . ", "}}`, []string{"AI", "ML"}, "AI, ML"},
		{"hasInt", `{{if hasInt . 2}}yes{{end}}`, []int{1, 2}, "yes"},
		{"hasString", `{{if hasString . "kakao"}}yes{{else}}no{{end}}`, []string{"email"}, "no"},
		{"default empty", `{{default "n/a" .}}`, "", "n/a"},
		{"default set", `{{default "n/a" .}}`, "value", "value"},
		{"dict", `{{with dict "a" 1 "b" 2}}{{.a}}{{.b}}{{end}}`, nil, "12"},
		{"formatDateTime", `{{formatDateTime .}}`, time.Date(2025, 6, 9, 8, 1, 0, 0, time.UTC), "Jun 9, 2025 08:01"},
		{"formatDate zero", `{{formatDate .}}`, time.Time{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exec(t, tt.text, tt.data))
		})
	}
}
