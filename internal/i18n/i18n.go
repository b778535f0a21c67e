// Package i18n translates UI strings into English and Korean and picks the
// language for a request.
package i18n

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

// Supported languages.
const (
	English = "en"
	Korean  = "ko"
)

const (
	// LangParam is the query parameter used to select a language.
	LangParam = "lang"
	// LangCookieName stores the selected language.
	LangCookieName = "lang"

	cookieMaxAge = 365 * 24 * time.Hour
)

//go:embed locales/*.yaml
var localesFS embed.FS

// ErrUnknownLocale is returned when a catalog file names an unsupported locale.
var ErrUnknownLocale = errors.New("unknown locale")

var supportedTags = []language.Tag{language.English, language.Korean}

type localeFile struct {
	Locale   string            `yaml:"locale"`
	Messages map[string]string `yaml:"messages"`
}

// Translator looks up translated strings by key.
type Translator struct {
	fallback string
	matcher  language.Matcher
	printers map[string]*message.Printer
	keys     map[string]map[string]struct{}
}

// New loads the embedded catalogs. fallback is used when a request carries no
// usable language hint.
func New(fallback string) (*Translator, error) {
	return NewFromFS(localesFS, fallback)
}

// NewFromFS loads locales/*.yaml from fsys.
func NewFromFS(fsys fs.FS, fallback string) (*Translator, error) {
	paths, err := fs.Glob(fsys, "locales/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	sort.Strings(paths)

	builder := catalog.NewBuilder()
	keys := make(map[string]map[string]struct{})

	for _, path := range paths {
		data, readErr := fs.ReadFile(fsys, path)
		if readErr != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, readErr)
		}
		var file localeFile
		if unmarshalErr := yaml.Unmarshal(data, &file); unmarshalErr != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", path, unmarshalErr)
		}
		tag, ok := tagFor(file.Locale)
		if !ok {
			return nil, fmt.Errorf("%w: %q in %s", ErrUnknownLocale, file.Locale, path)
		}

		known := make(map[string]struct{}, len(file.Messages))
		for key, value := range file.Messages {
			if value == "" {
				continue
			}
			// Messages are format strings; no catalog entry takes arguments.
			if setErr := builder.SetString(tag, key, strings.ReplaceAll(value, "%", "%%")); setErr != nil {
				return nil, fmt.Errorf("register %s/%s: %w", file.Locale, key, setErr)
			}
			known[key] = struct{}{}
		}
		keys[file.Locale] = known
	}

	printers := make(map[string]*message.Printer, len(supportedTags))
	for _, tag := range supportedTags {
		printers[codeFor(tag)] = message.NewPrinter(tag, message.Catalog(builder))
	}

	return &Translator{
		fallback: Normalize(fallback),
		matcher:  language.NewMatcher(supportedTags),
		printers: printers,
		keys:     keys,
	}, nil
}

// T returns the translation of key in lang, or key itself when missing.
func (t *Translator) T(lang, key string) string {
	if _, ok := t.keys[lang][key]; !ok {
		return key
	}
	return t.printers[lang].Sprintf(key)
}

// Func returns T bound to lang, for use in templates.
func (t *Translator) Func(lang string) func(string) string {
	return func(key string) string {
		return t.T(lang, key)
	}
}

// Has reports whether lang defines key.
func (t *Translator) Has(lang, key string) bool {
	_, ok := t.keys[lang][key]
	return ok
}

// Resolve picks the language for r: the lang query parameter, then the
// language cookie, then preferred (the language stored with the session),
// then Accept-Language, then the fallback.
// The bool reports whether the choice came from the query and should be persisted.
func (t *Translator) Resolve(r *http.Request, preferred string) (string, bool) {
	if r == nil {
		return t.fallback, false
	}

	if v := strings.TrimSpace(r.URL.Query().Get(LangParam)); v != "" {
		if lang, ok := Parse(v); ok {
			return lang, true
		}
	}

	if cookie, err := r.Cookie(LangCookieName); err == nil {
		if lang, ok := Parse(cookie.Value); ok {
			return lang, false
		}
	}

	if preferred != "" {
		if lang, ok := Parse(preferred); ok {
			return lang, false
		}
	}

	if accept := strings.TrimSpace(r.Header.Get("Accept-Language")); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
			_, idx, confidence := t.matcher.Match(tags...)
			if confidence != language.No {
				return codeFor(supportedTags[idx]), false
			}
		}
	}

	return t.fallback, false
}

// SetCookie persists the selected language on the response.
func SetCookie(w http.ResponseWriter, lang string) {
	http.SetCookie(w, &http.Cookie{
		Name:     LangCookieName,
		Value:    Normalize(lang),
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		SameSite: http.SameSiteLaxMode,
	})
}

// Parse maps a language tag such as "ko-KR" onto a supported language code.
func Parse(value string) (string, bool) {
	tag, err := language.Parse(strings.TrimSpace(value))
	if err != nil {
		return "", false
	}
	return codeFor(tag), isSupported(tag)
}

// Normalize coerces unknown values to English.
func Normalize(value string) string {
	if lang, ok := Parse(value); ok {
		return lang
	}
	return English
}

// Supported returns the supported language codes.
func Supported() []string {
	return []string{English, Korean}
}

func tagFor(code string) (language.Tag, bool) {
	tag, err := language.Parse(code)
	if err != nil || !isSupported(tag) {
		return language.Und, false
	}
	return tag, true
}

func isSupported(tag language.Tag) bool {
	base, _ := tag.Base()
	return base.String() == English || base.String() == Korean
}

func codeFor(tag language.Tag) string {
	base, _ := tag.Base()
	if base.String() == Korean {
		return Korean
	}
	return English
}
