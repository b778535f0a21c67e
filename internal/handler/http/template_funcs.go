package httphandler

import (
	"html/template"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// TemplateFuncs returns the custom template functions for HTML templates.
func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		// Time formatting
		"formatDate":     formatDate,
		"formatDateTime": formatDateTime,

		// String helpers
		"truncate": truncate,
		"lower":    strings.ToLower,
		"upper":    strings.ToUpper,
		"join":     strings.Join,
		"initials": initials,

		// Collection helpers
		"hasInt":    slices.Contains[[]int, int],
		"hasString": slices.Contains[[]string, string],
		"dict":      dict,
		"list":      list,

		// Conditional helpers
		"default": defaultValue,
	}
}

// Time formatting functions

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 2, 2006")
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 2, 2006 15:04")
}

// String helpers

const ellipsis = "..."

func truncate(n int, s string) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	if n <= len(ellipsis) {
		return string(runes[:n])
	}
	return string(runes[:n-len(ellipsis)]) + ellipsis
}

func initials(name string) string {
	const maxInitials = 2
	var b strings.Builder
	for i, word := range strings.Fields(name) {
		if i == maxInitials {
			break
		}
		r, _ := utf8.DecodeRuneInString(word)
		b.WriteString(strings.ToUpper(string(r)))
	}
	return b.String()
}

// Collection helpers

func dict(pairs ...any) map[string]any {
	m := make(map[string]any, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		if key, ok := pairs[i].(string); ok {
			m[key] = pairs[i+1]
		}
	}
	return m
}

func list(items ...any) []any {
	return items
}

func defaultValue(def, val any) any {
	if val == nil {
		return def
	}
	if s, ok := val.(string); ok && s == "" {
		return def
	}
	return val
}
