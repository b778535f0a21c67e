// Package web embeds the digest front-end templates and static assets.
package web

import (
	"embed"
	"io/fs"
)

// TemplatesFS holds layout, partial and page templates under templates/.
//
//go:embed templates
var TemplatesFS embed.FS

// StaticFS holds the CSS and JavaScript served under /static.
//
//go:embed static
var StaticFS embed.FS

// Static returns StaticFS rooted at static/.
func Static() fs.FS {
	sub, err := fs.Sub(StaticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
