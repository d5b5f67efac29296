// Package web holds the HTML templates compiled into the binary.
package web

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templates embed.FS

// Templates parses every page template. Templates are addressed by file name.
func Templates() (*template.Template, error) {
	return template.ParseFS(templates, "templates/*.html")
}
