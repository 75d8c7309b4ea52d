package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"MatrixConnectionRelay/internal/query"
)

//go:embed templates/index.html
var templatesFS embed.FS

// PageData fills the form template. Endpoint is where the form posts to.
type PageData struct {
	Title        string
	Placeholder  string
	ButtonText   string
	Endpoint     string
	EmptyMessage string
}

// DefaultPageData posts to "/", the same path that serves the page.
func DefaultPageData() PageData {
	return PageData{
		Title:        "The Matrix Connection",
		Placeholder:  "Ask the Matrix a question today!",
		ButtonText:   "Send now!",
		Endpoint:     "/",
		EmptyMessage: query.EmptyInputMessage,
	}
}

// Page serves the pre-rendered form.
type Page struct {
	html []byte
}

// NewPage renders the template once; the page has no per-request content.
func NewPage(data PageData) (*Page, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("web: parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("web: render template: %w", err)
	}
	return &Page{html: buf.Bytes()}, nil
}

func (p *Page) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(p.html)
}
