package handlers

import (
	"html/template"
	"net/http"
)

var docsPage = template.Must(template.New("docs").Parse(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>{{.Title}}</title>
    <link href="https://unpkg.com/@stoplight/elements@8/styles.min.css" rel="stylesheet" />
    <script src="https://unpkg.com/@stoplight/elements@8/web-components.min.js" crossorigin="anonymous"></script>
  </head>
  <body style="height: 100vh; margin: 0;">
    <elements-api apiDescriptionUrl="{{.SpecPath}}" router="hash" layout="sidebar" tryItCredentialsPolicy="same-origin" />
  </body>
</html>
`))

// DocsHandler serves an OpenAPI browser for the operator API.
type DocsHandler struct {
	Title    string
	SpecPath string
}

// NewDocsHandler creates a documentation handler reading the OpenAPI document at specPath.
func NewDocsHandler(title, specPath string) *DocsHandler {
	return &DocsHandler{Title: title, SpecPath: specPath}
}

// ServeHTTP renders the documentation page.
func (h *DocsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := docsPage.Execute(w, h); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
