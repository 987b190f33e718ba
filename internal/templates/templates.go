// Package templates manages the embedded HTML pages of the verification flow
package templates

import (
	"embed"
	"html/template"
	"io"
)

//go:embed html/*.html
var content embed.FS

// Templates manages the HTML templates
type Templates struct {
	verify  *template.Template
	consent *template.Template
	done    *template.Template
	error   *template.Template
}

// Load parses all embedded HTML templates
func Load() (*Templates, error) {
	t := &Templates{}
	var err error

	if t.verify, err = template.ParseFS(content, "html/verify.html", "html/layout.html"); err != nil {
		return nil, err
	}
	if t.consent, err = template.ParseFS(content, "html/consent.html", "html/layout.html"); err != nil {
		return nil, err
	}
	if t.done, err = template.ParseFS(content, "html/done.html", "html/layout.html"); err != nil {
		return nil, err
	}
	if t.error, err = template.ParseFS(content, "html/error.html", "html/layout.html"); err != nil {
		return nil, err
	}

	return t, nil
}

// VerifyData holds data for the code entry page
type VerifyData struct {
	PrefilledCode string
	CSRFToken     string
	Error         string
}

// RenderVerify renders the code entry page
func (t *Templates) RenderVerify(w io.Writer, data VerifyData) error {
	return t.verify.ExecuteTemplate(w, "layout", data)
}

// ConsentData holds data for the approve/deny page
type ConsentData struct {
	ClientID  string
	Scopes    []string
	Username  string
	Ticket    string
	CSRFToken string
}

// RenderConsent renders the approve/deny page
func (t *Templates) RenderConsent(w io.Writer, data ConsentData) error {
	return t.consent.ExecuteTemplate(w, "layout", data)
}

// DoneData holds data for the terminal outcome page
type DoneData struct {
	Title   string
	Message string
}

// RenderDone renders the terminal outcome page
func (t *Templates) RenderDone(w io.Writer, data DoneData) error {
	return t.done.ExecuteTemplate(w, "layout", data)
}

// ErrorData holds data for the error page
type ErrorData struct {
	Title   string
	Message string
}

// RenderError renders the error page
func (t *Templates) RenderError(w io.Writer, data ErrorData) error {
	return t.error.ExecuteTemplate(w, "layout", data)
}
