// Package presenter turns session state into HTML: the login form and the
// three-column chat page.
package presenter

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"log"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/markdave123-py/kbchat/internal/models"
)

// SourceTabCount is the fixed number of "Source N" tabs under an answer.
const SourceTabCount = 3

const (
	Title            = "GenAI EPAluator"
	ChatPlaceholder  = "What is up?"
	LoginFailedText  = "User not known or password incorrect"
	TryAgainText     = "Something went wrong while answering, please try again."
	TooManyLoginText = "Too many login attempts, please wait a minute."
)

//go:embed templates/*.html
var templateFS embed.FS

type SourceTab struct {
	Label   string
	Content template.HTML
}

type TurnView struct {
	Role    models.Role
	Content template.HTML
}

type LoginView struct {
	Title string
	Error string
}

type PageView struct {
	Title          string
	Banner         string
	DocumentsError string
	Documents      []models.SignedLink
	Transcript     []TurnView
	ShowSources    bool
	Tabs           [SourceTabCount]SourceTab
	References     []models.SignedLink
	Placeholder    string
}

// DocumentHeading is the left panel title, e.g. "3 Documents:".
func (p PageView) DocumentHeading() string {
	return fmt.Sprintf("%d Documents:", len(p.Documents))
}

type Renderer struct {
	tmpl *template.Template
	md   goldmark.Markdown
}

func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	// Raw HTML in model output is dropped by goldmark's default renderer.
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	return &Renderer{tmpl: tmpl, md: md}, nil
}

// Markdown renders model or passage text. On a conversion error the text is
// shown escaped instead.
func (r *Renderer) Markdown(src string) template.HTML {
	if src == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		log.Printf("markdown render: %v", err)
		return template.HTML("<p>" + template.HTMLEscapeString(src) + "</p>")
	}
	return template.HTML(buf.String())
}

// SourceTabs fills tab N with the Nth reference's content. Tabs past the
// available references, or whose reference has no content, stay empty.
func (r *Renderer) SourceTabs(refs []models.Reference) [SourceTabCount]SourceTab {
	var tabs [SourceTabCount]SourceTab
	for i := range tabs {
		tabs[i].Label = fmt.Sprintf("Source %d", i+1)
		if i < len(refs) && refs[i].Content != "" {
			tabs[i].Content = r.Markdown(refs[i].Content)
		}
	}
	return tabs
}

// Page builds the view for an authenticated session.
func (r *Renderer) Page(sess *models.Session, docs []models.SignedLink, docsErr error, refs []models.SignedLink, banner string) PageView {
	v := PageView{
		Title:       Title,
		Banner:      banner,
		Documents:   docs,
		References:  refs,
		Placeholder: ChatPlaceholder,
	}
	if docsErr != nil {
		v.DocumentsError = "Could not list documents: " + docsErr.Error()
	}
	for _, t := range sess.Messages {
		v.Transcript = append(v.Transcript, TurnView{Role: t.Role, Content: r.Markdown(t.Content)})
	}
	if sess.LastExchange != nil {
		v.ShowSources = true
		v.Tabs = r.SourceTabs(sess.LastExchange.References)
	}
	return v
}

func (r *Renderer) RenderPage(w io.Writer, v PageView) error {
	return r.tmpl.ExecuteTemplate(w, "page.html", v)
}

func (r *Renderer) RenderLogin(w io.Writer, v LoginView) error {
	if v.Title == "" {
		v.Title = Title
	}
	return r.tmpl.ExecuteTemplate(w, "login.html", v)
}
