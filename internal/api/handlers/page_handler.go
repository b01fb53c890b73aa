package handlers

import (
	"bytes"
	"log"
	"net/http"

	appMiddleware "github.com/markdave123-py/kbchat/internal/api/middlewares"
	"github.com/markdave123-py/kbchat/internal/models"
	"github.com/markdave123-py/kbchat/internal/presenter"
	"github.com/markdave123-py/kbchat/internal/services"
)

// PageHandler renders the single page: login form or chat layout.
type PageHandler struct {
	renderer *presenter.Renderer
	docs     *services.DocumentService
}

func NewPageHandler(renderer *presenter.Renderer, docs *services.DocumentService) *PageHandler {
	return &PageHandler{renderer: renderer, docs: docs}
}

func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	sess, ok := appMiddleware.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "no session", http.StatusInternalServerError)
		return
	}
	if !sess.Authenticated {
		h.renderLogin(w, http.StatusOK, "")
		return
	}
	h.renderPage(w, r, sess, "", http.StatusOK)
}

// renderPage lists the bucket and re-signs the reference links of the last
// exchange on every render. Storage failures become messages on the page.
func (h *PageHandler) renderPage(w http.ResponseWriter, r *http.Request, sess *models.Session, banner string, status int) {
	ctx := r.Context()

	docs, docsErr := h.docs.ListSigned(ctx)
	if docsErr != nil {
		log.Printf("session %s: %v", sess.ID, docsErr)
	}

	var refs []models.SignedLink
	if sess.LastExchange != nil {
		refs = h.docs.ResolveSources(ctx, sess.LastExchange.SourceLocations)
	}

	h.write(w, status, func(buf *bytes.Buffer) error {
		return h.renderer.RenderPage(buf, h.renderer.Page(sess, docs, docsErr, refs, banner))
	})
}

func (h *PageHandler) renderLogin(w http.ResponseWriter, status int, message string) {
	h.write(w, status, func(buf *bytes.Buffer) error {
		return h.renderer.RenderLogin(buf, presenter.LoginView{Error: message})
	})
}

// write renders into a buffer first so a template error never leaves a
// half-written page behind.
func (h *PageHandler) write(w http.ResponseWriter, status int, render func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		log.Printf("render page: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
