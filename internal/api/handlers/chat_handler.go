package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	appMiddleware "github.com/markdave123-py/kbchat/internal/api/middlewares"
	"github.com/markdave123-py/kbchat/internal/models"
	"github.com/markdave123-py/kbchat/internal/presenter"
	"github.com/markdave123-py/kbchat/internal/services"
)

type ChatHandler struct {
	chat  *services.ChatService
	docs  *services.DocumentService
	pages *PageHandler
}

func NewChatHandler(chat *services.ChatService, docs *services.DocumentService, pages *PageHandler) *ChatHandler {
	return &ChatHandler{chat: chat, docs: docs, pages: pages}
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Answer     string                           `json:"answer"`
	Sources    [presenter.SourceTabCount]string `json:"sources"`
	References []models.SignedLink              `json:"references"`
	History    []models.Turn                    `json:"history"`
}

// Submit handles the chat form and renders the page with the new exchange.
func (h *ChatHandler) Submit(w http.ResponseWriter, r *http.Request) {
	sess, ok := appMiddleware.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "no session", http.StatusInternalServerError)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	banner := ""
	status := http.StatusOK
	_, err := h.chat.Ask(r.Context(), sess.ID, r.PostFormValue("query"))
	switch {
	case err == nil:
	case errors.Is(err, services.ErrEmptyQuery):
		// nothing submitted, just redraw
	case errors.Is(err, services.ErrGenerationFailed):
		banner = presenter.TryAgainText
		status = http.StatusBadGateway
	default:
		log.Printf("chat: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	fresh, err := h.chat.Session(r.Context(), sess.ID)
	if err != nil {
		log.Printf("reload session %s: %v", sess.ID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.pages.renderPage(w, r, fresh, banner, status)
}

// Query is the JSON form of Submit.
func (h *ChatHandler) Query(w http.ResponseWriter, r *http.Request) {
	sess, ok := appMiddleware.SessionFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusInternalServerError, "no session")
		return
	}
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}

	ex, err := h.chat.Ask(r.Context(), sess.ID, req.Query)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyQuery):
			respondError(w, http.StatusBadRequest, "query is required")
		case errors.Is(err, services.ErrGenerationFailed):
			respondError(w, http.StatusBadGateway, presenter.TryAgainText)
		default:
			log.Printf("chat: %v", err)
			respondError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	history, err := h.chat.History(r.Context(), sess.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := queryResponse{
		Answer:     ex.Answer,
		References: h.docs.ResolveSources(r.Context(), ex.SourceLocations),
		History:    history,
	}
	for i := range resp.Sources {
		if i < len(ex.References) {
			resp.Sources[i] = ex.References[i].Content
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// Session returns the caller's session state.
func (h *ChatHandler) Session(w http.ResponseWriter, r *http.Request) {
	sess, ok := appMiddleware.SessionFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusInternalServerError, "no session")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":            sess.ID,
		"authenticated": sess.Authenticated,
		"model_id":      sess.ModelID,
		"history":       sess.History(),
		"sources":       sess.SourceLocations,
	})
}
