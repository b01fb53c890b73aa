package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	appMiddleware "github.com/markdave123-py/kbchat/internal/api/middlewares"
	"github.com/markdave123-py/kbchat/internal/models"
	"github.com/markdave123-py/kbchat/internal/services"
)

const maxUploadBytes = 32 << 20

type DocumentHandler struct {
	docs     *services.DocumentService
	pages    *PageHandler
	maxBytes int64
}

func NewDocumentHandler(docs *services.DocumentService, pages *PageHandler) *DocumentHandler {
	return &DocumentHandler{docs: docs, pages: pages, maxBytes: maxUploadBytes}
}

// Upload handles the upload form on the page.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	sess, ok := appMiddleware.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "no session", http.StatusInternalServerError)
		return
	}
	if _, err := h.upload(w, r); err != nil {
		log.Printf("session %s: upload failed: %v", sess.ID, err)
		h.pages.renderPage(w, r, sess, "Upload failed: "+err.Error(), uploadStatus(err))
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// APIUpload is the JSON form of Upload.
func (h *DocumentHandler) APIUpload(w http.ResponseWriter, r *http.Request) {
	doc, err := h.upload(w, r)
	if err != nil {
		respondError(w, uploadStatus(err), "upload failed: "+err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, doc)
}

// GetDocuments lists the bucket with a fresh signed link per object.
func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.docs.ListSigned(r.Context())
	if err != nil {
		log.Printf("list documents: %v", err)
		respondError(w, http.StatusBadGateway, "could not list documents")
		return
	}
	if docs == nil {
		docs = []models.SignedLink{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"count": len(docs), "documents": docs})
}

var (
	errMissingFile    = errors.New("no file in request")
	errUploadTooLarge = fmt.Errorf("file larger than %d MiB", maxUploadBytes>>20)
)

func (h *DocumentHandler) upload(w http.ResponseWriter, r *http.Request) (*models.Document, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errUploadTooLarge
		}
		return nil, errMissingFile
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, errMissingFile
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()
	return h.docs.Upload(ctx, header.Filename, contentType, file)
}

func uploadStatus(err error) int {
	if errors.Is(err, errUploadTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	if errors.Is(err, errMissingFile) || errors.Is(err, services.ErrInvalidFilename) {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}
