package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dgallion1/docsplit/internal/indexer"
	"github.com/go-chi/chi/v5"
)

// handleListDocuments proxies a listing request to the indexer.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			jsonError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	docs, err := s.idx.ListDocuments(r.Context(), limit)
	if err != nil {
		s.log.Error("list documents failed", "error", err)
		jsonError(w, "indexer unavailable", http.StatusBadGateway)
		return
	}
	if docs == nil {
		docs = []indexer.DocumentSummary{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"documents": docs})
}

// handleGetDocument fetches one indexed document by path.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	docPath := chi.URLParam(r, "docPath")

	rec, err := s.idx.GetDocument(r.Context(), docPath)
	if err != nil {
		s.log.Error("get document failed", "path", docPath, "error", err)
		jsonError(w, "indexer unavailable", http.StatusBadGateway)
		return
	}
	if rec == nil {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

// handleDeleteDocument removes an indexed document. Deleting a document that
// does not exist is not an error.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docPath := chi.URLParam(r, "docPath")

	if err := s.idx.DeleteDocument(r.Context(), docPath); err != nil {
		s.log.Error("delete document failed", "path", docPath, "error", err)
		jsonError(w, "indexer unavailable", http.StatusBadGateway)
		return
	}

	s.log.Info("document deleted", "path", docPath)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"deleted": true, "path": docPath})
}
