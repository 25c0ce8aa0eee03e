package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bblohar/MyBook-project/internal/catalog"
	"github.com/bblohar/MyBook-project/internal/models"
	"github.com/bblohar/MyBook-project/internal/search"
	"github.com/bblohar/MyBook-project/internal/storage"
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, models.ChatResponse{Reply: replyEmptyQuestion})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.respondJSON(w, http.StatusBadRequest, models.ChatResponse{Reply: replyEmptyQuestion})
		return
	}
	s.logger.Debug("chat request", zap.String("message", req.Message))

	resp, err := s.search.SearchBooks(r.Context(), req.Message, s.search.DefaultK())
	switch {
	case errors.Is(err, search.ErrEmptyQuery):
		s.respondJSON(w, http.StatusBadRequest, models.ChatResponse{Reply: replyEmptyQuestion})
	case errors.Is(err, search.ErrSearchUnavailable):
		s.logger.Warn("chat: search unavailable", zap.Error(err))
		s.respondJSON(w, http.StatusServiceUnavailable, models.ChatResponse{Reply: replyOffline})
	case err != nil:
		s.logger.Error("chat: search failed", zap.Error(err))
		s.respondJSON(w, http.StatusInternalServerError, models.ChatResponse{Reply: replyError})
	default:
		s.respondJSON(w, http.StatusOK, models.ChatResponse{Reply: formatReply(resp)})
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("k", query.K))
	response, err := s.search.Search(r.Context(), &query)
	switch {
	case errors.Is(err, search.ErrEmptyQuery):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, search.ErrSearchUnavailable):
		s.logger.Warn("search unavailable", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	default:
		s.respondJSON(w, http.StatusOK, response)
	}
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	books, err := s.catalog.List(r.Context(), offset, limit)
	if err != nil {
		s.respondStoreError(w, "list books", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"books": books})
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var input models.BookInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	book, err := s.catalog.Create(r.Context(), &input)
	if err != nil {
		s.respondStoreError(w, "create book", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, book)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := s.bookID(w, r)
	if !ok {
		return
	}
	book, err := s.catalog.Get(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, "get book", err)
		return
	}
	s.respondJSON(w, http.StatusOK, book)
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := s.bookID(w, r)
	if !ok {
		return
	}
	var input models.BookInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	book, err := s.catalog.Update(r.Context(), id, &input)
	if err != nil {
		s.respondStoreError(w, "update book", err)
		return
	}
	s.respondJSON(w, http.StatusOK, book)
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, ok := s.bookID(w, r)
	if !ok {
		return
	}
	s.logger.Debug("delete book request", zap.Int64("book_id", id))
	if err := s.catalog.Delete(r.Context(), id); err != nil {
		s.respondStoreError(w, "delete book", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	jobID := s.sync.RebuildAsync("api")
	s.respondJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "status": "accepted"})
}

func (s *Server) handleRebuildStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.sync.LastRebuild()
	if !ok {
		s.respondError(w, http.StatusNotFound, "no rebuild has run")
		return
	}
	s.respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bookCount, err := s.storage.CountBooks(ctx)
	if err != nil {
		s.respondStoreError(w, "status: count books", err)
		return
	}
	indexable, err := s.storage.CountIndexable(ctx)
	if err != nil {
		s.respondStoreError(w, "status: count indexable", err)
		return
	}
	status := models.Status{
		Books:           bookCount,
		IndexableBooks:  indexable,
		SearchAvailable: s.search.Available(),
		Index:           s.sync.Stats(),
		Dimensions:      s.config.Embedding.Dimensions,
	}
	paths := append(storage.DatabaseFiles(s.storage), s.config.Storage.IndexPath)
	if diskBytes, err := storage.DiskUsageBytes(paths...); err == nil {
		status.DiskUsageBytes = &diskBytes
	}
	if job, ok := s.sync.LastRebuild(); ok {
		status.LastRebuild = &job
	}
	s.respondJSON(w, http.StatusOK, status)
}

func (s *Server) bookID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid book id")
		return 0, false
	}
	return id, true
}

// respondStoreError maps catalog and store errors to status codes.
func (s *Server) respondStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, catalog.ErrInvalidBook):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "book not found")
	case errors.Is(err, storage.ErrStoreUnavailable):
		s.logger.Error(op+" failed", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, "book store unavailable")
	default:
		s.logger.Error(op+" failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
