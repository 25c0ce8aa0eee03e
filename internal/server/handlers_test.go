package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/bblohar/MyBook-project/internal/catalog"
	"github.com/bblohar/MyBook-project/internal/config"
	"github.com/bblohar/MyBook-project/internal/embedding"
	"github.com/bblohar/MyBook-project/internal/indexer"
	"github.com/bblohar/MyBook-project/internal/models"
	"github.com/bblohar/MyBook-project/internal/search"
	"github.com/bblohar/MyBook-project/internal/storage"
	"github.com/bblohar/MyBook-project/internal/vector"
)

type testEnv struct {
	srv      *Server
	handler  http.Handler
	sync     *indexer.Synchronizer
	embedder *embedding.MockEmbedder
}

func newTestEnv(t *testing.T, provider embedding.Embedder) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Embedding.Dimensions = 4
	cfg.Storage.DatabaseDSN = filepath.Join(dir, "books.db")
	cfg.Storage.IndexPath = filepath.Join(dir, "book_index.bin")

	store, err := storage.NewSQLiteStore(cfg.Storage.DatabaseDSN, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	mock := embedding.NewMockEmbedder(4)
	mock.Set("space exploration and rockets", []float32{1, 0, 0, 0})
	mock.Set("baking bread recipes", []float32{0, 1, 0, 0})
	mock.Set("cooking", []float32{0.2, 0.8, 0, 0})
	if provider == nil {
		provider = mock
	}

	sync := indexer.NewSynchronizer(store, mock, indexer.Config{
		IndexPath:  cfg.Storage.IndexPath,
		Dimensions: 4,
	})
	t.Cleanup(func() { _ = sync.Close() })
	if err := sync.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	logger := zap.NewNop()
	searchSvc := search.NewService(store, provider, sync, search.Config{DefaultK: 3, MaxK: 10})
	catalogSvc := catalog.NewService(store, sync, logger)
	srv := NewServer(searchSvc, catalogSvc, sync, store, cfg, logger)
	return &testEnv{srv: srv, handler: srv.Router(), sync: sync, embedder: mock}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func (e *testEnv) createBook(t *testing.T, in models.BookInput) *models.Book {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/books", in)
	if w.Code != http.StatusCreated {
		t.Fatalf("create book: status %d, body %s", w.Code, w.Body.String())
	}
	var b models.Book
	if err := json.NewDecoder(w.Body).Decode(&b); err != nil {
		t.Fatal(err)
	}
	return &b
}

func (e *testEnv) rebuild(t *testing.T) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/index/rebuild", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("rebuild: status %d", w.Code)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if job, ok := e.sync.LastRebuild(); ok && job.Status != models.JobRunning {
			if job.Status != models.JobSucceeded {
				t.Fatalf("rebuild failed: %s", job.Error)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("rebuild did not finish")
}

func decodeReply(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp models.ChatResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	return resp.Reply
}

func TestHandleChat_EmptyMessage(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, body := range []interface{}{models.ChatRequest{}, models.ChatRequest{Message: "   "}, "not json"} {
		w := env.do(t, http.MethodPost, "/api/v1/chat", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %v: status %d, want 400", body, w.Code)
		}
		if got := decodeReply(t, w); got != replyEmptyQuestion {
			t.Errorf("reply = %q", got)
		}
	}
}

func TestHandleChat_Unavailable(t *testing.T) {
	env := newTestEnv(t, embedding.Unavailable(4, errors.New("model not found")))
	w := env.do(t, http.MethodPost, "/api/v1/chat", models.ChatRequest{Message: "anything"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status %d, want 503", w.Code)
	}
	if got := decodeReply(t, w); got != replyOffline {
		t.Errorf("reply = %q", got)
	}
}

func TestHandleChat_NoMatches(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodPost, "/api/v1/chat", models.ChatRequest{Message: "cooking"})
	if w.Code != http.StatusOK {
		t.Errorf("status %d, want 200", w.Code)
	}
	if got := decodeReply(t, w); got != replyNoMatches {
		t.Errorf("reply = %q", got)
	}
}

func TestHandleChat_RankedReply(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createBook(t, models.BookInput{Title: "Rockets", Author: "A. Stronaut", Location: "Shelf 1", Description: "space exploration and rockets"})
	env.createBook(t, models.BookInput{Title: "Bread", Author: "B. Aker", Description: "baking bread recipes"})
	env.rebuild(t)

	w := env.do(t, http.MethodPost, "/api/v1/chat", models.ChatRequest{Message: "cooking"})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	reply := decodeReply(t, w)
	bread := strings.Index(reply, "**Bread** by B. Aker")
	rockets := strings.Index(reply, "**Rockets** by A. Stronaut")
	if bread < 0 || rockets < 0 || bread > rockets {
		t.Errorf("expected Bread before Rockets, got %q", reply)
	}
	if !strings.Contains(reply, "(Location: N/A)") || !strings.Contains(reply, "(Location: Shelf 1)") {
		t.Errorf("missing locations in %q", reply)
	}
}

func TestHandleSearch(t *testing.T) {
	env := newTestEnv(t, nil)
	space := env.createBook(t, models.BookInput{Title: "Rockets", Description: "space exploration and rockets"})
	bread := env.createBook(t, models.BookInput{Title: "Bread", Description: "baking bread recipes"})
	env.rebuild(t)

	w := env.do(t, http.MethodPost, "/api/v1/search", models.SearchQuery{Query: "cooking", K: 2})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", w.Code, w.Body.String())
	}
	var resp models.SearchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 || resp.Results[0].Book.ID != bread.ID || resp.Results[1].Book.ID != space.ID {
		t.Errorf("unexpected results: %+v", resp.Results)
	}

	w = env.do(t, http.MethodPost, "/api/v1/search", models.SearchQuery{Query: " "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty query: status %d, want 400", w.Code)
	}
	w = env.do(t, http.MethodPost, "/api/v1/search", "{")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad body: status %d, want 400", w.Code)
	}
}

func TestHandleSearch_Unavailable(t *testing.T) {
	env := newTestEnv(t, embedding.Unavailable(4, errors.New("model not found")))
	w := env.do(t, http.MethodPost, "/api/v1/search", models.SearchQuery{Query: "anything"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status %d, want 503", w.Code)
	}
}

func TestBooksCRUD_KeepsIndexInSync(t *testing.T) {
	env := newTestEnv(t, nil)
	env.rebuild(t)

	book := env.createBook(t, models.BookInput{Title: "Rockets", Description: "space exploration and rockets"})
	if !env.sync.Current().Index.Contains(book.ID) {
		t.Fatal("created book should be indexed")
	}

	w := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/books/%d", book.ID), nil)
	if w.Code != http.StatusOK {
		t.Errorf("get: status %d", w.Code)
	}

	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/books/%d", book.ID), models.BookInput{Title: "Rockets"})
	if w.Code != http.StatusOK {
		t.Errorf("update: status %d", w.Code)
	}
	if env.sync.Current().Index.Contains(book.ID) {
		t.Error("clearing the description should remove the entry under the default policy")
	}

	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/books/%d", book.ID), models.BookInput{Title: "Rockets", Description: "baking bread recipes"})
	if w.Code != http.StatusOK {
		t.Errorf("update: status %d", w.Code)
	}
	if v, ok := env.sync.Current().Index.Vector(book.ID); !ok || v[1] != 1 {
		t.Errorf("vector after edit = %v, %v", v, ok)
	}

	w = env.do(t, http.MethodGet, "/api/v1/books?limit=10", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"Rockets"`) {
		t.Errorf("list: status %d, body %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/books/%d", book.ID), nil)
	if w.Code != http.StatusOK {
		t.Errorf("delete: status %d", w.Code)
	}
	if env.sync.Current().Index.Contains(book.ID) {
		t.Error("deleted book should leave the index")
	}

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/books/%d", book.ID), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get deleted: status %d, want 404", w.Code)
	}
	w = env.do(t, http.MethodGet, "/api/v1/books/abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad id: status %d, want 400", w.Code)
	}
	w = env.do(t, http.MethodPost, "/api/v1/books", models.BookInput{Title: ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid book: status %d, want 400", w.Code)
	}
}

func TestBooksCreate_IndexFailureDoesNotFailWrite(t *testing.T) {
	env := newTestEnv(t, nil)
	env.rebuild(t)
	env.embedder.Fail(embedding.ErrProviderUnavailable)

	book := env.createBook(t, models.BookInput{Title: "Rockets", Description: "space exploration and rockets"})
	if env.sync.Current().Index.Contains(book.ID) {
		t.Error("book should not be indexed while the provider fails")
	}
}

func TestHandleRebuildStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodGet, "/api/v1/index/rebuild", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("before any rebuild: status %d, want 404", w.Code)
	}
	env.createBook(t, models.BookInput{Title: "Rockets", Description: "space exploration and rockets"})
	env.rebuild(t)

	w = env.do(t, http.MethodGet, "/api/v1/index/rebuild", nil)
	var job models.RebuildJob
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobSucceeded || job.Result == nil || job.Result.Indexed != 1 {
		t.Errorf("unexpected job: %+v", job)
	}
}

func TestHandleStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createBook(t, models.BookInput{Title: "Rockets", Description: "space exploration and rockets"})
	env.createBook(t, models.BookInput{Title: "Untitled"})
	env.rebuild(t)

	w := env.do(t, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var st models.Status
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Books != 2 || st.IndexableBooks != 1 || st.Index.Entries != 1 || !st.Index.Built {
		t.Errorf("unexpected status: %+v", st)
	}
	if !st.SearchAvailable || st.Dimensions != 4 || st.LastRebuild == nil {
		t.Errorf("unexpected status: %+v", st)
	}
	if st.DiskUsageBytes == nil || *st.DiskUsageBytes == 0 {
		t.Error("disk usage should be reported")
	}
	if st.Index.FAISSAvailable != vector.IsFAISSAvailable() {
		t.Errorf("faiss_available = %t, want %t", st.Index.FAISSAvailable, vector.IsFAISSAvailable())
	}
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("health: %d %s", w.Code, w.Body.String())
	}
}

func TestFormatReply(t *testing.T) {
	if got := formatReply(&models.SearchResponse{NoMatches: true}); got != replyNoMatches {
		t.Errorf("no matches reply = %q", got)
	}
	resp := &models.SearchResponse{Results: []*models.SearchResult{
		{Book: &models.Book{Title: "Dune", Author: "Frank Herbert", Location: "Shelf 3"}, Rank: 1},
		{Book: &models.Book{Title: "Anonymous Poems"}, Rank: 2},
	}}
	want := "Based on your request, I found these books for you:\n\n" +
		"• **Dune** by Frank Herbert\n (Location: Shelf 3)\n\n" +
		"• **Anonymous Poems** by Unknown author\n (Location: N/A)\n\n"
	if got := formatReply(resp); got != want {
		t.Errorf("formatReply = %q, want %q", got, want)
	}
}
