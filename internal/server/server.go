// Package server exposes the chat session over HTTP for browser and
// scripting surfaces. Responses stream as server-sent events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/raphaelgruber/parley/internal/chat"
	"github.com/raphaelgruber/parley/internal/llm"
	"github.com/raphaelgruber/parley/internal/metrics"
	"github.com/raphaelgruber/parley/internal/models"
	"github.com/raphaelgruber/parley/internal/store"
	"github.com/raphaelgruber/parley/internal/upload"
)

// Server wraps the HTTP gateway with its dependencies and lifecycle.
type Server struct {
	store    *store.Store
	session  *chat.Session
	uploader upload.Uploader
	logger   *slog.Logger
	http     *http.Server
}

// New creates the gateway. The uploader may be nil when object storage
// is not configured; the upload endpoint then responds 503.
func New(addr, token string, st *store.Store, session *chat.Session, uploader upload.Uploader, logger *slog.Logger) *Server {
	s := &Server{
		store:    st,
		session:  session,
		uploader: uploader,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/threads", s.handleListThreads)
	mux.HandleFunc("POST /api/threads", s.handleCreateThread)
	mux.HandleFunc("GET /api/threads/{id}", s.handleGetThread)
	mux.HandleFunc("DELETE /api/threads/{id}", s.handleDeleteThread)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/chat/cancel", s.handleCancel)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	var handler http.Handler = mux
	handler = AuthMiddleware(token)(handler)
	handler = LoggingMiddleware(logger)(handler)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP gateway", "addr", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Handler exposes the configured handler stack for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

type threadSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  int       `json:"messages"`
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	threads := s.store.GetAllThreads()
	out := make([]threadSummary, 0, len(threads))
	for _, t := range threads {
		out = append(out, threadSummary{
			ID:        t.ID,
			Title:     t.Title,
			Model:     t.Model,
			UpdatedAt: t.UpdatedAt,
			Messages:  len(t.Messages),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type createThreadRequest struct {
	Title string `json:"title"`
	Model string `json:"model"`
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req createThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	thread := s.store.CreateThread(req.Title, req.Model)
	writeJSON(w, http.StatusCreated, thread)
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	thread, ok := s.store.GetThread(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "thread not found")
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	s.store.DeleteThread(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

type chatRequest struct {
	ThreadID string          `json:"thread_id"`
	Text     string          `json:"text"`
	Uploads  []models.Upload `json:"uploads,omitempty"`
}

type chatEvent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// handleChat streams one exchange as SSE: a "data:" line per chunk,
// then an "event: done" carrying the settled messages, or an
// "event: error" with a user-facing description.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ThreadID == "" {
		writeError(w, http.StatusBadRequest, "thread_id is required")
		return
	}
	if _, ok := s.store.GetThread(req.ThreadID); !ok {
		writeError(w, http.StatusNotFound, "thread not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	err := s.session.Submit(r.Context(), req.ThreadID, req.Text, req.Uploads,
		chat.OnChunk(func(c llm.Chunk) {
			writeEvent(w, "", chatEvent{Type: string(c.Type), Text: c.Text})
			flusher.Flush()
		}))
	if err != nil {
		writeEvent(w, "error", map[string]string{"message": userMessage(err)})
		flusher.Flush()
		return
	}

	writeEvent(w, "done", map[string]any{
		"messages": s.store.GetThreadMessages(req.ThreadID),
	})
	flusher.Flush()
}

type cancelRequest struct {
	ThreadID string `json:"thread_id"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": s.session.Cancel(req.ThreadID)})
}

// handleUpload accepts a multipart form of files and stores the whole
// batch, responding with the resulting public URLs.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.uploader == nil {
		writeError(w, http.StatusServiceUnavailable, "object storage is not configured")
		return
	}
	if err := r.ParseMultipartForm(upload.MaxFileSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	var files []upload.File
	for _, headers := range r.MultipartForm.File {
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				writeError(w, http.StatusBadRequest, "unreadable file part")
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				writeError(w, http.StatusBadRequest, "unreadable file part")
				return
			}
			files = append(files, upload.File{
				Name:        fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Data:        data,
			})
		}
	}
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files in request")
		return
	}

	start := time.Now()
	uploads, err := s.uploader.Upload(r.Context(), files)
	if err != nil {
		s.session.Metrics().RecordFailure(metrics.OpUpload)
		if errors.Is(err, upload.ErrTooLarge) || errors.Is(err, upload.ErrUnsupportedType) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Error("upload batch failed", "error", err)
		writeError(w, http.StatusBadGateway, "upload failed")
		return
	}
	s.session.Metrics().RecordTiming(metrics.OpUpload, time.Since(start))
	writeJSON(w, http.StatusOK, uploads)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Metrics().Snapshot())
}

// userMessage maps upstream failures to the descriptions surfaces show.
func userMessage(err error) string {
	switch {
	case errors.Is(err, chat.ErrBusy):
		return "A response is already streaming for this thread."
	case errors.Is(err, context.Canceled):
		return "Generation was cancelled."
	}
	switch llm.Classify(err) {
	case llm.KindAuth:
		return "Authentication failed. Check your API credentials and configuration."
	case llm.KindRateLimited:
		return "The model is in high demand or rate limited. Try again in a moment."
	case llm.KindModelNotFound:
		return "The selected model is unavailable. Pick a different model."
	default:
		return "Something went wrong while talking to the model. Please try again."
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeEvent(w http.ResponseWriter, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
