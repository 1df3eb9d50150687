// Package server exposes a Store over HTTP so an image can be inspected and edited from a
// browser or curl while the device side is being developed.
//
//	GET    /entries         list records and free pages
//	GET    /entries/{name}  payload bytes, ETag is the xxhash64
//	PUT    /entries/{name}  save body under name
//	DELETE /entries/{name}  erase one record
//	DELETE /entries         erase all (store's scope)
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"flashstr/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	log		*slog.Logger
	router	*chi.Mux
	// the store does no locking of its own
	mu		sync.Mutex
	store	*store.Store
}

func New(st *store.Store) *Server {
	s := &Server{
		log:	slog.With("src", "Server"),
		router:	chi.NewRouter(),
		store:	st,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(s.logRequests)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Route("/entries", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Delete("/", s.handleEraseAll)
		r.Get("/{name}", s.handleLoad)
		r.Put("/{name}", s.handleSave)
		r.Delete("/{name}", s.handleErase)
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:				addr,
		Handler:			s.router,
		ReadHeaderTimeout:	10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"dur", time.Since(start),
			"reqid", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	listing, err := s.store.List()
	s.mu.Unlock()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if listing.Entries == nil {
		listing.Entries = []store.Entry{}
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	name, ok := nameParam(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// view points into flash, it has to be written out before anyone else mutates
	view, found, err := s.store.Load(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, errorBody{Error: fmt.Sprintf("%q not found", name)})
		return
	}

	sum, _, err := s.store.Digest(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	etag := fmt.Sprintf("\"%016x\"", sum)
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprint(len(view)))
	w.WriteHeader(http.StatusOK)
	w.Write(view)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	name, ok := nameParam(w, r)
	if !ok {
		return
	}

	// one byte over a page is enough to know it won't fit
	limit := int64(s.store.Catalog().PageSize()) + 1
	body, err := io.ReadAll(io.LimitReader(r.Body, limit))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	s.mu.Lock()
	err = s.store.Save(name, body)
	s.mu.Unlock()
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleErase(w http.ResponseWriter, r *http.Request) {
	name, ok := nameParam(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	err := s.store.Erase(name)
	s.mu.Unlock()
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEraseAll(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	err := s.store.EraseAll()
	s.mu.Unlock()
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// chi routes on RawPath when it is set, otherwise on the already decoded Path.
func nameParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := chi.URLParam(r, "name")
	if r.URL.RawPath == "" {
		return name, true
	}
	name, err := url.PathUnescape(name)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad name"})
		return "", false
	}
	return name, true
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrTooBig):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, store.ErrInvalidName):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNoSpace):
		status = http.StatusInsufficientStorage
	default:
		s.log.Error("store", "err", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
