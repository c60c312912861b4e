// Package web exposes the analysis pipeline over a small HTTP API. It holds
// the single "current post" slot the UI works against, guarded by a
// monotonic generation counter so a slow analysis finishing after a newer
// post was staged is detected as stale and discarded.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"post2cal/internal/analyze"
	"post2cal/internal/calendar"
	"post2cal/internal/config"
	appLog "post2cal/internal/log"
	"post2cal/internal/model"
)

// Analyzer is the extraction dependency of the web layer.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (model.ExtractionResult, error)
}

// Capturer scrapes a post from a live page.
type Capturer func(ctx context.Context, url string) (model.RawPost, error)

// Server provides the HTTP API around the capture/analyze/link pipeline.
type Server struct {
	cfg      *config.Config
	analyzer Analyzer
	resolver *calendar.Resolver
	capture  Capturer
	limiter  *rate.Limiter
	mux      *http.ServeMux

	// mu guards the current-post slot. The slot is overwritten, never
	// merged; generation rises with every overwrite.
	mu         sync.Mutex
	post       *model.RawPost
	generation uint64
}

// NewServer constructs a new Server. capturer may be nil; /api/capture then
// responds 501.
func NewServer(cfg *config.Config, analyzer Analyzer, resolver *calendar.Resolver, capturer Capturer) *Server {
	// Analyze calls spend LLM quota; cap them with a token bucket.
	perSecond := rate.Limit(float64(cfg.AnalyzePerMinute) / 60.0)
	s := &Server{
		cfg:      cfg,
		analyzer: analyzer,
		resolver: resolver,
		capture:  capturer,
		limiter:  rate.NewLimiter(perSecond, cfg.AnalyzePerMinute),
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// StartServer starts an HTTP server bound to cfg.Listen.
func StartServer(ctx context.Context, s *Server) error {
	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/post", s.handlePost)
	s.mux.HandleFunc("/api/capture", s.handleCapture)
	s.mux.HandleFunc("/api/analyze", s.handleAnalyze)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// postRequest stages a post for analysis.
type postRequest struct {
	Text     string `json:"text"`
	URL      string `json:"url"`
	PostedAt string `json:"postedAt,omitempty"`
}

// postResponse reports the generation assigned to the staged post.
type postResponse struct {
	Generation uint64 `json:"generation"`
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req postRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Text == "" {
			writeError(w, http.StatusBadRequest, "text is required")
			return
		}

		gen := s.stagePost(model.RawPost{Text: req.Text, URL: req.URL, PostedAt: req.PostedAt})
		writeJSON(w, http.StatusOK, postResponse{Generation: gen})

	case http.MethodDelete:
		s.clearPost()
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// captureRequest asks the server to scrape a post page.
type captureRequest struct {
	URL string `json:"url"`
}

// captureResponse carries the staged post and its generation.
type captureResponse struct {
	Generation uint64        `json:"generation"`
	Post       model.RawPost `json:"post"`
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.capture == nil {
		writeError(w, http.StatusNotImplemented, "capture is not available")
		return
	}

	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	post, err := s.capture(r.Context(), req.URL)
	if err != nil {
		appLog.Error("post capture failed", err, "url", req.URL)
		writeError(w, http.StatusBadGateway, "capture failed: "+err.Error())
		return
	}

	gen := s.stagePost(post)
	writeJSON(w, http.StatusOK, captureResponse{Generation: gen, Post: post})
}

// analyzeResponse is the outcome of analyzing the current post.
type analyzeResponse struct {
	Generation  uint64                 `json:"generation"`
	Result      model.ExtractionResult `json:"result"`
	CalendarURL string                 `json:"calendarUrl"`
	ICS         string                 `json:"ics"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "analyze rate limit exceeded")
		return
	}

	s.mu.Lock()
	post := s.post
	gen := s.generation
	s.mu.Unlock()
	if post == nil {
		writeError(w, http.StatusNotFound, "no post staged for analysis")
		return
	}

	result, err := s.analyzer.Analyze(r.Context(), post.Text)
	if err != nil {
		s.writeAnalyzeError(w, err)
		return
	}

	// A newer post may have been staged while the remote call was in
	// flight; its analysis belongs to the old post, so drop it.
	s.mu.Lock()
	stale := s.generation != gen
	s.mu.Unlock()
	if stale {
		appLog.Info("dropping stale analysis result", "generation", gen)
		writeError(w, http.StatusConflict, "analysis is stale: a newer post was staged")
		return
	}

	calURL := s.resolver.BuildURL(result.Summary, post.Text, post.URL, result.Dates, post.PostedAt, result.HasUntilExpression)

	var icsBody string
	if interval, ok := s.resolver.Resolve(result.Dates, post.PostedAt, result.HasUntilExpression); ok {
		icsBody = s.resolver.BuildICS(result.Summary, post.Text, post.URL, interval)
	}

	writeJSON(w, http.StatusOK, analyzeResponse{
		Generation:  gen,
		Result:      result,
		CalendarURL: calURL,
		ICS:         icsBody,
	})
}

// writeAnalyzeError maps pipeline errors onto HTTP statuses. Transport and
// credential errors are surfaced verbatim; nothing is retried here.
func (s *Server) writeAnalyzeError(w http.ResponseWriter, err error) {
	var terr *analyze.TransportError
	switch {
	case errors.Is(err, analyze.ErrMissingAPIKey):
		writeError(w, http.StatusInternalServerError, err.Error())
	case errors.As(err, &terr):
		writeError(w, http.StatusBadGateway, terr.Error())
	default:
		appLog.Error("analysis failed", err)
		writeError(w, http.StatusInternalServerError, "analysis failed: "+err.Error())
	}
}

func (s *Server) stagePost(post model.RawPost) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.post = &post
	s.generation++
	return s.generation
}

func (s *Server) clearPost() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.post = nil
	s.generation++
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="post2cal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
