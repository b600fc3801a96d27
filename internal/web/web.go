package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"calfilter/internal/config"
	"calfilter/internal/ics"
	appLog "calfilter/internal/log"
)

const originPlaceholder = "<<ORIGIN>>"

//go:embed static/index.html
var embeddedStatic embed.FS

// CalendarSource fetches the raw text of a calendar.
type CalendarSource interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Server is the HTTP front of the filter: UI page, /transformed and health.
type Server struct {
	cfg       *config.Config
	router    chi.Router
	source    CalendarSource
	predicate ics.Predicate
	allowed   *url.URL
	ui        []byte
}

// Option customizes a Server.
type Option func(*Server)

// WithPredicate replaces the predicate derived from cfg.Filter.
func WithPredicate(p ics.Predicate) Option {
	return func(s *Server) { s.predicate = p }
}

// WithSource replaces the default HTTP fetcher.
func WithSource(src CalendarSource) Option {
	return func(s *Server) { s.source = src }
}

// NewServer constructs a Server. The UI page is rendered once here.
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("web: config is nil")
	}
	allowed, err := url.Parse(cfg.AllowedSource)
	if err != nil || allowed.Scheme == "" || allowed.Host == "" {
		return nil, fmt.Errorf("web: invalid allowed source %q", cfg.AllowedSource)
	}

	s := &Server{
		cfg:     cfg,
		router:  chi.NewRouter(),
		allowed: allowed,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.predicate == nil {
		p, err := ics.NewPredicate(cfg.Filter.Match, cfg.Filter.Markers)
		if err != nil {
			return nil, fmt.Errorf("web: %w", err)
		}
		s.predicate = p
	}
	if s.source == nil {
		s.source = ics.NewFetcher(time.Duration(cfg.Fetch.TimeoutSeconds)*time.Second, cfg.Fetch.MaxBodyBytes)
	}

	ui, err := loadUI(cfg.UIPath, cfg.Origin)
	if err != nil {
		return nil, err
	}
	s.ui = ui

	s.registerRoutes()
	return s, nil
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// StartServer serves on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func StartServer(ctx context.Context, cfg *config.Config, opts ...Option) error {
	s, err := NewServer(cfg, opts...)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", cfg.Listen, "allowed_source", cfg.AllowedSource)
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
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(traceMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)
	r.Use(corsMiddleware)

	r.Get("/", s.handleIndex)
	r.Get("/transformed", s.handleTransformed)
	r.Get("/healthz", s.handleHealth)
	r.Get("/health", s.handleHealth)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.ui)
}

// handleTransformed fetches the calendar named by ?path= and returns it with
// the unwanted events removed.
//
// GET /transformed?path=<url-encoded link to an .ics file>
func (s *Server) handleTransformed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := appLog.Ctx(ctx)
	traceID := appLog.TraceID(ctx)

	raw, ok := r.URL.Query()["path"]
	if !ok || len(raw) == 0 || raw[0] == "" {
		writeText(w, http.StatusBadRequest, fmt.Sprintf(
			"Expecting a URL encoded link to an ics file on the Internet in 'path' query parameter. Trace id: %s", traceID))
		return
	}

	target := decodeSourceParam(raw[0])
	logged := ics.RedactURL(target)
	if !s.sourceAllowed(target) {
		lg.Warn("rejected calendar source", "source", logged)
		writeText(w, http.StatusBadRequest, fmt.Sprintf(
			"This URL smells funky. We only accept URLs prefixed by '%s'. Trace id: %s", s.cfg.AllowedSource, traceID))
		return
	}

	lg.Debug("fetching calendar", "source", logged)
	text, err := s.source.Fetch(ctx, target)
	if err != nil {
		lg.Error("calendar fetch failed", err, "source", logged)
		writeText(w, http.StatusBadGateway, fmt.Sprintf("Could not fetch the calendar. Trace id: %s", traceID))
		return
	}
	if !strings.Contains(text, ics.LineSeparator) && strings.Contains(text, "\n") {
		lg.Warn("calendar does not use CRLF line endings; events will not be recognized", "source", logged)
	}

	out, stats, err := ics.FilterWithStats(text, s.predicate)
	if err != nil {
		status, msg := mapFilterError(err)
		lg.Error("calendar filter failed", err, "source", logged, "status", status)
		writeText(w, status, fmt.Sprintf("%s Trace id: %s", msg, traceID))
		return
	}

	lg.Info("calendar filtered", "source", logged, "kept", stats.Kept, "dropped", stats.Dropped)

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}

func mapFilterError(err error) (int, string) {
	var pe *ics.ParseError
	switch {
	case errors.As(err, &pe):
		return http.StatusBadGateway, fmt.Sprintf("The calendar is malformed (line %d).", pe.Line)
	default:
		return http.StatusInternalServerError, "Something bad happened."
	}
}

// decodeSourceParam undoes one more level of escaping when the query value
// is still percent-encoded, so double-encoded links work.
func decodeSourceParam(v string) string {
	if strings.Contains(v, "://") {
		return v
	}
	if dec, err := url.QueryUnescape(v); err == nil {
		return dec
	}
	return v
}

// sourceAllowed reports whether raw has the allowed scheme and host and its
// path lies under the allowed path.
func (s *Server) sourceAllowed(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.User != nil {
		return false
	}
	if !strings.EqualFold(u.Scheme, s.allowed.Scheme) || !strings.EqualFold(u.Host, s.allowed.Host) {
		return false
	}
	return pathUnder(u.Path, s.allowed.Path)
}

// pathUnder reports whether p equals base or lies below it on a segment
// boundary, so "/foo" admits "/foo/x.ics" but not "/foobar".
func pathUnder(p, base string) bool {
	base = strings.TrimSuffix(base, "/")
	if base == "" || p == base {
		return true
	}
	return strings.HasPrefix(p, base+"/")
}

// loadUI reads the UI page (the embedded one when path is empty) and
// substitutes the public origin.
func loadUI(path, origin string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = embeddedStatic.ReadFile("static/index.html")
	}
	if err != nil {
		return nil, fmt.Errorf("web: load UI: %w", err)
	}
	return []byte(strings.ReplaceAll(string(data), originPlaceholder, origin)), nil
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}
