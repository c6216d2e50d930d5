package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/affiche/internal/cache"
	"github.com/JakeFAU/affiche/internal/metrics"
	"github.com/JakeFAU/affiche/internal/movie"
)

const (
	apiListOp  = "api_list"
	htmlListOp = "list_top_rated"

	maxTopCount = 100
)

// Runner produces the ranked, enriched movie list.
type Runner interface {
	Run(ctx context.Context, topCount, popLevel int) ([]movie.EnrichedRecord, error)
}

// Options configures request defaults and readiness.
type Options struct {
	DefaultTopCount int
	DefaultPopLevel int
	// Ready reports whether downstream dependencies are usable. Nil means always ready.
	Ready func(context.Context) error
}

// Server wires HTTP handlers to the pipeline.
type Server struct {
	router chi.Router
	runner Runner
	cache  *cache.Cache
	opts   Options
	logger *zap.Logger
}

// MovieList is the JSON body of GET /v1/movies.
type MovieList struct {
	TopCount int                    `json:"top_count"`
	PopLevel int                    `json:"pop_level"`
	Count    int                    `json:"count"`
	Movies   []movie.EnrichedRecord `json:"movies"`
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner Runner, c *cache.Cache, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultTopCount <= 0 {
		opts.DefaultTopCount = 10
	}
	if opts.DefaultPopLevel < 0 {
		opts.DefaultPopLevel = 0
	}
	s := &Server{
		runner: runner,
		cache:  c,
		opts:   opts,
		logger: logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/", s.listHTML)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/movies", s.listJSON)
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/movies", s.listJSON)
		r.Get("/info", s.apiInfo)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		if err := s.opts.Ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listJSON(w http.ResponseWriter, r *http.Request) {
	topCount, popLevel, err := s.listArgs(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := cache.Memoize(r.Context(), s.cache, apiListOp, []any{topCount, popLevel}, func(ctx context.Context) (MovieList, error) {
		movies, err := s.runner.Run(ctx, topCount, popLevel)
		if err != nil {
			return MovieList{}, err
		}
		return MovieList{TopCount: topCount, PopLevel: popLevel, Count: len(movies), Movies: movies}, nil
	})
	if err != nil {
		s.runFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) listHTML(w http.ResponseWriter, r *http.Request) {
	topCount, popLevel, err := s.listArgs(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	page, err := cache.Memoize(r.Context(), s.cache, htmlListOp, []any{topCount, popLevel}, func(ctx context.Context) (string, error) {
		movies, err := s.runner.Run(ctx, topCount, popLevel)
		if err != nil {
			return "", err
		}
		var buf bytes.Buffer
		if err := listTemplate.Execute(&buf, pageData{TopCount: topCount, PopLevel: popLevel, Movies: movies}); err != nil {
			return "", fmt.Errorf("render list: %w", err)
		}
		return buf.String(), nil
	})
	if err != nil {
		s.logger.Error("list page failed", zap.String("request_id", requestID(r.Context())), zap.Error(err))
		http.Error(w, "movie list unavailable", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(page)); err != nil {
		s.logger.Debug("write page failed", zap.Error(err))
	}
}

func (s *Server) apiInfo(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := infoTemplate.Execute(w, infoData{
		DefaultTopCount: s.opts.DefaultTopCount,
		DefaultPopLevel: s.opts.DefaultPopLevel,
		MaxTopCount:     maxTopCount,
	}); err != nil {
		s.logger.Debug("write info page failed", zap.Error(err))
	}
}

func (s *Server) runFailed(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("pipeline run failed", zap.String("request_id", requestID(r.Context())), zap.Error(err))
	status := http.StatusBadGateway
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, "movie list unavailable")
}

func (s *Server) listArgs(r *http.Request) (int, int, error) {
	topCount, err := intParam(r, "top_count", s.opts.DefaultTopCount)
	if err != nil {
		return 0, 0, err
	}
	if topCount <= 0 || topCount > maxTopCount {
		return 0, 0, fmt.Errorf("top_count must be between 1 and %d", maxTopCount)
	}
	popLevel, err := intParam(r, "pop_level", s.opts.DefaultPopLevel)
	if err != nil {
		return 0, 0, err
	}
	if popLevel < 0 {
		return 0, 0, errors.New("pop_level must be >= 0")
	}
	return topCount, popLevel, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return v, nil
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.String("request_id", requestID(r.Context())),
					zap.Any("panic", rec),
					zap.Stack("stack"),
				)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type pageData struct {
	TopCount int
	PopLevel int
	Movies   []movie.EnrichedRecord
}

var listTemplate = template.Must(template.New("list").Parse(`<!DOCTYPE html>
<html lang="ru">
<head>
<meta charset="utf-8">
<title>Affiche: top {{.TopCount}}</title>
</head>
<body>
<h1>Top {{.TopCount}} films in more than {{.PopLevel}} cinemas</h1>
{{- if not .Movies}}
<p>No films found.</p>
{{- end}}
<ol>
{{- range .Movies}}
<li>
  <h2><a href="{{.SourceLink}}">{{.Title}}</a>{{if .ReleaseYear}} ({{.ReleaseYear}}){{end}}</h2>
  {{- if .ImageLink}}<img src="{{.ImageLink}}" alt="{{.Title}}" width="160">{{end}}
  <p>Rating: <a href="{{.CatalogLink}}">{{.Score}}</a>{{if not .Rated}} (no rating){{end}}</p>
  <p>{{.Genre}}. {{.Creation}}</p>
  <p>{{.Description}}</p>
</li>
{{- end}}
</ol>
</body>
</html>
`))

type infoData struct {
	DefaultTopCount int
	DefaultPopLevel int
	MaxTopCount     int
}

var infoTemplate = template.Must(template.New("info").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Affiche: REST API</title>
</head>
<body>
<h1>REST API</h1>
<p><code>GET /api/movies?top_count=N&amp;pop_level=M</code> (also served at <code>/v1/movies</code>)</p>
<ul>
<li><code>top_count</code>: films to return, 1 to {{.MaxTopCount}}, default {{.DefaultTopCount}}</li>
<li><code>pop_level</code>: a film must be shown in more than this many cinemas, default {{.DefaultPopLevel}}</li>
</ul>
<p>The response is a JSON object with <code>top_count</code>, <code>pop_level</code>, <code>count</code> and
<code>movies</code>, best rated first.</p>
</body>
</html>
`))
