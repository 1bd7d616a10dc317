package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"bbsfolio/api/internal/content"
	"bbsfolio/api/internal/export"
	"bbsfolio/api/internal/media"
	"bbsfolio/api/internal/search"
	"bbsfolio/api/internal/session"
)

const sessionHeader = "X-Session-ID"

type HTTPOptions struct {
	CORSOrigin     string
	AdminEnabled   bool
	MaxUploadBytes int64
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

type HTTPServer struct {
	service *Service
	opts    HTTPOptions
	logger  *zap.Logger
}

func NewHTTPServer(service *Service, opts HTTPOptions) *HTTPServer {
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 64 << 20
	}
	return &HTTPServer{service: service, opts: opts, logger: service.logger}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.withMiddleware)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})

	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		})
		r.Get("/ready", s.handleReady)

		r.Get("/sections", s.handleSections)
		r.Get("/portfolio", s.handlePortfolio)
		r.Get("/portfolio/export", s.handleExport)
		r.Get("/search", s.handleSearch)

		r.Route("/session/played", func(r chi.Router) {
			r.Get("/", s.handlePlayed)
			r.Delete("/", s.handleEndSession)
			r.Put("/{key}", s.handleMarkPlayed)
		})

		if s.opts.AdminEnabled {
			r.Route("/admin", s.adminRoutes)
		}
	})
	return r
}

func (s *HTTPServer) adminRoutes(r chi.Router) {
	r.Route("/sections", func(r chi.Router) {
		r.Get("/", s.handleListSections)
		r.Post("/", s.handleCreateSection)
		r.Post("/reorder", s.handleReorderSections)
		r.Put("/{id}", s.handleUpdateSection)
		r.Delete("/{id}", s.handleDeleteSection)
	})
	r.Route("/portfolio", func(r chi.Router) {
		r.Get("/", s.handleListPortfolio)
		r.Post("/", s.handleCreatePortfolioEntry)
		r.Post("/reorder", s.handleReorderPortfolio)
		r.Put("/{id}", s.handleUpdatePortfolioEntry)
		r.Delete("/{id}", s.handleDeletePortfolioEntry)
		r.Post("/{id}/media", s.handleAttachMedia)
		r.Delete("/{id}/media", s.handleDetachMedia)
	})
	r.Post("/uploads/{kind}", s.handleUpload)
	r.Post("/cache/refresh", s.handleCacheRefresh)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}
	for name, err := range s.service.Readiness(ctx) {
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSections(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	result := s.service.Sections(r.Context(), force)
	writeJSON(w, http.StatusOK, map[string]any{
		"sections":  result.Sections,
		"source":    result.Source,
		"fetchedAt": timeOrNil(result.FetchedAt),
		"degraded":  result.Degraded(),
	})
}

func (s *HTTPServer) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	entries, degraded := s.service.PublicPortfolio(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "degraded": degraded})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := search.Query{
		Text:       strings.TrimSpace(query.Get("q")),
		FilterType: search.ResultType(query.Get("type")),
	}
	if q.Text == "" {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "Query parameter q is required", nil)
		return
	}
	if q.FilterType != "" && q.FilterType != search.ResultSection && q.FilterType != search.ResultPortfolio {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "type must be section or portfolio", nil)
		return
	}
	q.Limit, _ = strconv.Atoi(query.Get("limit"))
	q.Offset, _ = strconv.Atoi(query.Get("offset"))

	response, err := s.service.Search(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.service.Export(r.Context(), format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// sessionID returns the caller's session id, issuing a fresh one when the header is
// absent or not one of ours. The id is echoed back in the response header.
func sessionID(w http.ResponseWriter, r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(sessionHeader))
	if !session.ValidID(id) {
		id = session.NewID()
	}
	w.Header().Set(sessionHeader, id)
	return id
}

func (s *HTTPServer) handlePlayed(w http.ResponseWriter, r *http.Request) {
	id := sessionID(w, r)
	played, err := s.service.Played(r.Context(), id)
	if err != nil {
		// A lost played set only replays animations.
		s.logger.Warn("played set unavailable", zap.Error(err))
		played = map[string]bool{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": id, "played": played})
}

func (s *HTTPServer) handleMarkPlayed(w http.ResponseWriter, r *http.Request) {
	id := sessionID(w, r)
	if err := s.service.MarkPlayed(r.Context(), id, chi.URLParam(r, "key")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": id, "key": content.NormalizeKey(chi.URLParam(r, "key"))})
}

func (s *HTTPServer) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.Header.Get(sessionHeader))
	if session.ValidID(id) {
		if err := s.service.EndSession(r.Context(), id); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleListSections(w http.ResponseWriter, r *http.Request) {
	sections, err := s.service.ListSections(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sections": sections})
}

func (s *HTTPServer) handleCreateSection(w http.ResponseWriter, r *http.Request) {
	var body content.Section
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	section, err := s.service.CreateSection(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"section": section})
}

func (s *HTTPServer) handleUpdateSection(w http.ResponseWriter, r *http.Request) {
	var body content.Section
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	section, err := s.service.UpdateSection(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"section": section})
}

func (s *HTTPServer) handleDeleteSection(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteSection(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReorderSections(w http.ResponseWriter, r *http.Request) {
	var body ReorderInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	outcome, err := s.service.ReorderSections(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sections": outcome.Items, "written": outcome.Written})
}

func (s *HTTPServer) handleListPortfolio(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.ListPortfolio(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *HTTPServer) handleCreatePortfolioEntry(w http.ResponseWriter, r *http.Request) {
	var body content.PortfolioEntry
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	entry, err := s.service.CreatePortfolioEntry(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"entry": entry})
}

func (s *HTTPServer) handleUpdatePortfolioEntry(w http.ResponseWriter, r *http.Request) {
	var body content.PortfolioEntry
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	entry, err := s.service.UpdatePortfolioEntry(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entry": entry})
}

func (s *HTTPServer) handleDeletePortfolioEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeletePortfolioEntry(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReorderPortfolio(w http.ResponseWriter, r *http.Request) {
	var body ReorderInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	outcome, err := s.service.ReorderPortfolio(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": outcome.Items, "written": outcome.Written})
}

func (s *HTTPServer) handleAttachMedia(w http.ResponseWriter, r *http.Request) {
	form, err := s.parseMultipart(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	defer form.RemoveAll()

	images, closeImages, err := openFiles(form.File["images"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	defer closeImages()
	videos, closeVideos, err := openFiles(form.File["videos"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	defer closeVideos()

	entry, err := s.service.AttachMedia(r.Context(), chi.URLParam(r, "id"), AttachInput{
		Images:    images,
		Videos:    videos,
		VideoURLs: form.Value["videoUrl"],
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entry": entry})
}

func (s *HTTPServer) handleDetachMedia(w http.ResponseWriter, r *http.Request) {
	url := strings.TrimSpace(r.URL.Query().Get("url"))
	if url == "" {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "Query parameter url is required", nil)
		return
	}
	entry, err := s.service.DetachMedia(r.Context(), chi.URLParam(r, "id"), url)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entry": entry})
}

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	kind, err := media.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_KIND", err.Error(), nil)
		return
	}
	form, err := s.parseMultipart(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	defer form.RemoveAll()

	files, closeFiles, err := openFiles(form.File["files"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	defer closeFiles()

	urls, err := s.service.Upload(r.Context(), kind, files)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "urls": urls})
}

func (s *HTTPServer) handleCacheRefresh(w http.ResponseWriter, r *http.Request) {
	result := s.service.RefreshSections(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"source":    result.Source,
		"fetchedAt": timeOrNil(result.FetchedAt),
		"count":     len(result.Sections),
		"degraded":  result.Degraded(),
	})
}

func timeOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func (s *HTTPServer) parseMultipart(w http.ResponseWriter, r *http.Request) (*multipart.Form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, fmt.Errorf("invalid multipart body: %w", err)
	}
	return r.MultipartForm, nil
}

func openFiles(headers []*multipart.FileHeader) ([]media.File, func(), error) {
	files := make([]media.File, 0, len(headers))
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("open %s: %w", header.Filename, err)
		}
		opened = append(opened, f)
		files = append(files, media.File{
			Name:        header.Filename,
			Size:        header.Size,
			ContentType: header.Header.Get("Content-Type"),
			Body:        f,
		})
	}
	return files, closeAll, nil
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.opts.CORSOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(started)
		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
		if s.service.metrics != nil {
			s.service.metrics.ObserveRequest(r.Method, route, writer.status, elapsed)
		}
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, X-Session-ID")
	header.Set("Access-Control-Expose-Headers", "X-Request-ID, X-Session-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}
