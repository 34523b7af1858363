package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vaigai-ai/vaigai/pkg/assetcache"
	"github.com/vaigai-ai/vaigai/pkg/classifier"
	"github.com/vaigai-ai/vaigai/pkg/config"
	"github.com/vaigai-ai/vaigai/pkg/models"
	"github.com/vaigai-ai/vaigai/pkg/report"
)

// APIKeyHeader carries a per-request Gemini key.
const APIKeyHeader = "X-Goog-Api-Key"

var errInvalidRequest = errors.New("invalid request")

// Classifier classifies one waste item.
type Classifier interface {
	Classify(ctx context.Context, req classifier.Request) (models.Classification, error)
}

// KeyStore persists the user's Gemini key.
type KeyStore interface {
	SaveAPIKey(ctx context.Context, key string) (bool, error)
	LoadAPIKey(ctx context.Context) (string, error)
}

// Reporter accepts issue reports.
type Reporter interface {
	Submit(ctx context.Context, r models.IssueReport) (models.ReportReceipt, error)
}

// StatsSource reports asset cache contents.
type StatsSource interface {
	Stats(ctx context.Context) (models.CacheStats, error)
}

// Assets is the cache-first transport in front of the origin.
type Assets interface {
	http.RoundTripper
	Version() string
	State() assetcache.State
}

// Deps are the collaborators a Server is wired with.
type Deps struct {
	Classifier Classifier
	Keys       KeyStore
	Reports    Reporter
	Stats      StatsSource
	Assets     Assets
}

// Server is the Vaigai HTTP front end.
type Server struct {
	cfg    *config.Config
	deps   Deps
	proxy  *httputil.ReverseProxy
	logger *zap.Logger
	mux    *http.ServeMux
}

// New creates a Server wired with all dependencies.
func New(cfg *config.Config, deps Deps, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	origin, err := url.Parse(cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger.Named("server"),
		mux:    http.NewServeMux(),
	}
	s.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(origin)
		},
		Transport: deps.Assets,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			s.logger.Warn("origin unreachable", zap.String("path", r.URL.Path), zap.Error(err))
			writeJSONError(w, http.StatusBadGateway, "origin unreachable")
		},
	}

	s.mux.HandleFunc("POST /api/classify", s.handleClassify)
	s.mux.HandleFunc("GET /api/key", s.handleGetKey)
	s.mux.HandleFunc("PUT /api/key", s.handlePutKey)
	s.mux.HandleFunc("POST /api/reports", s.handleReport)
	s.mux.HandleFunc("GET /api/cache", s.handleCacheStats)
	s.mux.HandleFunc("/", s.handleAssets)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("vaigai listening", zap.String("addr", s.cfg.Listen), zap.String("origin", s.cfg.Origin))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

type classifyRequest struct {
	Text  string `json:"text"`
	Image []byte `json:"image,omitempty"`
}

type classifyResponse struct {
	models.Classification
	DisplayCategory models.Category `json:"displayCategory"`
	HasRisks        bool            `json:"hasRisks"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, classifier.MaxImageBytes+1<<20)

	var req classifier.Request
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		req, err = parseMultipart(r)
	} else {
		req, err = parseJSON(r)
	}
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}

	req.APIKey, err = s.resolveAPIKey(r)
	if err != nil {
		s.logger.Error("load api key", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "could not load API key")
		return
	}

	result, err := s.deps.Classifier.Classify(r.Context(), req)
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}

	display, _ := result.Category.Canonical()
	writeJSON(w, http.StatusOK, classifyResponse{
		Classification:  result,
		DisplayCategory: display,
		HasRisks:        result.HasRisks(),
	})
}

func parseMultipart(r *http.Request) (classifier.Request, error) {
	if err := r.ParseMultipartForm(classifier.MaxImageBytes); err != nil {
		return classifier.Request{}, fmt.Errorf("%w: form: %w", errInvalidRequest, err)
	}
	req := classifier.Request{Text: r.FormValue("text")}

	file, _, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return classifier.Request{}, fmt.Errorf("%w: image upload: %v", errInvalidRequest, err)
	}
	defer file.Close()

	req.Image, err = classifier.ReadImage(file)
	if err != nil {
		return classifier.Request{}, err
	}
	return req, nil
}

func parseJSON(r *http.Request) (classifier.Request, error) {
	var body classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return classifier.Request{}, fmt.Errorf("%w: body: %w", errInvalidRequest, err)
	}
	req := classifier.Request{Text: body.Text}
	if len(body.Image) > 0 {
		img, err := classifier.NewImage(body.Image)
		if err != nil {
			return classifier.Request{}, err
		}
		req.Image = img
	}
	return req, nil
}

// resolveAPIKey prefers the request header, then the configured key, then
// the key saved in the local store.
func (s *Server) resolveAPIKey(r *http.Request) (string, error) {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		return key, nil
	}
	if s.cfg.Gemini.APIKey != "" {
		return s.cfg.Gemini.APIKey, nil
	}
	if s.deps.Keys == nil {
		return "", nil
	}
	return s.deps.Keys.LoadAPIKey(r.Context())
}

type keyRequest struct {
	APIKey string `json:"api_key"`
}

type keyStatus struct {
	Saved bool `json:"saved"`
}

func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	if s.deps.Keys == nil {
		writeJSON(w, http.StatusOK, keyStatus{})
		return
	}
	key, err := s.deps.Keys.LoadAPIKey(r.Context())
	if err != nil {
		s.logger.Error("load api key", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "could not load API key")
		return
	}
	writeJSON(w, http.StatusOK, keyStatus{Saved: key != ""})
}

func (s *Server) handlePutKey(w http.ResponseWriter, r *http.Request) {
	if s.deps.Keys == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "key storage unavailable")
		return
	}
	var body keyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	saved, err := s.deps.Keys.SaveAPIKey(r.Context(), body.APIKey)
	if err != nil {
		s.logger.Error("save api key", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "could not save API key")
		return
	}
	if !saved {
		writeJSONError(w, http.StatusBadRequest, "API key is empty")
		return
	}
	s.logger.Info("api key saved")
	writeJSON(w, http.StatusOK, keyStatus{Saved: true})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var body models.IssueReport
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	receipt, err := s.deps.Reports.Submit(r.Context(), body)
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

type cacheStatus struct {
	models.CacheStats
	Version string `json:"version"`
	State   string `json:"state"`
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Stats.Stats(r.Context())
	if err != nil {
		s.logger.Error("cache stats", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "could not read cache stats")
		return
	}
	writeJSON(w, http.StatusOK, cacheStatus{
		CacheStats: stats,
		Version:    s.deps.Assets.Version(),
		State:      s.deps.Assets.State().String(),
	})
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	s.proxy.ServeHTTP(w, r)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var apiErr *classifier.APIError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, classifier.ErrImageTooLarge), errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, classifier.ErrMissingInput), errors.Is(err, report.ErrInvalidReport), errors.Is(err, errInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, classifier.ErrMissingCredential):
		return http.StatusUnauthorized
	case errors.Is(err, classifier.ErrNotImage):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &apiErr), errors.Is(err, classifier.ErrMalformedResponse):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"vaigai_error","code":%d}}`, message, code)
}
