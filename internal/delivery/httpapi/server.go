package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"listing_orchestrator/config"
	"listing_orchestrator/internal/domain"
	"listing_orchestrator/internal/logger"
	"listing_orchestrator/internal/usecase"
)

// Services are the use cases the API exposes. Nil entries disable their routes.
type Services struct {
	Accounts     *usecase.AccountManager
	Materials    *usecase.MaterialManager
	Orchestrator *usecase.Orchestrator
	Maintenance  *usecase.Maintenance
	Discovery    *usecase.Discovery
	Records      *usecase.Records
	Quota        *usecase.QuotaChecker
	Dashboard    *usecase.Dashboard
	// Schedules is told to re-read campaign schedules after a campaign changes.
	Schedules interface{ SyncCampaigns() error }
}

// Server exposes the REST API, the progress event stream and Prometheus metrics.
type Server struct {
	cfg    *config.Config
	svc    Services
	server *http.Server

	// runs outlive the request that started them
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewServer creates a new HTTP server.
func NewServer(cfg *config.Config, svc Services) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{cfg: cfg, svc: svc, baseCtx: ctx, cancel: cancel}
	s.server = &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: loggingMiddleware(s.routes()),
	}
	return s
}

// Handler returns the routed handler, used by tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	if s.svc.Accounts != nil {
		mux.HandleFunc("GET /api/accounts", s.listAccounts)
		mux.HandleFunc("POST /api/accounts/import", s.importAccounts)
		mux.HandleFunc("POST /api/accounts/validate", s.validateAccounts)
		mux.HandleFunc("POST /api/accounts/health-check", s.checkHealth)
		mux.HandleFunc("POST /api/accounts/health-check/stop", s.stopHealthCheck)
		mux.HandleFunc("POST /api/accounts/project", s.updateProject)
		mux.HandleFunc("GET /api/accounts/{id}", s.getAccount)
		mux.HandleFunc("DELETE /api/accounts/{id}", s.deleteAccount)
		mux.HandleFunc("POST /api/accounts/{id}/verify", s.verifyAccount)
		mux.HandleFunc("POST /api/accounts/{id}/cookies", s.importCookies)
		mux.HandleFunc("POST /api/accounts/{id}/login", s.loginAccount)
		mux.HandleFunc("POST /api/accounts/{id}/profile", s.fetchProfile)
	}
	if s.svc.Materials != nil {
		mux.HandleFunc("GET /api/materials", s.listMaterials)
		mux.HandleFunc("POST /api/materials", s.addMaterials)
		mux.HandleFunc("DELETE /api/materials", s.deleteMaterials)
		mux.HandleFunc("GET /api/locations", s.listLocations)
		mux.HandleFunc("POST /api/locations", s.saveLocations)
		mux.HandleFunc("DELETE /api/locations", s.deleteLocations)
	}
	if s.svc.Orchestrator != nil {
		mux.HandleFunc("POST /api/campaigns/start", s.startCampaign)
		mux.HandleFunc("POST /api/campaigns/estimate", s.estimateCampaign)
		mux.HandleFunc("GET /api/campaigns/running", s.runningCampaigns)
		mux.HandleFunc("POST /api/campaigns/{id}/stop", s.stopCampaign)
		mux.HandleFunc("GET /api/events", s.streamEvents)
	}
	if s.svc.Records != nil {
		mux.HandleFunc("GET /api/campaigns", s.listCampaigns)
		mux.HandleFunc("POST /api/campaigns", s.saveCampaign)
		mux.HandleFunc("DELETE /api/campaigns/{id}", s.deleteCampaign)
		mux.HandleFunc("GET /api/history/{log}", s.listHistory)
		mux.HandleFunc("DELETE /api/history/{log}", s.deleteHistory)
		if s.svc.Orchestrator != nil {
			mux.HandleFunc("POST /api/campaigns/{id}/run", s.runStoredCampaign)
		}
	}
	if s.svc.Maintenance != nil {
		mux.HandleFunc("POST /api/scan", s.scanItems)
		mux.HandleFunc("POST /api/execute", s.executeItems)
		mux.HandleFunc("POST /api/execute/item", s.executeItem)
		mux.HandleFunc("POST /api/execute/stop", s.stopExecution)
	}
	if s.svc.Discovery != nil {
		mux.HandleFunc("POST /api/discovery/keywords", s.scrapeKeywords)
		mux.HandleFunc("POST /api/discovery/groups", s.scrapeGroups)
		mux.HandleFunc("GET /api/discovery/locations", s.searchLocations)
		mux.HandleFunc("GET /api/groups", s.listGroups)
	}
	if s.svc.Quota != nil {
		mux.HandleFunc("GET /api/quota", s.quotaUsage)
		mux.HandleFunc("POST /api/quota/check", s.quotaCheck)
	}
	if s.svc.Dashboard != nil {
		mux.HandleFunc("GET /api/dashboard", s.dashboardStats)
	}
	return mux
}

// Start begins serving HTTP requests in a separate goroutine.
func (s *Server) Start() error {
	if s.cfg.ServerPort == "" {
		return fmt.Errorf("server port is not configured")
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP API server stopped with error", zap.Error(err))
		}
	}()
	logger.Info("HTTP API server listening", zap.String("addr", s.server.Addr))
	return nil
}

// Shutdown aborts the runs started through the API and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) dashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Dashboard.Stats()
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// decode reads a JSON body into v, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondFailure maps use case errors onto status codes.
func respondFailure(w http.ResponseWriter, err error) {
	var (
		validation *domain.ValidationError
		quota      *domain.QuotaExceededError
	)
	switch {
	case errors.As(err, &validation):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &quota):
		respondError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrCampaignRunning):
		respondError(w, http.StatusConflict, err.Error())
	default:
		logger.Error("Request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// statusRecorder captures the response code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps the event stream working through the middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if strings.HasPrefix(r.URL.Path, "/metrics") {
			return
		}
		logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}
