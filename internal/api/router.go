package api

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/CFabianPBB/budget-allocation-app/internal/allocation"
	"github.com/CFabianPBB/budget-allocation-app/internal/metrics"
	"github.com/CFabianPBB/budget-allocation-app/internal/store"
	"github.com/CFabianPBB/budget-allocation-app/internal/ws"
)

var startTime = time.Now()

type HealthResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// RouterConfig carries the dependencies of the HTTP surface.
type RouterConfig struct {
	Pipeline           *allocation.Pipeline
	Store              *store.ResultStore
	Hub                *ws.Hub
	Metrics            *metrics.Registry
	Logger             *zap.Logger
	MaxUploadBytes     int64
	CORSAllowedOrigins []string
	WSAllowedOrigins   []string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	corsOrigins := cfg.CORSAllowedOrigins
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Run-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	allocateHandler := &AllocateHandler{
		Pipeline:       cfg.Pipeline,
		Store:          cfg.Store,
		Hub:            cfg.Hub,
		Metrics:        cfg.Metrics,
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}
	downloadHandler := &DownloadHandler{Store: cfg.Store, Logger: logger}

	r.Group(func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))
		r.Get("/health", handleHealth)
		r.Get("/", handleRoot)
		r.Post("/allocate-budget", allocateHandler.Allocate)
		if cfg.Metrics != nil {
			r.Get("/metrics", handleMetrics(cfg.Metrics))
		}
	})
	r.Get("/download-result", downloadHandler.Download)
	if cfg.Hub != nil {
		r.Handle("/ws", &ws.Handler{Hub: cfg.Hub, AllowedOrigins: cfg.WSAllowedOrigins, Logger: logger})
	}

	return r
}

// requestLogger writes one access log line per request.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			defer func() {
				logger.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(started)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Version:   getVersion(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	sendJSON(w, http.StatusOK, map[string]string{
		"name":     "Budget Allocation",
		"tagline":  "Splits department budgets across their programs",
		"allocate": "POST /allocate-budget",
		"download": "/download-result",
		"progress": "/ws",
		"health":   "/health",
	})
}

func handleMetrics(registry *metrics.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sendJSON(w, http.StatusOK, registry.SnapshotNow())
	}
}

func getVersion() string {
	if v := os.Getenv("VERSION"); v != "" {
		return v
	}
	return "dev"
}
