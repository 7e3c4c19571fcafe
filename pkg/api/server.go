// Package api serves read-only inspection of the bag files in a directory.
//
// @title           Frost REST API
// @version         1.0.0
// @description     Read-only inspection of the ROS bag files in a data directory.
// @BasePath        /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in              header
// @name            X-API-Key
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swaggo/swag"

	"github.com/ssargent/frost/pkg/bag"
	"github.com/ssargent/frost/pkg/chunk"
)

const (
	// DefaultMaxMessages caps the messages endpoint when the config does not.
	DefaultMaxMessages = 10000
	defaultLimit       = 100

	statsInterval   = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server holds the API server state
type Server struct {
	config       ServerConfig
	source       MetadataSource
	registry     *prometheus.Registry
	metrics      *Metrics
	chunkMetrics *chunk.Metrics
	logger       *slog.Logger
	handler      http.Handler
}

// NewServer creates a server for config. A nil source reads metadata
// directly from the files.
func NewServer(config ServerConfig, source MetadataSource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if source == nil {
		source = MetadataFunc(func(path string) (*bag.Metadata, error) {
			return bag.ReadMetadata(path)
		})
	}
	if config.MaxMessages <= 0 {
		config.MaxMessages = DefaultMaxMessages
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		config:       config,
		source:       source,
		registry:     reg,
		metrics:      NewMetrics(reg),
		chunkMetrics: chunk.NewMetrics(reg),
		logger:       logger.With("component", "api"),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Registry returns the registry behind /metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Unprotected for scraping.
	if s.config.EnableMetrics {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.metrics.InstrumentAuthMiddleware(apiKeyMiddleware(s.config.APIKey)))

		r.Get("/health", s.metrics.InstrumentHandler("GET", "/api/v1/health", s.handleHealth))
		r.Get("/bags", s.metrics.InstrumentHandler("GET", "/api/v1/bags", s.handleListBags))
		r.Get("/bags/{name}", s.metrics.InstrumentHandler("GET", "/api/v1/bags/{name}", s.handleGetBag))
		r.Get("/bags/{name}/messages", s.metrics.InstrumentHandler("GET", "/api/v1/bags/{name}/messages", s.handleMessages))
	})

	// Unprotected, like /metrics.
	r.Get("/swagger/*", s.handleSwagger)

	return r
}

const swaggerUI = `<!DOCTYPE html>
<html>
<head>
	 <title>Frost API Documentation</title>
	 <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@3.25.0/swagger-ui.css" />
</head>
<body>
	 <div id="swagger-ui"></div>
	 <script src="https://unpkg.com/swagger-ui-dist@3.25.0/swagger-ui-bundle.js"></script>
	 <script>
	   window.onload = function() {
	     SwaggerUIBundle({
	       url: '/swagger/swagger.json',
	       dom_id: '#swagger-ui',
	       presets: [
	         SwaggerUIBundle.presets.apis,
	         SwaggerUIBundle.presets.standalone
	       ]
	     });
	   };
	 </script>
</body>
</html>`

func (s *Server) handleSwagger(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/swagger/", "/swagger/index.html":
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(swaggerUI))
	case "/swagger/swagger.json", "/swagger/doc.json":
		doc, err := swag.ReadDoc(SwaggerInfo.InstanceName())
		if err != nil {
			s.logger.Error("failed to generate swagger doc", "error", err)
			http.Error(w, "Failed to generate Swagger documentation", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(doc))
	default:
		http.NotFound(w, r)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.startMetricsUpdater(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", srv.Addr, "data_dir", s.config.DataDir, "metrics", s.config.EnableMetrics)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "server failed")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}

// startMetricsUpdater periodically refreshes the data directory gauges
func (s *Server) startMetricsUpdater(ctx context.Context) {
	s.refreshBagStats()

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshBagStats()
		}
	}
}

func (s *Server) refreshBagStats() {
	files, err := s.bagFiles()
	if err != nil {
		s.logger.Warn("failed to list data directory", "error", err)
		return
	}
	var total int64
	for _, f := range files {
		total += f.size
	}
	s.metrics.UpdateBagStats(len(files), total)
}
