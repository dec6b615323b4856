package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	muxtrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gorilla/mux"

	"github.com/triaxial/triaxial/internal/database"
	"github.com/triaxial/triaxial/internal/export"
)

const serviceName = "triaxial-api"

type Server struct {
	db       *database.DB
	statsd   *statsd.Client
	logger   logrus.FieldLogger
	exporter export.ReadingExporter
	now      func() time.Time

	isProductionEnvironment bool
	isTestEnvironment       bool
	releaseVersion          string
	corsOrigins             []string
}

type Option func(*Server)

func WithStatsd(statsd *statsd.Client) Option {
	return func(s *Server) {
		s.statsd = statsd
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithReadingExporter mirrors every stored reading to exporter.
func WithReadingExporter(exporter export.ReadingExporter) Option {
	return func(s *Server) {
		s.exporter = exporter
	}
}

func WithReleaseVersion(releaseVersion string) Option {
	return func(s *Server) {
		s.releaseVersion = releaseVersion
	}
}

func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

func IsProductionEnvironment(v bool) Option {
	return func(s *Server) {
		s.isProductionEnvironment = v
	}
}

func IsTestEnvironment(v bool) Option {
	return func(s *Server) {
		s.isTestEnvironment = v
	}
}

func NewServer(db *database.DB, options ...Option) *Server {
	srv := Server{
		db:             db,
		logger:         logrus.StandardLogger(),
		now:            time.Now,
		releaseVersion: "dev",
		corsOrigins:    []string{"*"},
	}
	for _, option := range options {
		option(&srv)
	}
	if srv.isProductionEnvironment && srv.isTestEnvironment {
		panic(fmt.Errorf("cannot create a server that is both a prod environment and a test environment: %#v", srv))
	}
	return &srv
}

// Handler builds the full routing tree, including middlewares and CORS.
func (s *Server) Handler() http.Handler {
	router := muxtrace.NewRouter(muxtrace.WithServiceName(serviceName))
	s.registerRoutes(router)

	return cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", versionHeader},
	}).Handler(router)
}

func (s *Server) registerRoutes(router *muxtrace.Router) {
	middleware := mergeMiddlewares(
		withPanicGuard(s.logger),
		withLogging(s.statsd, s.logger),
	)
	handle := func(paths []string, method string, h http.HandlerFunc) {
		wrapped := middleware(h)
		for _, path := range paths {
			router.Handle(path, wrapped).Methods(method)
		}
	}

	handle([]string{"/users/", "/users"}, http.MethodPost, s.createUserHandler)
	handle([]string{"/devices/", "/devices"}, http.MethodPost, s.registerDeviceHandler)
	handle([]string{"/data/", "/data"}, http.MethodPost, s.receiveDataHandler)
	handle([]string{"/data/batch"}, http.MethodPost, s.receiveDataBatchHandler)
	handle([]string{"/stats/{device_id}"}, http.MethodGet, s.deviceStatsHandler)
	handle([]string{"/user_stats/{username}"}, http.MethodGet, s.userStatsHandler)
	handle([]string{"/healthcheck"}, http.MethodGet, s.healthCheckHandler)
	handle([]string{"/internal/api/v1/stats"}, http.MethodGet, s.statsHandler)
	handle([]string{"/internal/api/v1/devices"}, http.MethodGet, s.deviceUsageHandler)
	if s.isTestEnvironment {
		handle([]string{"/api/v1/wipe-db-entries"}, http.MethodPost, s.wipeDbEntriesHandler)
		handle([]string{"/api/v1/get-num-connections"}, http.MethodGet, s.getNumConnectionsHandler)
	}
	if s.isProductionEnvironment {
		registerPprof(router)
	}
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	if s.isProductionEnvironment {
		defer configureObservability(s.releaseVersion, s.logger)()
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Warn("failed to shut down cleanly")
		}
	}()

	s.logger.Infof("Listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil {
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http.ListenAndServe: %w", err)
		}
	}

	return nil
}

func (s *Server) exportReadings(ctx context.Context, readings ...*database.Reading) {
	if s.exporter == nil {
		return
	}
	if err := s.exporter.Export(ctx, readings...); err != nil {
		s.logger.WithError(err).WithField("num_readings", len(readings)).Warn("failed to export readings")
		if s.statsd != nil {
			s.statsd.Incr("triaxial.export.error", []string{}, 1.0)
		}
	}
}
