package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/triaxial/triaxial/internal/config"
	"github.com/triaxial/triaxial/internal/database"
	"github.com/triaxial/triaxial/internal/export"
	"github.com/triaxial/triaxial/internal/logging"
	"github.com/triaxial/triaxial/internal/server"
)

var configPath *string

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the triaxial API server",
	GroupID: GROUP_ID_SERVER,
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		checkFatalError(runServer(cmd.Context(), *configPath))
	},
}

func runServer(ctx context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN, &gorm.Config{Logger: logging.GormLogger(logger)})
	if err != nil {
		return fmt.Errorf("failed to connect to the DB: %w", err)
	}
	defer db.Close()
	if err := db.AddDatabaseTables(); err != nil {
		return fmt.Errorf("failed to add database tables: %w", err)
	}
	if err := db.CreateIndices(); err != nil {
		return fmt.Errorf("failed to create indices: %w", err)
	}
	if err := db.SetMaxIdleConns(cfg.Database.MaxIdleConns); err != nil {
		return fmt.Errorf("failed to set max idle conns: %w", err)
	}

	options := []server.Option{
		server.WithLogger(logger),
		server.WithReleaseVersion(Version),
		server.WithCORSOrigins(cfg.CORS.AllowedOrigins),
		server.IsProductionEnvironment(cfg.IsProduction()),
		server.IsTestEnvironment(cfg.IsTest()),
	}
	if cfg.Statsd.Addr != "" {
		stats, err := statsd.New(cfg.Statsd.Addr)
		if err != nil {
			return fmt.Errorf("failed to start DataDog statsd: %w", err)
		}
		defer stats.Close()
		options = append(options, server.WithStatsd(stats))
	}
	if cfg.Influx.URL != "" {
		exporter := export.NewInfluxExporter(cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket)
		defer exporter.Close()
		options = append(options, server.WithReadingExporter(exporter))
		logger.Infof("Mirroring readings to InfluxDB at %s (bucket=%s)", cfg.Influx.URL, cfg.Influx.Bucket)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.NewServer(db, options...).Run(ctx, cfg.ListenAddr)
}

func init() {
	rootCmd.AddCommand(serveCmd)
	configPath = serveCmd.Flags().String("config", "triaxial.yaml", "Path to the YAML config file, skipped if it does not exist")
}
