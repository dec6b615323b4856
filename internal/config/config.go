package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvironmentDevelopment = "development"
	EnvironmentTest        = "test"
	EnvironmentProduction  = "production"

	envPrefix = "TRIAXIAL_"
)

type Config struct {
	ListenAddr  string         `yaml:"listen_addr"`
	Environment string         `yaml:"environment"`
	Log         LogConfig      `yaml:"log"`
	Database    DatabaseConfig `yaml:"database"`
	Statsd      StatsdConfig   `yaml:"statsd"`
	Influx      InfluxConfig   `yaml:"influx"`
	CORS        CORSConfig     `yaml:"cors"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// Empty means stderr.
	File string `yaml:"file"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type StatsdConfig struct {
	Addr string `yaml:"addr"`
}

// InfluxConfig enables mirroring of readings into InfluxDB when URL is set.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

func Default() Config {
	return Config{
		ListenAddr:  ":8080",
		Environment: EnvironmentDevelopment,
		Log:         LogConfig{Level: "info"},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "file:triaxial.db?_journal_mode=WAL",
			MaxIdleConns: 10,
		},
		Influx: InfluxConfig{Bucket: "triaxial"},
		CORS:   CORSConfig{AllowedOrigins: []string{"*"}},
	}
}

// Load builds the config from defaults, the YAML file at path (skipped when it does not exist), a
// .env file in the working directory and finally TRIAXIAL_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"LISTEN_ADDR":     &c.ListenAddr,
		"ENVIRONMENT":     &c.Environment,
		"LOG_LEVEL":       &c.Log.Level,
		"LOG_FILE":        &c.Log.File,
		"DB_DRIVER":       &c.Database.Driver,
		"DB_DSN":          &c.Database.DSN,
		"STATSD_ADDR":     &c.Statsd.Addr,
		"INFLUXDB_URL":    &c.Influx.URL,
		"INFLUXDB_TOKEN":  &c.Influx.Token,
		"INFLUXDB_ORG":    &c.Influx.Org,
		"INFLUXDB_BUCKET": &c.Influx.Bucket,
	}
	for name, target := range strs {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*target = v
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "DB_MAX_IDLE_CONNS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sDB_MAX_IDLE_CONNS=%#v: %w", envPrefix, v, err)
		}
		c.Database.MaxIdleConns = n
	}
	if v, ok := os.LookupEnv(envPrefix + "CORS_ALLOWED_ORIGINS"); ok {
		c.CORS.AllowedOrigins = splitList(v)
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Environment {
	case EnvironmentDevelopment, EnvironmentTest, EnvironmentProduction:
	default:
		return fmt.Errorf("unknown environment %#v", c.Environment)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn must be set")
	}
	if c.Influx.URL != "" && (c.Influx.Token == "" || c.Influx.Org == "" || c.Influx.Bucket == "") {
		return errors.New("influx configuration is incomplete: url, token, org and bucket are all required")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Environment == EnvironmentProduction
}

func (c Config) IsTest() bool {
	return c.Environment == EnvironmentTest
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
