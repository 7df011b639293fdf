package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// databaseURLEnv names the environment variable that overrides the Postgres DSN.
const databaseURLEnv = "DATABASE_URL"

type Config struct {
	Env        string `yaml:"env"`
	Registry   `yaml:"registry"`
	Storage    `yaml:"storage"`
	HTTPServer `yaml:"http_server"`
	Postgres   `yaml:"postgres"`
}

type Registry struct {
	BaseCodeLength int `yaml:"base_code_length"`
	MaxRetries     int `yaml:"max_retries"`
}

var defaultRegistry = Registry{
	BaseCodeLength: 4,
	MaxRetries:     10,
}

type Storage struct {
	Driver string `yaml:"driver"`
	// LogPath is the append-only log of the memory driver. Empty disables durability.
	LogPath string `yaml:"log_path"`
}

var defaultStorage = Storage{
	Driver: StorageDriverPostgres,
}

type HTTPServer struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
	CertFile       string        `yaml:"cert_file"`
	KeyFile        string        `yaml:"key_file"`
}

var defaultHTTPServer = HTTPServer{
	Port:           8080,
	ReadTimeout:    5 * time.Second,
	WriteTimeout:   10 * time.Second,
	IdleTimeout:    time.Minute,
	MaxHeaderBytes: 1 << 20,
}

func (s *HTTPServer) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type Postgres struct {
	Driver          string        `yaml:"driver"`
	URL             string        `yaml:"url"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	DB              string        `yaml:"db"`
	SSLMode         string        `yaml:"sslmode"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
}

var defaultPostgres = Postgres{
	Driver:          "pgx",
	Host:            "localhost",
	Port:            5432,
	SSLMode:         "disable",
	ConnMaxIdleTime: 5 * time.Minute,
	ConnMaxLifetime: 30 * time.Minute,
	MaxIdleConns:    5,
	MaxOpenConns:    25,
}

// DSN returns URL when it is set and a DSN composed of the individual
// fields otherwise.
func (p *Postgres) DSN() string {
	if p.URL != "" {
		return p.URL
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DB, p.SSLMode)
}

// LoadEnv loads the given .env files into the process environment without
// overriding variables that are already set. With no arguments it loads
// ".env" from the working directory. Missing files are ignored.
func LoadEnv(filenames ...string) error {
	const op = "config.LoadEnv"

	if len(filenames) == 0 {
		filenames = []string{".env"}
	}

	for _, name := range filenames {
		if err := godotenv.Load(name); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return fmt.Errorf("%s: failed to load %s: %w", op, name, err)
		}
	}

	return nil
}

func Load(path string) (*Config, error) {
	const op = "config.Load"

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open config file: %w", op, err)
	}
	defer f.Close()

	var cfg Config
	setDefaults(&cfg)

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%s: failed to decode config file: %w", op, err)
	}

	if url, ok := os.LookupEnv(databaseURLEnv); ok && url != "" {
		cfg.Postgres.URL = url
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}

	return &cfg, nil
}

// Validate reports the first setting that the service cannot run with.
func (c *Config) Validate() error {
	switch c.Env {
	case EnvDev, EnvStage, EnvProd:
	default:
		return fmt.Errorf("unknown env %q", c.Env)
	}

	if c.Registry.BaseCodeLength < 4 {
		return fmt.Errorf("registry.base_code_length must be at least 4, got %d", c.Registry.BaseCodeLength)
	}
	if c.Registry.MaxRetries < 1 {
		return fmt.Errorf("registry.max_retries must be at least 1, got %d", c.Registry.MaxRetries)
	}

	switch c.Storage.Driver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	return nil
}

func setDefaults(cfg *Config) {
	cfg.Env = EnvDev
	cfg.Registry = defaultRegistry
	cfg.Storage = defaultStorage
	cfg.HTTPServer = defaultHTTPServer
	cfg.Postgres = defaultPostgres
}
