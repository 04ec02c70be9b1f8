package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines application configuration.
type Config struct {
	Server    ServerConfig `yaml:"server"`
	DB        DBConfig     `yaml:"db"`
	Log       LogConfig    `yaml:"log"`
	Transport string       `yaml:"transport"`
	Cache     CacheConfig  `yaml:"cache"`
	Geo       GeoConfig    `yaml:"geo"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

// CacheConfig configures the offline controller. An empty Origin disables it.
type CacheConfig struct {
	Origin      string   `yaml:"origin"`
	Version     string   `yaml:"version"`
	Prefix      string   `yaml:"prefix"`
	Shell       string   `yaml:"shell"`
	Assets      []string `yaml:"assets"`
	Manifest    string   `yaml:"manifest"`
	SkipWaiting bool     `yaml:"skip_waiting"`
}

type GeoConfig struct {
	Endpoint          string        `yaml:"endpoint"`
	UserAgent         string        `yaml:"user_agent"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Disabled          bool          `yaml:"disabled"`
	// Latitude and Longitude, when both set, are reported as the device position.
	Latitude  *float64 `yaml:"latitude"`
	Longitude *float64 `yaml:"longitude"`
}

const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		DB: DBConfig{
			Path: "biodata.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Transport: TransportHTTP,
		Cache: CacheConfig{
			Version: "v1",
			Prefix:  "biodata-cache-",
			Shell:   "/",
		},
		Geo: GeoConfig{
			Endpoint:          "https://nominatim.openstreetmap.org/reverse",
			UserAgent:         "BioDataCollector/1.0",
			Timeout:           15 * time.Second,
			RequestsPerSecond: 1,
		},
	}
}

// Load reads configuration from the file named by BIODATA_CONFIG_PATH, if
// any, and environment variables.
func Load() (Config, error) {
	return LoadFrom(os.Getenv("BIODATA_CONFIG_PATH"))
}

// LoadFrom reads configuration from an optional YAML file at path, then
// applies environment overrides.
func LoadFrom(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if host := os.Getenv("BIODATA_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("BIODATA_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid BIODATA_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if dbPath := os.Getenv("BIODATA_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if level := os.Getenv("BIODATA_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if logPath := os.Getenv("BIODATA_LOG_PATH"); logPath != "" {
		cfg.Log.Path = logPath
	}
	if transport := os.Getenv("BIODATA_TRANSPORT"); transport != "" {
		cfg.Transport = transport
	}
	if origin := os.Getenv("BIODATA_CACHE_ORIGIN"); origin != "" {
		cfg.Cache.Origin = origin
	}
	if version := os.Getenv("BIODATA_CACHE_VERSION"); version != "" {
		cfg.Cache.Version = version
	}
	if manifest := os.Getenv("BIODATA_CACHE_MANIFEST"); manifest != "" {
		cfg.Cache.Manifest = manifest
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the application cannot start with.
func (c Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch c.Transport {
	case TransportHTTP, TransportStdio:
	default:
		return fmt.Errorf("invalid transport %q: must be %q or %q", c.Transport, TransportHTTP, TransportStdio)
	}
	if c.Cache.Origin != "" && c.Cache.Version == "" && c.Cache.Manifest == "" {
		return fmt.Errorf("cache version is required when an origin is set")
	}
	if (c.Geo.Latitude == nil) != (c.Geo.Longitude == nil) {
		return fmt.Errorf("geo latitude and longitude must be set together")
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
