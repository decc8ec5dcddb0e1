package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/codefionn/durchlauf/durchlauf-srv/logger"
)

// StatisticsConfig selects and configures the statistics backend.
type StatisticsConfig struct {
	Backend     string `json:"backend" hcl:"backend,optional"`
	SQLitePath  string `json:"sqlite-path" hcl:"sqlite-path,optional"`
	PostgresDSN string `json:"postgres-dsn" hcl:"postgres-dsn,optional"`
}

// Config represents the proxy server configuration. Values are resolved in
// order: built-in defaults, then DURCHLAUF_* environment variables, then the
// configuration file.
type Config struct {
	// Server settings
	Host           string
	Port           int
	Backlog        int
	TimeoutSeconds int

	// Concurrency settings. MaxConnections <= 0 means effectively unlimited.
	MaxConnections int

	// Forwarding settings
	BufferSize            int
	ConnectTimeoutSeconds int
	ForwardBody           bool
	MaxHeaderBytes        int

	// Optional SOCKS5 upstream applied to all outbound dials
	ForwardSocks5 string

	// Filtering settings
	EnableFiltering bool
	CaseSensitive   bool
	BlockedList     string

	// Feature flags
	EnableHTTPS    bool
	DetailedErrors bool

	// Logging settings
	LogDir           string
	LogFile          string
	MaxLogSizeKB     int
	LogRotationCount int
	LogLevel         string

	Statistics StatisticsConfig
}

// fileConfig mirrors Config with pointer fields so that options absent from
// the file do not clobber defaults or environment overrides.
type fileConfig struct {
	Host           *string `json:"host" hcl:"host,optional"`
	Port           *int    `json:"port" hcl:"port,optional"`
	Backlog        *int    `json:"backlog" hcl:"backlog,optional"`
	TimeoutSeconds *int    `json:"timeout-seconds" hcl:"timeout-seconds,optional"`

	MaxConnections *int `json:"max-connections" hcl:"max-connections,optional"`

	BufferSize            *int    `json:"buffer-size" hcl:"buffer-size,optional"`
	ConnectTimeoutSeconds *int    `json:"connect-timeout-seconds" hcl:"connect-timeout-seconds,optional"`
	ForwardBody           *bool   `json:"forward-body" hcl:"forward-body,optional"`
	MaxHeaderBytes        *int    `json:"max-header-bytes" hcl:"max-header-bytes,optional"`
	ForwardSocks5         *string `json:"forward-socks5" hcl:"forward-socks5,optional"`

	EnableFiltering *bool   `json:"enable-filtering" hcl:"enable-filtering,optional"`
	CaseSensitive   *bool   `json:"case-sensitive" hcl:"case-sensitive,optional"`
	BlockedList     *string `json:"blocked-list" hcl:"blocked-list,optional"`

	EnableHTTPS    *bool `json:"enable-https" hcl:"enable-https,optional"`
	DetailedErrors *bool `json:"detailed-errors" hcl:"detailed-errors,optional"`

	LogDir           *string `json:"log-dir" hcl:"log-dir,optional"`
	LogFile          *string `json:"log-file" hcl:"log-file,optional"`
	MaxLogSizeKB     *int    `json:"max-log-size" hcl:"max-log-size,optional"`
	LogRotationCount *int    `json:"log-rotation-count" hcl:"log-rotation-count,optional"`
	LogLevel         *string `json:"log-level" hcl:"log-level,optional"`

	Statistics *StatisticsConfig `json:"statistics" hcl:"statistics,block"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:                  "0.0.0.0",
		Port:                  8888,
		Backlog:               50,
		TimeoutSeconds:        30,
		MaxConnections:        100,
		BufferSize:            4096,
		ConnectTimeoutSeconds: 10,
		ForwardBody:           true,
		MaxHeaderBytes:        64 * 1024,
		EnableFiltering:       true,
		CaseSensitive:         false,
		BlockedList:           "config/blocked_domains.txt",
		EnableHTTPS:           true,
		DetailedErrors:        true,
		LogDir:                "logs",
		LogFile:               "proxy.log",
		MaxLogSizeKB:          10,
		LogRotationCount:      5,
		LogLevel:              "INFO",
		Statistics:            StatisticsConfig{Backend: "memory"},
	}
}

// LoadConfig loads configuration from the specified file path. An empty path
// loads defaults plus environment variables only. Supported file formats are
// .json and .hcl.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	loadConfigFromEnv(cfg)

	if configPath == "" {
		return cfg, nil
	}

	cleanPath := filepath.Clean(configPath)
	if !filepath.IsAbs(cleanPath) {
		absPath, err := filepath.Abs(cleanPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config file path: %w", err)
		}
		cleanPath = absPath
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(cleanPath)) {
	case ".json":
		if err := loadJSONConfig(cleanPath, &fc); err != nil {
			return nil, err
		}
	case ".hcl":
		if err := hclsimple.DecodeFile(cleanPath, nil, &fc); err != nil {
			return nil, fmt.Errorf("failed to decode HCL config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", filepath.Ext(cleanPath))
	}

	applyFileConfig(cfg, &fc)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadJSONConfig(path string, fc *fileConfig) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			logger.Error("Error closing config file: %v", closeErr)
		}
	}()

	if err := json.NewDecoder(file).Decode(fc); err != nil {
		return fmt.Errorf("failed to decode JSON config: %w", err)
	}
	return nil
}

func applyFileConfig(cfg *Config, fc *fileConfig) {
	setIfPresent(&cfg.Host, fc.Host)
	setIfPresent(&cfg.Port, fc.Port)
	setIfPresent(&cfg.Backlog, fc.Backlog)
	setIfPresent(&cfg.TimeoutSeconds, fc.TimeoutSeconds)
	setIfPresent(&cfg.MaxConnections, fc.MaxConnections)
	setIfPresent(&cfg.BufferSize, fc.BufferSize)
	setIfPresent(&cfg.ConnectTimeoutSeconds, fc.ConnectTimeoutSeconds)
	setIfPresent(&cfg.ForwardBody, fc.ForwardBody)
	setIfPresent(&cfg.MaxHeaderBytes, fc.MaxHeaderBytes)
	setIfPresent(&cfg.ForwardSocks5, fc.ForwardSocks5)
	setIfPresent(&cfg.EnableFiltering, fc.EnableFiltering)
	setIfPresent(&cfg.CaseSensitive, fc.CaseSensitive)
	setIfPresent(&cfg.BlockedList, fc.BlockedList)
	setIfPresent(&cfg.EnableHTTPS, fc.EnableHTTPS)
	setIfPresent(&cfg.DetailedErrors, fc.DetailedErrors)
	setIfPresent(&cfg.LogDir, fc.LogDir)
	setIfPresent(&cfg.LogFile, fc.LogFile)
	setIfPresent(&cfg.MaxLogSizeKB, fc.MaxLogSizeKB)
	setIfPresent(&cfg.LogRotationCount, fc.LogRotationCount)
	setIfPresent(&cfg.LogLevel, fc.LogLevel)
	if fc.Statistics != nil {
		if fc.Statistics.Backend != "" {
			cfg.Statistics.Backend = fc.Statistics.Backend
		}
		if fc.Statistics.SQLitePath != "" {
			cfg.Statistics.SQLitePath = fc.Statistics.SQLitePath
		}
		if fc.Statistics.PostgresDSN != "" {
			cfg.Statistics.PostgresDSN = fc.Statistics.PostgresDSN
		}
	}
}

func setIfPresent[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// loadConfigFromEnv applies DURCHLAUF_* environment variable overrides.
func loadConfigFromEnv(cfg *Config) {
	if v := os.Getenv("DURCHLAUF_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("DURCHLAUF_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		} else {
			logger.Warn("Ignoring invalid DURCHLAUF_PORT: %s", v)
		}
	}
	if v := os.Getenv("DURCHLAUF_MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConnections = n
		} else {
			logger.Warn("Ignoring invalid DURCHLAUF_MAX_CONNECTIONS: %s", v)
		}
	}
	if v := os.Getenv("DURCHLAUF_BLOCKED_LIST"); v != "" {
		cfg.BlockedList = v
	}
	if v := os.Getenv("DURCHLAUF_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv("DURCHLAUF_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DURCHLAUF_FORWARD_SOCKS5"); v != "" {
		cfg.ForwardSocks5 = v
	}
}

func validate(cfg *Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.BufferSize <= 0 {
		return fmt.Errorf("buffer-size must be positive, got %d", cfg.BufferSize)
	}
	if cfg.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout-seconds must not be negative, got %d", cfg.TimeoutSeconds)
	}
	if cfg.MaxHeaderBytes <= 0 {
		return fmt.Errorf("max-header-bytes must be positive, got %d", cfg.MaxHeaderBytes)
	}
	return nil
}

// HasChanged reports whether two configurations differ. Used to decide
// whether a SIGHUP reload requires a proxy restart.
func HasChanged(old, new *Config) bool {
	return !reflect.DeepEqual(old, new)
}

// ListenAddress returns the host:port the proxy should listen on.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Display prints the effective configuration to stdout.
func (c *Config) Display() {
	maxConns := "Unlimited"
	if c.MaxConnections > 0 {
		maxConns = strconv.Itoa(c.MaxConnections)
	}
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("Proxy Server Configuration")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Server Address: %s\n", c.ListenAddress())
	fmt.Printf("Listen Backlog: %d\n", c.Backlog)
	fmt.Printf("Socket Timeout: %ds\n", c.TimeoutSeconds)
	fmt.Printf("Max Connections: %s\n", maxConns)
	fmt.Printf("Buffer Size: %d bytes\n", c.BufferSize)
	fmt.Printf("Connect Timeout: %ds\n", c.ConnectTimeoutSeconds)
	fmt.Printf("Log Directory: %s\n", c.LogDir)
	fmt.Printf("Max Log Size: %d KB\n", c.MaxLogSizeKB)
	fmt.Printf("Filtering Enabled: %t\n", c.EnableFiltering)
	fmt.Printf("HTTPS Support: %t\n", c.EnableHTTPS)
	fmt.Printf("Body Forwarding: %t\n", c.ForwardBody)
	fmt.Printf("Statistics Backend: %s\n", c.Statistics.Backend)
	fmt.Println(strings.Repeat("=", 60))
}
