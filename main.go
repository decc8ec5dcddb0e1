package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/codefionn/durchlauf/durchlauf-srv/config"
	"github.com/codefionn/durchlauf/durchlauf-srv/filter"
	"github.com/codefionn/durchlauf/durchlauf-srv/logger"
	"github.com/codefionn/durchlauf/durchlauf-srv/proxy"
	"github.com/codefionn/durchlauf/durchlauf-srv/stats"
)

var version string

func main() {
	cfg, configPath := parseFlagsAndConfig()
	runProxy(cfg, configPath)
}

// parseFlagsAndConfig handles CLI flags, environment, logging, and config loading.
func parseFlagsAndConfig() (cfg *config.Config, configPath string) {
	versionFlag := flag.Bool("version", false, "Print version and exit")
	versionShortFlag := flag.Bool("v", false, "Print version and exit (shorthand)")
	configPathPtr := flag.String("config", "config.json", "Path to configuration file (supports .json and .hcl formats)")
	envfile := flag.String("envfile", "", "Path to env file to load environment variables")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *versionFlag || *versionShortFlag {
		if version == "" {
			version = "dev"
		}
		fmt.Println("durchlauf version:", version)
		os.Exit(0)
	}

	if *envfile != "" {
		if err := loadEnvFile(*envfile); err != nil {
			logger.Fatal("Failed to load envfile: %v", err)
		}
		logger.Info("Loaded environment variables from %s", *envfile)
	}

	logger.Info("Starting durchlauf proxy server")

	cfg, err := config.LoadConfig(*configPathPtr)
	if err != nil {
		logger.Warn("Could not load config file: %v. Using environment variables.", err)
		cfg, err = config.LoadConfig("")
		if err != nil {
			logger.Fatal("Failed to load configuration: %v", err)
		}
	}

	if *debugMode {
		cfg.LogLevel = "DEBUG"
	}
	logger.SetLevel(logger.GetLevelFromString(cfg.LogLevel))
	logger.Debug("Using configuration file: %s", *configPathPtr)

	return cfg, *configPathPtr
}

// buildServer assembles the proxy server and its collaborators from a config.
// A non-nil collector is reused so the aggregate counters keep their
// process-lifetime values across a reload.
func buildServer(cfg *config.Config, collector stats.Collector) (*proxy.Server, error) {
	blocklist := filter.NewBlocklist(cfg.EnableFiltering, cfg.CaseSensitive)
	if cfg.EnableFiltering {
		if _, err := blocklist.LoadFromFile(cfg.BlockedList); err != nil {
			return nil, fmt.Errorf("failed to load blocklist: %w", err)
		}
	}

	if collector == nil {
		var err error
		collector, err = stats.NewCollector(cfg.Statistics)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize statistics collector: %w", err)
		}
	}

	accessLog, err := logger.NewAccessLog(cfg.LogDir, cfg.LogFile, cfg.MaxLogSizeKB, cfg.LogRotationCount)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize access log: %w", err)
	}

	return proxy.NewServer(cfg, blocklist, collector, accessLog), nil
}

// runProxy starts and manages the proxy server, including signal handling and reloads.
func runProxy(cfg *config.Config, configPath string) {
	cfg.Display()

	server, err := buildServer(cfg, nil)
	if err != nil {
		logger.Fatal("Failed to initialize proxy: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	startServer := func(s *proxy.Server) {
		go func() {
			if err := s.Start(); err != nil {
				logger.Fatal("Proxy server error: %v", err)
			}
		}()
	}

	startServer(server)
	currentCfg := cfg

	for {
		sig := <-sigChan
		switch sig {
		case syscall.SIGHUP:
			logger.Info("Received SIGHUP: reloading configuration...")
			newCfg, err := config.LoadConfig(configPath)
			if err != nil {
				logger.Error("Failed to reload config: %v (keeping current config)", err)
				continue
			}
			if !config.HasChanged(currentCfg, newCfg) {
				logger.Info("Config unchanged after reload; not restarting proxy.")
				continue
			}
			logger.Info("Config changed. Restarting proxy...")
			if err := server.Stop(); err != nil {
				logger.Error("Error stopping proxy for reload: %v", err)
			}
			// The aggregate counters live for the whole process; the
			// collector is only replaced when its backend config changed.
			collector := server.Collector()
			if newCfg.Statistics != currentCfg.Statistics {
				if err := collector.Close(); err != nil {
					logger.Error("Error closing statistics collector: %v", err)
				}
				collector = nil
			}
			newServer, err := buildServer(newCfg, collector)
			if err != nil {
				logger.Fatal("Failed to initialize proxy with new configuration: %v", err)
			}
			server = newServer
			startServer(server)
			currentCfg = newCfg
			logger.Info("Proxy restarted with new configuration.")
		case syscall.SIGINT, syscall.SIGTERM:
			logger.Info("Received signal %v, shutting down proxy server...", sig)
			if err := server.Stop(); err != nil {
				logger.Error("Error during shutdown: %v", err)
			}
			printMetricsSummary(server.Collector())
			if err := server.Collector().Close(); err != nil {
				logger.Error("Error closing statistics collector: %v", err)
			}
			logger.Info("Proxy server shutdown complete")
			return
		}
	}
}

// printMetricsSummary prints the aggregate counters gathered over the
// lifetime of the process.
func printMetricsSummary(collector stats.Collector) {
	snapshot := collector.Snapshot()
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("Proxy Server Metrics Summary")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Total Requests:    %d\n", snapshot.Total)
	fmt.Printf("Allowed:           %d\n", snapshot.Allowed)
	fmt.Printf("Blocked:           %d\n", snapshot.Blocked)
	fmt.Printf("Bytes Sent:        %d (%s)\n", snapshot.BytesSent, logger.FormatBytes(snapshot.BytesSent))
	fmt.Printf("Bytes Received:    %d (%s)\n", snapshot.BytesReceived, logger.FormatBytes(snapshot.BytesReceived))
	fmt.Println(strings.Repeat("=", 60))
}

// loadEnvFile reads a .env-style file and sets environment variables
func loadEnvFile(path string) error {
	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) {
		absPath, err := filepath.Abs(cleanPath)
		if err != nil {
			return fmt.Errorf("invalid file path: %w", err)
		}
		cleanPath = absPath
	}
	f, err := os.Open(cleanPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			logger.Error("Error closing env file: %v", closeErr)
		}
	}()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		if setErr := os.Setenv(key, val); setErr != nil {
			logger.Error("Error setting environment variable %s: %v", key, setErr)
		}
	}
	return scanner.Err()
}
