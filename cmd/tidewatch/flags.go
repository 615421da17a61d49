package main

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// flags holds the process configuration. Every flag falls back to a
// TIDEWATCH_* environment variable so containerized deployments need no
// argv plumbing.
type flags struct {
	configPath      string
	logLevel        string
	logFormat       string
	opsAddr         string
	shutdownTimeout time.Duration
	checkConfig     bool
}

func parseFlags(args []string) (*flags, error) {
	fs := flag.NewFlagSet("tidewatch", flag.ContinueOnError)

	f := &flags{}
	fs.StringVar(&f.configPath, "config", envOr("TIDEWATCH_CONFIG", "tidewatch.yaml"),
		"path to the configuration file")
	fs.StringVar(&f.logLevel, "log-level", envOr("TIDEWATCH_LOG_LEVEL", "info"),
		"log level (debug, info, warn, error)")
	fs.StringVar(&f.logFormat, "log-format", envOr("TIDEWATCH_LOG_FORMAT", "json"),
		"log format (json, text)")
	fs.StringVar(&f.opsAddr, "ops-addr", envOr("TIDEWATCH_OPS_ADDR", ":9090"),
		"listen address for the ops endpoints (health, stats, metrics)")
	fs.DurationVar(&f.shutdownTimeout, "shutdown-timeout", envDurationOr("TIDEWATCH_SHUTDOWN_TIMEOUT", 30*time.Second),
		"how long to wait for a clean shutdown")
	fs.BoolVar(&f.checkConfig, "check-config", false,
		"load and validate the configuration, then exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
