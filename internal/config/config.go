// Package config loads server settings and per-language recognition configs.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Server holds the configuration for the recognition server.
type Server struct {
	Addr      string
	ConfigDir string
	DataDir   string
	WebDir    string

	DefaultLanguage string
	Languages       []string

	StartTimeout time.Duration
	StopTimeout  time.Duration
	IdleInterval time.Duration

	PythonPath       string
	ClassifierScript string

	LogLevel  string
	LogFormat string

	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string

	PluginDir     string
	PluginTimeout time.Duration
}

// Default returns a Server config with the built-in defaults.
func Default() *Server {
	dataDir := ".signflow"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".signflow")
	}

	return &Server{
		Addr:             ":3003",
		ConfigDir:        "models",
		DataDir:          dataDir,
		DefaultLanguage:  "ru",
		Languages:        []string{"ru", "en"},
		StartTimeout:     60 * time.Second,
		StopTimeout:      2 * time.Second,
		IdleInterval:     10 * time.Millisecond,
		ClassifierScript: "scripts/classifier_service.py",
		LogLevel:         "info",
		LogFormat:        "text",
		MQTTTopic:        "signflow/words",
		MQTTClientID:     "signflow",
		PluginDir:        "plugins",
		PluginTimeout:    5 * time.Second,
	}
}

// Load builds the config from defaults, an optional .env file and SIGNFLOW_*
// environment variables. Flags are applied afterwards with ApplyFlags.
func Load() (*Server, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	cfg.Addr = getEnv("SIGNFLOW_ADDR", cfg.Addr)
	cfg.ConfigDir = getEnv("SIGNFLOW_CONFIG_DIR", cfg.ConfigDir)
	cfg.DataDir = getEnv("SIGNFLOW_DATA_DIR", cfg.DataDir)
	cfg.WebDir = getEnv("SIGNFLOW_WEB_DIR", cfg.WebDir)
	cfg.DefaultLanguage = getEnv("SIGNFLOW_DEFAULT_LANGUAGE", cfg.DefaultLanguage)
	cfg.PythonPath = getEnv("SIGNFLOW_PYTHON", cfg.PythonPath)
	cfg.ClassifierScript = getEnv("SIGNFLOW_CLASSIFIER_SCRIPT", cfg.ClassifierScript)
	cfg.LogLevel = getEnv("SIGNFLOW_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("SIGNFLOW_LOG_FORMAT", cfg.LogFormat)
	cfg.MQTTBroker = getEnv("SIGNFLOW_MQTT_BROKER", cfg.MQTTBroker)
	cfg.MQTTTopic = getEnv("SIGNFLOW_MQTT_TOPIC", cfg.MQTTTopic)
	cfg.MQTTClientID = getEnv("SIGNFLOW_MQTT_CLIENT_ID", cfg.MQTTClientID)
	cfg.PluginDir = getEnv("SIGNFLOW_PLUGIN_DIR", cfg.PluginDir)

	if langs := getEnv("SIGNFLOW_LANGUAGES", ""); langs != "" {
		cfg.Languages = splitList(langs)
	}

	var err error
	if cfg.StartTimeout, err = getDuration("SIGNFLOW_START_TIMEOUT", cfg.StartTimeout); err != nil {
		return nil, err
	}
	if cfg.StopTimeout, err = getDuration("SIGNFLOW_STOP_TIMEOUT", cfg.StopTimeout); err != nil {
		return nil, err
	}
	if cfg.IdleInterval, err = getDuration("SIGNFLOW_IDLE_INTERVAL", cfg.IdleInterval); err != nil {
		return nil, err
	}
	if cfg.PluginTimeout, err = getDuration("SIGNFLOW_PLUGIN_TIMEOUT", cfg.PluginTimeout); err != nil {
		return nil, err
	}

	return cfg, nil
}

// BindFlags registers command-line flags for every setting.
// Defaults shown in help come from Default().
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("addr", d.Addr, "HTTP listen address")
	fs.String("config-dir", d.ConfigDir, "directory containing config_<lang>.yaml files")
	fs.String("data-dir", d.DataDir, "directory for the sqlite database")
	fs.String("web-dir", d.WebDir, "directory of static web files to serve")
	fs.String("default-language", d.DefaultLanguage, "language loaded when a client connects")
	fs.StringSlice("languages", d.Languages, "languages clients may switch to")
	fs.Duration("start-timeout", d.StartTimeout, "maximum time to wait for a model to load")
	fs.Duration("stop-timeout", d.StopTimeout, "maximum time to wait for a worker to stop")
	fs.Duration("idle-interval", d.IdleInterval, "worker poll interval when no window is ready")
	fs.String("python", d.PythonPath, "python interpreter for the classifier service")
	fs.String("classifier-script", d.ClassifierScript, "path to the classifier service script")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	fs.String("log-format", d.LogFormat, "log format (text, json)")
	fs.String("mqtt-broker", d.MQTTBroker, "MQTT broker host:port for word events (disabled when empty)")
	fs.String("mqtt-topic", d.MQTTTopic, "MQTT topic prefix for word events")
	fs.String("plugin-dir", d.PluginDir, "directory of word plugins (disabled when empty)")
	fs.Duration("plugin-timeout", d.PluginTimeout, "maximum run time of one plugin")
}

// ApplyFlags overrides settings with flags the user set explicitly.
func (c *Server) ApplyFlags(fs *pflag.FlagSet) error {
	strs := map[string]*string{
		"addr":              &c.Addr,
		"config-dir":        &c.ConfigDir,
		"data-dir":          &c.DataDir,
		"web-dir":           &c.WebDir,
		"default-language":  &c.DefaultLanguage,
		"python":            &c.PythonPath,
		"classifier-script": &c.ClassifierScript,
		"log-level":         &c.LogLevel,
		"log-format":        &c.LogFormat,
		"mqtt-broker":       &c.MQTTBroker,
		"mqtt-topic":        &c.MQTTTopic,
		"plugin-dir":        &c.PluginDir,
	}
	for name, dst := range strs {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	durs := map[string]*time.Duration{
		"start-timeout":  &c.StartTimeout,
		"stop-timeout":   &c.StopTimeout,
		"idle-interval":  &c.IdleInterval,
		"plugin-timeout": &c.PluginTimeout,
	}
	for name, dst := range durs {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			continue
		}
		v, err := fs.GetDuration(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	if fs.Lookup("languages") != nil && fs.Changed("languages") {
		langs, err := fs.GetStringSlice("languages")
		if err != nil {
			return err
		}
		c.Languages = langs
	}

	return nil
}

// Validate checks required fields and consistency.
func (c *Server) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("listen address is required")
	}
	if len(c.Languages) == 0 {
		return fmt.Errorf("at least one supported language is required")
	}
	if !c.Supports(c.DefaultLanguage) {
		return fmt.Errorf("default language %q is not in supported languages %v", c.DefaultLanguage, c.Languages)
	}
	if c.StartTimeout <= 0 || c.StopTimeout <= 0 || c.IdleInterval <= 0 {
		return fmt.Errorf("timeouts and idle interval must be positive")
	}
	return nil
}

// Supports reports whether lang is one of the supported languages.
func (c *Server) Supports(lang string) bool {
	return slices.Contains(c.Languages, lang)
}

// DBPath returns the sqlite database location.
func (c *Server) DBPath() string {
	return filepath.Join(c.DataDir, "signflow.db")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	// Bare numbers are milliseconds.
	ms, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration in %s: %q", key, raw)
	}
	return time.Duration(ms) * time.Millisecond, nil
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
