package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/signflow/signflow/internal/buffer"
	"github.com/signflow/signflow/internal/capture"
	"github.com/signflow/signflow/internal/config"
	"github.com/signflow/signflow/internal/emitter"
	"github.com/signflow/signflow/internal/logging"
	"github.com/signflow/signflow/internal/model"
	"github.com/signflow/signflow/internal/plugin"
	"github.com/signflow/signflow/internal/session"
	"github.com/signflow/signflow/internal/store"
	"github.com/signflow/signflow/internal/tensor"
)

const eventQueueSize = 256

// sessionOptions builds the controller template from the configuration.
func sessionOptions(c *config.Server, emit emitter.Emitter, logger *slog.Logger) session.Options {
	return session.Options{
		Languages: c.Languages,
		LoadLanguage: func(code string) (*config.Language, error) {
			return config.LoadLanguage(c.ConfigDir, code)
		},
		NewIngestor: func(lang *config.Language, frames *buffer.Queue[tensor.Frame]) session.Ingestor {
			return capture.NewIngestor(capture.PreprocessFor(lang), frames)
		},
		Loader: &model.ServiceLoader{
			Python: c.PythonPath,
			Script: c.ClassifierScript,
			Logger: logging.For(logger, logging.CategoryModel),
		},
		StartTimeout: c.StartTimeout,
		StopTimeout:  c.StopTimeout,
		IdleInterval: c.IdleInterval,
		Emitter:      emit,
		Logger:       logger,
	}
}

// buildEmitter fans word events out to the store, plugins and, when a broker
// is configured, MQTT. Sinks that fail to start are logged and skipped.
func buildEmitter(ctx context.Context, c *config.Server, st *store.Store, logger *slog.Logger) emitter.Emitter {
	log := logging.For(logger, logging.CategoryEmitter)
	sinks := emitter.Multi{emitter.NewRecorder(st)}

	if c.PluginDir != "" {
		mgr := plugin.NewManager(c.PluginDir, log)
		if err := mgr.Discover(); err != nil {
			log.Warn("plugin discovery failed", "dir", c.PluginDir, "error", err)
		} else if len(mgr.List()) > 0 {
			sinks = append(sinks, plugin.NewEmitter(mgr, plugin.NewExecutor(c.PluginTimeout), log))
		}
	}

	if c.MQTTBroker != "" {
		m := emitter.NewMQTTEmitter(emitter.MQTTConfig{
			Broker:   c.MQTTBroker,
			ClientID: c.MQTTClientID,
			Topic:    c.MQTTTopic,
			QoS:      1,
		}, log)
		if err := m.Connect(ctx); err != nil {
			log.Warn("mqtt unavailable, word events will not be published", "broker", c.MQTTBroker, "error", err)
			m.Close()
		} else {
			sinks = append(sinks, m)
		}
	}

	return emitter.NewAsync(sinks, eventQueueSize, log)
}

// findWebDir returns the configured web directory, or the first of "web",
// "../web" and <data dir>/web that exists. Empty means no static files.
func findWebDir(c *config.Server) string {
	if c.WebDir != "" {
		return c.WebDir
	}
	for _, p := range []string{"web", "../web", filepath.Join(c.DataDir, "web")} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
