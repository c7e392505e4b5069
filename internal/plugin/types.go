// Package plugin runs external executables when words are recognized.
//
// A plugin is a directory holding a plugin.json manifest and an executable.
// For every matching word the executable receives a Request as JSON on stdin
// and answers with a Response on stdout.
package plugin

import (
	"encoding/json"
	"slices"

	"github.com/signflow/signflow/internal/emitter"
)

// Manifest describes a plugin and the words it reacts to.
type Manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Executable  string `json:"executable"`
	// Glosses restricts the plugin to these words. Empty means every word.
	Glosses []string `json:"glosses,omitempty"`
	// Languages restricts the plugin to these languages. Empty means all.
	Languages []string        `json:"languages,omitempty"`
	Config    json.RawMessage `json:"config,omitempty"`
}

// Request is what a plugin reads from stdin.
type Request struct {
	Word   emitter.Event   `json:"word"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Response is what a plugin writes to stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin is a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Matches reports whether the plugin wants ev.
func (p *Plugin) Matches(ev emitter.Event) bool {
	if len(p.Manifest.Languages) > 0 && !slices.Contains(p.Manifest.Languages, ev.Language) {
		return false
	}
	if len(p.Manifest.Glosses) > 0 && !slices.Contains(p.Manifest.Glosses, ev.Gloss) {
		return false
	}
	return true
}
