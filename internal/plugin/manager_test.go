package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, root, dir string, m Manifest) {
	t.Helper()
	pluginDir := filepath.Join(root, dir)
	if err := os.MkdirAll(pluginDir, 0755); err != nil {
		t.Fatalf("failed to create plugin dir: %v", err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("failed to marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(pluginDir, ManifestFile), data, 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
}

func TestManager_Discover(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "speak", Manifest{Name: "speak", Version: "1.0.0", Executable: "speak.sh"})
	writeManifest(t, root, "lights", Manifest{Name: "lights", Executable: "lights", Glosses: []string{"свет"}})
	writeManifest(t, root, "nameless", Manifest{Executable: "x"})

	// Not a plugin: a bare file, a directory without a manifest, bad JSON.
	os.WriteFile(filepath.Join(root, "README"), []byte("hi"), 0644)
	os.MkdirAll(filepath.Join(root, "empty"), 0755)
	os.MkdirAll(filepath.Join(root, "broken"), 0755)
	os.WriteFile(filepath.Join(root, "broken", ManifestFile), []byte("{"), 0644)

	m := NewManager(root, nil)
	if err := m.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	plugins := m.List()
	if len(plugins) != 2 {
		t.Fatalf("expected 2 plugins, got %d", len(plugins))
	}
	if plugins[0].Manifest.Name != "lights" || plugins[1].Manifest.Name != "speak" {
		t.Errorf("unexpected order: %s, %s", plugins[0].Manifest.Name, plugins[1].Manifest.Name)
	}

	speak, err := m.Get("speak")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if speak.Executable != filepath.Join(root, "speak", "speak.sh") {
		t.Errorf("Executable = %q", speak.Executable)
	}
	if speak.Path != filepath.Join(root, "speak") {
		t.Errorf("Path = %q", speak.Path)
	}

	if _, err := m.Get("missing"); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrPluginNotFound", err)
	}
}

func TestManager_Discover_Rescan(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "a", Manifest{Name: "a", Executable: "a"})

	m := NewManager(root, nil)
	m.Discover()
	os.RemoveAll(filepath.Join(root, "a"))
	m.Discover()

	if n := len(m.List()); n != 0 {
		t.Errorf("expected removed plugin to disappear, got %d plugins", n)
	}
}

func TestManager_Discover_NonExistentDir(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "nope"), nil)
	if err := m.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if n := len(m.List()); n != 0 {
		t.Errorf("expected no plugins, got %d", n)
	}
	if !strings.HasSuffix(m.PluginDir(), "nope") {
		t.Errorf("PluginDir() = %q", m.PluginDir())
	}
}

func TestPlugin_Matches(t *testing.T) {
	tests := []struct {
		name     string
		manifest Manifest
		want     bool
	}{
		{"no filters", Manifest{}, true},
		{"gloss match", Manifest{Glosses: []string{"пока", "привет"}}, true},
		{"gloss miss", Manifest{Glosses: []string{"пока"}}, false},
		{"language match", Manifest{Languages: []string{"ru"}}, true},
		{"language miss", Manifest{Languages: []string{"en"}}, false},
		{"both must match", Manifest{Languages: []string{"ru"}, Glosses: []string{"пока"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Plugin{Manifest: tt.manifest}
			if got := p.Matches(testEvent()); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEmitter_RunsMatchingPlugins(t *testing.T) {
	root := t.TempDir()
	log := filepath.Join(root, "ran.log")

	for _, tc := range []struct {
		name    string
		glosses []string
		body    string
	}{
		{"greet", []string{"привет"}, "cat >/dev/null\necho greet >> " + log + "\necho '{\"success\":true}'\n"},
		{"bye", []string{"пока"}, "cat >/dev/null\necho bye >> " + log + "\necho '{\"success\":true}'\n"},
		{"fail", nil, "cat >/dev/null\necho '{\"success\":false,\"error\":\"offline\"}'\n"},
	} {
		dir := filepath.Join(root, "plugins", tc.name)
		os.MkdirAll(dir, 0755)
		writeScript(t, dir, "run.sh", tc.body, Manifest{})
		writeManifest(t, filepath.Join(root, "plugins"), tc.name,
			Manifest{Name: tc.name, Executable: "run.sh", Glosses: tc.glosses})
	}

	m := NewManager(filepath.Join(root, "plugins"), nil)
	if err := m.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	e := NewEmitter(m, NewExecutor(0), nil)
	err := e.Emit(context.Background(), testEvent())
	if err == nil || !strings.Contains(err.Error(), "offline") {
		t.Errorf("Emit() error = %v, want the failing plugin's error", err)
	}

	data, _ := os.ReadFile(log)
	if got := strings.TrimSpace(string(data)); got != "greet" {
		t.Errorf("ran %q, want only greet", got)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
