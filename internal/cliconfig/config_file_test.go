package cliconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestApplyFileConfig(t *testing.T) {
	trueVal := true

	tests := []struct {
		name       string
		fileConfig FileConfig
		changed    map[string]bool
		initial    Config
		expected   Config
		wantErr    bool
	}{
		{
			name: "applies all valid config values",
			fileConfig: FileConfig{
				Input:          "/feed.jsonl",
				OutDir:         "/out",
				IndexDB:        "/idx.db",
				SinkURL:        "http://example.com",
				AuthKey:        "secret",
				StateDir:       "/state",
				Tolerance:      "30ms",
				Capacity:       10,
				Workers:        2,
				Handoff:        8,
				PollInterval:   "1s",
				StatusInterval: "2s",
				HTTPTimeout:    "3s",
				LogLevel:       "debug",
				Once:           &trueVal,
				Streams:        []StreamConfig{{Name: "a", Capacity: 4}},
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				Input:          "/feed.jsonl",
				OutDir:         "/out",
				IndexDB:        "/idx.db",
				SinkURL:        "http://example.com",
				AuthKey:        "secret",
				StateDir:       "/state",
				Tolerance:      30 * time.Millisecond,
				Capacity:       10,
				Workers:        2,
				Handoff:        8,
				PollInterval:   time.Second,
				StatusInterval: 2 * time.Second,
				HTTPTimeout:    3 * time.Second,
				LogLevel:       "debug",
				Once:           true,
				Streams:        []StreamConfig{{Name: "a", Capacity: 4}},
			},
		},
		{
			name:       "respects changed flags",
			fileConfig: FileConfig{Input: "/config/feed.jsonl", Tolerance: "1s", Streams: []StreamConfig{{Name: "x"}}},
			changed:    map[string]bool{"input": true, "streams": true},
			initial:    Config{Input: "/flag/feed.jsonl", Streams: []StreamConfig{{Name: "y"}}},
			expected:   Config{Input: "/flag/feed.jsonl", Tolerance: time.Second, Streams: []StreamConfig{{Name: "y"}}},
		},
		{
			name:       "empty values keep defaults",
			fileConfig: FileConfig{},
			changed:    map[string]bool{},
			initial:    DefaultConfig(),
			expected:   DefaultConfig(),
		},
		{
			name:       "invalid duration",
			fileConfig: FileConfig{Tolerance: "soon"},
			changed:    map[string]bool{},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			err := ApplyFileConfig(&cfg, tt.fileConfig, tt.changed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyFileConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.expected, cfg); diff != "" {
				t.Errorf("ApplyFileConfig() (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadFileConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
input = "/data/feed.jsonl"
out_dir = "/data/out"
tolerance = "25ms"
capacity = 12
once = true

[[stream]]
name = "depth"
kind = "image"

[[stream]]
name = "odom"
capacity = 40
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	fc, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("LoadFileConfig() error = %v", err)
	}

	if fc.Input != "/data/feed.jsonl" || fc.OutDir != "/data/out" {
		t.Errorf("paths = %q %q", fc.Input, fc.OutDir)
	}
	if fc.Tolerance != "25ms" || fc.Capacity != 12 {
		t.Errorf("Tolerance = %q, Capacity = %d", fc.Tolerance, fc.Capacity)
	}
	if fc.Once == nil || !*fc.Once {
		t.Error("Once not parsed")
	}
	want := []StreamConfig{{Name: "depth", Kind: "image"}, {Name: "odom", Capacity: 40}}
	if diff := cmp.Diff(want, fc.Streams); diff != "" {
		t.Errorf("Streams (-want +got):\n%s", diff)
	}
}

func TestLoadFileConfig_InvalidFile(t *testing.T) {
	if _, err := LoadFileConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("LoadFileConfig() expected error for missing file")
	}
}

func TestLoadFileConfig_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("input = [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFileConfig(path); err == nil {
		t.Error("LoadFileConfig() expected error for invalid TOML")
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exists.toml")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if !FileExists(path) {
		t.Error("FileExists() = false for existing file")
	}
	if FileExists(filepath.Join(dir, "nope.toml")) {
		t.Error("FileExists() = true for missing file")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	p := DefaultConfigPath()
	if p != "" && filepath.Base(p) != "config.toml" {
		t.Errorf("DefaultConfigPath() = %q", p)
	}
}
