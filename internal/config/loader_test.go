package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name          string
		globalConfig  string
		projectConfig string
		env           map[string]string
		check         func(t *testing.T, cfg *ConsoleConfig)
	}{
		{
			name: "No config files - returns defaults",
			check: func(t *testing.T, cfg *ConsoleConfig) {
				if cfg.Poll.Interval.Duration != 5*time.Second {
					t.Errorf("Poll.Interval = %v, want 5s", cfg.Poll.Interval)
				}
				if cfg.Display.Locale != "zh-CN" {
					t.Errorf("Display.Locale = %q, want zh-CN", cfg.Display.Locale)
				}
				if !cfg.Cache.Enabled {
					t.Error("Cache.Enabled = false, want true")
				}
			},
		},
		{
			name:         "Global only - overrides interval, keeps other defaults",
			globalConfig: `{"poll": {"interval": "2s"}}`,
			check: func(t *testing.T, cfg *ConsoleConfig) {
				if cfg.Poll.Interval.Duration != 2*time.Second {
					t.Errorf("Poll.Interval = %v, want 2s", cfg.Poll.Interval)
				}
				if cfg.Poll.Concurrency != 4 {
					t.Errorf("Poll.Concurrency = %d, want default 4", cfg.Poll.Concurrency)
				}
			},
		},
		{
			name:          "Project overrides global",
			globalConfig:  `{"api": {"base_url": "https://global.example"}, "display": {"locale": "en-US"}}`,
			projectConfig: `{"api": {"base_url": "https://project.example"}}`,
			check: func(t *testing.T, cfg *ConsoleConfig) {
				if cfg.API.BaseURL != "https://project.example" {
					t.Errorf("API.BaseURL = %q, want project value", cfg.API.BaseURL)
				}
				if cfg.Display.Locale != "en-US" {
					t.Errorf("Display.Locale = %q, want global value", cfg.Display.Locale)
				}
				if cfg.API.Timeout.Duration != 10*time.Second {
					t.Errorf("API.Timeout = %v, want default 10s", cfg.API.Timeout)
				}
			},
		},
		{
			name:          "Explicit false disables cache",
			projectConfig: `{"cache": {"enabled": false}}`,
			check: func(t *testing.T, cfg *ConsoleConfig) {
				if cfg.Cache.Enabled {
					t.Error("Cache.Enabled = true, want false")
				}
			},
		},
		{
			name:          "Environment beats files",
			projectConfig: `{"api": {"base_url": "https://project.example", "token": "from-file"}}`,
			env: map[string]string{
				EnvAPIURL:   "https://env.example",
				EnvAPIToken: "from-env",
				EnvLocale:   "en-GB",
			},
			check: func(t *testing.T, cfg *ConsoleConfig) {
				if cfg.API.BaseURL != "https://env.example" {
					t.Errorf("API.BaseURL = %q, want env value", cfg.API.BaseURL)
				}
				if cfg.API.Token != "from-env" {
					t.Errorf("API.Token = %q, want env value", cfg.API.Token)
				}
				if cfg.Display.Locale != "en-GB" {
					t.Errorf("Display.Locale = %q, want env value", cfg.Display.Locale)
				}
			},
		},
		{
			name:         "Numeric interval is seconds",
			globalConfig: `{"poll": {"interval": 1.5}}`,
			check: func(t *testing.T, cfg *ConsoleConfig) {
				if cfg.Poll.Interval.Duration != 1500*time.Millisecond {
					t.Errorf("Poll.Interval = %v, want 1.5s", cfg.Poll.Interval)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvAPIURL, "")
			t.Setenv(EnvAPIToken, "")
			t.Setenv(EnvLocale, "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			dir := t.TempDir()
			globalPath := filepath.Join(dir, "global", "config.json")
			projectPath := filepath.Join(dir, "project", "config.json")
			if tt.globalConfig != "" {
				writeFile(t, globalPath, tt.globalConfig)
			}
			if tt.projectConfig != "" {
				writeFile(t, projectPath, tt.projectConfig)
			}

			cfg, err := Load(globalPath, projectPath)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeFile(t, path, `{"poll": {"interval": `)

	_, err := Load(path, "")
	if err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
	if !strings.Contains(err.Error(), "global config") {
		t.Errorf("error should name the layer, got: %v", err)
	}
}

func TestLoad_BadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeFile(t, path, `{"poll": {"interval": "soon"}}`)

	if _, err := Load("", path); err == nil {
		t.Fatal("expected error for unparseable duration, got nil")
	}
}

func TestLoad_MissingFilesNotError(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "nope.json"), filepath.Join(dir, "also-nope.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.BaseURL == "" {
		t.Error("expected default base URL")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *ConsoleConfig)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*ConsoleConfig) {}},
		{
			name:    "missing base url",
			mutate:  func(cfg *ConsoleConfig) { cfg.API.BaseURL = "" },
			wantErr: "base_url",
		},
		{
			name:    "interval too short",
			mutate:  func(cfg *ConsoleConfig) { cfg.Poll.Interval = Duration{100 * time.Millisecond} },
			wantErr: "interval",
		},
		{
			name:    "zero concurrency",
			mutate:  func(cfg *ConsoleConfig) { cfg.Poll.Concurrency = 0 },
			wantErr: "concurrency",
		},
		{
			name:    "unknown zone",
			mutate:  func(cfg *ConsoleConfig) { cfg.Display.TimeZone = "Mars/Olympus_Mons" },
			wantErr: "time zone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLocation(t *testing.T) {
	cfg := DefaultConfig()
	loc, err := cfg.Location()
	if err != nil || loc != nil {
		t.Errorf("Location() = %v, %v; want nil, nil for empty zone", loc, err)
	}

	cfg.Display.TimeZone = "UTC"
	loc, err = cfg.Location()
	if err != nil {
		t.Fatalf("Location() error = %v", err)
	}
	if loc.String() != "UTC" {
		t.Errorf("Location() = %v, want UTC", loc)
	}
}
