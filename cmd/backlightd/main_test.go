package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-backlightd/internal/bus"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    options
		wantErr bool
	}{
		{"defaults", nil, options{}, false},
		{"config long", []string{"--config", "/tmp/b.yaml"}, options{configPath: "/tmp/b.yaml"}, false},
		{"config short", []string{"-c", "/tmp/b.yaml", "--session"}, options{configPath: "/tmp/b.yaml", session: true}, false},
		{"unknown flag", []string{"--frobnicate"}, options{}, true},
		{"positional", []string{"extra"}, options{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags(tt.args, &bytes.Buffer{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseFlags() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"--version"}, &out); err != nil {
		t.Fatalf("run(--version) error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "backlightd dev") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRun_Help(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"--help"}, &out); err != nil {
		t.Fatalf("run(--help) error = %v", err)
	}
	if !strings.Contains(out.String(), "--session") {
		t.Errorf("usage does not mention --session: %q", out.String())
	}
}

func TestRun_MissingExplicitConfig(t *testing.T) {
	err := run(context.Background(), []string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want loading config error", err)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("bus:\n  type: serial\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	err := run(context.Background(), []string{"-c", path}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "bus.type") {
		t.Errorf("run() error = %v, want bus.type validation error", err)
	}
}

func TestRun_NoBus(t *testing.T) {
	t.Setenv("DBUS_SESSION_BUS_ADDRESS", "unix:path="+filepath.Join(t.TempDir(), "no-bus"))

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := "sysfs:\n  root: " + dir + "\nlogging:\n  level: error\n"
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, []string{"-c", path, "--session"}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "connecting to session bus") {
		t.Errorf("run() error = %v, want session bus connection error", err)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("BACKLIGHTD_CONFIG", "")
	t.Setenv("BACKLIGHTD_BUS_TYPE", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("bus:\n  type: system\ncapture:\n  enabled: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, got, err := loadConfig(options{configPath: path, session: true})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if got != path {
		t.Errorf("path = %q, want %q", got, path)
	}
	if cfg.Bus.Type != bus.TypeSession {
		t.Errorf("Bus.Type = %q, --session must win over the file", cfg.Bus.Type)
	}
	if !cfg.Capture.Enabled {
		t.Error("capture.enabled from file not applied")
	}
}
