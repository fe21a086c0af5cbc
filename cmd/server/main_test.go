package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !strings.Contains(buf.String(), "audiokit version dev") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestFlagsOverrideConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "audio")
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetArgs([]string{
		"--config", filepath.Join(t.TempDir(), "absent.json"),
		"--cache-dir", dir,
		"--log-level", "debug",
		"version",
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute error: %v", err)
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig error: %v", err)
	}
	if cfg.CacheDir != dir {
		t.Errorf("CacheDir = %q, want %q", cfg.CacheDir, dir)
	}
	if cfg.LogLevel != "debug" || logger == nil {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestNewAppWiresLibrary(t *testing.T) {
	cfg, _, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig error: %v", err)
	}
	cfg.CacheDir = t.TempDir()
	cfg.DataDir = t.TempDir()

	a, err := newApp(cfg, nil)
	if err != nil {
		t.Fatalf("newApp error: %v", err)
	}
	defer a.Close()
	if a.cache.Dir() != cfg.CacheDir {
		t.Errorf("cache dir = %q", a.cache.Dir())
	}
	if _, err := a.library.List(t.Context()); err != nil {
		t.Errorf("library List error: %v", err)
	}
}
