package engineconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.SysBlockDir == "" || cfg.DevDir == "" || cfg.DMControlPath == "" || cfg.LogLevel == "" {
		t.Fatalf("Default() left a field empty: %+v", cfg)
	}
}

func TestLoad_EmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("Load(\"\") = %+v, want Default()", cfg)
	}
}

func TestLoad_MissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("Load(missing) = %+v, want Default()", cfg)
	}
}

func TestLoad_OverridesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	if err := os.WriteFile(path, []byte("log_level: debug\nsys_block_dir: /custom/sys\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.SysBlockDir != "/custom/sys" {
		t.Fatalf("SysBlockDir = %q, want /custom/sys", cfg.SysBlockDir)
	}
	// Fields left unset in the file keep their Default() value.
	if cfg.DevDir != Default().DevDir {
		t.Fatalf("DevDir = %q, want default %q", cfg.DevDir, Default().DevDir)
	}
}
