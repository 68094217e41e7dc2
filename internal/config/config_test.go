package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := DefaultConfig()
	if cfg.Control.ListenAddr != def.Control.ListenAddr {
		t.Fatalf("expected default listen addr, got %q", cfg.Control.ListenAddr)
	}
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("SINE_TOPOLOGY_PATH", "/etc/sine/network.yaml")
	path := filepath.Join(t.TempDir(), "sine.yaml")
	content := "topology:\n  path: ${SINE_TOPOLOGY_PATH}\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Topology.Path != "/etc/sine/network.yaml" {
		t.Fatalf("expected expanded topology path, got %q", cfg.Topology.Path)
	}
}

func TestLoadControlListenAddrEnvOverride(t *testing.T) {
	t.Setenv("SINE_CONTROL_LISTEN_ADDR", ":9999")
	path := filepath.Join(t.TempDir(), "sine.yaml")
	if err := os.WriteFile(path, []byte("control:\n  listen_addr: \":8002\"\n"), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Control.ListenAddr != ":9999" {
		t.Fatalf("expected env override to win, got %q", cfg.Control.ListenAddr)
	}
}

func TestSaveRoundTrips(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metrics.ListenAddr = ":9200"
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Metrics.ListenAddr != ":9200" {
		t.Fatalf("expected saved listen addr to round-trip, got %q", loaded.Metrics.ListenAddr)
	}
}
