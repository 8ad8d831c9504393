package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{DefaultSession: "work", APIURL: "https://chat.example.com", HeartbeatInterval: 20 * time.Second}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
	if loaded.APIURL != "https://chat.example.com" {
		t.Errorf("APIURL = %q", loaded.APIURL)
	}
	if loaded.HeartbeatInterval != 20*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 20s", loaded.HeartbeatInterval)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultSession: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestResolveMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Resolve(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.APIURL != DefaultAPIURL {
		t.Errorf("APIURL = %q, want %q", cfg.APIURL, DefaultAPIURL)
	}
	if cfg.WSURL != "ws://localhost:8080/ws" {
		t.Errorf("WSURL = %q, want ws://localhost:8080/ws", cfg.WSURL)
	}
	if cfg.HeartbeatInterval != 45*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 45s", cfg.HeartbeatInterval)
	}
	if cfg.ReconnectMin != time.Second || cfg.ReconnectMax != 30*time.Second {
		t.Errorf("reconnect = %v..%v, want 1s..30s", cfg.ReconnectMin, cfg.ReconnectMax)
	}
}

func TestResolveEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := Save(path, &Config{APIURL: "http://file.example"}); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHATD_API_URL", "https://env.example/")
	t.Setenv("CHATD_RECONNECT_MAX", "10s")

	cfg, err := Resolve(path)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.APIURL != "https://env.example" {
		t.Errorf("APIURL = %q, want env override without trailing slash", cfg.APIURL)
	}
	if cfg.WSURL != "wss://env.example/ws" {
		t.Errorf("WSURL = %q, want wss://env.example/ws", cfg.WSURL)
	}
	if cfg.ReconnectMax != 10*time.Second {
		t.Errorf("ReconnectMax = %v, want 10s", cfg.ReconnectMax)
	}
}

func TestApplyDefaultsClampsMax(t *testing.T) {
	cfg := &Config{ReconnectMin: 5 * time.Second, ReconnectMax: time.Second}
	cfg.ApplyDefaults()
	if cfg.ReconnectMax != 5*time.Second {
		t.Errorf("ReconnectMax = %v, want clamped to 5s", cfg.ReconnectMax)
	}
}
