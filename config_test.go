package main

import (
	"os"
	"path/filepath"
	"testing"
)

func env(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("", env(nil))
	if err != nil {
		t.Fatalf("LoadConfig() returned error: %v", err)
	}

	want := Config{
		Port:         "3000",
		Origin:       "http://localhost:8080",
		AgentURL:     "ws://localhost:9876",
		BackendURL:   "http://localhost:8000",
		RedisChannel: "scene-bridge",
	}
	if cfg != want {
		t.Errorf("Expected %+v, got %+v", want, cfg)
	}
}

func TestLoadConfigAgentHostAndPort(t *testing.T) {
	cfg, err := LoadConfig("", env(map[string]string{"BLENDER_WS_HOST": "blender", "BLENDER_WS_PORT": "9000"}))
	if err != nil {
		t.Fatalf("LoadConfig() returned error: %v", err)
	}
	if cfg.AgentURL != "ws://blender:9000" {
		t.Errorf("Expected ws://blender:9000, got %s", cfg.AgentURL)
	}

	cfg, _ = LoadConfig("", env(map[string]string{"BLENDER_WS_URL": "ws://agent:1", "BLENDER_WS_HOST": "ignored"}))
	if cfg.AgentURL != "ws://agent:1" {
		t.Errorf("Expected explicit URL to win, got %s", cfg.AgentURL)
	}
}

func TestLoadConfigFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	data := "port: \"4000\"\nagent_url: ws://from-file:9876\nredis_addr: localhost:6379\nredis_channel: viewport\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path, env(map[string]string{"PORT": "5000"}))
	if err != nil {
		t.Fatalf("LoadConfig() returned error: %v", err)
	}
	if cfg.Port != "5000" {
		t.Errorf("Expected env port 5000, got %s", cfg.Port)
	}
	if cfg.AgentURL != "ws://from-file:9876" || cfg.RedisAddr != "localhost:6379" || cfg.RedisChannel != "viewport" {
		t.Errorf("File values lost: %+v", cfg)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), env(nil)); err == nil {
		t.Error("Expected error for a missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("port: [unclosed"), 0o600)
	if _, err := LoadConfig(path, env(nil)); err == nil {
		t.Error("Expected error for invalid YAML")
	}
}
