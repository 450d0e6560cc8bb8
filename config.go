package main

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/james226/scene-bridge/agentlink"
)

type Config struct {
	Port         string `yaml:"port"`
	Origin       string `yaml:"origin"`
	AgentURL     string `yaml:"agent_url"`
	AgentHost    string `yaml:"agent_host"`
	AgentPort    string `yaml:"agent_port"`
	BackendURL   string `yaml:"api_url"`
	RedisAddr    string `yaml:"redis_addr"`
	RedisChannel string `yaml:"redis_channel"`
}

// LoadConfig reads the optional YAML file at path, then lets the
// environment override it. Anything still unset is defaulted and logged.
func LoadConfig(path string, getenv func(string) string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	override(&cfg.Port, getenv("PORT"))
	override(&cfg.Origin, getenv("ORIGIN"))
	override(&cfg.AgentURL, getenv("BLENDER_WS_URL"))
	override(&cfg.AgentHost, getenv("BLENDER_WS_HOST"))
	override(&cfg.AgentPort, getenv("BLENDER_WS_PORT"))
	override(&cfg.BackendURL, getenv("API_URL"))
	override(&cfg.RedisAddr, getenv("REDIS_ADDR"))
	override(&cfg.RedisChannel, getenv("REDIS_CHANNEL"))

	if cfg.Port == "" {
		cfg.Port = "3000"
		log.Printf("defaulting to port %s", cfg.Port)
	}
	if cfg.Origin == "" {
		cfg.Origin = "http://localhost:8080"
		log.Printf("defaulting to origin %s", cfg.Origin)
	}
	if cfg.AgentURL == "" {
		if cfg.AgentHost != "" || cfg.AgentPort != "" {
			host, port := cfg.AgentHost, cfg.AgentPort
			if host == "" {
				host = "localhost"
			}
			if port == "" {
				port = "9876"
			}
			cfg.AgentURL = fmt.Sprintf("ws://%s:%s", host, port)
		} else {
			cfg.AgentURL = agentlink.DefaultAgentURL
			log.Printf("defaulting to agent %s", cfg.AgentURL)
		}
	}
	if cfg.BackendURL == "" {
		cfg.BackendURL = "http://localhost:8000"
		log.Printf("defaulting to backend %s", cfg.BackendURL)
	}
	if cfg.RedisChannel == "" {
		cfg.RedisChannel = "scene-bridge"
	}

	return cfg, nil
}

func override(field *string, value string) {
	if value != "" {
		*field = value
	}
}
