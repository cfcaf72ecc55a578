package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Storage StorageConfig `koanf:"storage"`
	Sandbox SandboxConfig `koanf:"sandbox"`
	Puzzles PuzzlesConfig `koanf:"puzzles"`
	Solver  SolverConfig  `koanf:"solver"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, none
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type SandboxConfig struct {
	URL     string `koanf:"url"`
	Timeout string `koanf:"timeout"` // duration string like "60s"
}

type PuzzlesConfig struct {
	// Dirs are searched in order for task JSON files.
	Dirs []string `koanf:"dirs"`
}

type SolverConfig struct {
	MaxIterations int     `koanf:"max_iterations"`
	Temperature   float64 `koanf:"temperature"`
}

// Load reads config.yaml when present, then overlays GROVER_-prefixed
// environment variables. A double underscore in a variable name maps to
// a key separator: GROVER_SANDBOX__URL sets sandbox.url.
func Load() (*Config, error) {
	return LoadFrom("config.yaml")
}

// LoadFrom is Load with an explicit config file path.
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("GROVER_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "GROVER_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("storage.type") {
		k.Set("storage.type", "sqlite")
	}
	if !k.Exists("storage.sqlite.path") {
		k.Set("storage.sqlite.path", "grover.db")
	}
	if !k.Exists("sandbox.url") {
		k.Set("sandbox.url", "http://localhost:8090")
	}
	if !k.Exists("puzzles.dirs") {
		k.Set("puzzles.dirs", []string{"data/training", "data/evaluation"})
	}
	if !k.Exists("solver.max_iterations") {
		k.Set("solver.max_iterations", 5)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
