package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const defaultServerURL = "http://localhost:8080"

// cliConfig holds the optional settings read from the user's config file.
type cliConfig struct {
	// ServerURL is the base URL of the gifforged service.
	ServerURL string `toml:"server_url"`
	// OutputDir is where downloaded GIFs are written when --output is not
	// given. Empty means next to the input file.
	OutputDir string `toml:"output_dir"`
}

func defaultCLIConfig() *cliConfig {
	return &cliConfig{ServerURL: defaultServerURL}
}

// defaultConfigPath returns the conventional config file location,
// typically ~/.config/gifforge/config.toml.
func defaultConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(base, "gifforge", "config.toml"), nil
}

// loadCLIConfig reads the config file at path. A missing file is not an
// error; defaults are returned instead.
func loadCLIConfig(path string) (*cliConfig, error) {
	cfg := defaultCLIConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ServerURL = strings.TrimRight(strings.TrimSpace(cfg.ServerURL), "/")
	if cfg.ServerURL == "" {
		cfg.ServerURL = defaultServerURL
	}
	cfg.OutputDir = strings.TrimSpace(cfg.OutputDir)
	return cfg, nil
}
