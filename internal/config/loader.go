package config

import (
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// ProjectConfigFile is looked up in the working directory.
	ProjectConfigFile = "redpen.yaml"
	// UserConfigFile lives under $XDG_CONFIG_HOME/redpen.
	UserConfigFile = "config.yaml"
)

// Loader resolves the layered configuration.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a Loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load applies, in order: defaults, one YAML file, the environment. The
// file is explicitPath when given (it must exist), else ./redpen.yaml,
// else the user config file; a missing implicit file is not an error.
func (l *Loader) Load(explicitPath string) (*Config, error) {
	cfg := Default()

	path := explicitPath
	if path == "" {
		path = l.findConfig()
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
		l.logger.Debug("loaded config", slog.String("path", path))
	} else {
		l.logger.Debug("no config file found")
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) findConfig() string {
	candidates := []string{ProjectConfigFile}
	if p := UserConfigPath(); p != "" {
		candidates = append(candidates, p)
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// UserConfigPath returns $XDG_CONFIG_HOME/redpen/config.yaml, falling back
// to ~/.config.
func UserConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "redpen", UserConfigFile)
}
