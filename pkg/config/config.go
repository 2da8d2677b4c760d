// Package config loads config.json, the shared settings of the zshogi tools.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

const FileName = "config.json"

type Config struct {
	Engine   string            `json:"engine"`
	Millis   int               `json:"millis"`
	Options  map[string]string `json:"options,omitempty"`
	LogLevel string            `json:"log_level,omitempty"`

	// dir is where the file was found; relative engine paths resolve there.
	dir string
}

// FindConfigPath walks up from the working directory looking for
// config.json. It returns the file path and its directory.
func FindConfigPath() (string, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", "", err
	}
	return FindConfigPathFrom(cwd)
}

func FindConfigPathFrom(start string) (string, string, error) {
	dir := start
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return path, filepath.Dir(path), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", "", fmt.Errorf("%s not found from %s", FileName, start)
}

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Millis < 0 {
		return Config{}, fmt.Errorf("%s: millis must not be negative", path)
	}
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

// EnginePath returns the engine path, resolved against the config
// directory when relative.
func (c Config) EnginePath() string {
	if c.Engine == "" || filepath.IsAbs(c.Engine) || c.dir == "" {
		return c.Engine
	}
	return filepath.Join(c.dir, c.Engine)
}

// Logger returns a console logger on w at the configured level. Unknown or
// empty levels mean info.
func (c Config) Logger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).
		Level(level).
		With().Timestamp().Logger()
}

// Resolve loads the config at path, or searches for one when path is
// empty.
func Resolve(path string) (Config, error) {
	if path == "" {
		found, _, err := FindConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = found
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Config{}, err
	}
	return LoadConfig(abs)
}
