package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
	yaml "gopkg.in/yaml.v3"
)

const (
	SettingsFormatTOML SettingsFormat = "toml"
	SettingsFormatYAML SettingsFormat = "yaml"
	SettingsFormatJSON SettingsFormat = "json"
)

type SettingsFormat string

type SettingsHandle struct {
	Path   string
	Format SettingsFormat
}

type Settings struct {
	HistoryPath  string         `json:"history_path"  toml:"history_path"  yaml:"history_path"`
	HistoryLimit int            `json:"history_limit" toml:"history_limit" yaml:"history_limit"`
	Import       ImportSettings `json:"import"        toml:"import"        yaml:"import"`
}

type ImportSettings struct {
	Extensions     []string `json:"extensions"       toml:"extensions"       yaml:"extensions"`
	EntryNames     []string `json:"entry_names"      toml:"entry_names"      yaml:"entry_names"`
	MaxFileSize    int64    `json:"max_file_size"    toml:"max_file_size"    yaml:"max_file_size"`
	SkipErrorFiles *bool    `json:"skip_error_files" toml:"skip_error_files" yaml:"skip_error_files"`
	Concurrency    int      `json:"concurrency"      toml:"concurrency"      yaml:"concurrency"`
}

// HistoryPath is the default location for the import-run history database.
func HistoryPath() string {
	return filepath.Join(Dir(), "history.db")
}

func Dir() string {
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, "restitch")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".restitch")
}

// LoadSettings tries TOML first, then YAML, then JSON, returning empty
// settings when none exists. Parse errors fail immediately but missing files
// just skip to the next format.
func LoadSettings() (Settings, SettingsHandle, error) {
	return loadSettingsFrom(Dir())
}

func loadSettingsFrom(dir string) (Settings, SettingsHandle, error) {
	candidates := []SettingsHandle{
		{Path: filepath.Join(dir, "settings.toml"), Format: SettingsFormatTOML},
		{Path: filepath.Join(dir, "settings.yaml"), Format: SettingsFormatYAML},
		{Path: filepath.Join(dir, "settings.json"), Format: SettingsFormatJSON},
	}

	var accumulated error
	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate.Path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			accumulated = errors.Join(
				accumulated,
				fmt.Errorf("read settings %q: %w", candidate.Path, err),
			)
			continue
		}

		settings, err := decodeSettings(data, candidate.Format)
		if err != nil {
			return Settings{}, SettingsHandle{}, fmt.Errorf(
				"parse settings %q: %w",
				candidate.Path,
				err,
			)
		}
		return settings, candidate, nil
	}

	if accumulated != nil {
		return Settings{}, SettingsHandle{}, accumulated
	}

	return Settings{}, SettingsHandle{
		Path:   candidates[0].Path,
		Format: SettingsFormatTOML,
	}, nil
}

func decodeSettings(data []byte, format SettingsFormat) (Settings, error) {
	var settings Settings
	switch format {
	case SettingsFormatTOML:
		if err := toml.Unmarshal(data, &settings); err != nil {
			return Settings{}, err
		}
	case SettingsFormatYAML:
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return Settings{}, err
		}
	case SettingsFormatJSON:
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&settings); err != nil {
			return Settings{}, err
		}
	default:
		return Settings{}, fmt.Errorf("unsupported settings format %q", format)
	}
	return settings, nil
}
