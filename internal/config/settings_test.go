package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MakeNowJust/heredoc"
)

func TestLoadSettingsPrefersTOML(t *testing.T) {
	dir := t.TempDir()
	toml := heredoc.Doc(`
		history_limit = 50

		[import]
		extensions = [".js", ".jsx"]
		concurrency = 8
	`)
	if err := os.WriteFile(filepath.Join(dir, "settings.toml"), []byte(toml), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "settings.json"), []byte(`{"history_limit": 999}`), 0o644); err != nil {
		t.Fatalf("write json: %v", err)
	}

	settings, handle, err := loadSettingsFrom(dir)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if handle.Format != SettingsFormatTOML {
		t.Fatalf("expected TOML to win, got %q", handle.Format)
	}
	if settings.HistoryLimit != 50 {
		t.Fatalf("expected history_limit 50, got %d", settings.HistoryLimit)
	}
	if len(settings.Import.Extensions) != 2 || settings.Import.Concurrency != 8 {
		t.Fatalf("import section lost: %+v", settings.Import)
	}
}

func TestLoadSettingsFallsBackThroughFormats(t *testing.T) {
	dir := t.TempDir()
	yaml := heredoc.Doc(`
		history_path: /tmp/custom-history.db
		import:
		  skip_error_files: false
	`)
	if err := os.WriteFile(filepath.Join(dir, "settings.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	settings, handle, err := loadSettingsFrom(dir)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if handle.Format != SettingsFormatYAML {
		t.Fatalf("expected YAML fallback, got %q", handle.Format)
	}
	if settings.HistoryPath != "/tmp/custom-history.db" {
		t.Fatalf("unexpected history path %q", settings.HistoryPath)
	}
	if settings.Import.SkipErrorFiles == nil || *settings.Import.SkipErrorFiles {
		t.Fatalf("expected skip_error_files=false to be distinguishable from unset")
	}
}

func TestLoadSettingsMissingDirReturnsDefaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "absent")

	settings, handle, err := loadSettingsFrom(dir)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if settings.HistoryLimit != 0 || settings.HistoryPath != "" {
		t.Fatalf("expected zero settings, got %+v", settings)
	}
	if handle.Format != SettingsFormatTOML {
		t.Fatalf("expected TOML handle for future writes, got %q", handle.Format)
	}
}

func TestLoadSettingsParseErrorFails(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "settings.toml"), []byte("not = [valid"), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}

	if _, _, err := loadSettingsFrom(dir); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadSettingsRejectsUnknownJSONFields(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "settings.json"), []byte(`{"no_such_key": 1}`), 0o644); err != nil {
		t.Fatalf("write json: %v", err)
	}

	if _, _, err := loadSettingsFrom(dir); err == nil {
		t.Fatalf("expected unknown field to be rejected")
	}
}
