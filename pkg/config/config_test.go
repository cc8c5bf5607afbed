package config

import (
	"os"
	"testing"
)

func TestDefault(t *testing.T) {
	c := Default()
	if c.DataRoot != "./data" || c.ConfigRoot != "./configs" {
		t.Errorf("unexpected defaults: %+v", c)
	}
	if c.DevMode || c.Debug || c.MoveFiles || c.DeleteOnError {
		t.Error("expected all boolean flags to default false")
	}
}

func TestLoadWithNoFileUsesDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.DataRoot != "./data" {
		t.Errorf("expected default DataRoot, got %q", c.DataRoot)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.json"
	content := `{"data_root": "/var/finiex/data", "debug": true}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.DataRoot != "/var/finiex/data" {
		t.Errorf("expected DataRoot from file, got %q", c.DataRoot)
	}
	if !c.Debug {
		t.Error("expected Debug=true from file")
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	if err == nil {
		t.Error("expected an error when the given config file path does not exist")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FINIEX_DEBUG", "true")
	t.Setenv("FINIEX_DATA_ROOT", "/env/data")

	c, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.Debug {
		t.Error("expected FINIEX_DEBUG env var to override debug")
	}
	if c.DataRoot != "/env/data" {
		t.Errorf("expected FINIEX_DATA_ROOT env var to override data_root, got %q", c.DataRoot)
	}
}

func TestValidateRejectsEmptyRoots(t *testing.T) {
	c := Config{DataRoot: "", ConfigRoot: "./configs"}
	if err := c.Validate(); err == nil {
		t.Error("expected an error for empty DataRoot")
	}
	c = Config{DataRoot: "./data", ConfigRoot: ""}
	if err := c.Validate(); err == nil {
		t.Error("expected an error for empty ConfigRoot")
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("expected the zero-value-safe defaults to validate cleanly, got %v", err)
	}
}
