package configs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type tomlFixture struct {
	Backend string `toml:"backend"`
	Retries int    `toml:"retries"`
}

func TestSaveAndLoadTOML(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "test.toml")

	original := tomlFixture{Backend: "http", Retries: 4}
	if err := SaveTOML(testFile, original); err != nil {
		t.Fatalf("SaveTOML failed: %v", err)
	}

	var loaded tomlFixture
	if err := LoadTOML(testFile, &loaded); err != nil {
		t.Fatalf("LoadTOML failed: %v", err)
	}
	if loaded != original {
		t.Errorf("Expected %+v, got %+v", original, loaded)
	}
}

func TestSaveTOMLLeavesNoTempFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "subdir")
	testFile := filepath.Join(dir, "test.toml")

	if err := SaveTOML(testFile, tomlFixture{Backend: "local"}); err != nil {
		t.Fatalf("SaveTOML failed: %v", err)
	}
	if err := SaveTOML(testFile, tomlFixture{Backend: "http"}); err != nil {
		t.Fatalf("SaveTOML failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "test.toml" {
		t.Fatalf("Expected only test.toml, got %v", entries)
	}
}

func TestLoadTOMLNonExistent(t *testing.T) {
	var data tomlFixture
	if err := LoadTOML(filepath.Join(t.TempDir(), "nonexistent.toml"), &data); err == nil {
		t.Fatal("Expected error for non-existent file, got nil")
	}
}

func TestLoadTOMLRejectsUnknownKeys(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "test.toml")
	if err := os.WriteFile(testFile, []byte("backend = \"local\"\nretires = 3\n"), 0600); err != nil {
		t.Fatal(err)
	}

	var data tomlFixture
	err := LoadTOML(testFile, &data)
	if err == nil {
		t.Fatal("Expected error for misspelled key, got nil")
	}
	if !strings.Contains(err.Error(), "retires") {
		t.Errorf("Expected error to name the key, got %v", err)
	}
}
