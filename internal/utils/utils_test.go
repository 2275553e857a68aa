package utils

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestResolveFiles(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.txt", "photos/1.jpg", "photos/2019/2.jpg", "photos/notes.md")

	tests := []struct {
		name     string
		patterns []string
		want     []string
	}{
		{"literal", []string{"a.txt"}, []string{"a.txt"}},
		{"directory", []string{"photos"}, []string{"photos/1.jpg", "photos/2019/2.jpg", "photos/notes.md"}},
		{"doublestar", []string{"photos/**/*.jpg"}, []string{"photos/1.jpg", "photos/2019/2.jpg"}},
		{"dedupe", []string{"a.txt", "*.txt", "a.txt"}, []string{"a.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var patterns []string
			for _, p := range tt.patterns {
				patterns = append(patterns, filepath.Join(root, p))
			}
			got, err := ResolveFiles(patterns)
			if err != nil {
				t.Fatalf("ResolveFiles failed: %v", err)
			}
			var want []string
			for _, w := range tt.want {
				want = append(want, filepath.Join(root, w))
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("ResolveFiles(%v) = %v, want %v", tt.patterns, got, want)
			}
		})
	}
}

func TestResolveFilesErrors(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.txt")

	if _, err := ResolveFiles([]string{filepath.Join(root, "missing.txt")}); err == nil {
		t.Error("Expected error for a missing file, got nil")
	}
	if _, err := ResolveFiles([]string{filepath.Join(root, "*.pdf")}); err == nil {
		t.Error("Expected error for a glob with no matches, got nil")
	}
}

func TestReadPasswordLine(t *testing.T) {
	got, err := readPasswordLine(strings.NewReader("correct-horse-battery\r\nignored\n"))
	if err != nil {
		t.Fatalf("readPasswordLine failed: %v", err)
	}
	if string(got) != "correct-horse-battery" {
		t.Errorf("Expected password without line ending, got %q", got)
	}

	got, err = readPasswordLine(strings.NewReader("no-newline"))
	if err != nil || string(got) != "no-newline" {
		t.Errorf("Expected %q, got %q (%v)", "no-newline", got, err)
	}

	if _, err := readPasswordLine(strings.NewReader("\n")); err == nil {
		t.Error("Expected error for an empty line, got nil")
	}
}

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"a@example.com", true},
		{"first.last+tag@sub.example.org", true},
		{"", false},
		{"no-at-sign", false},
		{"a@tld", false},
	}
	for _, tt := range tests {
		if got := IsValidEmail(tt.email); got != tt.want {
			t.Errorf("IsValidEmail(%q) = %v, want %v", tt.email, got, tt.want)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Alice@Example.COM "); got != "alice@example.com" {
		t.Errorf("NormalizeEmail = %q", got)
	}
}

func TestZero(t *testing.T) {
	b := []byte("secret")
	Zero(b)
	for _, c := range b {
		if c != 0 {
			t.Fatalf("Expected zeroed buffer, got %q", b)
		}
	}
}
