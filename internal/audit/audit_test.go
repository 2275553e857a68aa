package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PolarWolf314/zkdrive/internal/configs"
)

// useTempLog points the log at a fresh file for one test.
func useTempLog(t *testing.T) string {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "nested", "audit.jsonl")
	original := Path
	Path = logPath
	t.Cleanup(func() { Path = original })
	return logPath
}

func TestLog_CreatesFile(t *testing.T) {
	logPath := useTempLog(t)

	Log(Entry{User: "test@example.com", Operation: OpUpload, FileID: "f-1", Chunks: 2})

	info, err := os.Stat(logPath)
	if os.IsNotExist(err) {
		t.Fatalf("Audit log file was not created")
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected mode 0600, got %v", info.Mode().Perm())
	}
}

func TestLog_AppendsEntries(t *testing.T) {
	logPath := useTempLog(t)

	Log(Entry{User: "alice@example.com", Operation: OpSignup})
	Log(Entry{User: "alice@example.com", Operation: OpUnlock})
	Log(Entry{User: "alice@example.com", Operation: OpLock})

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Errorf("Expected 3 lines, got %d", len(lines))
	}
}

func TestLog_ValidJSON(t *testing.T) {
	logPath := useTempLog(t)

	Log(Entry{
		User:      "test@example.com",
		UserID:    "user-1",
		Operation: OpDownload,
		FileID:    "file-1",
		Chunks:    3,
		Bytes:     4096,
	})

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	var parsed Entry
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &parsed); err != nil {
		t.Fatalf("Entry is not valid JSON: %v", err)
	}

	if parsed.User != "test@example.com" {
		t.Errorf("Expected user test@example.com, got %s", parsed.User)
	}
	if parsed.Operation != OpDownload {
		t.Errorf("Expected operation download, got %s", parsed.Operation)
	}
	if parsed.Chunks != 3 || parsed.Bytes != 4096 {
		t.Errorf("Expected 3 chunks and 4096 bytes, got %d and %d", parsed.Chunks, parsed.Bytes)
	}
}

func TestLog_TimestampFormat(t *testing.T) {
	logPath := useTempLog(t)

	Log(Entry{User: "test@example.com", Operation: OpMkdir})

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	var parsed Entry
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &parsed); err != nil {
		t.Fatalf("Entry is not valid JSON: %v", err)
	}

	if parsed.Timestamp == "" {
		t.Errorf("Timestamp should be auto-set")
	}
	if !strings.HasSuffix(parsed.Timestamp, "Z") {
		t.Errorf("Timestamp should end with Z, got %s", parsed.Timestamp)
	}
	if !strings.Contains(parsed.Timestamp, ".") {
		t.Errorf("Timestamp should contain microseconds, got %s", parsed.Timestamp)
	}
}

func TestLog_OmitsEmptyFields(t *testing.T) {
	logPath := useTempLog(t)

	Log(Entry{User: "test@example.com", Operation: OpLogout})

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	line := strings.TrimSpace(string(data))
	for _, field := range []string{`"file_id"`, `"chunks"`, `"monolithic"`, `"output_path"`} {
		if strings.Contains(line, field) {
			t.Errorf("Empty %s field should be omitted", field)
		}
	}
}

func TestLog_NoPath(t *testing.T) {
	original := Path
	originalSettings := configs.ZkdriveSettings
	Path = ""
	configs.ZkdriveSettings = nil
	defer func() {
		Path = original
		configs.ZkdriveSettings = originalSettings
	}()

	// Log should silently do nothing.
	Log(Entry{User: "test@example.com", Operation: OpUpload})
	if LogPath() != "" {
		t.Errorf("Expected empty path, got %s", LogPath())
	}
}

func TestLogPath_FromSettings(t *testing.T) {
	original := Path
	originalSettings := configs.ZkdriveSettings
	Path = ""
	configs.ZkdriveSettings = configs.NewSettings("/cfg", "/data/zkdrive")
	defer func() {
		Path = original
		configs.ZkdriveSettings = originalSettings
	}()

	expected := filepath.Join("/data/zkdrive", "audit.jsonl")
	if path := LogPath(); path != expected {
		t.Errorf("Expected %s, got %s", expected, path)
	}
}

func TestParseEntries_ValidData(t *testing.T) {
	data := []byte(`{"ts":"2024-01-15T10:30:00.123456Z","user":"alice@example.com","op":"upload"}
{"ts":"2024-01-15T10:35:00.456789Z","user":"bob@example.com","op":"download"}
`)

	entries, err := ParseEntries(data)
	if err != nil {
		t.Fatalf("ParseEntries failed: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].User != "alice@example.com" {
		t.Errorf("Expected first user alice@example.com, got %s", entries[0].User)
	}
	if entries[1].User != "bob@example.com" {
		t.Errorf("Expected second user bob@example.com, got %s", entries[1].User)
	}
}

func TestParseEntries_SkipsMalformedLines(t *testing.T) {
	data := []byte(`{"ts":"2024-01-15T10:30:00.123456Z","user":"alice@example.com","op":"upload"}
this is not valid json
{"ts":"2024-01-15T10:35:00.456789Z","user":"bob@example.com","op":"download"}
{"ts":"2024-01-15T10:36:00.000000Z","user":"trunc`)

	entries, err := ParseEntries(data)
	if err != nil {
		t.Fatalf("ParseEntries failed: %v", err)
	}

	if len(entries) != 2 {
		t.Errorf("Expected 2 valid entries (malformed should be skipped), got %d", len(entries))
	}
}

func TestParseEntries_EmptyData(t *testing.T) {
	entries, err := ParseEntries([]byte{})
	if err != nil {
		t.Fatalf("ParseEntries failed: %v", err)
	}

	if entries != nil {
		t.Errorf("Expected nil entries for empty data, got %v", entries)
	}
}

func TestSince(t *testing.T) {
	entries := []Entry{
		{Timestamp: "2024-01-15T10:30:00.000000Z", Operation: OpUnlock},
		{Timestamp: "garbage", Operation: OpLock},
		{Timestamp: "2024-01-16T10:30:00.000000Z", Operation: OpUpload},
	}

	got := Since(entries, time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC))
	if len(got) != 1 || got[0].Operation != OpUpload {
		t.Errorf("Expected only the upload entry, got %+v", got)
	}
}
