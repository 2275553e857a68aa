package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/PolarWolf314/zkdrive/internal/configs"
)

// Operation names recorded in the log.
const (
	OpSignup   = "signup"
	OpUnlock   = "unlock"
	OpLock     = "lock"
	OpLogout   = "logout"
	OpMkdir    = "mkdir"
	OpUpload   = "upload"
	OpDownload = "download"
	OpRemove   = "remove"
)

// Entry represents a single audit log entry. It never carries key material
// or plaintext names of remote files.
type Entry struct {
	Timestamp string `json:"ts"`   // RFC3339 with microseconds.
	User      string `json:"user"` // Email of the account.
	UserID    string `json:"uid,omitempty"`
	Operation string `json:"op"`

	// Optional fields depending on operation.
	FileID     string `json:"file_id,omitempty"`     // For upload/download/remove.
	FolderID   string `json:"folder_id,omitempty"`   // For mkdir/upload.
	Chunks     int    `json:"chunks,omitempty"`      // For upload/download.
	Bytes      int64  `json:"bytes,omitempty"`       // For upload/download.
	Monolithic bool   `json:"monolithic,omitempty"`  // For upload.
	Backend    string `json:"backend,omitempty"`     // For signup/unlock.
	OutputPath string `json:"output_path,omitempty"` // For download.
}

// Path overrides where entries are written. Empty means the settings path.
var Path string

// LogPath returns the path to the audit log file.
func LogPath() string {
	if Path != "" {
		return Path
	}
	if configs.ZkdriveSettings == nil {
		return ""
	}
	return configs.ZkdriveSettings.AuditLogPath
}

// Log appends an entry to the audit log.
// If logging fails, it does not return an error.
// Operations should not fail just because audit logging failed.
func Log(entry Entry) {
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
	}

	logPath := LogPath()
	if logPath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
		return
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	_, _ = f.Write(append(data, '\n'))
}

// ReadEntries reads all entries from the audit log.
// Returns an empty slice if the log doesn't exist.
func ReadEntries() ([]Entry, error) {
	logPath := LogPath()
	if logPath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(logPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return ParseEntries(data)
}

// ParseEntries parses JSON Lines data into audit entries.
// Malformed lines are silently skipped.
func ParseEntries(data []byte) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			// Skip partial writes.
			continue
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

// Since returns the entries at or after t, in log order.
func Since(entries []Entry, t time.Time) []Entry {
	var out []Entry
	for _, e := range entries {
		ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
		if err != nil || ts.Before(t) {
			continue
		}
		out = append(out, e)
	}
	return out
}
