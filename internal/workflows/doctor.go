package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/PolarWolf314/zkdrive/internal/metadata"
	"github.com/PolarWolf314/zkdrive/internal/session"
)

// CheckStatus represents the result status of a health check.
type CheckStatus int

const (
	// CheckPass means the check passed.
	CheckPass CheckStatus = iota
	// CheckWarning means the check found a non-critical issue.
	CheckWarning
	// CheckError means the check found a critical issue.
	CheckError
)

// String returns a string representation of CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case CheckPass:
		return "pass"
	case CheckWarning:
		return "warning"
	case CheckError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler for CheckStatus.
func (s CheckStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// CheckResult holds the result of a single health check.
type CheckResult struct {
	Name       string      `json:"name"`
	Status     CheckStatus `json:"status"`
	Message    string      `json:"message"`
	Suggestion string      `json:"suggestion,omitempty"`
}

// DoctorResult holds the complete result of the doctor workflow.
type DoctorResult struct {
	Checks      []CheckResult `json:"checks"`
	Summary     DoctorSummary `json:"summary"`
	Suggestions []string      `json:"suggestions,omitempty"`
}

// DoctorSummary holds counts of checks by status.
type DoctorSummary struct {
	Passed   int `json:"passed"`
	Warnings int `json:"warnings"`
	Errors   int `json:"errors"`
}

// DoctorOptions configures the doctor workflow.
type DoctorOptions struct{}

// Doctor runs health checks on this device and the vault.
//
// The doctor workflow checks:
//   - Device key permissions
//   - Session state
//   - That the directory decrypts and validates
//   - That every file has a manifest matching its directory entry
//
// The last two need an unlocked session and are reported as warnings
// otherwise.
func Doctor(ctx context.Context, env *Env, opts DoctorOptions) (*DoctorResult, error) {
	results := []CheckResult{
		checkDeviceKey(env),
		checkSession(env),
	}

	if env.Session.State() == session.Unlocked {
		blob, check := checkDirectory(ctx, env)
		results = append(results, check)
		if blob != nil {
			results = append(results, checkManifests(ctx, env, blob))
		}
	} else {
		results = append(results, CheckResult{
			Name:       "Directory",
			Status:     CheckWarning,
			Message:    "Skipped directory and manifest checks: vault is locked",
			Suggestion: "Run 'zkdrive vault unlock' to check the directory",
		})
	}

	var suggestions []string
	seen := make(map[string]bool)
	for _, result := range results {
		if result.Suggestion != "" && result.Status != CheckPass && !seen[result.Suggestion] {
			suggestions = append(suggestions, result.Suggestion)
			seen[result.Suggestion] = true
		}
	}

	return &DoctorResult{
		Checks:      results,
		Summary:     calculateDoctorSummary(results),
		Suggestions: suggestions,
	}, nil
}

// checkDeviceKey checks that the device key is private to the user.
func checkDeviceKey(env *Env) CheckResult {
	path := env.Settings.DeviceKeyPath
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return CheckResult{
			Name:    "Device key",
			Status:  CheckWarning,
			Message: "Device key not found; a new one is created on the next unlock",
		}
	}
	if err != nil {
		return CheckResult{
			Name:       "Device key",
			Status:     CheckError,
			Message:    fmt.Sprintf("Failed to stat device key: %v", err),
			Suggestion: "Check that the device key file is accessible",
		}
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		return CheckResult{
			Name:       "Device key",
			Status:     CheckWarning,
			Message:    fmt.Sprintf("Device key has insecure permissions (%04o)", mode),
			Suggestion: fmt.Sprintf("Run 'chmod 600 %s' to fix permissions", path),
		}
	}
	return CheckResult{
		Name:    "Device key",
		Status:  CheckPass,
		Message: "Device key has correct permissions (0600)",
	}
}

func checkSession(env *Env) CheckResult {
	snap := env.Session.Snapshot()
	switch snap.State {
	case session.Unlocked:
		return CheckResult{Name: "Session", Status: CheckPass, Message: "Session unlocked as " + snap.Email}
	case session.Locked:
		return CheckResult{
			Name:       "Session",
			Status:     CheckWarning,
			Message:    "Session is locked for " + snap.Email,
			Suggestion: "Run 'zkdrive vault unlock' to check the directory",
		}
	default:
		return CheckResult{
			Name:       "Session",
			Status:     CheckWarning,
			Message:    "Not signed in",
			Suggestion: "Run 'zkdrive vault unlock --email <email>' or 'zkdrive vault signup'",
		}
	}
}

func checkDirectory(ctx context.Context, env *Env) (*metadata.Blob, CheckResult) {
	blob, _, err := env.loadDirectory(ctx)
	if err != nil {
		return nil, CheckResult{
			Name:    "Directory",
			Status:  CheckError,
			Message: fmt.Sprintf("Directory could not be loaded: %v", err),
		}
	}
	return blob, CheckResult{
		Name:   "Directory",
		Status: CheckPass,
		Message: fmt.Sprintf("Directory decrypts: %d folder(s), %d file(s), version %d",
			len(blob.Folders), len(blob.Files), blob.Version),
	}
}

// checkManifests compares every file entry with the manifest the backend
// holds for it. Chunk contents are not fetched.
func checkManifests(ctx context.Context, env *Env, blob *metadata.Blob) CheckResult {
	ids := make([]string, 0, len(blob.Files))
	for id := range blob.Files {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var broken []string
	for _, id := range ids {
		file := blob.Files[id]
		name := file.Filename
		if dir, err := blob.FolderPath(file.FolderID); err == nil {
			name = dir + "/" + file.Filename
		}

		m, err := env.Client.GetManifest(ctx, id)
		switch {
		case err != nil:
			env.Logger.Debugf("Manifest of %s (%s): %v", name, id, err)
			broken = append(broken, name)
		case m.FileID != id || m.PlaintextSize != file.Size:
			env.Logger.Debugf("Manifest of %s (%s) does not match: id=%s size=%d want %d", name, id, m.FileID, m.PlaintextSize, file.Size)
			broken = append(broken, name)
		}
	}

	if len(broken) > 0 {
		return CheckResult{
			Name:       "File manifests",
			Status:     CheckError,
			Message:    fmt.Sprintf("%d of %d file(s) have a missing or mismatched manifest, first: %s", len(broken), len(ids), broken[0]),
			Suggestion: "Remove the affected files with 'zkdrive vault rm' and upload them again",
		}
	}
	return CheckResult{
		Name:    "File manifests",
		Status:  CheckPass,
		Message: fmt.Sprintf("All %d file(s) have a matching manifest", len(ids)),
	}
}

// calculateDoctorSummary calculates the counts of checks by status.
func calculateDoctorSummary(results []CheckResult) DoctorSummary {
	var summary DoctorSummary
	for _, result := range results {
		switch result.Status {
		case CheckPass:
			summary.Passed++
		case CheckWarning:
			summary.Warnings++
		case CheckError:
			summary.Errors++
		}
	}
	return summary
}
