package workflows

import (
	"context"
	"strings"
	"time"

	"github.com/PolarWolf314/zkdrive/internal/audit"
)

// LogOptions filters the local audit log.
type LogOptions struct {
	// Since keeps entries newer than this long ago. Zero keeps everything.
	Since time.Duration

	// Operations is a comma-separated list such as "upload,download".
	Operations string

	// Limit keeps the newest N entries. Zero means no limit.
	Limit int

	Now func() time.Time
}

// LogResult contains the outcome of reading the audit log.
type LogResult struct {
	Entries []audit.Entry

	// TotalEntriesBeforeFilter is how many entries the log holds.
	TotalEntriesBeforeFilter int
}

// Log reads the audit log of this device and applies the filters in opts.
func Log(ctx context.Context, opts LogOptions) (*LogResult, error) {
	entries, err := audit.ReadEntries()
	if err != nil {
		return nil, err
	}
	result := &LogResult{TotalEntriesBeforeFilter: len(entries)}

	if opts.Since > 0 {
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}
		entries = audit.Since(entries, now().Add(-opts.Since))
	}

	if opts.Operations != "" {
		wanted := map[string]bool{}
		for _, op := range strings.Split(opts.Operations, ",") {
			wanted[strings.TrimSpace(op)] = true
		}
		var kept []audit.Entry
		for _, e := range entries {
			if wanted[e.Operation] {
				kept = append(kept, e)
			}
		}
		entries = kept
	}

	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[len(entries)-opts.Limit:]
	}

	result.Entries = entries
	return result, nil
}
