package workflows

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/PolarWolf314/zkdrive/internal/keys"
	"github.com/PolarWolf314/zkdrive/internal/metadata"
)

// loadDirectory decrypts the account's directory and registers its wrapped
// keys with the session keyring.
func (e *Env) loadDirectory(ctx context.Context) (*metadata.Blob, *keys.Keyring, error) {
	ring, err := e.Session.Keyring()
	if err != nil {
		return nil, nil, err
	}
	blob, err := e.Repository().Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := blob.LoadKeys(ring); err != nil {
		return nil, nil, fmt.Errorf("loading folder keys: %w", err)
	}
	return blob, ring, nil
}

// splitRemotePath turns "docs/taxes/2024.pdf" into "docs/taxes" and
// "2024.pdf". Leading and duplicate slashes are ignored.
func splitRemotePath(p string) (dir, name string) {
	p = strings.Trim(path.Clean("/"+p), "/")
	dir, name = path.Split(p)
	return strings.TrimSuffix(dir, "/"), name
}

// splitPath returns the non-empty components of a slash-separated path.
func splitPath(p string) []string {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
