package workflows

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/PolarWolf314/zkdrive/internal/audit"
	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"
	"github.com/PolarWolf314/zkdrive/internal/transfer"
)

// DownloadOptions configures the download workflow.
type DownloadOptions struct {
	// RemotePath is the folder and filename, e.g. "docs/taxes/2024.pdf".
	RemotePath string

	// OutputPath is where the plaintext is written. An existing directory
	// gets the remote filename inside it. Defaults to the remote filename
	// in the working directory.
	OutputPath string

	// Overwrite replaces an existing file at OutputPath.
	Overwrite bool

	// Progress receives cumulative plaintext bytes. Optional.
	Progress transfer.ProgressFunc
}

// DownloadResult contains the outcome of a download.
type DownloadResult struct {
	FileID     string
	OutputPath string
	Bytes      int64
	Chunks     int
	Monolithic bool
}

// Download fetches and decrypts a file.
//
// Output goes to a temporary file beside OutputPath that only replaces it
// once every chunk has been authenticated. Any failure, cancellation
// included, removes the temporary file.
//
// Returns ErrNotFound if the file does not exist, ErrTransferAborted if ctx
// is cancelled, and ErrStreamCorrupted or ErrTruncatedStream for damaged
// content.
func Download(ctx context.Context, env *Env, opts DownloadOptions) (*DownloadResult, error) {
	dir, name := splitRemotePath(opts.RemotePath)
	if dir == "" || name == "" {
		return nil, fmt.Errorf("remote path %q must name a folder and a file", opts.RemotePath)
	}

	blob, ring, err := env.loadDirectory(ctx)
	if err != nil {
		return nil, err
	}
	folderID, err := blob.ResolveFolder(dir)
	if err != nil {
		return nil, err
	}
	fileID, ok := blob.FindFile(folderID, name)
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", dir, name, kerrors.ErrNotFound)
	}

	out := opts.OutputPath
	if out == "" {
		out = name
	} else if info, err := os.Stat(out); err == nil && info.IsDir() {
		out = filepath.Join(out, name)
	}
	if _, err := os.Stat(out); err == nil && !opts.Overwrite {
		return nil, fmt.Errorf("%s already exists", out)
	}

	fileKey, err := ring.FileKey(fileID)
	if err != nil {
		return nil, err
	}
	defer fileKey.Zero()

	m, err := env.Client.GetManifest(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("fetching manifest for %s: %w", name, err)
	}
	if m.FileID != fileID {
		return nil, fmt.Errorf("%w: manifest is for another file", kerrors.ErrStreamCorrupted)
	}

	sink, err := transfer.NewFileSink(out)
	if err != nil {
		return nil, err
	}
	if err := env.Orchestrator().Download(ctx, m, fileKey, sink, opts.Progress); err != nil {
		return nil, fmt.Errorf("downloading %s: %w", name, err)
	}

	identity := env.Session.Identity()
	audit.Log(audit.Entry{
		User:       identity.Email,
		UserID:     identity.UserID,
		Operation:  audit.OpDownload,
		FileID:     fileID,
		Chunks:     len(m.Chunks),
		Bytes:      m.PlaintextSize,
		OutputPath: out,
	})
	env.Logger.Infof("Downloaded %s to %s", fileID, out)

	return &DownloadResult{
		FileID:     fileID,
		OutputPath: out,
		Bytes:      m.PlaintextSize,
		Chunks:     len(m.Chunks),
		Monolithic: !m.Segmented(),
	}, nil
}
