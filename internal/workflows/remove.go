package workflows

import (
	"context"
	"fmt"

	"github.com/PolarWolf314/zkdrive/internal/audit"
	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"
	"github.com/PolarWolf314/zkdrive/internal/metadata"
)

// RemoveOptions configures the remove workflow.
type RemoveOptions struct {
	// RemotePath is the folder and filename, e.g. "docs/taxes/2024.pdf".
	RemotePath string
}

// RemoveResult contains the outcome of a remove.
type RemoveResult struct {
	FileID          string
	Path            string
	Size            int64
	MetadataVersion int

	// ContentErr is set when the entry was removed but its ciphertext
	// could not be deleted from the backend.
	ContentErr error
}

// Remove deletes a file from the vault.
//
// The metadata entry goes first, so a file is never listed without its
// content. Content that cannot be deleted afterwards is reported in
// ContentErr and left behind as unreferenced ciphertext.
//
// Returns ErrNotFound if the file does not exist.
func Remove(ctx context.Context, env *Env, opts RemoveOptions) (*RemoveResult, error) {
	dir, name := splitRemotePath(opts.RemotePath)
	if dir == "" || name == "" {
		return nil, fmt.Errorf("remote path %q must name a folder and a file", opts.RemotePath)
	}

	blob, _, err := env.loadDirectory(ctx)
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
	size := blob.Files[fileID].Size

	saved, err := env.Repository().Update(ctx, 0, func(b *metadata.Blob) error {
		return b.RemoveFile(fileID)
	})
	if err != nil {
		return nil, fmt.Errorf("removing %s/%s: %w", dir, name, err)
	}

	result := &RemoveResult{
		FileID:          fileID,
		Path:            dir + "/" + name,
		Size:            size,
		MetadataVersion: saved.Version,
	}
	if err := env.Client.DeleteFile(ctx, fileID); err != nil {
		env.Logger.Warnf("Content of %s was not deleted: %v", fileID, err)
		result.ContentErr = err
	}

	identity := env.Session.Identity()
	audit.Log(audit.Entry{
		User:      identity.Email,
		UserID:    identity.UserID,
		Operation: audit.OpRemove,
		FileID:    fileID,
		FolderID:  folderID,
		Bytes:     size,
	})
	env.Logger.Infof("Removed %s (%s)", result.Path, fileID)

	return result, nil
}
