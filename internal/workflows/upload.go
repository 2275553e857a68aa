package workflows

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PolarWolf314/zkdrive/internal/audit"
	"github.com/PolarWolf314/zkdrive/internal/metadata"
	"github.com/PolarWolf314/zkdrive/internal/stream"
	"github.com/PolarWolf314/zkdrive/internal/transfer"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// UploadOptions configures the upload workflow.
type UploadOptions struct {
	// LocalPath is the file to encrypt and upload.
	LocalPath string

	// Folder is the existing vault folder the file goes into.
	Folder string

	// Name overrides the remote filename. Defaults to the local base name.
	Name string

	// Monolithic stores the file as one continuous stream instead of
	// independently keyed chunks.
	Monolithic bool

	// Progress receives cumulative plaintext bytes. Optional.
	Progress transfer.ProgressFunc
}

// UploadResult contains the outcome of an upload.
type UploadResult struct {
	// FileID is the new file's ID.
	FileID string

	// Path is the remote path, folder and filename.
	Path string

	Size       int64
	MimeType   string
	Chunks     int
	Monolithic bool

	// MetadataVersion is the directory version after the save.
	MetadataVersion int
}

// Upload encrypts a local file under a fresh file key and records it in the
// directory.
//
// The file key is wrapped under the destination folder's key. Content is
// stored before the directory is saved, so a failed save leaves orphaned
// ciphertext rather than a directory entry without content.
//
// Returns ErrNotFound if the folder does not exist and ErrSessionLocked
// when the session is not unlocked.
func Upload(ctx context.Context, env *Env, opts UploadOptions) (*UploadResult, error) {
	info, err := os.Stat(opts.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", opts.LocalPath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", opts.LocalPath)
	}
	name := opts.Name
	if name == "" {
		name = filepath.Base(opts.LocalPath)
	}
	if strings.Contains(name, "/") {
		return nil, fmt.Errorf("file name %q must not contain a slash", name)
	}

	mimeType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(opts.LocalPath); err == nil {
		mimeType = mt.String()
	} else {
		env.Logger.Debugf("Could not detect content type of %s: %v", opts.LocalPath, err)
	}

	blob, ring, err := env.loadDirectory(ctx)
	if err != nil {
		return nil, err
	}
	folder := strings.Join(splitPath(opts.Folder), "/")
	if folder == "" {
		return nil, fmt.Errorf("files must be uploaded into a folder")
	}
	folderID, err := blob.ResolveFolder(folder)
	if err != nil {
		return nil, err
	}
	if _, exists := blob.FindFile(folderID, name); exists {
		return nil, fmt.Errorf("%s/%s already exists", folder, name)
	}

	fileID := uuid.NewString()
	wrapped, fileKey, err := ring.NewFile(fileID, folderID)
	if err != nil {
		return nil, err
	}
	defer fileKey.Zero()

	f, err := os.Open(opts.LocalPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	orch := env.Orchestrator()
	var m *stream.Manifest
	if opts.Monolithic {
		env.Logger.Debugf("Uploading %s as a single stream", name)
		m, err = orch.UploadMonolithic(ctx, fileID, f, info.Size(), fileKey, env.Client, opts.Progress)
	} else {
		m, err = orch.Upload(ctx, fileID, f, info.Size(), fileKey, env.Client, opts.Progress)
	}
	if err != nil {
		return nil, fmt.Errorf("uploading %s: %w", name, err)
	}

	file := metadata.File{
		Filename:  name,
		MimeType:  mimeType,
		FolderID:  folderID,
		Size:      m.PlaintextSize,
		CreatedAt: env.Now(),
	}
	saved, err := env.Repository().Update(ctx, 0, func(b *metadata.Blob) error {
		if _, exists := b.FindFile(folderID, name); exists {
			return fmt.Errorf("%s/%s already exists", folder, name)
		}
		return b.AddFile(fileID, file, wrapped)
	})
	if err != nil {
		return nil, fmt.Errorf("saving %s/%s: %w", folder, name, err)
	}

	identity := env.Session.Identity()
	audit.Log(audit.Entry{
		User:       identity.Email,
		UserID:     identity.UserID,
		Operation:  audit.OpUpload,
		FileID:     fileID,
		FolderID:   folderID,
		Chunks:     len(m.Chunks),
		Bytes:      m.PlaintextSize,
		Monolithic: !m.Segmented(),
	})
	env.Logger.Infof("Uploaded %s as %s in %d chunk(s)", name, fileID, len(m.Chunks))

	return &UploadResult{
		FileID:          fileID,
		Path:            folder + "/" + name,
		Size:            m.PlaintextSize,
		MimeType:        mimeType,
		Chunks:          len(m.Chunks),
		Monolithic:      !m.Segmented(),
		MetadataVersion: saved.Version,
	}, nil
}
