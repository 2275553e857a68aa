package workflows

import (
	"context"
	"errors"
	"fmt"

	"github.com/PolarWolf314/zkdrive/internal/aead"
	"github.com/PolarWolf314/zkdrive/internal/audit"
	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"
	"github.com/PolarWolf314/zkdrive/internal/metadata"

	"github.com/google/uuid"
)

// MkdirOptions configures the mkdir workflow.
type MkdirOptions struct {
	// Path is the slash-separated folder path to create.
	Path string

	// Parents creates missing parent folders and accepts an existing
	// folder at Path.
	Parents bool
}

// MkdirResult contains the outcome of a mkdir.
type MkdirResult struct {
	// Created lists the paths of folders that did not exist before, from
	// the top down.
	Created []string

	// FolderID is the ID of the folder at Path.
	FolderID string

	// MetadataVersion is the directory version after the save.
	MetadataVersion int
}

type newFolder struct {
	id, name, parentID, path string
}

// Mkdir creates a folder with its own random folder key, wrapped under the
// master key.
//
// Keys and IDs are generated once; a save that loses a version race is
// reapplied to the reloaded directory with the same folders.
//
// Returns ErrSessionLocked when the session is not unlocked.
func Mkdir(ctx context.Context, env *Env, opts MkdirOptions) (*MkdirResult, error) {
	parts := splitPath(opts.Path)
	if len(parts) == 0 {
		return nil, fmt.Errorf("folder path is empty")
	}

	blob, ring, err := env.loadDirectory(ctx)
	if err != nil {
		return nil, err
	}

	// Walk down the existing folders, then plan one folder per missing
	// component.
	var (
		planned  []newFolder
		parentID string
		prefix   string
	)
	for i, part := range parts {
		if prefix == "" {
			prefix = part
		} else {
			prefix += "/" + part
		}
		last := i == len(parts)-1
		if len(planned) == 0 {
			id, err := blob.ResolveFolder(prefix)
			if err == nil {
				if last {
					if !opts.Parents {
						return nil, fmt.Errorf("folder %s already exists", prefix)
					}
					return &MkdirResult{FolderID: id, MetadataVersion: blob.Version}, nil
				}
				parentID = id
				continue
			}
			if !errors.Is(err, kerrors.ErrNotFound) {
				return nil, err
			}
			if !last && !opts.Parents {
				return nil, fmt.Errorf("parent folder %s: %w", prefix, kerrors.ErrNotFound)
			}
		}
		f := newFolder{id: uuid.NewString(), name: part, parentID: parentID, path: prefix}
		planned = append(planned, f)
		parentID = f.id
	}

	wrapped := make(map[string]aead.EncryptedBlob, len(planned))
	for _, f := range planned {
		w, err := ring.NewFolder(f.id, f.parentID)
		if err != nil {
			return nil, err
		}
		wrapped[f.id] = w
	}

	now := env.Now()
	saved, err := env.Repository().Update(ctx, 0, func(b *metadata.Blob) error {
		for _, f := range planned {
			if err := b.AddFolder(f.id, f.name, f.parentID, wrapped[f.id], now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("saving folder %s: %w", prefix, err)
	}

	result := &MkdirResult{FolderID: parentID, MetadataVersion: saved.Version}
	identity := env.Session.Identity()
	for _, f := range planned {
		result.Created = append(result.Created, f.path)
		audit.Log(audit.Entry{User: identity.Email, UserID: identity.UserID, Operation: audit.OpMkdir, FolderID: f.id})
	}
	env.Logger.Infof("Created %d folder(s) ending at %s", len(planned), prefix)
	return result, nil
}
