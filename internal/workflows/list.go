package workflows

import (
	"context"
	"sort"
	"strings"
	"time"
)

// ListOptions configures the ls workflow.
type ListOptions struct {
	// Path is the folder to list. Empty lists the top level.
	Path string

	// Recursive lists every folder below Path as well.
	Recursive bool
}

// ListEntry is one folder or file in a listing.
type ListEntry struct {
	// Path is the slash-joined path from the top level.
	Path string

	// ID is the folder or file ID.
	ID string

	IsFolder  bool
	Size      int64
	MimeType  string
	CreatedAt time.Time
}

// ListResult contains the outcome of an ls.
type ListResult struct {
	// Path is the folder that was listed, empty for the top level.
	Path string

	// Entries holds folders first, then files, each ordered by path.
	Entries []ListEntry

	// MetadataVersion is the directory version the listing was read at.
	MetadataVersion int
}

// List decrypts the directory and lists the folders and files in a folder.
//
// Returns ErrNotFound if the folder does not exist and ErrSessionLocked
// when the session is not unlocked.
func List(ctx context.Context, env *Env, opts ListOptions) (*ListResult, error) {
	blob, _, err := env.loadDirectory(ctx)
	if err != nil {
		return nil, err
	}

	folderID := ""
	listed := strings.Join(splitPath(opts.Path), "/")
	if listed != "" {
		folderID, err = blob.ResolveFolder(listed)
		if err != nil {
			return nil, err
		}
	}

	// within reports whether folder id sits below the listed folder, and
	// directly below it unless the listing is recursive.
	within := func(id string) bool {
		parent := blob.Folders[id].ParentID
		if parent == folderID {
			return true
		}
		if !opts.Recursive {
			return false
		}
		seen := map[string]bool{id: true}
		for cur := parent; cur != "" && !seen[cur]; cur = blob.Folders[cur].ParentID {
			if cur == folderID {
				return true
			}
			seen[cur] = true
		}
		return folderID == ""
	}

	var folders, files []ListEntry
	var scanned []string
	for _, id := range blob.SortedFolders() {
		if id == folderID || !within(id) {
			continue
		}
		p, err := blob.FolderPath(id)
		if err != nil {
			return nil, err
		}
		folder := blob.Folders[id]
		folders = append(folders, ListEntry{Path: p, ID: id, IsFolder: true, CreatedAt: folder.CreatedAt})
		scanned = append(scanned, id)
	}

	fileFolders := []string{}
	if folderID != "" {
		fileFolders = append(fileFolders, folderID)
	}
	if opts.Recursive {
		fileFolders = append(fileFolders, scanned...)
	}
	for _, fid := range fileFolders {
		dir, err := blob.FolderPath(fid)
		if err != nil {
			return nil, err
		}
		for _, id := range blob.FilesIn(fid) {
			file := blob.Files[id]
			files = append(files, ListEntry{
				Path:      dir + "/" + file.Filename,
				ID:        id,
				Size:      file.Size,
				MimeType:  file.MimeType,
				CreatedAt: file.CreatedAt,
			})
		}
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	return &ListResult{
		Path:            listed,
		Entries:         append(folders, files...),
		MetadataVersion: blob.Version,
	}, nil
}
