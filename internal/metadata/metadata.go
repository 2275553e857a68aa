package metadata

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/PolarWolf314/zkdrive/internal/aead"
	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"
	"github.com/PolarWolf314/zkdrive/internal/keys"

	"github.com/go-playground/validator/v10"
)

// Folder is one directory entry. ParentID is empty at the top level.
type Folder struct {
	Name              string    `json:"name" validate:"required,excludesall=/"`
	ParentID          string    `json:"parentId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	EncryptedKey      string    `json:"encryptedKey" validate:"required,base64"`
	EncryptedKeyNonce string    `json:"encryptedKeyNonce" validate:"required,base64"`
}

// File is one file entry. Its key is wrapped under the owning folder's key.
type File struct {
	Filename          string    `json:"filename" validate:"required,excludesall=/"`
	MimeType          string    `json:"mimeType"`
	FolderID          string    `json:"folderId" validate:"required"`
	Size              int64     `json:"size" validate:"gte=0"`
	CreatedAt         time.Time `json:"createdAt"`
	EncryptedKey      string    `json:"encryptedKey" validate:"required,base64"`
	EncryptedKeyNonce string    `json:"encryptedKeyNonce" validate:"required,base64"`
}

// Blob is the whole folder/file directory of an account. Version is the
// server version it was loaded at; saves must present it.
type Blob struct {
	Version int               `json:"version"`
	Folders map[string]Folder `json:"folders"`
	Files   map[string]File   `json:"files"`
}

var validate = validator.New()

// New returns an empty directory at version 0.
func New() *Blob {
	return &Blob{Folders: map[string]Folder{}, Files: map[string]File{}}
}

// WrappedKey returns the folder key's wrapped form.
func (f Folder) WrappedKey() (aead.EncryptedBlob, error) {
	return aead.WireBlob{Ciphertext: f.EncryptedKey, Nonce: f.EncryptedKeyNonce}.Blob()
}

// WrappedKey returns the file key's wrapped form.
func (f File) WrappedKey() (aead.EncryptedBlob, error) {
	return aead.WireBlob{Ciphertext: f.EncryptedKey, Nonce: f.EncryptedKeyNonce}.Blob()
}

// Validate checks every entry and the references between them: a file's
// folder must exist and parent pointers must reach the top level without a
// cycle.
func (b *Blob) Validate() error {
	for id, folder := range b.Folders {
		if id == "" {
			return fmt.Errorf("%w: folder with empty id", kerrors.ErrMetadataCorrupted)
		}
		if err := validate.Struct(folder); err != nil {
			return fmt.Errorf("%w: folder %s: %v", kerrors.ErrMetadataCorrupted, id, err)
		}
		if folder.ParentID != "" {
			if _, ok := b.Folders[folder.ParentID]; !ok {
				return fmt.Errorf("%w: folder %s has unknown parent %s", kerrors.ErrMetadataCorrupted, id, folder.ParentID)
			}
		}
	}
	for id := range b.Folders {
		if _, err := b.FolderPath(id); err != nil {
			return err
		}
	}
	for id, file := range b.Files {
		if id == "" {
			return fmt.Errorf("%w: file with empty id", kerrors.ErrMetadataCorrupted)
		}
		if err := validate.Struct(file); err != nil {
			return fmt.Errorf("%w: file %s: %v", kerrors.ErrMetadataCorrupted, id, err)
		}
		if _, ok := b.Folders[file.FolderID]; !ok {
			return fmt.Errorf("%w: file %s is in unknown folder %s", kerrors.ErrMetadataCorrupted, id, file.FolderID)
		}
	}
	return nil
}

// Encrypt validates the blob, encodes it as JSON and seals it under the
// master key. Map keys are sorted by encoding/json, so equal blobs encode to
// equal bytes.
func Encrypt(b *Blob, masterKey *keys.Key) (aead.EncryptedBlob, error) {
	if masterKey == nil {
		return aead.EncryptedBlob{}, kerrors.ErrSessionLocked
	}
	if err := b.Validate(); err != nil {
		return aead.EncryptedBlob{}, err
	}
	plaintext, err := json.Marshal(b)
	if err != nil {
		return aead.EncryptedBlob{}, fmt.Errorf("encoding metadata: %w", err)
	}
	return aead.Encrypt(plaintext, masterKey.Bytes())
}

// Decrypt opens the blob. An authentication failure is ErrDecryptionFailed;
// content that decrypts but does not decode or validate is
// ErrMetadataCorrupted.
func Decrypt(enc aead.EncryptedBlob, masterKey *keys.Key) (*Blob, error) {
	if masterKey == nil {
		return nil, kerrors.ErrSessionLocked
	}
	plaintext, err := aead.Decrypt(enc, masterKey.Bytes())
	if err != nil {
		return nil, err
	}

	b := New()
	if err := json.Unmarshal(plaintext, b); err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrMetadataCorrupted, err)
	}
	if b.Folders == nil {
		b.Folders = map[string]Folder{}
	}
	if b.Files == nil {
		b.Files = map[string]File{}
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// AddFolder records a folder and its wrapped key.
func (b *Blob) AddFolder(id, name, parentID string, wrapped aead.EncryptedBlob, now time.Time) error {
	if _, ok := b.Folders[id]; ok {
		return fmt.Errorf("folder %s already exists", id)
	}
	if parentID != "" {
		if _, ok := b.Folders[parentID]; !ok {
			return fmt.Errorf("parent folder %s: %w", parentID, kerrors.ErrNotFound)
		}
	}
	for _, existing := range b.Folders {
		if existing.ParentID == parentID && existing.Name == name {
			return fmt.Errorf("folder %q already exists", name)
		}
	}
	w := wrapped.Wire()
	folder := Folder{
		Name:              name,
		ParentID:          parentID,
		CreatedAt:         now.UTC(),
		EncryptedKey:      w.Ciphertext,
		EncryptedKeyNonce: w.Nonce,
	}
	if err := validate.Struct(folder); err != nil {
		return fmt.Errorf("invalid folder: %w", err)
	}
	b.Folders[id] = folder
	return nil
}

// AddFile records a file and its wrapped key.
func (b *Blob) AddFile(id string, file File, wrapped aead.EncryptedBlob) error {
	if _, ok := b.Folders[file.FolderID]; !ok {
		return fmt.Errorf("folder %s: %w", file.FolderID, kerrors.ErrNotFound)
	}
	w := wrapped.Wire()
	file.EncryptedKey = w.Ciphertext
	file.EncryptedKeyNonce = w.Nonce
	file.CreatedAt = file.CreatedAt.UTC()
	if err := validate.Struct(file); err != nil {
		return fmt.Errorf("invalid file: %w", err)
	}
	b.Files[id] = file
	return nil
}

// RemoveFile drops a file entry. Deleting its content is up to the caller.
func (b *Blob) RemoveFile(id string) error {
	if _, ok := b.Files[id]; !ok {
		return fmt.Errorf("file %s: %w", id, kerrors.ErrNotFound)
	}
	delete(b.Files, id)
	return nil
}

// FolderPath returns the slash-joined names from the top level down to id.
func (b *Blob) FolderPath(id string) (string, error) {
	var names []string
	seen := map[string]bool{}
	for cur := id; cur != ""; {
		if seen[cur] {
			return "", fmt.Errorf("%w: folder %s is part of a parent cycle", kerrors.ErrMetadataCorrupted, id)
		}
		seen[cur] = true
		folder, ok := b.Folders[cur]
		if !ok {
			return "", fmt.Errorf("folder %s: %w", cur, kerrors.ErrNotFound)
		}
		names = append([]string{folder.Name}, names...)
		cur = folder.ParentID
	}
	return strings.Join(names, "/"), nil
}

// ResolveFolder finds a folder by its slash-joined path.
func (b *Blob) ResolveFolder(p string) (string, error) {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "" {
		return "", fmt.Errorf("folder path is empty")
	}
	parent := ""
	for _, name := range strings.Split(p, "/") {
		found := ""
		for id, folder := range b.Folders {
			if folder.ParentID == parent && folder.Name == name {
				found = id
				break
			}
		}
		if found == "" {
			return "", fmt.Errorf("folder %s: %w", p, kerrors.ErrNotFound)
		}
		parent = found
	}
	return parent, nil
}

// FilesIn returns the IDs of files in folderID ordered by filename.
func (b *Blob) FilesIn(folderID string) []string {
	var ids []string
	for id, file := range b.Files {
		if file.FolderID == folderID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return b.Files[ids[i]].Filename < b.Files[ids[j]].Filename
	})
	return ids
}

// FindFile returns the ID of the file named filename in folderID.
func (b *Blob) FindFile(folderID, filename string) (string, bool) {
	for id, file := range b.Files {
		if file.FolderID == folderID && file.Filename == filename {
			return id, true
		}
	}
	return "", false
}

// SortedFolders returns folder IDs ordered by path. Broken entries sort
// last.
func (b *Blob) SortedFolders() []string {
	paths := make(map[string]string, len(b.Folders))
	ids := make([]string, 0, len(b.Folders))
	for id := range b.Folders {
		p, err := b.FolderPath(id)
		if err != nil {
			p = "\xff" + id
		}
		paths[id] = p
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return paths[ids[i]] < paths[ids[j]] })
	return ids
}

// LoadKeys registers every wrapped folder and file key with ring. Keys are
// unwrapped lazily by the keyring.
func (b *Blob) LoadKeys(ring *keys.Keyring) error {
	for id, folder := range b.Folders {
		wrapped, err := folder.WrappedKey()
		if err != nil {
			return fmt.Errorf("folder %s: %w", id, err)
		}
		if err := ring.AddFolder(id, folder.ParentID, wrapped); err != nil {
			return err
		}
	}
	for id, file := range b.Files {
		wrapped, err := file.WrappedKey()
		if err != nil {
			return fmt.Errorf("file %s: %w", id, err)
		}
		if err := ring.AddFile(id, file.FolderID, wrapped); err != nil {
			return err
		}
	}
	return nil
}
