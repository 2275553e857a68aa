package keys

import (
	"fmt"
	"sync"

	"github.com/PolarWolf314/zkdrive/internal/aead"
	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"
)

// entry is one node in the key arena. For folders parentID is the parent
// folder ("" at the top level); for files it is the owning folder.
type entry struct {
	parentID string
	wrapped  aead.EncryptedBlob
	key      *Key
}

// Keyring is an arena of folder and file keys indexed by opaque IDs.
// Folder keys are wrapped under the master key and file keys under their
// folder key, so a file key is only reachable through its folder and a
// folder key only through the master key. Keys are unwrapped lazily and
// stay resident until Zero.
type Keyring struct {
	mu      sync.Mutex
	master  *Key
	folders map[string]*entry
	files   map[string]*entry
}

// NewKeyring returns a keyring rooted at a copy of master.
func NewKeyring(master *Key) *Keyring {
	return &Keyring{
		master:  master.Clone(),
		folders: make(map[string]*entry),
		files:   make(map[string]*entry),
	}
}

func (r *Keyring) live() error {
	if r.master == nil {
		return kerrors.ErrSessionLocked
	}
	return nil
}

// AddFolder registers a wrapped folder key. Parents may be added in any
// order but must not form a cycle.
func (r *Keyring) AddFolder(id, parentID string, wrapped aead.EncryptedBlob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.live(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("folder id is empty")
	}
	if err := r.checkAcyclic(id, parentID); err != nil {
		return err
	}
	if old, ok := r.folders[id]; ok {
		old.key.Zero()
	}
	r.folders[id] = &entry{parentID: parentID, wrapped: wrapped}
	return nil
}

// AddFile registers a wrapped file key owned by folderID.
func (r *Keyring) AddFile(id, folderID string, wrapped aead.EncryptedBlob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.live(); err != nil {
		return err
	}
	if id == "" || folderID == "" {
		return fmt.Errorf("file %q must belong to a folder", id)
	}
	if old, ok := r.files[id]; ok {
		old.key.Zero()
	}
	r.files[id] = &entry{parentID: folderID, wrapped: wrapped}
	return nil
}

// NewFolder generates a folder key, wraps it under the master key and
// registers it. The wrapped form is returned for the metadata blob.
func (r *Keyring) NewFolder(id, parentID string) (aead.EncryptedBlob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.live(); err != nil {
		return aead.EncryptedBlob{}, err
	}
	if _, ok := r.folders[id]; ok {
		return aead.EncryptedBlob{}, fmt.Errorf("folder %s already has a key", id)
	}
	if err := r.checkAcyclic(id, parentID); err != nil {
		return aead.EncryptedBlob{}, err
	}

	key, err := GenerateFolderKey()
	if err != nil {
		return aead.EncryptedBlob{}, err
	}
	wrapped, err := Wrap(key, r.master)
	if err != nil {
		key.Zero()
		return aead.EncryptedBlob{}, err
	}
	r.folders[id] = &entry{parentID: parentID, wrapped: wrapped, key: key}
	return wrapped, nil
}

// NewFile generates a file key, wraps it under its folder key and registers
// it. It returns the wrapped form and a copy of the key for encryption.
func (r *Keyring) NewFile(id, folderID string) (aead.EncryptedBlob, *Key, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.live(); err != nil {
		return aead.EncryptedBlob{}, nil, err
	}
	if _, ok := r.files[id]; ok {
		return aead.EncryptedBlob{}, nil, fmt.Errorf("file %s already has a key", id)
	}
	folderKey, err := r.folderKey(folderID)
	if err != nil {
		return aead.EncryptedBlob{}, nil, err
	}

	key, err := GenerateFileKey()
	if err != nil {
		return aead.EncryptedBlob{}, nil, err
	}
	wrapped, err := Wrap(key, folderKey)
	if err != nil {
		key.Zero()
		return aead.EncryptedBlob{}, nil, err
	}
	r.files[id] = &entry{parentID: folderID, wrapped: wrapped, key: key}
	return wrapped, key.Clone(), nil
}

// FolderKey returns a copy of the folder key, unwrapping it under the master
// key on first use.
func (r *Keyring) FolderKey(id string) (*Key, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.live(); err != nil {
		return nil, err
	}
	key, err := r.folderKey(id)
	if err != nil {
		return nil, err
	}
	return key.Clone(), nil
}

// FileKey returns a copy of the file key, unwrapping the owning folder key
// and then the file key as needed.
func (r *Keyring) FileKey(id string) (*Key, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.live(); err != nil {
		return nil, err
	}
	e, ok := r.files[id]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", id, kerrors.ErrKeyNotFound)
	}
	if e.key == nil {
		folderKey, err := r.folderKey(e.parentID)
		if err != nil {
			return nil, fmt.Errorf("file %s: %w", id, err)
		}
		key, err := Unwrap(e.wrapped, folderKey)
		if err != nil {
			return nil, fmt.Errorf("unwrapping key for file %s: %w", id, err)
		}
		e.key = key
	}
	return e.key.Clone(), nil
}

func (r *Keyring) folderKey(id string) (*Key, error) {
	e, ok := r.folders[id]
	if !ok {
		return nil, fmt.Errorf("folder %s: %w", id, kerrors.ErrKeyNotFound)
	}
	if e.key == nil {
		key, err := Unwrap(e.wrapped, r.master)
		if err != nil {
			return nil, fmt.Errorf("unwrapping key for folder %s: %w", id, err)
		}
		e.key = key
	}
	return e.key, nil
}

// Path returns the folder IDs from the top level down to the folder that
// owns fileID.
func (r *Keyring) Path(fileID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.files[fileID]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", fileID, kerrors.ErrKeyNotFound)
	}

	var path []string
	for id := e.parentID; id != ""; {
		folder, ok := r.folders[id]
		if !ok {
			return nil, fmt.Errorf("folder %s: %w", id, kerrors.ErrKeyNotFound)
		}
		path = append([]string{id}, path...)
		id = folder.parentID
	}
	return path, nil
}

// checkAcyclic walks up from parentID and fails if it reaches id.
func (r *Keyring) checkAcyclic(id, parentID string) error {
	seen := map[string]bool{id: true}
	for cur := parentID; cur != ""; {
		if seen[cur] {
			return fmt.Errorf("folder %s: parent chain through %s forms a cycle", id, cur)
		}
		seen[cur] = true
		parent, ok := r.folders[cur]
		if !ok {
			return nil
		}
		cur = parent.parentID
	}
	return nil
}

// Len returns the number of folder and file entries.
func (r *Keyring) Len() (folders, files int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.folders), len(r.files)
}

// Zero wipes the master key and every resident key. The keyring is unusable
// afterwards and reports ErrSessionLocked.
func (r *Keyring) Zero() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.folders {
		e.key.Zero()
	}
	for _, e := range r.files {
		e.key.Zero()
	}
	r.master.Zero()
	r.master = nil
	r.folders = make(map[string]*entry)
	r.files = make(map[string]*entry)
}
