package metadata

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/PolarWolf314/zkdrive/internal/aead"
	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"
	"github.com/PolarWolf314/zkdrive/internal/keys"
)

// memStore is an in-memory Store with server-side version checks.
type memStore struct {
	mu      sync.Mutex
	env     Envelope
	present bool
}

func (s *memStore) GetMetadata(context.Context) (Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.present {
		return Envelope{}, kerrors.ErrNotFound
	}
	return s.env, nil
}

func (s *memStore) SaveMetadata(_ context.Context, env Envelope, expected int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if expected != s.env.Version {
		return 0, kerrors.ErrVersionConflict
	}
	env.Version = s.env.Version + 1
	s.env = env
	s.present = true
	return env.Version, nil
}

type staticKey struct{ key *keys.Key }

func (k staticKey) MasterKey() (*keys.Key, error) {
	if k.key == nil {
		return nil, kerrors.ErrSessionLocked
	}
	return k.key.Clone(), nil
}

func newMaster(t *testing.T) *keys.Key {
	t.Helper()
	k, err := keys.GenerateMasterKey()
	if err != nil {
		t.Fatalf("GenerateMasterKey failed: %v", err)
	}
	return k
}

func wrappedKey(t *testing.T) aead.EncryptedBlob {
	t.Helper()
	blob, err := keys.Wrap(newMaster(t), newMaster(t))
	if err != nil {
		t.Fatalf("Wrap failed: %v", err)
	}
	return blob
}

func sampleBlob(t *testing.T, folders, files int) *Blob {
	t.Helper()
	b := New()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	parent := ""
	for i := 0; i < folders; i++ {
		id := "folder-" + string(rune('a'+i))
		if err := b.AddFolder(id, "dir"+string(rune('a'+i)), parent, wrappedKey(t), now); err != nil {
			t.Fatalf("AddFolder failed: %v", err)
		}
		parent = id
	}
	for i := 0; i < files; i++ {
		err := b.AddFile("file-"+string(rune('a'+i)), File{
			Filename:  "report-" + string(rune('a'+i)) + ".pdf",
			MimeType:  "application/pdf",
			FolderID:  parent,
			Size:      int64(1000 * i),
			CreatedAt: now,
		}, wrappedKey(t))
		if err != nil {
			t.Fatalf("AddFile failed: %v", err)
		}
	}
	return b
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	tests := []struct {
		name           string
		folders, files int
	}{
		{"empty", 0, 0},
		{"one of each", 1, 1},
		{"many", 6, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			master := newMaster(t)
			blob := sampleBlob(t, tt.folders, tt.files)

			enc, err := Encrypt(blob, master)
			if err != nil {
				t.Fatalf("Encrypt failed: %v", err)
			}
			got, err := Decrypt(enc, master)
			if err != nil {
				t.Fatalf("Decrypt failed: %v", err)
			}
			if !reflect.DeepEqual(blob, got) {
				t.Errorf("round trip mismatch:\nwant %+v\ngot  %+v", blob, got)
			}
		})
	}
}

func TestDecryptDistinguishesFailures(t *testing.T) {
	master := newMaster(t)
	enc, err := Encrypt(sampleBlob(t, 1, 1), master)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if _, err := Decrypt(enc, newMaster(t)); !errors.Is(err, kerrors.ErrDecryptionFailed) {
		t.Errorf("wrong key: expected ErrDecryptionFailed, got %v", err)
	}

	garbage, err := aead.Encrypt([]byte("{not json"), master.Bytes())
	if err != nil {
		t.Fatalf("aead.Encrypt failed: %v", err)
	}
	if _, err := Decrypt(garbage, master); !errors.Is(err, kerrors.ErrMetadataCorrupted) {
		t.Errorf("bad json: expected ErrMetadataCorrupted, got %v", err)
	}

	orphan, err := aead.Encrypt([]byte(`{"version":1,"folders":{},"files":{"x":{"filename":"a","folderId":"missing","encryptedKey":"AA==","encryptedKeyNonce":"AA=="}}}`), master.Bytes())
	if err != nil {
		t.Fatalf("aead.Encrypt failed: %v", err)
	}
	if _, err := Decrypt(orphan, master); !errors.Is(err, kerrors.ErrMetadataCorrupted) {
		t.Errorf("orphan file: expected ErrMetadataCorrupted, got %v", err)
	}
}

func TestValidateRejectsParentCycle(t *testing.T) {
	b := sampleBlob(t, 2, 0)
	a := b.Folders["folder-a"]
	a.ParentID = "folder-b"
	b.Folders["folder-a"] = a

	if err := b.Validate(); !errors.Is(err, kerrors.ErrMetadataCorrupted) {
		t.Errorf("expected ErrMetadataCorrupted for cycle, got %v", err)
	}
}

func TestDirectoryHelpers(t *testing.T) {
	b := sampleBlob(t, 3, 2)

	p, err := b.FolderPath("folder-c")
	if err != nil {
		t.Fatalf("FolderPath failed: %v", err)
	}
	if p != "dira/dirb/dirc" {
		t.Errorf("expected dira/dirb/dirc, got %q", p)
	}

	id, err := b.ResolveFolder("/dira/dirb/")
	if err != nil {
		t.Fatalf("ResolveFolder failed: %v", err)
	}
	if id != "folder-b" {
		t.Errorf("expected folder-b, got %q", id)
	}
	if _, err := b.ResolveFolder("dira/nope"); !errors.Is(err, kerrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if got := b.FilesIn("folder-c"); !reflect.DeepEqual(got, []string{"file-a", "file-b"}) {
		t.Errorf("FilesIn returned %v", got)
	}
	if got := b.SortedFolders(); !reflect.DeepEqual(got, []string{"folder-a", "folder-b", "folder-c"}) {
		t.Errorf("SortedFolders returned %v", got)
	}

	if err := b.AddFolder("dup", "dirb", "folder-a", wrappedKey(t), time.Now()); err == nil {
		t.Error("expected duplicate folder name to be rejected")
	}
	if err := b.AddFile("y", File{Filename: "a", FolderID: "missing"}, wrappedKey(t)); !errors.Is(err, kerrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing folder, got %v", err)
	}
}

func TestRemoveFile(t *testing.T) {
	b := sampleBlob(t, 1, 2)

	if err := b.RemoveFile("file-a"); err != nil {
		t.Fatalf("RemoveFile failed: %v", err)
	}
	if got := b.FilesIn("folder-a"); !reflect.DeepEqual(got, []string{"file-b"}) {
		t.Errorf("FilesIn after remove returned %v", got)
	}
	if _, ok := b.FindFile("folder-a", "report-a.pdf"); ok {
		t.Error("removed file is still found")
	}
	if err := b.RemoveFile("file-a"); !errors.Is(err, kerrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second remove, got %v", err)
	}
}

func TestLoadKeysBuildsReachableKeyring(t *testing.T) {
	master := newMaster(t)
	source := keys.NewKeyring(master)
	b := New()

	wrappedFolder, err := source.NewFolder("f1", "")
	if err != nil {
		t.Fatalf("NewFolder failed: %v", err)
	}
	if err := b.AddFolder("f1", "docs", "", wrappedFolder, time.Now()); err != nil {
		t.Fatalf("AddFolder failed: %v", err)
	}
	wrappedFile, fileKey, err := source.NewFile("x1", "f1")
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	if err := b.AddFile("x1", File{Filename: "a.txt", FolderID: "f1"}, wrappedFile); err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}

	ring := keys.NewKeyring(master)
	if err := b.LoadKeys(ring); err != nil {
		t.Fatalf("LoadKeys failed: %v", err)
	}
	got, err := ring.FileKey("x1")
	if err != nil {
		t.Fatalf("FileKey failed: %v", err)
	}
	if !got.Equal(fileKey) {
		t.Error("file key does not match")
	}
}

func TestRepositoryStaleSaveConflicts(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	provider := staticKey{key: newMaster(t)}
	first := NewRepository(store, provider)
	second := NewRepository(store, provider)

	a, err := first.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	b, err := second.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if a.Version != 0 || b.Version != 0 {
		t.Fatalf("expected version 0 for a fresh account, got %d and %d", a.Version, b.Version)
	}

	if err := a.AddFolder("f1", "from-first", "", wrappedKey(t), time.Now()); err != nil {
		t.Fatalf("AddFolder failed: %v", err)
	}
	if err := first.Save(ctx, a); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	if a.Version != 1 {
		t.Errorf("expected version 1 after save, got %d", a.Version)
	}

	if err := b.AddFolder("f2", "from-second", "", wrappedKey(t), time.Now()); err != nil {
		t.Fatalf("AddFolder failed: %v", err)
	}
	err = second.Save(ctx, b)
	if !errors.Is(err, kerrors.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if b.Version != 0 {
		t.Errorf("failed save must not advance the version, got %d", b.Version)
	}

	reloaded, err := second.Load(ctx)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if _, ok := reloaded.Folders["f1"]; !ok {
		t.Error("reloaded metadata is missing the first save's folder")
	}
	if _, ok := reloaded.Folders["f2"]; ok {
		t.Error("rejected save must not be visible")
	}
}

func TestRepositoryUpdateReapplies(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	provider := staticKey{key: newMaster(t)}
	repo := NewRepository(store, provider)
	other := NewRepository(store, provider)

	calls := 0
	b, err := repo.Update(ctx, 3, func(b *Blob) error {
		calls++
		if calls == 1 {
			// Another client saves between our load and our save.
			theirs, err := other.Load(ctx)
			if err != nil {
				return err
			}
			if err := theirs.AddFolder("theirs", "theirs", "", wrappedKey(t), time.Now()); err != nil {
				return err
			}
			if err := other.Save(ctx, theirs); err != nil {
				return err
			}
		}
		if _, ok := b.Folders["mine"]; ok {
			return nil
		}
		return b.AddFolder("mine", "mine", "", wrappedKey(t), time.Now())
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected fn to run twice, ran %d times", calls)
	}
	if len(b.Folders) != 2 || b.Version != 2 {
		t.Errorf("expected both folders at version 2, got %d folders at version %d", len(b.Folders), b.Version)
	}
}

func TestRepositoryLocked(t *testing.T) {
	repo := NewRepository(&memStore{}, staticKey{})
	if _, err := repo.Load(context.Background()); !errors.Is(err, kerrors.ErrSessionLocked) {
		t.Errorf("expected ErrSessionLocked, got %v", err)
	}
}
