package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"
	"github.com/PolarWolf314/zkdrive/internal/kdf"
	"github.com/PolarWolf314/zkdrive/internal/kvstore"
	logger "github.com/PolarWolf314/zkdrive/internal/logging"
	"github.com/PolarWolf314/zkdrive/internal/metadata"
	"github.com/PolarWolf314/zkdrive/internal/stream"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const (
	vaultSecretKey  = "vault/secret"
	vaultUserPrefix = "vault/users/"
	vaultMetaPrefix = "vault/metadata/"
	vaultManPrefix  = "vault/manifests/"

	// DefaultTokenTTL is how long a local vault session token lives.
	DefaultTokenTTL = 24 * time.Hour
)

var validate = validator.New()

type vaultUser struct {
	UserID                  string     `json:"userId"`
	Email                   string     `json:"email"`
	Salt                    string     `json:"salt"`
	KDFParams               kdf.Params `json:"kdfParams"`
	AuthHash                string     `json:"authHash"`
	EncryptedMasterKey      string     `json:"encryptedMasterKey"`
	EncryptedMasterKeyNonce string     `json:"encryptedMasterKeyNonce"`
	CreatedAt               time.Time  `json:"createdAt"`
}

// LocalVault is a complete backend kept on this machine. Accounts, metadata
// and manifests live in the key-value store; chunk ciphertext lives under
// ObjectsDir so that a directory tier can read it directly.
type LocalVault struct {
	kv         *kvstore.Store
	objectsDir string
	secret     []byte
	token      TokenFunc
	ttl        time.Duration
	now        func() time.Time
	Logger     logger.Logger
}

var _ Client = (*LocalVault)(nil)

// LocalOptions configures a LocalVault.
type LocalOptions struct {
	ObjectsDir string
	Token      TokenFunc
	TokenTTL   time.Duration
	Now        func() time.Time
	Logger     logger.Logger
}

// OpenLocalVault uses kv for records and creates the token signing secret
// on first use.
func OpenLocalVault(kv *kvstore.Store, opts LocalOptions) (*LocalVault, error) {
	if opts.ObjectsDir == "" {
		return nil, fmt.Errorf("local vault needs an objects directory")
	}
	if err := os.MkdirAll(opts.ObjectsDir, 0700); err != nil {
		return nil, fmt.Errorf("creating objects directory: %w", err)
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	var secret []byte
	err := kv.Update(func(tx *kvstore.Tx) error {
		existing, err := tx.Get(vaultSecretKey)
		if err == nil {
			secret = existing
			return nil
		}
		if !errors.Is(err, kerrors.ErrNotFound) {
			return err
		}
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("generating vault secret: %w", err)
		}
		return tx.Set(vaultSecretKey, secret)
	})
	if err != nil {
		return nil, err
	}

	return &LocalVault{
		kv:         kv,
		objectsDir: opts.ObjectsDir,
		secret:     secret,
		token:      opts.Token,
		ttl:        opts.TokenTTL,
		now:        opts.Now,
		Logger:     opts.Logger,
	}, nil
}

// ObjectsDir returns the directory holding a user's chunk files.
func (v *LocalVault) ObjectsDir(userID string) string {
	return filepath.Join(v.objectsDir, userID)
}

// fakeSalt answers prelogin for unknown emails so that the response does not
// reveal whether an account exists.
func (v *LocalVault) fakeSalt(email string) []byte {
	h, _ := blake2b.New256(v.secret)
	h.Write([]byte("prelogin:" + strings.ToLower(email)))
	return h.Sum(nil)
}

func (v *LocalVault) loadUser(email string) (vaultUser, error) {
	raw, err := v.kv.Get(vaultUserPrefix + strings.ToLower(email))
	if err != nil {
		return vaultUser{}, err
	}
	var u vaultUser
	if err := json.Unmarshal(raw, &u); err != nil {
		return vaultUser{}, fmt.Errorf("decoding account: %w", err)
	}
	return u, nil
}

func (v *LocalVault) GetSalt(_ context.Context, email string) (Prelogin, error) {
	u, err := v.loadUser(email)
	if errors.Is(err, kerrors.ErrNotFound) {
		return Prelogin{
			Salt:      base64.StdEncoding.EncodeToString(v.fakeSalt(email)),
			KDFParams: kdf.DefaultParams(),
		}, nil
	}
	if err != nil {
		return Prelogin{}, err
	}
	return Prelogin{Salt: u.Salt, KDFParams: u.KDFParams}, nil
}

func (v *LocalVault) Register(_ context.Context, reg Registration) (LoginResult, error) {
	if err := validate.Struct(reg); err != nil {
		return LoginResult{}, fmt.Errorf("invalid registration: %w", err)
	}
	if err := reg.KDFParams.Validate(); err != nil {
		return LoginResult{}, err
	}

	u := vaultUser{
		UserID:                  uuid.NewString(),
		Email:                   strings.ToLower(reg.Email),
		Salt:                    reg.Salt,
		KDFParams:               reg.KDFParams,
		AuthHash:                reg.AuthHash,
		EncryptedMasterKey:      reg.EncryptedMasterKey,
		EncryptedMasterKeyNonce: reg.EncryptedMasterKeyNonce,
		CreatedAt:               v.now().UTC(),
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return LoginResult{}, err
	}
	err = v.kv.Update(func(tx *kvstore.Tx) error {
		key := vaultUserPrefix + u.Email
		if _, err := tx.Get(key); err == nil {
			return fmt.Errorf("%w: %s", kerrors.ErrUserExists, u.Email)
		} else if !errors.Is(err, kerrors.ErrNotFound) {
			return err
		}
		return tx.Set(key, raw)
	})
	if err != nil {
		return LoginResult{}, err
	}
	v.Logger.Debugf("Registered local account %s", u.UserID)
	return v.loginResult(u)
}

func (v *LocalVault) Login(_ context.Context, req LoginRequest) (LoginResult, error) {
	if err := validate.Struct(req); err != nil {
		return LoginResult{}, fmt.Errorf("%w: %v", kerrors.ErrAuthRejected, err)
	}
	u, err := v.loadUser(req.Email)
	if errors.Is(err, kerrors.ErrNotFound) {
		return LoginResult{}, kerrors.ErrAuthRejected
	}
	if err != nil {
		return LoginResult{}, err
	}
	if subtle.ConstantTimeCompare([]byte(u.AuthHash), []byte(req.AuthHash)) != 1 {
		return LoginResult{}, kerrors.ErrAuthRejected
	}
	return v.loginResult(u)
}

func (v *LocalVault) loginResult(u vaultUser) (LoginResult, error) {
	now := v.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   u.UserID,
		Issuer:    "zkdrive-local",
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
	})
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return LoginResult{}, fmt.Errorf("signing session token: %w", err)
	}
	return LoginResult{
		Token:                   signed,
		UserID:                  u.UserID,
		EncryptedMasterKey:      u.EncryptedMasterKey,
		EncryptedMasterKeyNonce: u.EncryptedMasterKeyNonce,
	}, nil
}

// userID verifies the bearer token and returns its subject.
func (v *LocalVault) userID() (string, error) {
	if v.token == nil {
		return "", kerrors.ErrNotAuthenticated
	}
	raw, err := v.token()
	if err != nil {
		return "", err
	}
	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(v.now))
	if err != nil {
		return "", fmt.Errorf("%w: %v", kerrors.ErrNotAuthenticated, err)
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", fmt.Errorf("%w: bad subject", kerrors.ErrNotAuthenticated)
	}
	return claims.Subject, nil
}

func (v *LocalVault) GetMetadata(context.Context) (metadata.Envelope, error) {
	uid, err := v.userID()
	if err != nil {
		return metadata.Envelope{}, err
	}
	raw, err := v.kv.Get(vaultMetaPrefix + uid)
	if err != nil {
		return metadata.Envelope{}, err
	}
	var env metadata.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return metadata.Envelope{}, fmt.Errorf("decoding metadata envelope: %w", err)
	}
	return env, nil
}

func (v *LocalVault) SaveMetadata(_ context.Context, env metadata.Envelope, expectedVersion int) (int, error) {
	uid, err := v.userID()
	if err != nil {
		return 0, err
	}
	var version int
	err = v.kv.Update(func(tx *kvstore.Tx) error {
		current := 0
		raw, err := tx.Get(vaultMetaPrefix + uid)
		switch {
		case err == nil:
			var stored metadata.Envelope
			if err := json.Unmarshal(raw, &stored); err != nil {
				return fmt.Errorf("decoding metadata envelope: %w", err)
			}
			current = stored.Version
		case !errors.Is(err, kerrors.ErrNotFound):
			return err
		}
		if expectedVersion != current {
			return fmt.Errorf("%w: have version %d, save presented %d", kerrors.ErrVersionConflict, current, expectedVersion)
		}
		env.Version = current + 1
		version = env.Version
		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		return tx.Set(vaultMetaPrefix+uid, data)
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

// ChunkPath is where chunk index of fileID is stored under a user's objects
// directory.
func ChunkPath(root, fileID string, index int) string {
	return filepath.Join(root, fileID, "chunk-"+strconv.Itoa(index))
}

// BlobPath is where a monolithic stream is stored.
func BlobPath(root, fileID string) string {
	return filepath.Join(root, fileID, "blob")
}

func (v *LocalVault) objectPath(fileID string, name func(root, fileID string) string) (string, error) {
	uid, err := v.userID()
	if err != nil {
		return "", err
	}
	if _, err := uuid.Parse(fileID); err != nil {
		return "", fmt.Errorf("invalid file id %q", fileID)
	}
	return name(v.ObjectsDir(uid), fileID), nil
}

func writeObject(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func openObject(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), kerrors.ErrNotFound)
	}
	return f, err
}

func (v *LocalVault) PutChunk(_ context.Context, fileID string, index int, data []byte) error {
	path, err := v.objectPath(fileID, func(root, id string) string { return ChunkPath(root, id, index) })
	if err != nil {
		return err
	}
	return writeObject(path, bytes.NewReader(data))
}

func (v *LocalVault) GetChunk(_ context.Context, fileID string, index int) (io.ReadCloser, error) {
	path, err := v.objectPath(fileID, func(root, id string) string { return ChunkPath(root, id, index) })
	if err != nil {
		return nil, err
	}
	return openObject(path)
}

func (v *LocalVault) PutBlob(_ context.Context, fileID string, r io.Reader) error {
	path, err := v.objectPath(fileID, BlobPath)
	if err != nil {
		return err
	}
	return writeObject(path, r)
}

func (v *LocalVault) GetBlob(_ context.Context, fileID string) (io.ReadCloser, error) {
	path, err := v.objectPath(fileID, BlobPath)
	if err != nil {
		return nil, err
	}
	return openObject(path)
}

func (v *LocalVault) PutManifest(_ context.Context, m *stream.Manifest) error {
	uid, err := v.userID()
	if err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return v.kv.Set(vaultManPrefix+uid+"/"+m.FileID, data)
}

func (v *LocalVault) GetManifest(_ context.Context, fileID string) (*stream.Manifest, error) {
	uid, err := v.userID()
	if err != nil {
		return nil, err
	}
	data, err := v.kv.Get(vaultManPrefix + uid + "/" + fileID)
	if err != nil {
		return nil, err
	}
	return stream.ParseManifest(data)
}

func (v *LocalVault) DeleteFile(_ context.Context, fileID string) error {
	dir, err := v.objectPath(fileID, func(root, fileID string) string { return filepath.Join(root, fileID) })
	if err != nil {
		return err
	}
	uid, err := v.userID()
	if err != nil {
		return err
	}
	if err := v.kv.Delete(vaultManPrefix + uid + "/" + fileID); err != nil {
		return fmt.Errorf("deleting manifest: %w", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("deleting content: %w", err)
	}
	v.Logger.Debugf("Deleted file %s", fileID)
	return nil
}
