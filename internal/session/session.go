package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/PolarWolf314/zkdrive/internal/aead"
	kerrors "github.com/PolarWolf314/zkdrive/internal/errors"
	"github.com/PolarWolf314/zkdrive/internal/keys"
	logger "github.com/PolarWolf314/zkdrive/internal/logging"

	"github.com/golang-jwt/jwt/v5"
)

type State int

const (
	Unauthenticated State = iota
	Restoring
	Locked
	Unlocked
)

func (s State) String() string {
	switch s {
	case Restoring:
		return "restoring"
	case Locked:
		return "locked"
	case Unlocked:
		return "unlocked"
	default:
		return "unauthenticated"
	}
}

// Store keys.
const (
	keyToken    = "token"
	keyIdentity = "identity"
	keyMaster   = "master"
)

// masterKeyAD binds the persisted master key record to its purpose.
var masterKeyAD = []byte("zkdrive persisted master key v1")

// Identity names the signed-in account.
type Identity struct {
	Email  string `json:"email"`
	UserID string `json:"userId,omitempty"`
}

// KeySessionState is a point-in-time view of the session.
type KeySessionState struct {
	State            State
	MasterKeyPresent bool
	TokenPresent     bool
	Restoring        bool
	LastUnlockedAt   time.Time
	Email            string
}

type persistedMaster struct {
	Ciphertext string    `json:"ciphertext"`
	Nonce      string    `json:"nonce"`
	StoredAt   time.Time `json:"storedAt"`
}

// Options configures a Manager.
type Options struct {
	// DeviceKey wraps the master key when it is persisted. Without it the
	// master key never leaves memory.
	DeviceKey *keys.Key
	// PersistMasterKey keeps the unlocked master key across runs.
	PersistMasterKey bool
	// MaxKeyAge forces re-derivation once a persisted master key is older.
	// Zero means no limit.
	MaxKeyAge time.Duration
	Now       func() time.Time
	Logger    logger.Logger
}

// Manager owns the master key and the session token. It is safe for
// concurrent use.
type Manager struct {
	mu    sync.Mutex
	store Store
	opts  Options

	state          State
	token          string
	identity       Identity
	master         *keys.Key
	keyring        *keys.Keyring
	lastUnlockedAt time.Time
}

func NewManager(store Store, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{store: store, opts: opts, state: Unauthenticated}
}

// Restore rebuilds the session from persisted artifacts. Failures never
// surface as errors: they degrade to Locked or Unauthenticated.
func (m *Manager) Restore(ctx context.Context) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.zeroLocked()
	m.token = ""
	m.identity = Identity{}
	m.state = Restoring
	m.state = m.restore(ctx)
	m.opts.Logger.Debugf("Session restored as %s", m.state)
	return m.state
}

func (m *Manager) restore(ctx context.Context) State {
	token, err := m.store.Get(keyToken)
	if err != nil {
		if !errors.Is(err, kerrors.ErrNotFound) {
			m.opts.Logger.Warnf("Could not read session token: %v", err)
		}
		return Unauthenticated
	}
	if tokenExpired(string(token), m.opts.Now()) {
		m.opts.Logger.Infof("Session token has expired")
		if err := m.store.Clear(); err != nil {
			m.opts.Logger.Warnf("Could not clear expired session: %v", err)
		}
		return Unauthenticated
	}
	m.token = string(token)
	if raw, err := m.store.Get(keyIdentity); err == nil {
		if err := json.Unmarshal(raw, &m.identity); err != nil {
			m.opts.Logger.Warnf("Ignoring unreadable session identity: %v", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return Locked
	}
	master, storedAt, err := m.loadMaster()
	if err != nil {
		if !errors.Is(err, kerrors.ErrNotFound) {
			m.opts.Logger.Warnf("Discarding persisted master key: %v", err)
			if err := m.store.Delete(keyMaster); err != nil {
				m.opts.Logger.Warnf("Could not delete persisted master key: %v", err)
			}
		}
		return Locked
	}

	m.master = master
	m.keyring = keys.NewKeyring(master)
	m.lastUnlockedAt = storedAt
	return Unlocked
}

func (m *Manager) loadMaster() (*keys.Key, time.Time, error) {
	raw, err := m.store.Get(keyMaster)
	if err != nil {
		return nil, time.Time{}, err
	}
	var rec persistedMaster
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, time.Time{}, fmt.Errorf("decoding record: %w", err)
	}
	if m.opts.MaxKeyAge > 0 && m.opts.Now().Sub(rec.StoredAt) > m.opts.MaxKeyAge {
		return nil, time.Time{}, fmt.Errorf("stored %s ago, older than %s",
			m.opts.Now().Sub(rec.StoredAt).Round(time.Second), m.opts.MaxKeyAge)
	}
	if m.opts.DeviceKey == nil {
		return nil, time.Time{}, fmt.Errorf("no device key to unwrap it")
	}
	blob, err := aead.WireBlob{Ciphertext: rec.Ciphertext, Nonce: rec.Nonce}.Blob()
	if err != nil {
		return nil, time.Time{}, err
	}
	plaintext, err := aead.DecryptWithAD(blob, m.opts.DeviceKey.Bytes(), masterKeyAD)
	if err != nil {
		return nil, time.Time{}, err
	}
	master, err := keys.FromBytes(plaintext)
	zeroBytes(plaintext)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", kerrors.ErrDecryptionFailed, err)
	}
	return master, rec.StoredAt, nil
}

// Unlock unwraps the master key and makes the session Unlocked. On failure
// the state does not change and the error propagates.
func (m *Manager) Unlock(ctx context.Context, token string, identity Identity, wrappingKey *keys.Key, wrappedMaster aead.EncryptedBlob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if token == "" {
		return kerrors.ErrNotAuthenticated
	}
	master, err := keys.Unwrap(wrappedMaster, wrappingKey)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Set(keyToken, []byte(token)); err != nil {
		master.Zero()
		return fmt.Errorf("saving session token: %w", err)
	}
	if raw, err := json.Marshal(identity); err == nil {
		if err := m.store.Set(keyIdentity, raw); err != nil {
			m.opts.Logger.Warnf("Could not save session identity: %v", err)
		}
	}

	m.zeroLocked()
	now := m.opts.Now()
	m.token = token
	m.identity = identity
	m.master = master
	m.keyring = keys.NewKeyring(master)
	m.lastUnlockedAt = now
	m.state = Unlocked

	if m.opts.PersistMasterKey && m.opts.DeviceKey != nil {
		if err := m.persistMaster(now); err != nil {
			m.opts.Logger.Warnf("Could not persist master key: %v", err)
		}
	}
	return nil
}

func (m *Manager) persistMaster(now time.Time) error {
	blob, err := aead.EncryptWithAD(m.master.Bytes(), m.opts.DeviceKey.Bytes(), masterKeyAD)
	if err != nil {
		return err
	}
	w := blob.Wire()
	raw, err := json.Marshal(persistedMaster{Ciphertext: w.Ciphertext, Nonce: w.Nonce, StoredAt: now.UTC()})
	if err != nil {
		return err
	}
	return m.store.Set(keyMaster, raw)
}

// Lock wipes the master key and its persisted copy but keeps the token.
func (m *Manager) Lock() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.zeroLocked()
	err := m.store.Delete(keyMaster)
	if m.token != "" {
		m.state = Locked
	} else {
		m.state = Unauthenticated
	}
	if err != nil {
		return fmt.Errorf("deleting persisted master key: %w", err)
	}
	return nil
}

// Logout wipes the master key and every persisted artifact.
func (m *Manager) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.zeroLocked()
	m.token = ""
	m.identity = Identity{}
	m.lastUnlockedAt = time.Time{}
	m.state = Unauthenticated
	if err := m.store.Clear(); err != nil {
		return fmt.Errorf("clearing session store: %w", err)
	}
	return nil
}

// zeroLocked drops the master key and keyring. m.mu must be held.
func (m *Manager) zeroLocked() {
	if m.keyring != nil {
		m.keyring.Zero()
		m.keyring = nil
	}
	m.master.Zero()
	m.master = nil
}

// MasterKey returns a copy of the master key. The caller zeroes it.
func (m *Manager) MasterKey() (*keys.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Unlocked || m.master == nil {
		return nil, kerrors.ErrSessionLocked
	}
	return m.master.Clone(), nil
}

// Keyring returns the folder and file key arena bound to the master key.
// It is zeroed when the session locks.
func (m *Manager) Keyring() (*keys.Keyring, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Unlocked || m.keyring == nil {
		return nil, kerrors.ErrSessionLocked
	}
	return m.keyring, nil
}

// Token returns the session token, or ErrNotAuthenticated.
func (m *Manager) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		return "", kerrors.ErrNotAuthenticated
	}
	return m.token, nil
}

// Identity returns the account the session belongs to.
func (m *Manager) Identity() Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Snapshot() KeySessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return KeySessionState{
		State:            m.state,
		MasterKeyPresent: m.master != nil,
		TokenPresent:     m.token != "",
		Restoring:        m.state == Restoring,
		LastUnlockedAt:   m.lastUnlockedAt,
		Email:            m.identity.Email,
	}
}

// tokenExpired reads the exp claim without verifying the signature; the
// server does that. Tokens that are not JWTs never expire locally.
func tokenExpired(token string, now time.Time) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
