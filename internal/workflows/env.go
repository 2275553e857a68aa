package workflows

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/PolarWolf314/zkdrive/internal/api"
	"github.com/PolarWolf314/zkdrive/internal/configs"
	"github.com/PolarWolf314/zkdrive/internal/kvstore"
	logger "github.com/PolarWolf314/zkdrive/internal/logging"
	"github.com/PolarWolf314/zkdrive/internal/metadata"
	"github.com/PolarWolf314/zkdrive/internal/session"
	"github.com/PolarWolf314/zkdrive/internal/stream"
	"github.com/PolarWolf314/zkdrive/internal/transfer"
)

// EnvOptions configures OpenEnv.
type EnvOptions struct {
	// Config is the loaded configuration. Nil means the defaults.
	Config *configs.Config

	// Settings holds the on-disk locations. Nil means configs.ZkdriveSettings.
	Settings *configs.Settings

	// InMemory keeps the session store and the local vault records in
	// memory. Chunk files still go under Settings.ObjectsDir.
	InMemory bool

	// Now overrides the clock for token and key-age checks.
	Now func() time.Time

	Logger logger.Logger
}

// Env is everything a workflow needs: the backend, the session and the
// transfer settings. Open one per command with OpenEnv and Close it after.
type Env struct {
	Config   *configs.Config
	Settings *configs.Settings
	Client   api.Client
	Session  *session.Manager
	Logger   logger.Logger
	Now      func() time.Time

	vault   *api.LocalVault
	closers []func() error
}

// OpenEnv opens the session store, loads the device key, connects the
// configured backend and restores the previous session.
func OpenEnv(ctx context.Context, opts EnvOptions) (*Env, error) {
	config := opts.Config
	if config == nil {
		config = configs.DefaultConfig()
	}
	settings := opts.Settings
	if settings == nil {
		settings = configs.ZkdriveSettings
	}
	if settings == nil {
		return nil, fmt.Errorf("no settings available")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	env := &Env{Config: config, Settings: settings, Logger: opts.Logger, Now: now}

	sessionKV, err := env.openKV(opts.InMemory, settings.SessionDir)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	deviceKey, err := configs.LoadOrCreateDeviceKey(settings.DeviceKeyPath)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Session = session.NewManager(session.NewBadgerStore(sessionKV), session.Options{
		DeviceKey:        deviceKey,
		PersistMasterKey: config.Session.PersistMasterKey,
		MaxKeyAge:        config.Session.MaxKeyAge.Duration,
		Now:              now,
		Logger:           opts.Logger,
	})

	switch config.Server.Backend {
	case configs.BackendHTTP:
		client, err := api.NewHTTPClient(api.HTTPOptions{
			BaseURL: config.Server.URL,
			Token:   env.Session.Token,
			Timeout: config.Server.Timeout.Duration,
			Retries: config.Server.Retries,
			Logger:  opts.Logger,
		})
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Client = client
	default:
		vaultKV, err := env.openKV(opts.InMemory, filepath.Join(settings.VaultDir, "db"))
		if err != nil {
			env.Close()
			return nil, fmt.Errorf("opening local vault: %w", err)
		}
		vault, err := api.OpenLocalVault(vaultKV, api.LocalOptions{
			ObjectsDir: settings.ObjectsDir,
			Token:      env.Session.Token,
			Now:        now,
			Logger:     opts.Logger,
		})
		if err != nil {
			env.Close()
			return nil, err
		}
		env.vault = vault
		env.Client = vault
	}

	state := env.Session.Restore(ctx)
	opts.Logger.Debugf("Using %s backend, session is %s", config.Server.Backend, state)
	return env, nil
}

func (e *Env) openKV(inMemory bool, dir string) (*kvstore.Store, error) {
	var (
		kv  *kvstore.Store
		err error
	)
	if inMemory {
		kv, err = kvstore.OpenInMemory()
	} else {
		kv, err = kvstore.Open(dir)
	}
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, kv.Close)
	return kv, nil
}

// Close releases the stores. The session itself is left as it is.
func (e *Env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}
	e.closers = nil
	return errors.Join(errs...)
}

// Repository returns the metadata repository bound to the session.
func (e *Env) Repository() *metadata.Repository {
	repo := metadata.NewRepository(e.Client, e.Session)
	repo.Logger = e.Logger
	return repo
}

// locationHint is where new chunks are recorded as living.
func (e *Env) locationHint() string {
	if e.vault != nil {
		return stream.LocationLocal
	}
	return stream.LocationRemote
}

// Source routes chunk reads by location hint. The local vault's objects are
// read straight from disk; everything else goes through the client, or the
// transfer cache directory when one is configured.
func (e *Env) Source() transfer.Source {
	remote := transfer.RemoteTier{Client: e.Client}
	if e.vault != nil {
		local := transfer.DirTier{Root: e.vault.ObjectsDir(e.Session.Identity().UserID)}
		return transfer.NewTieredSource(stream.LocationLocal).
			Register(stream.LocationLocal, local).
			Register(stream.LocationRemote, remote)
	}
	src := transfer.NewTieredSource(stream.LocationRemote).Register(stream.LocationRemote, remote)
	if dir := e.Config.Transfer.CacheDir; dir != "" {
		src.Register(stream.LocationLocal, transfer.DirTier{Root: dir})
	}
	return src
}

// Orchestrator returns a transfer orchestrator using the configured chunk
// sizes and parallelism.
func (e *Env) Orchestrator() *transfer.Orchestrator {
	return transfer.NewOrchestrator(e.Source(), transfer.Options{
		Parallelism:  e.Config.Transfer.Parallelism,
		ChunkSize:    e.Config.Transfer.ChunkSize,
		BlockSize:    e.Config.Transfer.BlockSize,
		LocationHint: e.locationHint(),
		Logger:       e.Logger,
	})
}
