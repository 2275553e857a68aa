package configs

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/PolarWolf314/zkdrive/internal/kdf"
	"github.com/PolarWolf314/zkdrive/internal/keys"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	BackendLocal = "local"
	BackendHTTP  = "http"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	KDF      kdf.Params     `toml:"kdf"`
	Transfer TransferConfig `toml:"transfer"`
	Session  SessionConfig  `toml:"session"`
}

type ServerConfig struct {
	Backend string   `toml:"backend" validate:"oneof=local http"`
	URL     string   `toml:"url,omitempty" validate:"omitempty,url"`
	Timeout Duration `toml:"timeout"`
	Retries int      `toml:"retries" validate:"gte=0,lte=10"`
}

type TransferConfig struct {
	ChunkSize   int    `toml:"chunk_size" validate:"gte=0"`
	BlockSize   int    `toml:"block_size" validate:"gte=0"`
	Parallelism int    `toml:"parallelism" validate:"gte=0,lte=64"`
	CacheDir    string `toml:"cache_dir,omitempty"`
}

type SessionConfig struct {
	MaxKeyAge        Duration `toml:"max_key_age"`
	PersistMasterKey bool     `toml:"persist_master_key"`
}

// Duration is a time.Duration written as a string such as "30s" in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

var validate = validator.New()

// DefaultConfig is what `config init` writes.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Backend: BackendLocal,
			Timeout: Duration{30 * time.Second},
			Retries: 3,
		},
		KDF: kdf.DefaultParams(),
		Transfer: TransferConfig{
			Parallelism: 2,
		},
		Session: SessionConfig{
			MaxKeyAge: Duration{7 * 24 * time.Hour},
		},
	}
}

// Validate checks field constraints and the KDF parameters.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Server.Backend == BackendHTTP && c.Server.URL == "" {
		return fmt.Errorf("invalid config: server.url is required for the http backend")
	}
	if err := c.KDF.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadConfig reads the config file at path over the defaults, then applies
// the .env file at envPath and ZKDRIVE_* environment variables. A missing
// file is not an error.
func LoadConfig(path, envPath string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(path, config); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}
	if err := applyEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig writes the config file at path.
func SaveConfig(path string, config *Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	if err := SaveTOML(path, config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// Encode renders the config as it would be saved.
func (c *Config) Encode() (string, error) {
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(c); err != nil {
		return "", err
	}
	return b.String(), nil
}

func applyEnv(config *Config) error {
	if v := os.Getenv("ZKDRIVE_BACKEND"); v != "" {
		config.Server.Backend = v
	}
	if v := os.Getenv("ZKDRIVE_SERVER_URL"); v != "" {
		config.Server.URL = v
	}
	if v := os.Getenv("ZKDRIVE_MAX_KEY_AGE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid ZKDRIVE_MAX_KEY_AGE: %w", err)
		}
		config.Session.MaxKeyAge = Duration{d}
	}
	if v := os.Getenv("ZKDRIVE_PERSIST_MASTER_KEY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid ZKDRIVE_PERSIST_MASTER_KEY: %w", err)
		}
		config.Session.PersistMasterKey = b
	}
	if v := os.Getenv("ZKDRIVE_PARALLELISM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ZKDRIVE_PARALLELISM: %w", err)
		}
		config.Transfer.Parallelism = n
	}
	return nil
}

// LoadOrCreateDeviceKey returns the key this device wraps its persisted
// master key under, creating it on first use.
func LoadOrCreateDeviceKey(path string) (*keys.Key, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		k, err := keys.FromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("device key %s: %w", path, err)
		}
		return k, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading device key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	raw := make([]byte, keys.KeySize)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generating device key: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			// Another process created it first.
			return LoadOrCreateDeviceKey(path)
		}
		return nil, fmt.Errorf("creating device key: %w", err)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("writing device key: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return keys.FromBytes(raw)
}
