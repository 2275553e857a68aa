package configs

import (
	"log"
	"os"
	"path/filepath"
)

// Settings holds the on-disk locations zkdrive uses.
type Settings struct {
	ConfigDir     string
	DataDir       string
	ConfigPath    string
	EnvPath       string
	SessionDir    string
	VaultDir      string
	ObjectsDir    string
	DeviceKeyPath string
	AuditLogPath  string
}

var ZkdriveSettings *Settings

func init() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("error getting home directory: %s", err)
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		log.Fatalf("error getting config directory: %s", err)
	}

	dataDir := os.Getenv("XDG_DATA_HOME")

	if dataDir == "" {
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	ZkdriveSettings = NewSettings(filepath.Join(configDir, "zkdrive"), filepath.Join(dataDir, "zkdrive"))
}

// NewSettings lays out every path under a config and a data directory.
func NewSettings(configDir, dataDir string) *Settings {
	return &Settings{
		ConfigDir:     configDir,
		DataDir:       dataDir,
		ConfigPath:    filepath.Join(configDir, "config.toml"),
		EnvPath:       filepath.Join(configDir, ".env"),
		SessionDir:    filepath.Join(dataDir, "session"),
		VaultDir:      filepath.Join(dataDir, "vault"),
		ObjectsDir:    filepath.Join(dataDir, "vault", "objects"),
		DeviceKeyPath: filepath.Join(dataDir, "device.key"),
		AuditLogPath:  filepath.Join(dataDir, "audit.jsonl"),
	}
}
