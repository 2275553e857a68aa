// Package configs manages zkdrive configuration and on-disk locations.
//
// Configuration is stored in TOML format at <UserConfigDir>/zkdrive/config.toml
// with four sections:
//
//   - [server]: which backend to use (local vault or http) and how to reach it
//   - [kdf]: the password KDF parameters used for new accounts
//   - [transfer]: chunk and block sizes, download parallelism, cache directory
//   - [session]: whether the master key is kept across runs, and for how long
//
// A .env file beside the config and ZKDRIVE_* environment variables override
// the file. Unknown keys in the file are an error.
//
// # Settings
//
// ZkdriveSettings is initialized at startup with every path zkdrive writes:
// the session store, the local vault and its object directory, the device
// key and the audit log. All of these live under $XDG_DATA_HOME/zkdrive.
//
// # Device key
//
// LoadOrCreateDeviceKey returns a random per-device key stored with mode
// 0600. The session layer wraps the persisted master key under it.
package configs
