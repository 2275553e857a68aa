// Package utils provides shared helpers for the zkdrive CLI.
//
// # File Utilities
//
//   - ResolveFiles: expands paths, directories and ** globs into files
//   - FormatPaths: formats file paths for human-readable output
//
// # Password Input
//
//   - ReadPassword / ReadNewPassword: hidden terminal prompts
//   - ReadPasswordStdin: one line from piped stdin
//   - Zero: wipes a password buffer after use
//
// # String Utilities
//
//   - IsValidEmail / NormalizeEmail
package utils
