// Package logger provides leveled logging for zkdrive commands and the
// packages they drive.
//
// # Verbosity Levels
//
//   - --verbose: Shows info and warning messages
//   - --debug: Shows all messages including debug details and errors
//
// Without flags only WarnfAlways output is shown.
//
// # Usage
//
//	log := Logger{Verbose: verbose, Debug: debug}
//	log.Infof("Decrypting %d chunks", len(manifest.Chunks))
//
// Library packages (transfer, session, workflows) take a Logger in their
// Options struct so the CLI decides verbosity. The zero Logger is silent
// apart from WarnfAlways. Never log key material.
package logger
