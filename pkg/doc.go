// Package pkg provides shared utilities for the hoodloader firmware and its
// host tooling.
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors shared by the device core, transports and host client
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with a component attribute:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentNegotiator, "mode changed", "mode", "programmer")
//
// # Errors
//
// Common errors are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrDetached) {
//	    // Abandon the current command silently
//	}
package pkg
