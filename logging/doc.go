// Package logging provides a minimal logging interface and adapters for runmesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the control plane, runners and the agent loop use for observability. This
// package includes:
//
//   - Logger interface for dependency injection
//   - RunmeshLogger with component/run context and tool/dispatch helpers
//   - ForRun for scoping any Logger to a session and run
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "json"})
//	cp := controlplane.New(store, backend, func(o *controlplane.Options) { o.Logger = logger })
//
// Args passed to the logging methods are slog-style key/value pairs.
package logging
