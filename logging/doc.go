// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that agents, the orchestration engine and the HTTP server use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - AssistantLogger built on log/slog with component/session scoping and
//     OpenTelemetry trace correlation
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "json", Output: os.Stderr})
//	eng, err := engine.New(factory, func(o *engine.Options) { o.Logger = logger.WithComponent("engine") })
//
// Messages are short dotted event names ("agent.respond.start") followed by
// key/value attributes.
package logging
