// Package logging provides structured logging for the tick scheduler.
//
// This package wraps Go's log/slog to emit JSON-formatted logs with
// persistent context attributes (component, tick, item), so that a slow or
// misbehaving tick can be reconstructed after the fact.
//
// # Features
//
//   - JSON-formatted structured logging via slog
//   - Configurable log levels (DEBUG, INFO, WARN, ERROR)
//   - Context propagation (component, tick number, work item)
//   - Size-based log rotation with optional gzip compression
//   - Throttled logging for hot paths via [Logger.Sometimes]
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via With* methods share the underlying writer.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/ticksched", "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	dispatchLog := logger.WithComponent("dispatch")
//	dispatchLog.WithTick(1200).Warn("item demoted", "item_id", "entity-42")
//
// Output:
//
//	{"time":"...","level":"WARN","msg":"item demoted","component":"dispatch","tick":1200,"item_id":"entity-42"}
//
// # Testing
//
// For testing, use [NopLogger] to discard all log output.
package logging
