// Package logging builds the slog loggers used by the worker and the
// acquire command.
//
// Output is JSON unless LOG_FORMAT=text. LOG_LEVEL selects the level
// (debug, info, warn or error) and debug output includes source locations.
// Request IDs travel in the context:
//
//	ctx = logging.ContextWithRequestID(ctx, req.ID())
//	logging.WithRequestID(ctx, logger).Info("acquisition completed")
//
// SanitizeError strips credentials from error text before it is logged.
package logging
