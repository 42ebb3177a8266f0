// Package logger provides structured logging for mailvault built on zerolog.
//
// The package exposes a Logger interface so that packages under test can
// substitute the in-memory TestLogger, plus a process-wide logger reachable
// through Initialize and GetLogger:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//		return err
//	}
//	log := logger.GetLogger().WithField("query", query)
//	log.Info("starting backup")
//
// Console output goes to stderr through zerolog's ConsoleWriter; setting
// LoggingConfig.File mirrors all events into a log file as well.
package logger
