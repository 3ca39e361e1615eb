// Package logging provides structured logging for paragent runs.
//
// This package wraps Go's log/slog. Console output goes through a
// charmbracelet/log handler; machine-readable output uses slog's JSON
// handler. Either can be redirected to a size-rotated file.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via With* methods share the underlying handler, so concurrently
// running tasks can log through their own child loggers.
//
// # Basic Usage
//
//	logger, err := logging.New(logging.Options{Level: "info", Format: "text"})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("layer started", "tasks", 3)
//
// # Context Propagation
//
// Child loggers carry persistent attributes:
//
//	runLogger := logger.WithRun(runID)
//	taskLogger := runLogger.WithLayer(0).WithTask("build")
//	taskLogger.Info("task completed", "status", "SUCCESS")
//
// JSON output:
//
//	{"time":"...","level":"INFO","msg":"task completed","run_id":"...","layer":0,"task_id":"build","status":"SUCCESS"}
//
// # Log Rotation
//
// Setting [Options.File] writes through a [RotatingWriter], which rotates
// the file once it exceeds [RotationConfig.MaxSizeMB] and keeps
// [RotationConfig.MaxBackups] numbered backups, optionally gzipped.
package logging
