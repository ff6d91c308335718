// Package logging provides structured logging for the pubsub tool.
//
// It wraps log/slog with a JSON handler, persistent attributes and a
// size-based rotating file writer. The registry itself never logs; the
// scenario runner and the CLI do.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger(logging.Options{
//	    Dir:        "/var/log/pubsub",
//	    Level:      "debug",
//	    MaxSizeMB:  10,
//	    MaxBackups: 3,
//	})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	runLog := logger.WithScript("basic").WithKey("user.created")
//	runLog.Debug("published", "ref", 3)
//
// Output:
//
//	{"time":"...","level":"DEBUG","msg":"published","script":"basic","key":"user.created","ref":3}
//
// # Rotation
//
// When the log file would exceed MaxSizeMB it is renamed to pubsub.log.1,
// older backups shift up by one, and anything beyond MaxBackups is removed.
// MaxSizeMB of 0 disables rotation.
package logging
