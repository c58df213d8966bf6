// Package logging provides structured logging for hapt.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the daemon.
//
// # Features
//
//   - JSON or text output
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Size-rotated file output for routers without syslog forwarding
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file:
//	    path: "/tmp/hapt.log"
//	    max_size: 1      # megabytes
//	    max_backups: 2
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	defer logger.Close()
//	logger.Info("radio attached", "radio", "wlan0")
//
// # Security
//
// Never log the Home Assistant token or broker credentials.
package logging
