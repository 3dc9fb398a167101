package logging_test

import (
	"github.com/sirupsen/logrus"

	"github.com/quarterdeck/core/logging"
)

func ExampleNewLogger() {
	// Create a logger for your component
	log := logging.NewLogger("my-component")

	// Use it for various log levels
	log.Debug("Debug information")
	log.Info("Starting process")
	log.Warn("Resource usage high")
	log.Error("Connection failed")

	// Add structured fields
	log.WithFields(logrus.Fields{
		"session": "s-123",
		"status":  "active",
	}).Info("Session updated")

	// Use WithField for single fields
	log.WithField("attempt", 3).Info("Scheduling reconnect")

	// Use WithError for errors
	// err := someFunction()
	// log.WithError(err).Error("Operation failed")
}

func ExampleNewLogger_configuration() {
	// Configuration via quarterdeck.yml:
	//
	// logging:
	//   level: debug              # Set log level
	//   report_caller: true       # Include file/line info
	//   file:
	//     enabled: true
	//     path: ~/.quarterdeck/logs/app.log
	//   format:
	//     preset: json           # Use JSON output format

	// Or via environment variables:
	// QD_LOG_LEVEL=debug
	// QD_LOG_CALLER=true

	log := logging.NewLogger("configured-app")
	log.Info("This will respect the configuration")
}

func ExampleNewLogger_multipleComponents() {
	// Different components can have their own loggers
	// but they share the same configuration

	pushLog := logging.NewLogger("push")
	pollLog := logging.NewLogger("poller")
	termLog := logging.NewLogger("term")

	// Each log entry will be tagged with its component
	pushLog.Info("Connected to gateway")
	pollLog.Info("Snapshot applied")
	termLog.Warn("Fit produced degenerate size, retrying")

	// Output will show:
	// [INFO] [push] Connected to gateway
	// [INFO] [poller] Snapshot applied
	// [WARN] [term] Fit produced degenerate size, retrying
}
