// Package log provides the leveled logging facade used across the gateway.
//
// It wraps gopkg.in/op/go-logging.v1, matching the logging dependency
// declared by the upstream gateway this codebase descends from.
package log

import (
	"fmt"
	"os"

	logging "gopkg.in/op/go-logging.v1"
)

var logger = logging.MustGetLogger("registry-gateway")

func init() {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	formatter := logging.MustStringFormatter(
		`%{time:2006-01-02T15:04:05.000Z07:00} %{level:.4s} %{module}: %{message}`,
	)
	formatted := logging.NewBackendFormatter(backend, formatter)
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(levelFromEnv(), "")
	logging.SetBackend(leveled)
}

func levelFromEnv() logging.Level {
	switch os.Getenv("REGISTRY_GATEWAY_LOG_LEVEL") {
	case "debug":
		return logging.DEBUG
	case "warn", "warning":
		return logging.WARNING
	case "error":
		return logging.ERROR
	default:
		return logging.INFO
	}
}

// SetLevel changes the minimum emitted log level at runtime.
func SetLevel(level string) {
	switch level {
	case "debug":
		logging.SetLevel(logging.DEBUG, "")
	case "warn", "warning":
		logging.SetLevel(logging.WARNING, "")
	case "error":
		logging.SetLevel(logging.ERROR, "")
	default:
		logging.SetLevel(logging.INFO, "")
	}
}

func Debugf(format string, args ...any) { logger.Debug(fmt.Sprintf(format, args...)) }
func Infof(format string, args ...any)  { logger.Info(fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...any)  { logger.Warning(fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...any) { logger.Error(fmt.Sprintf(format, args...)) }

// Log mirrors the teacher's bare-string logging helper for call sites that
// don't need formatting.
func Log(args ...any) { logger.Info(fmt.Sprint(args...)) }
