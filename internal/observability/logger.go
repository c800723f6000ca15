package observability

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

var (
	// CLILogger is used by commands (SIMPLE profile).
	CLILogger *logging.Logger

	// ServerLogger is used by serve (STRUCTURED profile).
	ServerLogger *logging.Logger
)

var severities = map[string]string{
	"trace":   "TRACE",
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
}

// InitCLILogger installs the CLI logger, at DEBUG when verbose.
func InitCLILogger(serviceName string, verbose bool) {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		fatalInit("CLI logger", err)
	}
	if verbose {
		logger.SetLevel(logging.DEBUG)
	}
	CLILogger = logger
}

// InitServerLogger installs the JSON server logger. The optional namespace
// is attached to every entry.
func InitServerLogger(serviceName string, logLevel string, namespace ...string) {
	ns := ""
	if len(namespace) > 0 {
		ns = namespace[0]
	}
	logger, err := logging.New(serverLoggerConfig(serviceName, logLevel, ns))
	if err != nil {
		fatalInit("server logger", err)
	}
	ServerLogger = logger
}

func serverLoggerConfig(serviceName, logLevel, namespace string) *logging.LoggerConfig {
	static := map[string]any{}
	if namespace != "" {
		static["namespace"] = namespace
	}
	return &logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: severity(logLevel),
		Service:      serviceName,
		Environment:  "production",
		StaticFields: static,
		Middleware: []logging.MiddlewareConfig{
			{Name: "correlation", Enabled: true, Order: 100, Config: map[string]any{}},
		},
		Sinks: []logging.SinkConfig{
			{
				Type:    "console",
				Format:  "json",
				Console: &logging.ConsoleSinkConfig{Stream: "stderr"},
			},
		},
		EnableCaller:     true,
		EnableStacktrace: true,
	}
}

// severity maps a config level name to a gofulmen severity; unknown names
// become INFO.
func severity(level string) string {
	if s, ok := severities[strings.ToLower(strings.TrimSpace(level))]; ok {
		return s
	}
	return "INFO"
}

// fatalInit runs before any logger exists, so it writes to stderr directly.
func fatalInit(what string, err error) {
	code := foundry.ExitConfigInvalid
	fmt.Fprintf(os.Stderr, "FATAL: failed to initialize %s: %v\n", what, err)
	if info, ok := foundry.GetExitCodeInfo(code); ok {
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
	}
	os.Exit(int(code))
}

// Active returns the server logger when serving, the CLI logger otherwise,
// or nil before either is initialized.
func Active() *logging.Logger {
	if ServerLogger != nil {
		return ServerLogger
	}
	return CLILogger
}

// Debug logs through the active logger, if any.
func Debug(msg string, fields ...zap.Field) {
	if l := Active(); l != nil {
		l.Debug(msg, fields...)
	}
}

// Info logs through the active logger, if any.
func Info(msg string, fields ...zap.Field) {
	if l := Active(); l != nil {
		l.Info(msg, fields...)
	}
}

// Warn logs through the active logger, if any.
func Warn(msg string, fields ...zap.Field) {
	if l := Active(); l != nil {
		l.Warn(msg, fields...)
	}
}

// Error logs through the active logger, if any.
func Error(msg string, fields ...zap.Field) {
	if l := Active(); l != nil {
		l.Error(msg, fields...)
	}
}
