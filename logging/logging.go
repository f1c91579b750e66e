// Package logging builds the logr loggers used across crossroads.
package logging

import (
	"io"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels for logger.V(...).
const (
	DEFAULT = 2
	VERBOSE = 3
	DEBUG   = 4
	TRACE   = 5
)

// NewLogger returns a JSON logger writing to w. Messages logged with V(n)
// are emitted when n <= verbosity.
func NewLogger(verbosity int, w io.Writer) logr.Logger {
	encoderCfg := uberzap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(zapcore.AddSync(w)),
		uberzap.NewAtomicLevelAt(zapcore.Level(int8(-verbosity))),
	)
	return zapr.NewLogger(uberzap.New(core, uberzap.AddCaller()))
}

// NewTestLogger creates a development logger that prints everything up to TRACE.
func NewTestLogger() logr.Logger {
	cfg := uberzap.NewDevelopmentConfig()
	cfg.Level = uberzap.NewAtomicLevelAt(zapcore.Level(-1 * TRACE))
	zl, err := cfg.Build(uberzap.AddCaller())
	if err != nil {
		return logr.Discard()
	}
	return zapr.NewLogger(zl)
}
