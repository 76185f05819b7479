// Package log provides the structured, leveled loggers used throughout the
// signer. Every component obtains its logger via NewModuleLogger so that log
// lines can be filtered and routed per module, the same convention the
// teacher codebase uses for its consensus and storage subsystems.
package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Module identifies the subsystem a logger belongs to.
type Module string

const (
	BlockObserver Module = "block_observer"
	Coordinator   Module = "coordinator"
	WSTS          Module = "wsts"
	Storage       Module = "storage"
	Network       Module = "network"
	BitcoinPort   Module = "bitcoin"
	StacksPort    Module = "stacks"
	Registry      Module = "registry"
)

var root = newRoot()

func newRoot() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Building the production config can only fail on a malformed
		// static config, which is a misconfiguration, not a runtime
		// condition callers can recover from.
		panic(err)
	}
	return logger
}

// Logger is a contextual, leveled logger. NewWith returns a child logger
// carrying additional key/value pairs that are attached to every subsequent
// entry, mirroring the teacher's logger.NewWith(ctx...) convention.
type Logger struct {
	z *zap.SugaredLogger
}

func NewModuleLogger(m Module) Logger {
	return Logger{z: root.Sugar().With("module", string(m))}
}

func (l Logger) NewWith(kv ...interface{}) Logger {
	return Logger{z: l.z.With(kv...)}
}

func (l Logger) Debug(msg string, kv ...interface{}) { l.z.Debugw(msg, kv...) }
func (l Logger) Info(msg string, kv ...interface{})  { l.z.Infow(msg, kv...) }
func (l Logger) Warn(msg string, kv ...interface{})  { l.z.Warnw(msg, kv...) }
func (l Logger) Error(msg string, kv ...interface{}) { l.z.Errorw(msg, kv...) }

// Sync flushes any buffered log entries. Callers should invoke it once at
// process shutdown.
func Sync() error {
	return root.Sync()
}
