package logsvc

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trezcool/nexus/core"
	"github.com/trezcool/nexus/core/user"
)

// reporter forwards errors to an external tracker.
type reporter interface {
	report(level zapcore.Level, e entry)
	flush()
}

// entry is a log call with its args sorted out.
type entry struct {
	msg   string
	err   error
	usr   *user.User
	extra map[string]interface{}
	rest  []interface{}
}

// parseArgs sorts args: errors, the acting user.User (first one wins), field maps, anything else.
func parseArgs(msg string, args []interface{}) entry {
	e := entry{msg: msg}
	for _, arg := range args {
		switch v := arg.(type) {
		case error:
			if e.err == nil {
				e.err = v
			} else {
				e.rest = append(e.rest, v)
			}
		case user.User:
			if e.usr == nil {
				usr := v
				e.usr = &usr
			}
		case *user.User:
			if e.usr == nil && v != nil {
				e.usr = v
			}
		case map[string]interface{}:
			if e.extra == nil {
				e.extra = make(map[string]interface{}, len(v))
			}
			for k, val := range v {
				e.extra[k] = val
			}
		default:
			e.rest = append(e.rest, arg)
		}
	}
	return e
}

func (e entry) fields() []zap.Field {
	fields := make([]zap.Field, 0, len(e.extra)+4)
	if e.err != nil {
		fields = append(fields, zap.Error(e.err))
	}
	if e.usr != nil {
		fields = append(fields, zap.String("user_id", e.usr.ID), zap.String("username", e.usr.Username))
	}
	for k, v := range e.extra {
		fields = append(fields, zap.Any(k, v))
	}
	if len(e.rest) > 0 {
		fields = append(fields, zap.Any("args", e.rest))
	}
	return fields
}

type Logger struct {
	zap       *zap.Logger
	reporters []reporter
}

var _ core.Logger = (*Logger)(nil)

// NewLogger builds a zap logger for the app component name.
// Errors are also reported to Sentry and Rollbar when they are configured, outside of debug mode.
func NewLogger(conf *core.Config, name string) (*Logger, error) {
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(strings.ToLower(conf.LogLevel))); err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	var cfg zap.Config
	if conf.IsProduction() {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = lvl
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	base, err := cfg.Build(zap.AddStacktrace(zap.ErrorLevel), zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	base = base.Named(name).With(zap.String("env", conf.Env), zap.String("build", conf.Build))

	var reporters []reporter
	if !conf.Debug {
		if conf.SentryDSN != "" {
			rep, err := newSentryReporter(conf, name)
			if err != nil {
				base.Warn("sentry disabled", zap.Error(err))
			} else {
				reporters = append(reporters, rep)
			}
		}
		if conf.RollbarToken != "" {
			reporters = append(reporters, newRollbarReporter(conf))
		}
	}
	return newLogger(base, reporters...), nil
}

func newLogger(base *zap.Logger, reporters ...reporter) *Logger {
	return &Logger{zap: base, reporters: reporters}
}

// Sync flushes buffered logs and pending reports.
func (l *Logger) Sync() {
	_ = l.zap.Sync()
	for _, rep := range l.reporters {
		rep.flush()
	}
}

func (l *Logger) report(level zapcore.Level, e entry) {
	for _, rep := range l.reporters {
		rep.report(level, e)
	}
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	l.zap.Debug(msg, parseArgs(msg, args).fields()...)
}

func (l *Logger) Info(msg string, args ...interface{}) {
	l.zap.Info(msg, parseArgs(msg, args).fields()...)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	l.zap.Warn(msg, parseArgs(msg, args).fields()...)
}

func (l *Logger) Error(msg string, args ...interface{}) {
	e := parseArgs(msg, args)
	l.zap.Error(msg, e.fields()...)
	l.report(zapcore.ErrorLevel, e)
}

// Fatal reports, then logs and exits.
func (l *Logger) Fatal(msg string, args ...interface{}) {
	e := parseArgs(msg, args)
	l.report(zapcore.FatalLevel, e)
	for _, rep := range l.reporters {
		rep.flush()
	}
	l.zap.Fatal(msg, e.fields()...)
}
