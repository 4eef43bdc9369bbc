package logsvc

import (
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap/zapcore"

	"github.com/trezcool/nexus/core"
)

type sentryReporter struct {
	component string
}

func newSentryReporter(conf *core.Config, component string) (reporter, error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         conf.SentryDSN,
		Environment: conf.Env,
		Release:     conf.Build,
		ServerName:  conf.Server.Host,
	})
	if err != nil {
		return nil, err
	}
	return sentryReporter{component: component}, nil
}

func (rep sentryReporter) report(level zapcore.Level, e entry) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", rep.component)
		if level >= zapcore.FatalLevel {
			scope.SetLevel(sentry.LevelFatal)
		} else {
			scope.SetLevel(sentry.LevelError)
		}
		if e.usr != nil {
			scope.SetUser(sentry.User{ID: e.usr.ID, Username: e.usr.Username, Email: e.usr.Email})
		}
		if len(e.extra) > 0 {
			scope.SetExtras(e.extra)
		}

		if e.err != nil {
			scope.SetExtra("message", e.msg)
			sentry.CaptureException(e.err)
		} else {
			sentry.CaptureMessage(e.msg)
		}
	})
}

func (sentryReporter) flush() {
	sentry.Flush(2 * time.Second)
}
