package logsvc

import (
	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"go.uber.org/zap/zapcore"

	"github.com/trezcool/nexus/core"
)

type rollbarReporter struct{}

func newRollbarReporter(conf *core.Config) reporter {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(true)
	return rollbarReporter{}
}

// report sends msg | error, map[string]interface{}; the acting user becomes the rollbar person.
func (rollbarReporter) report(level zapcore.Level, e entry) {
	if e.usr != nil {
		rollbar.SetPerson(e.usr.ID, e.usr.Username, e.usr.Email)
	} else {
		rollbar.ClearPerson()
	}

	args := []interface{}{e.msg}
	if e.err != nil {
		args = append(args, e.err)
	}
	if len(e.extra) > 0 {
		args = append(args, e.extra)
	}
	if level >= zapcore.FatalLevel {
		rollbar.Critical(args...)
	} else {
		rollbar.Error(args...)
	}
}

func (rollbarReporter) flush() {
	rollbar.Wait()
}
