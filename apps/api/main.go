package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // /debug/pprof

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	dig_container "github.com/trezcool/nexus/apps/api/di/dig"
	echoapi "github.com/trezcool/nexus/apps/api/echo"
	"github.com/trezcool/nexus/core"
	"github.com/trezcool/nexus/core/notification"
	"github.com/trezcool/nexus/core/request"
	"github.com/trezcool/nexus/core/user"
	appfs "github.com/trezcool/nexus/fs"
	"github.com/trezcool/nexus/services/jobs"
)

type syncer interface {
	Sync()
}

func main() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		dbClose dig_container.DBCloser,
		validate *validator.Validate,
		translator ut.Translator,
		usrSvc user.Service,
		reqSvc request.Service,
		notifSvc notification.Service,
		server *echoapi.Server,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
		if s, ok := apiLogger.(syncer); ok {
			defer s.Sync()
		}

		core.InitValidators(validate, translator)
		user.InitValidators(validate, translator)

		core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf, apiLogger)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := usrSvc.Seed(ctx); err != nil {
			apiLogger.Fatal(fmt.Sprintf("seeding accounts: %v", err), err)
		}

		dbLogger := dbLoggerParam.Logger
		defer func() {
			if err := dbClose(); err != nil {
				dbLogger.Fatal("Failed to close", err)
			}
		}()
		defer apiLogger.Info("Application stopped")

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
		// /debug/vars - Added to the default mux by importing the expvar package.

		// Expose important info under /debug/vars.
		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)

		if conf.Server.DebugHost != "" {
			go func() {
				if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
					apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
				}
			}()
		}

		// =========================================================================
		// Start Background Jobs

		runner := jobs.New(ctx, apiLogger)
		stale := jobs.NewStaleRequests(reqSvc, usrSvc, notifSvc, conf.Jobs.StaleAfter)
		runner.Every(conf.Jobs.ScanInterval, jobs.StaleRequestsJob, stale.Run)
		defer runner.Wait()
		defer cancel()

		// =========================================================================
		// Start API Service

		go func() {
			server.Start()
		}()

		// =========================================================================
		// Shutdown

		select {
		case err := <-server.Errors():
			apiLogger.Fatal(fmt.Sprintf("server error: %v", err), err)

		case sig := <-server.ShutdownSignal():
			apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

			// give outstanding requests a deadline for completion
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			// asking listener to shut down and shed load
			if err := server.Shutdown(ctx); err != nil {
				apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					apiLogger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}
		}
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
