package dig_container

import (
	"context"
	"log"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/nexus/apps/api/echo"
	"github.com/trezcool/nexus/core"
	"github.com/trezcool/nexus/core/kanban"
	"github.com/trezcool/nexus/core/notification"
	"github.com/trezcool/nexus/core/request"
	"github.com/trezcool/nexus/core/user"
	emailsvc "github.com/trezcool/nexus/services/email"
	logsvc "github.com/trezcool/nexus/services/logger"
	"github.com/trezcool/nexus/storage/database"
	inmemdb "github.com/trezcool/nexus/storage/database/inmem"
	sqlxrepos "github.com/trezcool/nexus/storage/database/sqlx"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// DBCloser releases the database, a no-op for the in-memory store.
	DBCloser func() error

	// Storage is the database handle and the repositories built on it.
	Storage struct {
		dig.Out

		DB            core.Pinger
		Close         DBCloser
		Users         user.Repository
		Requests      request.Repository
		Tasks         kanban.Repository
		Notifications notification.Repository
	}

	depsParams struct {
		dig.In

		DB              core.Pinger
		Validate        *validator.Validate
		Translator      ut.Translator
		UserSvc         user.Service
		RequestSvc      request.Service
		KanbanSvc       kanban.Service
		NotificationSvc notification.Service
	}
)

func newLogger(conf *core.Config) (core.Logger, error) {
	logger, err := logsvc.NewLogger(conf, "api")
	if err != nil {
		return nil, errors.Wrap(err, "creating api logger")
	}
	return logger, nil
}

func newDBLogger(conf *core.Config) (core.Logger, error) {
	logger, err := logsvc.NewLogger(conf, "db")
	if err != nil {
		return nil, errors.Wrap(err, "creating db logger")
	}
	return logger, nil
}

// newStorage opens the configured engine. Postgres databases are created and migrated first.
func newStorage(conf *core.Config, loggerParam DBLoggerParam) (Storage, error) {
	if conf.Database.Engine == database.EngineMemory {
		db := inmemdb.Open()
		loggerParam.Logger.Warn("using the in-memory store: data is lost on exit")
		return Storage{
			DB:            db,
			Close:         func() error { return nil },
			Users:         inmemdb.NewUserRepository(db),
			Requests:      inmemdb.NewRequestRepository(db),
			Tasks:         inmemdb.NewKanbanRepository(db),
			Notifications: inmemdb.NewNotificationRepository(db),
		}, nil
	}

	ctx := context.Background()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return Storage{}, errors.Wrap(err, "creating database")
	}
	db, err := database.Open(conf)
	if err != nil {
		return Storage{}, err
	}
	if err = database.Migrate(ctx, db.DB, "up"); err != nil {
		_ = db.Close()
		return Storage{}, err
	}
	loggerParam.Logger.Info("database ready", map[string]interface{}{
		"engine": conf.Database.Engine,
		"host":   conf.Database.Address(),
		"name":   conf.Database.Name,
	})

	return Storage{
		DB:            db,
		Close:         db.Close,
		Users:         sqlxrepos.NewUserRepository(db),
		Requests:      sqlxrepos.NewRequestRepository(db),
		Tasks:         sqlxrepos.NewKanbanRepository(db),
		Notifications: sqlxrepos.NewNotificationRepository(db),
	}, nil
}

func newNotificationService(repo notification.Repository, users user.Service) notification.Service {
	return notification.NewService(repo, users)
}

func newRequestService(
	repo request.Repository,
	users user.Service,
	notifier notification.Service,
	mailSvc core.EmailService,
	logger core.Logger,
) request.Service {
	return request.NewService(repo, users, notifier, mailSvc, logger)
}

func newKanbanService(repo kanban.Repository, requests request.Service, users user.Service, logger core.Logger) kanban.Service {
	return kanban.NewService(repo, requests, users, logger)
}

func newDeps(p depsParams) *echoapi.Deps {
	return &echoapi.Deps{
		DB:              p.DB,
		Validate:        p.Validate,
		Translator:      p.Translator,
		UserSvc:         p.UserSvc,
		RequestSvc:      p.RequestSvc,
		KanbanSvc:       p.KanbanSvc,
		NotificationSvc: p.NotificationSvc,
	}
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(emailsvc.NewService))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(user.NewService))
	must(c.Provide(newNotificationService))
	must(c.Provide(newRequestService))
	must(c.Provide(newKanbanService))
	must(c.Provide(newDeps))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
