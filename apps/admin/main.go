package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/nexus/core"
	"github.com/trezcool/nexus/core/notification"
	"github.com/trezcool/nexus/core/request"
	"github.com/trezcool/nexus/core/user"
	emailsvc "github.com/trezcool/nexus/services/email"
	logsvc "github.com/trezcool/nexus/services/logger"
	"github.com/trezcool/nexus/storage/database"
	inmemdb "github.com/trezcool/nexus/storage/database/inmem"
	sqlxrepos "github.com/trezcool/nexus/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger, err := logsvc.NewLogger(conf, "admin")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating logger: %v\n", err)
		os.Exit(1)
	}

	// set up DB & repos
	var (
		db        *sql.DB
		usrRepo   user.Repository
		reqRepo   request.Repository
		notifRepo notification.Repository
	)
	if conf.Database.Engine == database.EngineMemory {
		mem := inmemdb.Open()
		usrRepo = inmemdb.NewUserRepository(mem)
		reqRepo = inmemdb.NewRequestRepository(mem)
		notifRepo = inmemdb.NewNotificationRepository(mem)
	} else {
		xdb, err := database.Open(conf)
		if err != nil {
			logger.Fatal("opening database", err)
		}
		db = xdb.DB
		usrRepo = sqlxrepos.NewUserRepository(xdb)
		reqRepo = sqlxrepos.NewRequestRepository(xdb)
		notifRepo = sqlxrepos.NewNotificationRepository(xdb)
	}

	// set up services
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	usrSvc := user.NewService(usrRepo)
	notifSvc := notification.NewService(notifRepo, usrSvc)
	reqSvc := request.NewService(reqRepo, usrSvc, notifSvc, emailsvc.NewService(conf, logger), logger)

	// start CLI
	cli := commandLine{
		db:       db,
		usrSvc:   usrSvc,
		reqSvc:   reqSvc,
		validate: validate,
		logger:   logger,
		out:      os.Stdout,
	}
	err = cli.run(os.Args)
	if db != nil {
		_ = db.Close()
	}
	logger.Sync()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
