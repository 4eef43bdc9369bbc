package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/nexus/storage/database"
)

var (
	migrateFunc = database.Migrate // mockable

	errNoDatabase = errors.New("migrations need a postgres database")
)

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoDatabase
	}
	return migrateFunc(context.Background(), cli.db, args[0], args[1:]...)
}
