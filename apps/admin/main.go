package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/tenant"
	"github.com/ellahos/ellahos/core/user"
	emailsvc "github.com/ellahos/ellahos/services/email"
	logsvc "github.com/ellahos/ellahos/services/logger"
	"github.com/ellahos/ellahos/storage/database"
	sqlxrepos "github.com/ellahos/ellahos/storage/database/sqlx"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()
	logger = logsvc.NewRollbarLogger(logsvc.NewStdLogger(logsvc.PrefixAdmin), conf)

	// set up DB
	ctx := context.Background()
	errAndDie(database.CreateIfNotExist(ctx, conf))
	db, err := database.Open(ctx, conf)
	errAndDie(err)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	user.LoadCommonPasswords(conf, logger)

	// start CLI
	cli := commandLine{
		db:        db.DB,
		validate:  validate,
		tenantSvc: tenant.NewService(sqlxrepos.NewTenantRepository(db), nil, nil, nil),
		usrSvc:    user.NewService(sqlxrepos.NewUserRepository(db), emailsvc.NewService(conf, logger), conf),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			fmt.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
