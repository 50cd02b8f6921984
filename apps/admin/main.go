package main

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/heures/assets"
	"github.com/trezcool/heures/core"
	"github.com/trezcool/heures/core/setting"
	"github.com/trezcool/heures/core/staff"
	logsvc "github.com/trezcool/heures/services/logger"
	"github.com/trezcool/heures/storage/database"
	sqlxrepos "github.com/trezcool/heures/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	stdLogger := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(false)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		stdLogger.Fatal(err)
	}
	db, err := database.Open(conf)
	if err != nil {
		stdLogger.Fatal(err)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	staff.InitValidators(validate, translator)
	staff.LoadCommonPasswords(assets.FS, assets.CommonPasswordsFile, logger)

	// start CLI
	cli := commandLine{
		db:         db,
		out:        os.Stdout,
		staffSvc:   staff.NewService(sqlxrepos.NewStaffRepository(db), validate, translator),
		settingSvc: setting.NewService(sqlxrepos.NewSettingRepository(db), conf),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			stdLogger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
