package dig_container

import (
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/heures/apps/api/echo"
	"github.com/trezcool/heures/core"
	"github.com/trezcool/heures/core/session"
	"github.com/trezcool/heures/core/setting"
	"github.com/trezcool/heures/core/staff"
	emailsvc "github.com/trezcool/heures/services/email"
	logsvc "github.com/trezcool/heures/services/logger"
	"github.com/trezcool/heures/services/notification"
	"github.com/trezcool/heures/storage/database"
	sqlxrepos "github.com/trezcool/heures/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db, log.New(os.Stdout, "MIGRATE : ", log.LstdFlags)); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, os.Stdout, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newSessionService(
	repo session.Repository,
	settingSvc *setting.Service,
	notifier session.Notifier,
	validate *validator.Validate,
	translator ut.Translator,
	logger core.Logger,
) *session.Service {
	return session.NewService(repo, settingSvc, notifier, validate, translator, logger)
}

func newServer(
	conf *core.Config,
	logger core.Logger,
	staffSvc *staff.Service,
	sessionSvc *session.Service,
	settingSvc *setting.Service,
	validate *validator.Validate,
	translator ut.Translator,
) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		StaffSvc:   staffSvc,
		SessionSvc: sessionSvc,
		SettingSvc: settingSvc,
		Validate:   validate,
		Translator: translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))

	// repositories
	must(c.Provide(sqlxrepos.NewStaffRepository))
	must(c.Provide(sqlxrepos.NewSessionRepository))
	must(c.Provide(sqlxrepos.NewSettingRepository))

	// services
	must(c.Provide(staff.NewService))
	must(c.Provide(setting.NewService))
	must(c.Provide(notification.NewEmailNotifier, dig.As(new(session.Notifier))))
	must(c.Provide(func(svc *staff.Service) notification.StaffDirectory { return svc }))
	must(c.Provide(newSessionService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
