// Package testutil sets up databases, services and fixtures for tests.
package testutil

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/heures/assets"
	"github.com/trezcool/heures/core"
	"github.com/trezcool/heures/core/session"
	"github.com/trezcool/heures/core/staff"
	logsvc "github.com/trezcool/heures/services/logger"
	"github.com/trezcool/heures/storage/database"
)

// NewConfig returns a Config fit for tests, independent of the environment.
func NewConfig() *core.Config {
	conf := &core.Config{
		Env:               "TEST",
		TestMode:          true,
		AppName:           "Heures",
		SecretKey:         "test-secret-key",
		FrontendBaseURL:   "http://localhost:3000",
		EditWindowMinutes: 60,
		Server: core.ServerConfig{
			DisableReqLogs:            true,
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 24 * time.Hour,
		},
		Database: core.DatabaseConfig{Engine: database.EngineSQLite},
	}
	conf.SetDefaultFromEmail("Heures <noreply@heures.test>")
	return conf
}

// NewLogger returns a silent core.Logger.
func NewLogger() core.Logger {
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), NewConfig())
	logger.Enable(false)
	return logger
}

// NewValidator returns a validator with every custom validation registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	staff.InitValidators(validate, translator)
	session.InitValidators(validate, translator)
	staff.LoadCommonPasswords(assets.FS, assets.CommonPasswordsFile, NewLogger())
	return validate, translator
}

// ParseEmailTemplates loads the embedded email templates.
func ParseEmailTemplates(conf *core.Config) {
	core.ParseEmailTemplates(assets.FS, assets.EmailTemplatesDir, conf, NewLogger())
}

// PrepareDB opens a fresh, migrated SQLite database closed at the end of the test.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "heures.db"))
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(db, log.New(io.Discard, "", 0)); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

func CreateStaff(
	t *testing.T,
	repo staff.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) staff.Staff {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	stf := staff.Staff{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if roles == nil {
		stf.Roles = []string{}
	}
	if pwd != "" {
		if err := stf.SetPassword(pwd); err != nil {
			t.Fatalf("CreateStaff() failed: %v", err)
		}
	}
	stf, err := repo.CreateStaff(context.Background(), stf)
	if err != nil {
		t.Fatalf("CreateStaff() failed: %v", err)
	}
	return stf
}

// Clock is a settable clock for services taking a `func() time.Time`.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock { return &Clock{now: now.UTC()} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now.UTC()
	c.mu.Unlock()
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
