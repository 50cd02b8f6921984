package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Address                   string
		Host                      string
		DebugHost                 string
		DisableReqLogs            bool
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine     string // postgres | sqlite
		Host       string
		Name       string
		User       string
		Password   string
		SuperUser  string
		SuperPass  string
		Path       string // sqlite only
		DisableTLS bool
	}

	Config struct {
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		FrontendBaseURL  string
		RollbarToken     string
		SendgridApiKey   string
		defaultFromEmail string

		// EditWindowMinutes seeds the edit window until an administrator sets one.
		EditWindowMinutes int

		Server   ServerConfig
		Database DatabaseConfig
	}
)

// NewConfig loads the application Config from the environment.
// Every key can be overridden with an env var prefixed by the current ENV, e.g. `DEV_SERVER_ADDRESS`.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "dev")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Heures")
	v.SetDefault("secretKey", "k2v8-u4f)e3x#+91=qa&hm7t2(w!p)#*d1(#zr5h^$wfdq8mz")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "Heures <noreply@localhost>")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("editWindowMinutes", 60)

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.disableReqLogs", false)
	v.SetDefault("server.readTimeout", 5*time.Second)
	v.SetDefault("server.writeTimeout", 5*time.Second)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 4*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost:5432")
	v.SetDefault("database.name", "heures")
	v.SetDefault("database.user", "heures")
	v.SetDefault("database.password", "heures")
	v.SetDefault("database.superUser", "postgres")
	v.SetDefault("database.superPass", "postgres")
	v.SetDefault("database.path", "heures.db")
	v.SetDefault("database.disableTLS", true)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:               env,
		Build:             v.GetString("build"),
		Debug:             v.GetBool("debug"),
		TestMode:          v.GetBool("testMode"),
		AppName:           v.GetString("appName"),
		SecretKey:         v.GetString("secretKey"),
		FrontendBaseURL:   v.GetString("frontendBaseURL"),
		RollbarToken:      v.GetString("rollbarToken"),
		SendgridApiKey:    v.GetString("sendgridApiKey"),
		defaultFromEmail:  v.GetString("defaultFromEmail"),
		EditWindowMinutes: v.GetInt("editWindowMinutes"),
		Server: ServerConfig{
			Address:                   v.GetString("server.address"),
			Host:                      v.GetString("server.host"),
			DebugHost:                 v.GetString("server.debugHost"),
			DisableReqLogs:            v.GetBool("server.disableReqLogs"),
			ReadTimeout:               v.GetDuration("server.readTimeout"),
			WriteTimeout:              v.GetDuration("server.writeTimeout"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:     v.GetString("database.engine"),
			Host:       v.GetString("database.host"),
			Name:       v.GetString("database.name"),
			User:       v.GetString("database.user"),
			Password:   v.GetString("database.password"),
			SuperUser:  v.GetString("database.superUser"),
			SuperPass:  v.GetString("database.superPass"),
			Path:       v.GetString("database.path"),
			DisableTLS: v.GetBool("database.disableTLS"),
		},
	}
}

func (conf *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(conf.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: conf.AppName, Address: "noreply@localhost"}
	}
	return *addr
}

// SetDefaultFromEmail overrides the sender address, e.g. in tests.
func (conf *Config) SetDefaultFromEmail(addr string) {
	conf.defaultFromEmail = addr
}
