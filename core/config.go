package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	serverConfig struct {
		Address                   string
		Host                      string
		DebugHost                 string
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	databaseConfig struct {
		Engine        string // postgres | pgx | memory
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		PingTimeout   time.Duration
	}

	jobsConfig struct {
		StaleAfter   time.Duration
		ScanInterval time.Duration
	}

	Config struct {
		AppName          string
		Env              string // DEV (default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		WorkDir          string
		LogLevel         string
		FrontendBaseURL  string
		SendgridAPIKey   string
		SentryDSN        string
		RollbarToken     string
		defaultFromEmail string

		Server   serverConfig
		Database databaseConfig
		Jobs     jobsConfig
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	return *addr
}

func (c *Config) IsProduction() bool { return c.Env == "PROD" }

func (d databaseConfig) Address() string {
	return net.JoinHostPort(d.Host, d.Port)
}

// NewConfig reads the configuration of the current ENV.
// Values come from defaults, then config/.env.<env> (if any), then the environment, prefixed by ENV (eg. DEV_DEBUG).
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	wd := Getwd()

	v.SetTypeByDefaultValue(true)
	v.SetDefault("appName", "Nexus")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", env == "DEV")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("secretKey", "x7#q!m2k9$vd4&wz0+t(r8)j6=np1^ls3*yb5%hc")
	v.SetDefault("logLevel", "info")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "Nexus <noreply@localhost>")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("sentryDsn", "")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server_address", ":8000")
	v.SetDefault("server_host", "localhost")
	v.SetDefault("server_debugHost", ":4000")
	v.SetDefault("server_readTimeout", 5*time.Second)
	v.SetDefault("server_writeTimeout", 5*time.Second)
	v.SetDefault("server_shutdownTimeout", 5*time.Second)
	v.SetDefault("server_jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server_jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("database_engine", "postgres")
	v.SetDefault("database_host", "localhost")
	v.SetDefault("database_port", "5432")
	v.SetDefault("database_name", "nexus")
	v.SetDefault("database_user", "nexus")
	v.SetDefault("database_password", "nexus")
	v.SetDefault("database_adminUser", "postgres")
	v.SetDefault("database_adminPassword", "postgres")
	v.SetDefault("database_disableTLS", true)
	v.SetDefault("database_pingTimeout", 800*time.Millisecond)

	v.SetDefault("jobs_staleAfter", 7*24*time.Hour)
	v.SetDefault("jobs_scanInterval", time.Hour)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Config{
		AppName:          v.GetString("appName"),
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		SecretKey:        v.GetString("secretKey"),
		WorkDir:          wd,
		LogLevel:         v.GetString("logLevel"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		SendgridAPIKey:   v.GetString("sendgridApiKey"),
		SentryDSN:        v.GetString("sentryDsn"),
		RollbarToken:     v.GetString("rollbarToken"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: serverConfig{
			Address:                   v.GetString("server_address"),
			Host:                      v.GetString("server_host"),
			DebugHost:                 v.GetString("server_debugHost"),
			ReadTimeout:               v.GetDuration("server_readTimeout"),
			WriteTimeout:              v.GetDuration("server_writeTimeout"),
			ShutdownTimeout:           v.GetDuration("server_shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server_jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server_jwtRefreshExpirationDelta"),
		},
		Database: databaseConfig{
			Engine:        v.GetString("database_engine"),
			Host:          v.GetString("database_host"),
			Port:          v.GetString("database_port"),
			Name:          v.GetString("database_name"),
			User:          v.GetString("database_user"),
			Password:      v.GetString("database_password"),
			AdminUser:     v.GetString("database_adminUser"),
			AdminPassword: v.GetString("database_adminPassword"),
			DisableTLS:    v.GetBool("database_disableTLS"),
			PingTimeout:   v.GetDuration("database_pingTimeout"),
		},
		Jobs: jobsConfig{
			StaleAfter:   v.GetDuration("jobs_staleAfter"),
			ScanInterval: v.GetDuration("jobs_scanInterval"),
		},
	}
}

// NewTestConfig returns the configuration used by tests: in-memory storage, no external services.
func NewTestConfig() *Config {
	return &Config{
		AppName:          "Nexus",
		Env:              "TEST",
		Build:            "test",
		TestMode:         true,
		SecretKey:        "test-secret",
		LogLevel:         "error",
		FrontendBaseURL:  "http://localhost:3000",
		defaultFromEmail: "Nexus <noreply@localhost>",
		Server: serverConfig{
			Address:                   ":0",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Database: databaseConfig{Engine: "memory"},
		Jobs: jobsConfig{
			StaleAfter:   7 * 24 * time.Hour,
			ScanInterval: time.Hour,
		},
	}
}
