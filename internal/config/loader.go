package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/openwitness/chronicle/internal/db"
	"github.com/openwitness/chronicle/internal/engine"
)

// Config is the full server configuration.
type Config struct {
	Database db.Config
	Server   ServerConfig
	Engine   engine.Config
	// RegionsFile optionally overrides the built-in administrative region
	// enumeration with a yaml file.
	RegionsFile string
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// Load reads config.yaml from configPath with environment overrides
// (CHRONICLE_DATABASE_HOST and friends). Missing file means defaults.
func Load(configPath string) (Config, error) {
	cfg := Config{
		Database: db.DefaultConfig(),
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Engine: engine.DefaultConfig(),
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("CHRONICLE")

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("server.addr")

	if err := v.ReadInConfig(); err != nil {
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}

	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}

	if v.IsSet("limits.bootstrap") {
		cfg.Engine.BootstrapLimit = v.GetInt("limits.bootstrap")
	}
	if v.IsSet("limits.mutation") {
		cfg.Engine.MutationLimit = v.GetInt("limits.mutation")
	}
	if v.IsSet("limits.window") {
		window, err := time.ParseDuration(v.GetString("limits.window"))
		if err != nil {
			return Config{}, fmt.Errorf("invalid limits.window: %w", err)
		}
		cfg.Engine.RateWindow = window
	}
	if v.IsSet("proposals.expiry") {
		expiry, err := time.ParseDuration(v.GetString("proposals.expiry"))
		if err != nil {
			return Config{}, fmt.Errorf("invalid proposals.expiry: %w", err)
		}
		cfg.Engine.ProposalExpiry = expiry
	}
	if v.IsSet("query.page_size") {
		cfg.Engine.PageSize = v.GetInt("query.page_size")
	}
	if v.IsSet("regions.file") {
		cfg.RegionsFile = v.GetString("regions.file")
	}

	return cfg, nil
}
