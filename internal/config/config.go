// Package config loads the service configuration from an optional YAML file
// overlaid by AUDITIONS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/quillsociety/auditions/internal/archive"
	"github.com/quillsociety/auditions/internal/docstore/open"
	"github.com/quillsociety/auditions/internal/logging"
	"github.com/quillsociety/auditions/internal/utils"
)

type Server struct {
	Addr        string        `yaml:"addr" validate:"required"`
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenTTL    time.Duration `yaml:"token_ttl" validate:"gte=0"`
	CORSOrigins []string      `yaml:"cors_origins"`

	// LoginRate is login attempts per minute per client address.
	LoginRate  float64 `yaml:"login_rate" validate:"gte=0"`
	LoginBurst int     `yaml:"login_burst" validate:"gte=0"`

	// StaticDir, when set, is served at / for a bundled frontend.
	StaticDir string `yaml:"static_dir"`
	Commit    string `yaml:"-"`
	BuildTime string `yaml:"-"`
}

type FanOut struct {
	BatchSize int `yaml:"batch_size" validate:"gte=0,lte=500"`
}

type Config struct {
	Server  Server         `yaml:"server"`
	Store   open.Config    `yaml:"store"`
	Log     logging.Config `yaml:"log"`
	FanOut  FanOut         `yaml:"fanout"`
	Archive archive.Config `yaml:"archive"`
}

// Default returns a configuration that runs with no file and no environment:
// in-memory store, text logs, fs archive under ./data/archive.
func Default() Config {
	return Config{
		Server: Server{
			Addr:       ":8080",
			TokenTTL:   7 * 24 * time.Hour,
			LoginRate:  10,
			LoginBurst: 5,
		},
		Store:   open.Config{Driver: "memory", SQLitePath: "./data/auditions.db", BadgerPath: "./data/badger"},
		Log:     logging.Config{Level: "info", Format: "text", Service: "auditions"},
		FanOut:  FanOut{BatchSize: 500},
		Archive: archive.Config{Kind: "fs", Dir: "./data/archive"},
	}
}

// Load reads path (skipped when empty) over the defaults, then applies the
// environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	s := &cfg.Server
	s.Addr = utils.SafeEnv("AUDITIONS_ADDR", s.Addr)
	s.JWTSecret = utils.SafeEnv("AUDITIONS_JWT_SECRET", s.JWTSecret)
	s.TokenTTL = utils.EnvDuration("AUDITIONS_TOKEN_TTL", s.TokenTTL)
	s.CORSOrigins = utils.EnvList("AUDITIONS_CORS_ORIGINS", s.CORSOrigins)
	s.LoginRate = float64(utils.EnvInt("AUDITIONS_LOGIN_RATE", int(s.LoginRate)))
	s.StaticDir = utils.SafeEnv("AUDITIONS_STATIC_DIR", s.StaticDir)
	s.Commit = utils.SafeEnv("AUDITIONS_COMMIT", "dev")
	s.BuildTime = utils.SafeEnv("AUDITIONS_BUILD_TIME", "")

	st := &cfg.Store
	st.Driver = utils.SafeEnv("AUDITIONS_STORE_DRIVER", st.Driver)
	st.SQLitePath = utils.SafeEnv("AUDITIONS_SQLITE_PATH", st.SQLitePath)
	st.MigrationsDir = utils.SafeEnv("AUDITIONS_MIGRATIONS_DIR", st.MigrationsDir)
	st.PostgresURL = utils.SafeEnv("AUDITIONS_POSTGRES_URL", st.PostgresURL)
	st.BadgerPath = utils.SafeEnv("AUDITIONS_BADGER_PATH", st.BadgerPath)
	st.MongoURI = utils.SafeEnv("AUDITIONS_MONGO_URI", st.MongoURI)
	st.MongoDatabase = utils.SafeEnv("AUDITIONS_MONGO_DATABASE", st.MongoDatabase)
	st.MongoTransactions = utils.EnvBool("AUDITIONS_MONGO_TRANSACTIONS", st.MongoTransactions)

	cfg.Log.Level = utils.SafeEnv("AUDITIONS_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = utils.SafeEnv("AUDITIONS_LOG_FORMAT", cfg.Log.Format)
	cfg.FanOut.BatchSize = utils.EnvInt("AUDITIONS_FANOUT_BATCH", cfg.FanOut.BatchSize)

	a := &cfg.Archive
	a.Kind = utils.SafeEnv("AUDITIONS_ARCHIVE_KIND", a.Kind)
	a.Dir = utils.SafeEnv("AUDITIONS_ARCHIVE_DIR", a.Dir)
	a.Bucket = utils.SafeEnv("AUDITIONS_ARCHIVE_BUCKET", a.Bucket)
	a.Prefix = utils.SafeEnv("AUDITIONS_ARCHIVE_PREFIX", a.Prefix)
	a.S3Region = utils.SafeEnv("AUDITIONS_S3_REGION", a.S3Region)
	a.S3Endpoint = utils.SafeEnv("AUDITIONS_S3_ENDPOINT", a.S3Endpoint)
	a.S3PathStyle = utils.EnvBool("AUDITIONS_S3_PATH_STYLE", a.S3PathStyle)
	a.GCSCredentialsFile = utils.SafeEnv("AUDITIONS_GCS_CREDENTIALS", a.GCSCredentialsFile)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and the enumerated settings.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := validate.Var(c.Store.Driver, "omitempty,oneof=memory sqlite postgres badger mongo"); err != nil {
		return fmt.Errorf("invalid config: store.driver %q", c.Store.Driver)
	}
	if err := validate.Var(c.Archive.Kind, "omitempty,oneof=fs s3 gcs"); err != nil {
		return fmt.Errorf("invalid config: archive.kind %q", c.Archive.Kind)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
