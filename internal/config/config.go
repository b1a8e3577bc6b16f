package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr      string     `env:"HTTP_ADDR" envDefault:":8080"`
	DataDir       string     `env:"DATA_DIR" envDefault:"data"`
	DBURL         string     `env:"DB_URL"` // remote libsql URL; empty uses DataDir/quest.db
	LocalDBPath   string     `env:"LOCAL_DB_PATH" envDefault:"data/local.db"`
	PhotoDir      string     `env:"PHOTO_DIR" envDefault:"data/photos"`
	PublicBaseURL string     `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	LogLevel      slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	SPADir        string     `env:"SPA_DIR" envDefault:"../web/dist"`

	AdminEmail    string `env:"ADMIN_EMAIL" envDefault:"admin@partyquest.local"`
	AdminPassword string `env:"ADMIN_PASSWORD" envDefault:"changeme"`

	WriteTimeout  time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	UploadTimeout time.Duration `env:"UPLOAD_TIMEOUT" envDefault:"20s"`
	RetryMax      uint64        `env:"RETRY_MAX" envDefault:"5"`
	RetryBase     time.Duration `env:"RETRY_BASE" envDefault:"500ms"`
	RetryCap      time.Duration `env:"RETRY_CAP" envDefault:"8s"`
	CheckInterval time.Duration `env:"CHECK_INTERVAL" envDefault:"5s"`
	FlushTimeout  time.Duration `env:"FLUSH_TIMEOUT" envDefault:"2m"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}

// DBTarget is the path or URL handed to database.Open for the main store.
func (c *Config) DBTarget() string {
	if c.DBURL != "" {
		return c.DBURL
	}
	return c.DataDir + "/quest.db"
}
