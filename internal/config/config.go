package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	APIBaseURL       string        `mapstructure:"QMD_API_BASE_URL"`
	APITimeout       time.Duration `mapstructure:"QMD_API_TIMEOUT"`
	AdminTokenHeader string        `mapstructure:"ADMIN_TOKEN_HEADER"`
	SessionBackend   string        `mapstructure:"SESSION_BACKEND"` // sqlite | redis
	SessionTTL       time.Duration `mapstructure:"SESSION_TTL"`
	DBDSN            string        `mapstructure:"DB_DSN"`
	RedisAddr        string        `mapstructure:"REDIS_ADDR"`
	RedisPassword    string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB          int           `mapstructure:"REDIS_DB"`
	TemplatesDir     string        `mapstructure:"TEMPLATES_DIR"`
	LogFile          string        `mapstructure:"LOG_FILE"`
}

var defaults = map[string]any{
	"PORT":               "8080",
	"QMD_API_BASE_URL":   "http://localhost:8787/api",
	"QMD_API_TIMEOUT":    "10s",
	"ADMIN_TOKEN_HEADER": "X-Admin-Token",
	"SESSION_BACKEND":    "sqlite",
	// cookies of the browser client lived for 7 days
	"SESSION_TTL":    "168h",
	"DB_DSN":         "qmd-sessions.db",
	"REDIS_ADDR":     "localhost:6379",
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,
	"TEMPLATES_DIR":  "./web/templates",
	"LOG_FILE":       "./qmd.log",
}

// Load reads an optional .env file, then the process environment.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		log.Printf("[config] loaded .env")
	}
	cfg, err := FromViper(viper.New())
	if err != nil {
		log.Fatalf("[config] %v", err)
	}
	log.Printf("[config] PORT=%s QMD_API_BASE_URL=%s SESSION_BACKEND=%s DB_DSN=%s REDIS_ADDR=%s LOG_FILE=%s",
		cfg.Port, cfg.APIBaseURL, cfg.SessionBackend, cfg.DBDSN, cfg.RedisAddr, cfg.LogFile)
	return cfg
}

// FromViper applies defaults and env bindings to v and decodes the result.
func FromViper(v *viper.Viper) (Config, error) {
	for k, d := range defaults {
		v.SetDefault(k, d)
		_ = v.BindEnv(k)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	cfg.SessionBackend = strings.ToLower(strings.TrimSpace(cfg.SessionBackend))
	if cfg.SessionBackend != "redis" {
		cfg.SessionBackend = "sqlite"
	}
	return cfg, nil
}
