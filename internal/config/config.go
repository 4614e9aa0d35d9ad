package config

import (
	"errors"
	"os"
	"strconv"
)

type Config struct {
	Port                  string
	DatabaseDSN           string
	JWTSecret             string
	Env                   string
	UploadDir             string
	AccessTokenTTLMinutes int
	RefreshTokenTTLDays   int
	RetentionHours        int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(getenv(key, strconv.Itoa(def)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func Load() Config {
	return Config{
		Port:                  getenv("APP_PORT", "8080"),
		DatabaseDSN:           getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=apuri port=5432 sslmode=disable TimeZone=UTC"),
		JWTSecret:             getenv("JWT_SECRET", "dev-secret-change-me"),
		Env:                   getenv("APP_ENV", "dev"),
		UploadDir:             getenv("UPLOAD_DIR", "uploads"),
		AccessTokenTTLMinutes: getenvInt("ACCESS_TOKEN_TTL_MINUTES", 15),
		RefreshTokenTTLDays:   getenvInt("REFRESH_TOKEN_TTL_DAYS", 7),
		RetentionHours:        getenvInt("MESSAGE_RETENTION_HOURS", 24),
	}
}

// Validate 对关键配置做启动前检查，非 dev 环境禁止使用默认密钥。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("port must not be empty")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("database dsn must not be empty")
	}
	if cfg.Env != "dev" && cfg.JWTSecret == "dev-secret-change-me" {
		return errors.New("default jwt secret is not allowed outside dev")
	}
	if cfg.RetentionHours <= 0 {
		return errors.New("retention hours must be positive")
	}
	return nil
}
