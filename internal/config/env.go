package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnv 用环境变量覆盖配置，便于容器部署时注入密钥
func applyEnv(cfg *Config) {
	cfg.App.Mode = getEnv("APP_MODE", cfg.App.Mode)
	cfg.App.BaseURL = getEnv("APP_BASE_URL", cfg.App.BaseURL)
	cfg.Server.Port = getEnvInt("SERVER_PORT", cfg.Server.Port)

	cfg.Database.Driver = getEnv("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = getEnv("DB_DSN", cfg.Database.DSN)
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnv("DB_NAME", cfg.Database.Name)

	cfg.Cache.Host = getEnv("REDIS_HOST", cfg.Cache.Host)
	cfg.Cache.Port = getEnvInt("REDIS_PORT", cfg.Cache.Port)
	cfg.Cache.Password = getEnv("REDIS_PASSWORD", cfg.Cache.Password)
	cfg.Cache.DB = getEnvInt("REDIS_DB", cfg.Cache.DB)

	cfg.Auth.Secret = getEnv("AUTH_SECRET", cfg.Auth.Secret)
	cfg.Auth.AdminPassword = getEnv("ADMIN_PASSWORD", cfg.Auth.AdminPassword)

	cfg.Redirect.HomeURL = getEnv("REDIRECT_HOME_URL", cfg.Redirect.HomeURL)
	cfg.Redirect.ClickMode = getEnv("REDIRECT_CLICK_MODE", cfg.Redirect.ClickMode)
	cfg.Redirect.ClickTimeout = getEnvDuration("REDIRECT_CLICK_TIMEOUT", cfg.Redirect.ClickTimeout)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	if brokers := splitCSV(os.Getenv("KAFKA_BROKERS")); len(brokers) > 0 {
		cfg.Kafka.Brokers = brokers
	}
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Kafka.Topic)
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// splitCSV 拆分逗号分隔的列表，丢弃空项
func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
