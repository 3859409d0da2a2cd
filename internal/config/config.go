package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ModeDebug      = "debug"
	ModeProduction = "production"

	ClickModeAsync = "async"
	ClickModeSync  = "sync"
)

// 主配置结构
type Config struct {
	App       App       `yaml:"app"`
	Server    Server    `yaml:"server"`
	Database  DB        `yaml:"database"`
	Cache     Cache     `yaml:"cache"`
	Auth      Auth      `yaml:"auth"`
	RateLimit Limit     `yaml:"rate_limit"`
	Shortcode Shortcode `yaml:"shortcode"`
	Redirect  Redirect  `yaml:"redirect"`
	Log       Log       `yaml:"log"`
	Kafka     Kafka     `yaml:"kafka"`
	CORS      CORS      `yaml:"cors"`
}

// 应用配置
type App struct {
	Name    string `yaml:"name"`
	Mode    string `yaml:"mode"`
	Version string `yaml:"version"`
	// BaseURL 用于拼接返回给客户端的短链接，留空时使用请求的 Host
	BaseURL string `yaml:"base_url"`
}

// 服务器配置，超时单位为秒
type Server struct {
	Port            int `yaml:"port"`
	ReadTimeout     int `yaml:"read_timeout"`
	WriteTimeout    int `yaml:"write_timeout"`
	ShutdownTimeout int `yaml:"shutdown_timeout"`
}

// 数据库配置
type DB struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Name         string `yaml:"name"`
	Charset      string `yaml:"charset"`
	SSLMode      string `yaml:"sslmode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// 缓存配置（Redis）
type Cache struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	TTL         time.Duration `yaml:"ttl"`
	PoolSize    int           `yaml:"pool_size"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// Enabled 未配置 Host 时不启用 Redis
func (c Cache) Enabled() bool {
	return c.Host != ""
}

// Addr 返回 host:port
func (c Cache) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// 认证配置
type Auth struct {
	Secret          string `yaml:"secret"`
	Issuer          string `yaml:"issuer"`
	ExpirationHours int    `yaml:"expiration_hours"`
	AdminUsername   string `yaml:"admin_username"`
	AdminEmail      string `yaml:"admin_email"`
	AdminPassword   string `yaml:"admin_password"`
}

// 限流配置
type Limit struct {
	Enabled   bool     `yaml:"enabled"`
	Requests  int64    `yaml:"requests_per_minute"`
	Burst     int64    `yaml:"burst"`
	SkipPaths []string `yaml:"skip_paths"`
}

// 短码配置
type Shortcode struct {
	Length      int `yaml:"length"`
	PoolSize    int `yaml:"pool_size"`
	MaxAttempts int `yaml:"max_attempts"`
}

// 跳转配置
type Redirect struct {
	HomeURL      string        `yaml:"home_url"`
	ClickMode    string        `yaml:"click_mode"`
	ClickTimeout time.Duration `yaml:"click_timeout"`
}

// 日志配置
type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// 点击事件投递配置，Brokers 为空时不启用
type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default 返回带默认值的配置
func Default() *Config {
	return &Config{
		App: App{Name: "shortlink-analytics", Mode: ModeDebug, Version: "1.0.0"},
		Server: Server{
			Port:            8080,
			ReadTimeout:     10,
			WriteTimeout:    10,
			ShutdownTimeout: 15,
		},
		Database: DB{
			Driver:       "sqlite",
			DSN:          "file:shortlink.db?cache=shared",
			Port:         3306,
			Charset:      "utf8mb4",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Cache: Cache{
			Port:        6379,
			TTL:         24 * time.Hour,
			PoolSize:    20,
			DialTimeout: 5 * time.Second,
		},
		Auth: Auth{
			Issuer:          "shortlink-analytics",
			ExpirationHours: 24,
		},
		RateLimit: Limit{
			Enabled:   false,
			Requests:  120,
			Burst:     20,
			SkipPaths: []string{"/health", "/metrics", "/swagger/"},
		},
		Shortcode: Shortcode{Length: 8, PoolSize: 0, MaxAttempts: 10},
		Redirect: Redirect{
			HomeURL:      "/",
			ClickMode:    ClickModeAsync,
			ClickTimeout: 2 * time.Second,
		},
		Log: Log{
			Level:      "info",
			File:       "./logs/app.log",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Kafka: Kafka{Topic: "shortlink.clicks"},
		CORS:  CORS{AllowedOrigins: []string{"*"}},
	}
}

// 加载配置：默认值 -> YAML 文件 -> .env / 环境变量
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	// .env 不存在时忽略，已存在的环境变量不会被覆盖
	_ = godotenv.Load()
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置的合法性
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("不支持的数据库驱动: %q", c.Database.Driver))
	}

	switch c.Redirect.ClickMode {
	case ClickModeAsync, ClickModeSync:
	default:
		errs = append(errs, fmt.Errorf("未知的点击统计模式: %q", c.Redirect.ClickMode))
	}

	if c.Shortcode.Length < 4 || c.Shortcode.Length > 32 {
		errs = append(errs, fmt.Errorf("短码长度必须在 4 到 32 之间，当前为 %d", c.Shortcode.Length))
	}
	if c.Shortcode.MaxAttempts < 1 {
		errs = append(errs, errors.New("shortcode.max_attempts 至少为 1"))
	}
	if c.App.Mode == ModeProduction {
		switch {
		case c.Auth.Secret == "":
			errs = append(errs, errors.New("生产模式下必须配置 auth.secret"))
		case isPlaceholderSecret(c.Auth.Secret):
			errs = append(errs, errors.New("生产模式下 auth.secret 不能使用示例值"))
		}
	}

	return errors.Join(errs...)
}

// 示例配置和文档中出现过的密钥
var placeholderSecrets = []string{"change-me", "changeme", "secret", "your-secret-key", "test-secret"}

func isPlaceholderSecret(secret string) bool {
	secret = strings.ToLower(strings.TrimSpace(secret))
	for _, p := range placeholderSecrets {
		if secret == p {
			return true
		}
	}
	return false
}

// Addr 返回 HTTP 监听地址
func (s Server) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// ConnString 按驱动拼接连接串，显式配置的 DSN 优先
func (d DB) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	switch d.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=UTC",
			d.User, d.Password, d.Host, d.Port, d.Name, d.Charset)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
	default:
		return d.Name
	}
}
