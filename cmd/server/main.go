package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shortlink-analytics/internal/cache"
	"shortlink-analytics/internal/config"
	"shortlink-analytics/internal/events"
	"shortlink-analytics/internal/handler"
	"shortlink-analytics/internal/middleware"
	"shortlink-analytics/internal/model"
	"shortlink-analytics/internal/repository"
	"shortlink-analytics/internal/service"
	"shortlink-analytics/internal/shortcode"
	"shortlink-analytics/pkg/database"
	auth "shortlink-analytics/pkg/jwt"
	"shortlink-analytics/pkg/logger"
	"shortlink-analytics/pkg/redis"

	_ "shortlink-analytics/docs"

	"github.com/gin-gonic/gin"
	redisClient "github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// @title 短链接与点击统计 API
// @version 1.0
// @description 短链接创建、跳转与点击统计服务
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
func main() {
	configPath := flag.String("config", envOr("CONFIG_PATH", "configs/config.yaml"), "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "配置加载失败:", err)
		os.Exit(1)
	}

	logger.InitLogger(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Println("日志同步失败:", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		zap.S().Errorf("服务异常退出: %v", err)
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	sugaredLogger := zap.S()

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("数据库初始化失败: %w", err)
	}
	defer func() {
		if err := database.Close(db); err != nil {
			sugaredLogger.Errorf("关闭数据库失败: %v", err)
		}
	}()
	sugaredLogger.Infow("✅ 数据库连接成功", "driver", cfg.Database.Driver)

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	sugaredLogger.Info("✅ 数据库迁移成功")

	// 缓存可选，连接失败时只走数据库
	var urlCache service.URLCache
	var rdb *redisClient.Client
	rdb, err = redis.NewClient(ctx, cfg.Cache)
	switch {
	case err != nil:
		sugaredLogger.Warnf("缓存连接失败: %v", err)
	case rdb != nil:
		defer func() {
			if err := rdb.Close(); err != nil {
				sugaredLogger.Errorf("关闭 Redis 连接失败: %v", err)
			}
		}()
		urlCache = cache.NewLinkCache(rdb, cfg.Cache.TTL)
		sugaredLogger.Info("✅ 缓存连接成功")
	}

	shortcodeGenerator := shortcode.NewGenerator(cfg.Shortcode.Length, cfg.Shortcode.PoolSize, sugaredLogger)
	shortcodeGenerator.Start()
	defer shortcodeGenerator.Stop()
	sugaredLogger.Info("✅ 短码生成器已启动")

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		sugaredLogger.Infow("✅ 点击事件投递已启用", "topic", cfg.Kafka.Topic)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			sugaredLogger.Errorf("关闭事件投递失败: %v", err)
		}
	}()

	secret := cfg.Auth.Secret
	if secret == "" {
		// 仅调试模式会走到这里，Validate 已拒绝生产模式的空密钥
		if secret, err = randomSecret(); err != nil {
			return err
		}
		sugaredLogger.Warn("⚠️ 未配置 auth.secret，已生成临时密钥，重启后令牌失效")
	}
	tokenManager := auth.NewManager(secret, cfg.Auth.Issuer, cfg.Auth.ExpirationHours)
	sugaredLogger.Info("✅ 认证管理器初始化成功")

	if err := createAdminUser(ctx, db, cfg.Auth); err != nil {
		sugaredLogger.Errorf("创建管理员失败: %v", err)
	}

	svc := service.NewShortLinkService(
		repository.NewGormStore(db),
		shortcodeGenerator,
		urlCache,
		publisher,
		sugaredLogger,
		service.Options{
			MaxAttempts:  cfg.Shortcode.MaxAttempts,
			ClickMode:    cfg.Redirect.ClickMode,
			ClickTimeout: cfg.Redirect.ClickTimeout,
		},
	)
	// 退出前等待异步点击写完
	defer svc.WaitClicks()

	if cfg.App.Mode == config.ModeProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.GinZapRecovery(logger.Logger, true))
	router.Use(middleware.GinZapLogger(logger.Logger))
	router.Use(middleware.Metrics())
	router.Use(middleware.RateLimit(rdb, &cfg.RateLimit, sugaredLogger))

	urlHandler := handler.NewShortLinkHandler(svc, handler.Options{
		AppName: cfg.App.Name,
		Version: cfg.App.Version,
		BaseURL: cfg.App.BaseURL,
		HomeURL: cfg.Redirect.HomeURL,
	})
	authHandler := handler.NewAuthHandler(db, tokenManager)
	handler.RegisterRoutes(router, urlHandler, authHandler,
		middleware.AuthMiddleware(tokenManager, authHandler.UserActive), middleware.AdminMiddleware())

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions, http.MethodHead},
		AllowedHeaders: []string{"Content-Type", "Authorization", "Accept", "Origin", "X-Requested-With"},
	}).Handler(router)

	server := &http.Server{
		Addr:           cfg.Server.Addr(),
		Handler:        corsHandler,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugaredLogger.Infof("🚀 服务启动成功, 访问 http://localhost:%d", cfg.Server.Port)
		sugaredLogger.Infof("📚 Swagger 文档地址: http://localhost:%d/swagger/index.html", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("服务启动失败: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sugaredLogger.Info("正在关闭服务...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("服务关闭失败: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// createAdminUser 配置了管理员密码时创建默认管理员，已存在则跳过
func createAdminUser(ctx context.Context, db *gorm.DB, cfg config.Auth) error {
	if cfg.AdminPassword == "" {
		return nil
	}
	username := cfg.AdminUsername
	if username == "" {
		username = "admin"
	}
	email := cfg.AdminEmail
	if email == "" {
		email = username + "@shortlink.local"
	}

	var existing model.User
	err := db.WithContext(ctx).Where("username = ?", username).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	admin := model.User{Username: username, Email: email, Role: model.RoleAdmin, IsActive: true}
	if err := admin.SetPassword(cfg.AdminPassword); err != nil {
		return err
	}
	if err := db.WithContext(ctx).Create(&admin).Error; err != nil {
		return err
	}
	zap.S().Infow("✅ 默认管理员创建成功", "username", username)
	return nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("生成临时密钥失败: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
