package database

import (
	"fmt"

	"shortlink-analytics/internal/config"
	"shortlink-analytics/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open 按配置的驱动打开数据库连接
func Open(cfg config.DB) (*gorm.DB, error) {
	var dialector gorm.Dialector
	dsn := cfg.ConnString()

	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}

	connection, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	sqlDB, err := connection.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层连接池失败: %w", err)
	}
	if cfg.Driver == "sqlite" {
		// SQLite 只允许单个写连接
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}

	return connection, nil
}

// Migrate 自动迁移表结构
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.User{}, &model.ShortLink{}, &model.ClickRecord{}); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	if ddl := caseSensitiveCodeDDL(db.Dialector.Name()); ddl != "" {
		var collation string
		err := db.Raw(`SELECT COLLATION_NAME FROM information_schema.COLUMNS
			WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = 'short_links' AND COLUMN_NAME = 'short_code'`).
			Scan(&collation).Error
		if err != nil {
			return fmt.Errorf("查询短码排序规则失败: %w", err)
		}
		// 已是二进制排序时跳过，避免每次启动重建表
		if collation != binaryCollation {
			if err := db.Exec(ddl).Error; err != nil {
				return fmt.Errorf("设置短码排序规则失败: %w", err)
			}
		}
	}
	return nil
}

const binaryCollation = "utf8mb4_bin"

// caseSensitiveCodeDDL 短码必须区分大小写。
// MySQL 默认排序规则不区分大小写，需改为 utf8mb4_bin；SQLite 和 PostgreSQL 默认已区分。
func caseSensitiveCodeDDL(dialect string) string {
	if dialect != "mysql" {
		return ""
	}
	return "ALTER TABLE short_links MODIFY short_code VARCHAR(32) CHARACTER SET utf8mb4 COLLATE " + binaryCollation + " NOT NULL"
}

// Close 关闭底层连接池
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
