// Package testutil 提供测试用的内存数据库
package testutil

import (
	"fmt"
	"testing"

	"shortlink-analytics/internal/config"
	"shortlink-analytics/pkg/database"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NewSQLiteDB 为每个测试创建独立的内存 SQLite 库并完成迁移
func NewSQLiteDB(tb testing.TB) *gorm.DB {
	tb.Helper()

	db, err := database.Open(config.DB{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	})
	if err != nil {
		tb.Fatalf("无法连接到内存数据库: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		tb.Fatalf("数据库迁移失败: %v", err)
	}

	tb.Cleanup(func() {
		_ = database.Close(db)
	})
	return db
}
