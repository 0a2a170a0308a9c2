package db

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pokerjest/modlistAutoTool/internal/model"
	"gorm.io/gorm"
)

var DB *gorm.DB

// CurrentDBPath 当前打开的状态库路径 (":memory:" 时为空操作对象)
var CurrentDBPath string

// InitDB opens the state database and migrates the schema.
// 状态库损坏不是致命错误：把坏文件挪到一边从空库重来，resume 尽力而为
func InitDB(storagePath string) error {
	if storagePath != ":memory:" {
		dir := filepath.Dir(storagePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	if err := open(storagePath); err != nil {
		if storagePath == ":memory:" {
			return err
		}

		// 备份坏库再重建
		backupPath := fmt.Sprintf("%s.corrupt.%d", storagePath, time.Now().Unix())
		log.Printf("WARNING: state database unreadable (%v), moving it to %s and starting empty", err, backupPath)
		if mvErr := os.Rename(storagePath, backupPath); mvErr != nil {
			return fmt.Errorf("failed to move corrupt state database: %w", mvErr)
		}
		if err := open(storagePath); err != nil {
			return fmt.Errorf("failed to recreate state database: %w", err)
		}
	}

	CurrentDBPath = storagePath
	return nil
}

func open(storagePath string) error {
	var err error
	DB, err = gorm.Open(sqlite.Open(storagePath), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	// 自动迁移模式
	if err := DB.AutoMigrate(&model.DownloadState{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func CloseDB() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
