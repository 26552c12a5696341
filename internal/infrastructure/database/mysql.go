package database

import (
	"fmt"
	"log"
	"time"

	"ewallet/internal/config"
	"ewallet/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitMySQL 初始化 MySQL 连接并迁移表结构
func InitMySQL(cfg *config.MySQLConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: newLogger(cfg.LogLevel),
		// 唯一键冲突翻译为 gorm.ErrDuplicatedKey，用于幂等判断
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 DB 失败: %w", err)
	}

	// 连接池配置
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Println("[Database] MySQL 连接成功")
	return db, nil
}

// Migrate 自动迁移表结构
// 客户账号从 1001 开始自增，1000 为手续费归集账户的固定账号
func Migrate(db *gorm.DB) error {
	err := db.Set("gorm:table_options", fmt.Sprintf("AUTO_INCREMENT=%d", model.CustomerAccountStart)).
		AutoMigrate(&model.Account{})
	if err != nil {
		return fmt.Errorf("迁移账户表失败: %w", err)
	}

	err = db.AutoMigrate(
		&model.Transaction{},
		&model.GatewayTransaction{},
		&model.OutboxMessage{},
	)
	if err != nil {
		return fmt.Errorf("自动迁移表结构失败: %w", err)
	}
	return nil
}

func newLogger(level string) logger.Interface {
	var logLevel logger.LogLevel
	switch level {
	case "info":
		logLevel = logger.Info
	case "error":
		logLevel = logger.Error
	case "silent":
		logLevel = logger.Silent
	default:
		logLevel = logger.Warn
	}
	return logger.Default.LogMode(logLevel)
}
