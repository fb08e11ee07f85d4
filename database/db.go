package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ovozber-backend/config"
	"ovozber-backend/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open 按配置连接数据库（mysql 或 sqlite）
func Open(cfg config.DatabaseConfig, log *slog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}

	log.Info("连接数据库", "driver", cfg.Driver)
	db, err := gorm.Open(dialector, gormConfig(log, cfg.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库连接池失败: %w", err)
	}
	if cfg.Driver == "sqlite" {
		// sqlite 只允许单写者
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	return db, nil
}

// OpenInMemory 打开一个命名的内存 sqlite 库，同名连接共享数据
func OpenInMemory(name string, log *slog.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(log, "silent"))
	if err != nil {
		return nil, fmt.Errorf("打开内存数据库失败: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库连接池失败: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func gormConfig(log *slog.Logger, level string) *gorm.Config {
	return &gorm.Config{
		Logger: logger.New(
			slog.NewLogLogger(log.Handler(), slog.LevelInfo),
			logger.Config{
				SlowThreshold:             time.Second, // 慢SQL阈值
				LogLevel:                  gormLogLevel(level),
				IgnoreRecordNotFoundError: true,
				ParameterizedQueries:      true,
				Colorful:                  false,
			},
		),
		TranslateError: true,
	}
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// Migrate 自动迁移全部模型
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Channel{},
		&models.Poll{},
		&models.Region{},
		&models.District{},
		&models.Candidate{},
		&models.Vote{},
	)
	if err != nil {
		return fmt.Errorf("迁移模型失败: %w", err)
	}
	return nil
}

// SeedSampleData 创建示例数据，库中已有投票时跳过
func SeedSampleData(ctx context.Context, db *gorm.DB, log *slog.Logger) error {
	var count int64
	if err := db.WithContext(ctx).Model(&models.Poll{}).Count(&count).Error; err != nil {
		return fmt.Errorf("统计投票失败: %w", err)
	}
	if count > 0 {
		log.Info("数据库已有数据，跳过示例数据创建")
		return nil
	}

	log.Info("创建示例数据")
	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(7 * 24 * time.Hour)

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		channel := models.Channel{
			ChannelID:       "-1001234567890",
			ChannelUsername: "ovozber_news",
			Title:           "Ovozber yangiliklari",
			IsActive:        true,
		}
		if err := tx.Create(&channel).Error; err != nil {
			return fmt.Errorf("创建示例频道失败: %w", err)
		}

		poll := models.Poll{
			Title:       "Yilning eng yaxshi mahalla raisi",
			Description: "Hududingizdagi eng faol mahalla raisiga ovoz bering",
			StartDate:   &start,
			EndDate:     &end,
			IsActive:    true,
		}
		if err := tx.Create(&poll).Error; err != nil {
			return fmt.Errorf("创建示例投票失败: %w", err)
		}

		geography := []struct {
			region    string
			districts []string
		}{
			{"Toshkent shahri", []string{"Chilonzor", "Yunusobod"}},
			{"Samarqand viloyati", []string{"Urgut", "Kattaqo'rg'on"}},
		}
		for order, g := range geography {
			region := models.Region{PollID: poll.ID, Name: g.region, IsActive: true, Order: order + 1}
			if err := tx.Create(&region).Error; err != nil {
				return fmt.Errorf("创建示例地区失败: %w", err)
			}
			for i, districtName := range g.districts {
				district := models.District{RegionID: region.ID, Name: districtName, IsActive: true, Order: i + 1}
				if err := tx.Create(&district).Error; err != nil {
					return fmt.Errorf("创建示例区县失败: %w", err)
				}
				for j := 1; j <= 2; j++ {
					candidate := models.Candidate{
						PollID:     poll.ID,
						DistrictID: &district.ID,
						FullName:   fmt.Sprintf("%s nomzodi %d", districtName, j),
						Position:   "Mahalla raisi",
						IsActive:   true,
						Order:      j,
					}
					if err := tx.Create(&candidate).Error; err != nil {
						return fmt.Errorf("创建示例候选人失败: %w", err)
					}
				}
			}
		}

		log.Info("示例数据创建成功", "poll_id", poll.ID)
		return nil
	})
}

// Close 关闭数据库连接
func Close(db *gorm.DB, log *slog.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Error("获取数据库连接失败", "error", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Error("关闭数据库连接失败", "error", err)
		return
	}
	log.Info("数据库连接已关闭")
}
