// Package db wires the Postgres connection the archiver's queue and
// persister packages write through.
package db

import (
	"fmt"
	"time"

	"github.com/techresidents/archivesvc/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens a pooled connection and sets the pool limits the archiver
// ships with. dsn is the pre-built connection string (Config.DBConnection).
func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(4)
	sqlDB.SetMaxOpenConns(16)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return gdb, nil
}

// Migrate auto-migrates the job queue and persister's tables plus their
// lookup tables, and seeds the lookup rows the persister resolves against.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		return fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
	}

	if err := gdb.AutoMigrate(
		&models.ArchiveJob{},
		&models.ChatArchiveType{},
		&models.MimeType{},
		&models.ChatArchive{},
		&models.ChatArchiveUser{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}

	return seedLookupTables(gdb)
}

func seedLookupTables(gdb *gorm.DB) error {
	types := []models.ChatArchiveType{
		{Name: "USER_VIDEO"},
		{Name: "USER_AUDIO"},
		{Name: "STITCHED_AUDIO"},
	}
	for _, t := range types {
		if err := gdb.Where("name = ?", t.Name).FirstOrCreate(&t).Error; err != nil {
			return fmt.Errorf("failed to seed chat archive type %s: %w", t.Name, err)
		}
	}

	mimeTypes := []models.MimeType{
		{Extension: ".mp3", Value: "audio/mpeg"},
		{Extension: ".mp4", Value: "video/mp4"},
		{Extension: ".png", Value: "image/png"},
		{Extension: ".wav", Value: "audio/wav"},
	}
	for _, m := range mimeTypes {
		if err := gdb.Where("extension = ?", m.Extension).FirstOrCreate(&m).Error; err != nil {
			return fmt.Errorf("failed to seed mime type %s: %w", m.Extension, err)
		}
	}

	return nil
}
