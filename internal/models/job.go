// Package models holds the gorm-mapped tables the archive pipeline reads
// and writes: the job queue's lease table and the persisted artifact
// tables, plus their lookup tables.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ArchiveJob is one row of the jobs table. A row with owner/start unset
// is eligible for lease; successful is nil until the job terminates.
type ArchiveJob struct {
	ID               string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	SessionID        int64  `gorm:"not null;index"`
	Owner            *string
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	NotBefore        *time.Time
	StartTime        *time.Time
	EndTime          *time.Time
	Successful       *bool
	RetriesRemaining int
	Data             []byte
}

func (ArchiveJob) TableName() string {
	return "jobs"
}

// BeforeCreate assigns a UUID when the caller hasn't set one, covering
// sqlite/test paths where the Postgres default expression isn't available.
func (j *ArchiveJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	return nil
}

// ChatArchiveType is a lookup table mapping a stream type name to its id.
type ChatArchiveType struct {
	ID   int    `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;not null"`
}

func (ChatArchiveType) TableName() string {
	return "chat_archive_types"
}

// MimeType is a lookup table mapping a file extension to its mime type id.
type MimeType struct {
	ID        int    `gorm:"primaryKey"`
	Extension string `gorm:"uniqueIndex;not null"`
	Value     string `gorm:"not null"`
}

func (MimeType) TableName() string {
	return "mime_types"
}

// ChatArchive is one persisted artifact row: one per ArchiveStream kept
// by the persister. Path is globally unique; a duplicate insert is the
// idempotence signal for a re-run.
type ChatArchive struct {
	ID         string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	SessionID  int64  `gorm:"not null;index"`
	TypeID     int    `gorm:"not null"`
	Type       ChatArchiveType `gorm:"foreignKey:TypeID"`
	Path       string `gorm:"uniqueIndex;not null"`
	MimeTypeID int    `gorm:"not null"`
	MimeType   MimeType `gorm:"foreignKey:MimeTypeID"`
	Public     bool     `gorm:"not null"`
	LengthMS   *int
	OffsetMS   int `gorm:"not null;default:0"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (ChatArchive) TableName() string {
	return "chat_archives"
}

func (c *ChatArchive) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// ChatArchiveUser links a ChatArchive row to every user id present on the
// underlying ArchiveStream.
type ChatArchiveUser struct {
	UserID        int64  `gorm:"primaryKey"`
	ChatArchiveID string `gorm:"primaryKey;type:uuid"`
}

func (ChatArchiveUser) TableName() string {
	return "chat_archive_users"
}
