package persister

import (
	"errors"
	"sync"

	"github.com/techresidents/archivesvc/internal/models"
	"gorm.io/gorm"
)

// ErrDuplicatePath is returned by InsertAll when a ChatArchive row with
// the same path already exists; the persister surfaces this as a
// PersisterError.
var ErrDuplicatePath = errors.New("chat archive path already exists")

// Record pairs a ChatArchive row with the user ids to link via
// ChatArchiveUser.
type Record struct {
	Archive *models.ChatArchive
	UserIDs []int64
}

// Store is the persistence contract the persister writes through.
type Store interface {
	LookupTypeID(name string) (int, error)
	LookupMimeTypeID(extension string) (int, error)
	// InsertAll inserts every record's ChatArchive row plus its
	// ChatArchiveUser rows as a single transaction. Any duplicate path
	// rolls back the whole batch and returns ErrDuplicatePath.
	InsertAll(records []Record) error
}

// GormStore is the Postgres-backed Store.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) LookupTypeID(name string) (int, error) {
	var t models.ChatArchiveType
	if err := s.db.Where("name = ?", name).First(&t).Error; err != nil {
		return 0, err
	}
	return t.ID, nil
}

func (s *GormStore) LookupMimeTypeID(extension string) (int, error) {
	var m models.MimeType
	if err := s.db.Where("extension = ?", extension).First(&m).Error; err != nil {
		return 0, err
	}
	return m.ID, nil
}

func (s *GormStore) InsertAll(records []Record) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, record := range records {
			var existing models.ChatArchive
			err := tx.Where("path = ?", record.Archive.Path).First(&existing).Error
			if err == nil {
				return ErrDuplicatePath
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			if err := tx.Create(record.Archive).Error; err != nil {
				return err
			}
			for _, userID := range record.UserIDs {
				row := &models.ChatArchiveUser{UserID: userID, ChatArchiveID: record.Archive.ID}
				if err := tx.Create(row).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// MemoryStore is a fake Store used by persister tests without a
// database, seeded with the lookup tables' contents.
type MemoryStore struct {
	mu        sync.Mutex
	types     map[string]int
	mimeTypes map[string]int
	archives  map[string]*models.ChatArchive
	users     map[string][]int64
}

// NewMemoryStore seeds the same ChatArchiveType/MimeType lookup rows the
// production migration creates.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		types: map[string]int{
			"USER_VIDEO":     1,
			"USER_AUDIO":     2,
			"STITCHED_AUDIO": 3,
		},
		mimeTypes: map[string]int{
			".mp3": 1,
			".mp4": 2,
			".png": 3,
			".wav": 4,
		},
		archives: make(map[string]*models.ChatArchive),
		users:    make(map[string][]int64),
	}
}

func (s *MemoryStore) LookupTypeID(name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.types[name]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	return id, nil
}

func (s *MemoryStore) LookupMimeTypeID(extension string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.mimeTypes[extension]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	return id, nil
}

func (s *MemoryStore) InsertAll(records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range records {
		if _, exists := s.archives[record.Archive.Path]; exists {
			return ErrDuplicatePath
		}
	}

	for _, record := range records {
		if record.Archive.ID == "" {
			record.Archive.ID = "mem-archive-" + record.Archive.Path
		}
		cp := *record.Archive
		s.archives[cp.Path] = &cp
		s.users[cp.ID] = append([]int64(nil), record.UserIDs...)
	}
	return nil
}

// ArchivesBySession returns every archive inserted for a session, for
// test assertions.
func (s *MemoryStore) ArchivesBySession(sessionID int64) []*models.ChatArchive {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.ChatArchive
	for _, a := range s.archives {
		if a.SessionID == sessionID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}

// UsersForArchive returns the user ids linked to an archive row, for
// test assertions.
func (s *MemoryStore) UsersForArchive(archiveID string) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.users[archiveID]...)
}
