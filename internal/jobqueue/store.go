package jobqueue

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/techresidents/archivesvc/internal/models"
	"gorm.io/gorm"
)

// Store is the persistence contract the job queue leases through. Its
// gorm-backed implementation is the one wired in production; an
// in-memory implementation backs queue tests without a database.
type Store interface {
	Insert(job *models.ArchiveJob) error
	// Eligible returns up to limit rows matching the eligibility predicate
	// (owner IS NULL AND start IS NULL AND (not_before IS NULL OR
	// not_before <= now)), ordered by created ascending.
	Eligible(now time.Time, limit int) ([]*models.ArchiveJob, error)
	Get(id string) (*models.ArchiveJob, error)
	// Claim performs the single atomic conditional update lease
	// acquisition. The bool result is the updated-row-count > 0 check.
	Claim(id, owner string, now time.Time) (bool, error)
	Finalize(id string, now time.Time, successful bool) error
}

// GormStore is the Postgres-backed Store, implementing the exact
// conditional UPDATE lease described in the job queue's component design.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Insert(job *models.ArchiveJob) error {
	return s.db.Create(job).Error
}

func (s *GormStore) Eligible(now time.Time, limit int) ([]*models.ArchiveJob, error) {
	var jobs []*models.ArchiveJob
	err := s.db.
		Where("owner IS NULL AND start_time IS NULL AND (not_before IS NULL OR not_before <= ?)", now).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

func (s *GormStore) Get(id string) (*models.ArchiveJob, error) {
	var job models.ArchiveJob
	err := s.db.First(&job, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Claim issues the lease's atomic conditional update:
//
//	UPDATE jobs SET owner=:me, start=:now
//	WHERE id=:id AND owner IS NULL AND start IS NULL
func (s *GormStore) Claim(id, owner string, now time.Time) (bool, error) {
	result := s.db.Model(&models.ArchiveJob{}).
		Where("id = ? AND owner IS NULL AND start_time IS NULL", id).
		Updates(map[string]interface{}{"owner": owner, "start_time": now})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *GormStore) Finalize(id string, now time.Time, successful bool) error {
	return s.db.Model(&models.ArchiveJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"end_time": now, "successful": successful}).Error
}

// MemoryStore is a fake Store behind the same interface, used by queue
// tests that don't need a real database.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*models.ArchiveJob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*models.ArchiveJob)}
}

func (s *MemoryStore) Insert(job *models.ArchiveJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == "" {
		job.ID = newMemoryID()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	cp := *job
	s.jobs[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) Eligible(now time.Time, limit int) ([]*models.ArchiveJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.ArchiveJob
	for _, j := range s.jobs {
		if j.Owner != nil || j.StartTime != nil {
			continue
		}
		if j.NotBefore != nil && j.NotBefore.After(now) {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Get(id string) (*models.ArchiveJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *MemoryStore) Claim(id, owner string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return false, nil
	}
	if j.Owner != nil || j.StartTime != nil {
		return false, nil
	}
	o := owner
	t := now
	j.Owner = &o
	j.StartTime = &t
	return true, nil
}

func (s *MemoryStore) Finalize(id string, now time.Time, successful bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	t := now
	b := successful
	j.EndTime = &t
	j.Successful = &b
	return nil
}

var memoryIDCounter int64
var memoryIDMu sync.Mutex

func newMemoryID() string {
	memoryIDMu.Lock()
	defer memoryIDMu.Unlock()
	memoryIDCounter++
	return "mem-" + strconv.FormatInt(memoryIDCounter, 10)
}
