package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Enrollment records one capture the server confirmed as stored.
type Enrollment struct {
	ID        uint   `gorm:"primaryKey"`
	CaptureID int64  `gorm:"index"`
	Name      string `gorm:"size:255"`
	Mail      string `gorm:"size:255"`
	Endpoint  string `gorm:"size:64"`
	CreatedAt time.Time
}

type Journal interface {
	Record(ctx context.Context, e Enrollment) error
	// Recent returns at most limit enrollments, newest first.
	Recent(ctx context.Context, limit int) ([]Enrollment, error)
	Close() error
}

// Nop drops every record.
type Nop struct{}

func (Nop) Record(context.Context, Enrollment) error          { return nil }
func (Nop) Recent(context.Context, int) ([]Enrollment, error) { return nil, nil }
func (Nop) Close() error                                      { return nil }

// DB writes enrollments to Postgres through gorm.
type DB struct {
	db *gorm.DB
}

func Open(dsn string) (*DB, error) {
	db, err := open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if err := db.db.AutoMigrate(&Enrollment{}); err != nil {
		return nil, fmt.Errorf("journal migrate: %w", err)
	}
	return db, nil
}

func open(dialector gorm.Dialector, cfg *gorm.Config) (*DB, error) {
	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("journal open: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Record(ctx context.Context, e Enrollment) error {
	if err := d.db.WithContext(ctx).Create(&e).Error; err != nil {
		return fmt.Errorf("journal record %d: %w", e.CaptureID, err)
	}
	return nil
}

func (d *DB) Recent(ctx context.Context, limit int) ([]Enrollment, error) {
	var out []Enrollment
	if err := recent(d.db.WithContext(ctx), limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("journal recent: %w", err)
	}
	return out, nil
}

func recent(tx *gorm.DB, limit int) *gorm.DB {
	return tx.Order("created_at desc, id desc").Limit(limit)
}

func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Memory keeps enrollments in a slice. It is the journal when no DSN is
// configured.
type Memory struct {
	mu      sync.Mutex
	entries []Enrollment
}

func (m *Memory) Record(_ context.Context, e Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Enrollment, 0, min(limit, len(m.entries)))
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *Memory) Entries() []Enrollment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Enrollment(nil), m.entries...)
}

func (m *Memory) Close() error { return nil }
