package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jack/golang-shortlink-service/internal/model"
)

// MemoryRepository is a mutex-guarded in-memory record store with the same
// atomicity contract as the Postgres adapter. Used in tests and local runs.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[string]*model.ShortcodeRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]*model.ShortcodeRecord),
	}
}

func (m *MemoryRepository) InsertRecord(ctx context.Context, record *model.ShortcodeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[record.Code]; exists {
		return ErrDuplicateCode
	}

	record.ID = uuid.NewString()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	record.IsActive = true

	stored := cloneRecord(record)
	m.records[record.Code] = stored
	return nil
}

func (m *MemoryRepository) GetByCode(ctx context.Context, code string) (*model.ShortcodeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, exists := m.records[code]
	if !exists {
		return nil, ErrCodeNotFound
	}

	return cloneRecord(record), nil
}

func (m *MemoryRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.records[code]
	return exists, nil
}

func (m *MemoryRepository) RecordClick(ctx context.Context, code string, event model.ClickEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, exists := m.records[code]
	if !exists || !record.IsResolvable() {
		return ErrCodeNotFound
	}

	record.ClickCount++
	record.ClickHistory = model.AppendClick(record.ClickHistory, event)
	return nil
}

func (m *MemoryRepository) Deactivate(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, exists := m.records[code]
	if !exists {
		return ErrCodeNotFound
	}

	record.IsActive = false
	return nil
}

func (m *MemoryRepository) DeactivateExpired(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var codes []string
	for code, record := range m.records {
		if record.IsActive && record.ExpiresAt.Before(now) {
			record.IsActive = false
			codes = append(codes, code)
		}
	}

	return codes, nil
}

func (m *MemoryRepository) Health(ctx context.Context) error {
	return nil
}

func cloneRecord(record *model.ShortcodeRecord) *model.ShortcodeRecord {
	clone := *record
	clone.ClickHistory = make([]model.ClickEvent, len(record.ClickHistory))
	copy(clone.ClickHistory, record.ClickHistory)
	return &clone
}
