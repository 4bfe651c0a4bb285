package db

import (
	"context"
	"encoding/json"
	"sync"

	"calendar-sync/internal/models"
)

// MemorySink keeps the last saved snapshot in process memory.
type MemorySink struct {
	mu   sync.Mutex
	data []byte
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Load(context.Context) (models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var snapshot models.Snapshot
	if m.data == nil {
		return snapshot, nil
	}
	err := json.Unmarshal(m.data, &snapshot)
	return snapshot, err
}

func (m *MemorySink) Save(_ context.Context, snapshot models.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
	return nil
}

func (m *MemorySink) Close() error { return nil }
