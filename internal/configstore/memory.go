package configstore

import (
	"context"
	"sync"
)

// MemoryRepository is an in-memory Repository for tests and dry runs.
type MemoryRepository struct {
	mu  sync.Mutex
	cfg *Config
}

func NewMemoryRepository(cfg *Config) *MemoryRepository {
	if cfg == nil {
		cfg = &Config{Accounts: []AccountConfig{}}
	}
	return &MemoryRepository{cfg: cfg}
}

func (r *MemoryRepository) Load(_ context.Context) (*Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *r.cfg
	clone.Accounts = append([]AccountConfig(nil), r.cfg.Accounts...)
	return &clone, nil
}

func (r *MemoryRepository) Save(_ context.Context, cfg *Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *cfg
	clone.Accounts = append([]AccountConfig(nil), cfg.Accounts...)
	r.cfg = &clone
	return nil
}
