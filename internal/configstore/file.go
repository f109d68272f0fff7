package configstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileRepository stores the accounts config as a JSON file on disk.
type FileRepository struct {
	path string
}

func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

// Load reads the config file. A missing file yields an empty config so a
// fresh deployment starts cleanly. Headless defaults to true; a settings
// block that omits it must not silently force a visible browser.
func (r *FileRepository) Load(_ context.Context) (*Config, error) {
	cfg := Config{
		Accounts: []AccountConfig{},
		Settings: Settings{Headless: true},
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("read accounts config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse accounts config: %w", err)
	}
	return &cfg, nil
}

// Save writes the config atomically via a temp file and rename, so a
// crash mid-write never leaves a truncated accounts file behind.
func (r *FileRepository) Save(_ context.Context, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode accounts config: %w", err)
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".accounts-*.json")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp config: %w", err)
	}

	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace accounts config: %w", err)
	}
	return nil
}
