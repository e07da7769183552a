package kvstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

type filePayload struct {
	Strings map[string]string `json:"strings"`
	Ints    map[string]int64  `json:"ints"`
}

// File is a JSON-file-backed store. Every mutation rewrites the file
// through a temp-file rename so a crash never leaves a torn payload.
type File struct {
	mu     sync.Mutex
	path   string
	logger zerolog.Logger
	data   filePayload
}

// NewFile opens or creates the store file at path.
func NewFile(path string, logger zerolog.Logger) (*File, error) {
	f := &File{
		path:   path,
		logger: logger.With().Str("component", "kvstore").Logger(),
		data: filePayload{
			Strings: make(map[string]string),
			Ints:    make(map[string]int64),
		},
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}
	if err := json.Unmarshal(raw, &f.data); err != nil {
		return nil, fmt.Errorf("failed to parse store file: %w", err)
	}
	if f.data.Strings == nil {
		f.data.Strings = make(map[string]string)
	}
	if f.data.Ints == nil {
		f.data.Ints = make(map[string]int64)
	}
	return f, nil
}

func (f *File) GetString(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data.Strings[key], nil
}

func (f *File) SetString(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data.Strings[key] = value
	return f.flushLocked()
}

func (f *File) GetInt64(key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data.Ints[key], nil
}

func (f *File) SetInt64(key string, value int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data.Ints[key] = value
	return f.flushLocked()
}

func (f *File) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data.Strings, key)
	delete(f.data.Ints, key)
	return f.flushLocked()
}

func (f *File) flushLocked() error {
	raw, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store payload: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}
