package main

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

// FileRegistryStore persists the entity identifiers published per
// presentation domain, so a later version with a different schema can
// prune the series this one created.
type FileRegistryStore struct {
	path   string
	logger *zap.SugaredLogger

	mu       sync.Mutex
	entities map[string][]string
}

func NewFileRegistryStore(path string, logger *zap.SugaredLogger) (*FileRegistryStore, error) {
	s := &FileRegistryStore{
		path:     path,
		logger:   logger,
		entities: make(map[string][]string),
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Infow("no entity registry file yet", "path", path)
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(content, &s.entities); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileRegistryStore) List() (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	listed := make(map[string][]string, len(s.entities))
	for domain, ids := range s.entities {
		listed[domain] = slices.Clone(ids)
	}
	return listed, nil
}

// RecordEntity registers an identifier as published by the current run.
func (s *FileRegistryStore) RecordEntity(domain, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.Contains(s.entities[domain], id) {
		return nil
	}
	s.entities[domain] = append(s.entities[domain], id)
	return s.save()
}

func (s *FileRegistryStore) Remove(domain, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.Index(s.entities[domain], id)
	if idx == -1 {
		return nil
	}
	s.entities[domain] = slices.Delete(s.entities[domain], idx, idx+1)
	return s.save()
}

func (s *FileRegistryStore) save() error {
	content, err := json.MarshalIndent(s.entities, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, content, 0o644)
}
