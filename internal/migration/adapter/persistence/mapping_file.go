package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"ckan-migrate/internal/migration/domain/model"
	"ckan-migrate/internal/migration/domain/repository"
	"ckan-migrate/internal/shared/errors"
	"ckan-migrate/internal/shared/logger"

	"github.com/google/uuid"
)

// mappingEntry is the on-disk shape of one identity mapping.
type mappingEntry struct {
	TargetID string              `json:"target_id"`
	Status   model.MappingStatus `json:"status"`
}

// mappingFile is the on-disk shape of the whole store:
// kind → source ID → entry.
type mappingFile map[model.EntityKind]map[string]mappingEntry

// FileMappingStore keeps the identity mapping in memory and persists it as a
// JSON file. Writes go to a temp file first and are renamed into place so a
// crash mid-write never corrupts the previous mapping.
type FileMappingStore struct {
	path string
	log  logger.Logger

	mu      sync.RWMutex
	entries mappingFile
}

// NewFileMappingStore creates a store persisting to path. Call Load before
// first use.
func NewFileMappingStore(path string, log logger.Logger) *FileMappingStore {
	return &FileMappingStore{
		path:    path,
		log:     log.WithComponent("mapping-store"),
		entries: make(mappingFile),
	}
}

var _ repository.MappingStore = (*FileMappingStore)(nil)

// Load reads the persisted mapping. A missing file starts an empty mapping;
// unparseable content is a run-fatal corrupt-mapping error because
// continuing could duplicate entities on the target.
func (s *FileMappingStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.entries = make(mappingFile)
		s.log.Infof("no mapping file at %s, starting empty", s.path)
		return nil
	}
	if err != nil {
		return errors.NewCorruptMappingError(fmt.Sprintf("cannot read mapping file %s", s.path)).WithCause(err)
	}

	entries := make(mappingFile)
	if err := json.Unmarshal(data, &entries); err != nil {
		return errors.NewCorruptMappingError(fmt.Sprintf("malformed mapping file %s", s.path)).WithCause(err)
	}

	s.entries = entries
	s.log.Infof("loaded identity mapping with %d entries", s.countLocked())
	return nil
}

// Lookup returns the mapping for (kind, sourceID) if one was recorded.
func (s *FileMappingStore) Lookup(kind model.EntityKind, sourceID string) (model.IdentityMapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[kind][sourceID]
	if !ok {
		return model.IdentityMapping{}, false
	}
	return model.IdentityMapping{
		Kind:     kind,
		SourceID: sourceID,
		TargetID: entry.TargetID,
		Status:   entry.Status,
	}, true
}

// Record stores a mapping. Overwriting an authoritative mapping with a
// different target ID is refused: that only happens on buggy re-runs and
// silently accepting it would detach entities already migrated.
func (s *FileMappingStore) Record(kind model.EntityKind, sourceID, targetID string, status model.MappingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[kind][sourceID]; ok {
		authoritative := existing.Status == model.StatusCreated || existing.Status == model.StatusMatchedExisting
		if authoritative && existing.TargetID != targetID {
			return errors.NewDuplicateMappingError(fmt.Sprintf(
				"mapping for %s %s already points at %s, refusing to overwrite with %s",
				kind, sourceID, existing.TargetID, targetID))
		}
	}

	if s.entries[kind] == nil {
		s.entries[kind] = make(map[string]mappingEntry)
	}
	s.entries[kind][sourceID] = mappingEntry{TargetID: targetID, Status: status}
	return nil
}

// Persist writes the full mapping set atomically.
func (s *FileMappingStore) Persist() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.entries, "", "  ")
	count := s.countLocked()
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create mapping dir: %w", err)
		}
	}

	tmp := fmt.Sprintf("%s.%s.tmp", s.path, uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write mapping temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace mapping file: %w", err)
	}

	s.log.Debugf("persisted identity mapping with %d entries", count)
	return nil
}

func (s *FileMappingStore) countLocked() int {
	n := 0
	for _, byID := range s.entries {
		n += len(byID)
	}
	return n
}
