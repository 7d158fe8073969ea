package persistence

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"ckan-migrate/internal/migration/domain/model"
	"ckan-migrate/internal/migration/domain/repository"
	"ckan-migrate/internal/shared/logger"

	"github.com/google/uuid"
)

const (
	orgSubdir     = "organizations"
	datasetSubdir = "datasets"
)

// FSStagingStore caches fetched metadata and resource files under a local
// directory so re-runs never re-download what is already on disk:
//
//	<root>/organizations/<id>.json
//	<root>/datasets/<id>.json
//	<root>/datasets/<id>/<resourceID>.<ext>
//
// It never deletes anything; cleanup is an operational concern.
type FSStagingStore struct {
	root string
	log  logger.Logger
}

// NewFSStagingStore creates the staging directory tree under root.
func NewFSStagingStore(root string, log logger.Logger) (*FSStagingStore, error) {
	for _, dir := range []string{root, filepath.Join(root, orgSubdir), filepath.Join(root, datasetSubdir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create staging dir %s: %w", dir, err)
		}
	}
	return &FSStagingStore{root: root, log: log.WithComponent("staging-store")}, nil
}

var _ repository.StagingStore = (*FSStagingStore)(nil)

func (s *FSStagingStore) metadataPath(kind model.EntityKind, id string) string {
	subdir := datasetSubdir
	if kind == model.KindOrganization {
		subdir = orgSubdir
	}
	return filepath.Join(s.root, subdir, id+".json")
}

// PutMetadata stages entity metadata as indented JSON.
func (s *FSStagingStore) PutMetadata(kind model.EntityKind, id string, payload interface{}) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s %s metadata: %w", kind, id, err)
	}
	return os.WriteFile(s.metadataPath(kind, id), data, 0o644)
}

// GetMetadata loads staged metadata. A missing or unreadable entry is a
// cache miss, never an error: the caller re-fetches from the source.
func (s *FSStagingStore) GetMetadata(kind model.EntityKind, id string, out interface{}) (bool, error) {
	data, err := os.ReadFile(s.metadataPath(kind, id))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.log.Warnf("staged metadata for %s %s is unreadable, refetching: %v", kind, id, err)
		return false, nil
	}
	return true, nil
}

func (s *FSStagingStore) resourcePath(datasetID, resourceID, ext string) string {
	return filepath.Join(s.root, datasetSubdir, datasetID, resourceID+"."+ext)
}

// StageResourceFile streams a resource blob to disk and returns its path.
// The write goes through a temp file so an interrupted download never leaves
// a truncated blob that a resume would trust.
func (s *FSStagingStore) StageResourceFile(datasetID, resourceID, ext string, r io.Reader) (string, error) {
	dir := filepath.Join(s.root, datasetSubdir, datasetID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create resource dir %s: %w", dir, err)
	}

	path := s.resourcePath(datasetID, resourceID, ext)
	tmp := fmt.Sprintf("%s.%s.tmp", path, uuid.NewString())

	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create staging file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("stage resource %s: %w", resourceID, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close staging file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("finalize staging file: %w", err)
	}

	s.log.Debugf("staged resource %s at %s", resourceID, path)
	return path, nil
}

// ResourceFilePath reports whether a resource blob is already staged.
func (s *FSStagingStore) ResourceFilePath(datasetID, resourceID, ext string) (string, bool) {
	path := s.resourcePath(datasetID, resourceID, ext)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

// OpenResourceFile opens a staged blob for upload.
func (s *FSStagingStore) OpenResourceFile(path string) (io.ReadCloser, error) {
	return os.Open(path)
}
