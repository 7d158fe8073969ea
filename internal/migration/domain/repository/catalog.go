package repository

import (
	"context"
	"io"

	"ckan-migrate/internal/migration/domain/model"
)

// EntityFilter is an explicit name/ID selection. An empty filter selects
// everything; a non-empty filter short-circuits listing so only the named
// entities are fetched.
type EntityFilter struct {
	Names []string
}

// Empty reports whether the filter selects the whole catalog.
func (f EntityFilter) Empty() bool {
	return len(f.Names) == 0
}

// CatalogSource reads entity metadata and file content from the source
// instance.
type CatalogSource interface {
	// ListOrganizations returns organization identifiers. With a filter,
	// the filter entries are returned as-is (CKAN show endpoints accept
	// both names and IDs) and missing entities surface as not-found on
	// fetch.
	ListOrganizations(ctx context.Context, filter EntityFilter) ([]string, error)

	FetchOrganization(ctx context.Context, id string) (*model.Organization, error)

	// ListDatasets pages through the full dataset listing in bounded
	// pages until exhaustion, or short-circuits to the filter entries.
	ListDatasets(ctx context.Context, filter EntityFilter) ([]string, error)

	// ListDatasetsForOrganization returns the dataset identifiers owned
	// by one organization.
	ListDatasetsForOrganization(ctx context.Context, orgID string) ([]string, error)

	FetchDataset(ctx context.Context, id string) (*model.Dataset, error)

	// FetchResourceFile streams the resource's file blob. The caller owns
	// closing the reader.
	FetchResourceFile(ctx context.Context, res *model.Resource) (io.ReadCloser, error)
}

// PublishResult is the explicit outcome of a publish call: either the entity
// was created on the target or an existing one was matched by name.
type PublishResult struct {
	TargetID string
	Status   model.MappingStatus
}

// FileOpener re-opens a staged file. Uploads take an opener rather than a
// reader so every retry attempt streams the file from the start.
type FileOpener func() (io.ReadCloser, error)

// CatalogTarget creates entities on the target instance, classifying the
// API's responses instead of relying on error unwinding for expected
// outcomes (409 resolves to the existing identity, 404 goes through the
// compatibility shim).
type CatalogTarget interface {
	// CheckInstance verifies the target is reachable and returns its
	// advertised CKAN version.
	CheckInstance(ctx context.Context) (string, error)

	EnsureOrganization(ctx context.Context, org *model.Organization) (PublishResult, error)

	// EnsureDataset publishes a dataset owned by the already-translated
	// target organization ID (empty for unowned datasets).
	EnsureDataset(ctx context.Context, ds *model.Dataset, targetOrgID string) (PublishResult, error)

	// AttachResource uploads the staged file and attaches it to the
	// target dataset using chunked transfer.
	AttachResource(ctx context.Context, res *model.Resource, targetDatasetID string, open FileOpener) (PublishResult, error)
}

// MappingStore is the persistent source-to-target identity mapping. It is
// what makes re-runs idempotent: any entity already mapped is skipped
// instead of re-created.
type MappingStore interface {
	// Load reconstructs the mapping from disk. A missing file yields an
	// empty mapping; malformed content yields a corrupt-mapping error.
	Load() error

	Lookup(kind model.EntityKind, sourceID string) (model.IdentityMapping, bool)

	// Record stores a mapping. Recording a different target ID over an
	// authoritative mapping fails with a duplicate-mapping error.
	Record(kind model.EntityKind, sourceID, targetID string, status model.MappingStatus) error

	// Persist atomically rewrites the mapping file.
	Persist() error
}

// StagingStore is the local on-disk cache of fetched metadata and resource
// files. Absence is never an error, only a signal to re-fetch. Nothing is
// ever evicted during or between runs.
type StagingStore interface {
	PutMetadata(kind model.EntityKind, id string, payload interface{}) error

	// GetMetadata loads staged metadata into out, reporting whether it
	// was present.
	GetMetadata(kind model.EntityKind, id string, out interface{}) (bool, error)

	// StageResourceFile persists a resource blob and returns its local
	// path.
	StageResourceFile(datasetID, resourceID, ext string, r io.Reader) (string, error)

	// ResourceFilePath reports where a previously staged blob lives.
	ResourceFilePath(datasetID, resourceID, ext string) (string, bool)

	OpenResourceFile(path string) (io.ReadCloser, error)
}
