package usecase_test

import (
	"context"
	"io"
	"strings"

	"ckan-migrate/internal/migration/domain/model"
	"ckan-migrate/internal/migration/domain/repository"
	"ckan-migrate/internal/shared/errors"
	"ckan-migrate/internal/shared/logger"
)

// MockLogger discards everything; orchestration tests assert on outcomes,
// not log lines.
type MockLogger struct{}

func (m *MockLogger) Debug(args ...interface{})                          {}
func (m *MockLogger) Info(args ...interface{})                           {}
func (m *MockLogger) Warn(args ...interface{})                           {}
func (m *MockLogger) Error(args ...interface{})                          {}
func (m *MockLogger) Fatal(args ...interface{})                          {}
func (m *MockLogger) Debugf(format string, args ...interface{})          {}
func (m *MockLogger) Infof(format string, args ...interface{})           {}
func (m *MockLogger) Warnf(format string, args ...interface{})           {}
func (m *MockLogger) Errorf(format string, args ...interface{})          {}
func (m *MockLogger) Fatalf(format string, args ...interface{})          {}
func (m *MockLogger) WithFields(fields map[string]interface{}) logger.Logger { return m }
func (m *MockLogger) WithContext(ctx context.Context) logger.Logger          { return m }
func (m *MockLogger) WithComponent(component string) logger.Logger           { return m }

// MockCatalogSource serves a fixed catalog from memory. Entities are
// reachable by name and by ID, like CKAN's show endpoints.
type MockCatalogSource struct {
	OrgTokens     []string
	DatasetTokens []string
	Orgs          map[string]*model.Organization
	Datasets      map[string]*model.Dataset
	OrgDatasets   map[string][]string
	Files         map[string]string

	OrgFetches     int
	DatasetFetches int
	FileFetches    int
}

func (s *MockCatalogSource) ListOrganizations(ctx context.Context, filter repository.EntityFilter) ([]string, error) {
	if !filter.Empty() {
		return filter.Names, nil
	}
	return s.OrgTokens, nil
}

func (s *MockCatalogSource) FetchOrganization(ctx context.Context, id string) (*model.Organization, error) {
	s.OrgFetches++
	org, ok := s.Orgs[id]
	if !ok {
		return nil, errors.NewNotFoundError("organization " + id)
	}
	return org, nil
}

func (s *MockCatalogSource) ListDatasets(ctx context.Context, filter repository.EntityFilter) ([]string, error) {
	if !filter.Empty() {
		return filter.Names, nil
	}
	return s.DatasetTokens, nil
}

func (s *MockCatalogSource) ListDatasetsForOrganization(ctx context.Context, orgID string) ([]string, error) {
	ids, ok := s.OrgDatasets[orgID]
	if !ok {
		return nil, errors.NewNotFoundError("organization " + orgID)
	}
	return ids, nil
}

func (s *MockCatalogSource) FetchDataset(ctx context.Context, id string) (*model.Dataset, error) {
	s.DatasetFetches++
	ds, ok := s.Datasets[id]
	if !ok {
		return nil, errors.NewNotFoundError("dataset " + id)
	}
	return ds, nil
}

func (s *MockCatalogSource) FetchResourceFile(ctx context.Context, res *model.Resource) (io.ReadCloser, error) {
	s.FileFetches++
	content, ok := s.Files[res.ID]
	if !ok {
		return nil, errors.NewNotFoundError("file for resource " + res.ID)
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

// MockCatalogTarget publishes into memory. Hooks override single entities
// to simulate failures and matched-existing answers; everything else is
// created with a deterministic target ID.
type MockCatalogTarget struct {
	Version string

	EnsureOrgHook      func(org *model.Organization) (repository.PublishResult, error)
	EnsureDatasetHook  func(ds *model.Dataset) (repository.PublishResult, error)
	AttachResourceHook func(res *model.Resource) (repository.PublishResult, error)

	OrgCreates      int
	DatasetCreates  int
	ResourceCreates int

	DatasetOwners map[string]string
	Uploaded      map[string]string
}

func (t *MockCatalogTarget) CheckInstance(ctx context.Context) (string, error) {
	if t.Version == "" {
		return "2.11.2", nil
	}
	return t.Version, nil
}

func (t *MockCatalogTarget) EnsureOrganization(ctx context.Context, org *model.Organization) (repository.PublishResult, error) {
	if t.EnsureOrgHook != nil {
		if result, err := t.EnsureOrgHook(org); result.TargetID != "" || err != nil {
			return result, err
		}
	}
	t.OrgCreates++
	return repository.PublishResult{TargetID: "target-" + org.ID, Status: model.StatusCreated}, nil
}

func (t *MockCatalogTarget) EnsureDataset(ctx context.Context, ds *model.Dataset, targetOrgID string) (repository.PublishResult, error) {
	if t.EnsureDatasetHook != nil {
		if result, err := t.EnsureDatasetHook(ds); result.TargetID != "" || err != nil {
			return result, err
		}
	}
	if t.DatasetOwners == nil {
		t.DatasetOwners = make(map[string]string)
	}
	t.DatasetOwners[ds.ID] = targetOrgID
	t.DatasetCreates++
	return repository.PublishResult{TargetID: "target-" + ds.ID, Status: model.StatusCreated}, nil
}

func (t *MockCatalogTarget) AttachResource(ctx context.Context, res *model.Resource, targetDatasetID string, open repository.FileOpener) (repository.PublishResult, error) {
	if t.AttachResourceHook != nil {
		if result, err := t.AttachResourceHook(res); result.TargetID != "" || err != nil {
			return result, err
		}
	}
	file, err := open()
	if err != nil {
		return repository.PublishResult{}, err
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		return repository.PublishResult{}, err
	}
	if t.Uploaded == nil {
		t.Uploaded = make(map[string]string)
	}
	t.Uploaded[res.ID] = string(content)
	t.ResourceCreates++
	return repository.PublishResult{TargetID: "target-" + res.ID, Status: model.StatusCreated}, nil
}

// newTestCatalog builds a two-organization catalog: org-a owns dataset d1
// with two resources, org-b owns dataset d2 with one.
func newTestCatalog() *MockCatalogSource {
	orgA := &model.Organization{ID: "org-a-id", Name: "org-a", Title: "Org A"}
	orgB := &model.Organization{ID: "org-b-id", Name: "org-b", Title: "Org B"}

	d1 := &model.Dataset{
		ID: "d1-id", Name: "d1", Title: "Dataset One", OwnerOrg: "org-a-id",
		Resources: []model.Resource{
			{ID: "r1", Name: "data.csv", URL: "http://source.example.org/r1", Format: "CSV"},
			{ID: "r2", Name: "notes.txt", URL: "http://source.example.org/r2", Format: "TXT"},
		},
	}
	d2 := &model.Dataset{
		ID: "d2-id", Name: "d2", Title: "Dataset Two", OwnerOrg: "org-b-id",
		Resources: []model.Resource{
			{ID: "r3", Name: "image.png", URL: "http://source.example.org/r3", Format: "PNG"},
		},
	}

	return &MockCatalogSource{
		OrgTokens:     []string{"org-a", "org-b"},
		DatasetTokens: []string{"d1", "d2"},
		Orgs: map[string]*model.Organization{
			"org-a": orgA, "org-a-id": orgA,
			"org-b": orgB, "org-b-id": orgB,
		},
		Datasets: map[string]*model.Dataset{
			"d1": d1, "d1-id": d1,
			"d2": d2, "d2-id": d2,
		},
		OrgDatasets: map[string][]string{
			"org-a": {"d1-id"}, "org-a-id": {"d1-id"},
			"org-b": {"d2-id"}, "org-b-id": {"d2-id"},
		},
		Files: map[string]string{
			"r1": "a,b\n1,2\n",
			"r2": "some notes",
			"r3": "\x89PNG",
		},
	}
}
