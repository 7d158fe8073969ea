package ckan

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"

	"ckan-migrate/internal/migration/domain/model"
	"ckan-migrate/internal/migration/domain/repository"
	"ckan-migrate/internal/shared/errors"
	"ckan-migrate/internal/shared/logger"
	"ckan-migrate/internal/shared/utils"
)

// TargetClient publishes organizations, datasets and resources on the
// target CKAN instance. Already-existing entities are matched by name
// instead of failing the run, so re-runs converge on the same catalog.
type TargetClient struct {
	client *Client
	log    logger.Logger
}

func NewTargetClient(client *Client, log logger.Logger) *TargetClient {
	return &TargetClient{
		client: client,
		log:    log.WithComponent("target-client"),
	}
}

var _ repository.CatalogTarget = (*TargetClient)(nil)

// createdEntity is the slice of a create/show result we care about.
type createdEntity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CheckInstance verifies the target answers and returns its advertised
// CKAN version.
func (t *TargetClient) CheckInstance(ctx context.Context) (string, error) {
	var status struct {
		CkanVersion string `json:"ckan_version"`
	}
	if err := t.client.Get(ctx, "status_show", nil, &status); err != nil {
		return "", errors.WrapError(err, "target instance unreachable")
	}
	return status.CkanVersion, nil
}

// EnsureOrganization publishes an organization, matching an existing one by
// sanitized name first so re-runs and concurrent writers never duplicate it.
func (t *TargetClient) EnsureOrganization(ctx context.Context, org *model.Organization) (repository.PublishResult, error) {
	name := utils.SanitizeName(org.Name)

	if existing, err := t.showOrganization(ctx, name); err == nil {
		t.log.Infof("organization %q already exists on target as %s", name, existing.ID)
		return repository.PublishResult{TargetID: existing.ID, Status: model.StatusMatchedExisting}, nil
	} else if !errors.IsNotFound(err) {
		return repository.PublishResult{}, err
	}

	var created createdEntity
	err := t.client.Post(ctx, "organization_create", orgCreatePayload(org), &created)
	if err == nil {
		t.log.Infof("created organization %q as %s", name, created.ID)
		return repository.PublishResult{TargetID: created.ID, Status: model.StatusCreated}, nil
	}
	if errors.IsConflict(err) {
		// Lost a race with another writer; the winner's identity is ours.
		existing, showErr := t.showOrganization(ctx, name)
		if showErr != nil {
			return repository.PublishResult{}, err
		}
		t.log.Infof("organization %q created concurrently as %s", name, existing.ID)
		return repository.PublishResult{TargetID: existing.ID, Status: model.StatusMatchedExisting}, nil
	}
	return repository.PublishResult{}, err
}

func (t *TargetClient) showOrganization(ctx context.Context, name string) (*createdEntity, error) {
	params := url.Values{}
	params.Set("id", name)
	params.Set("include_datasets", "false")

	var org createdEntity
	if err := t.client.Get(ctx, "organization_show", params, &org); err != nil {
		return nil, err
	}
	return &org, nil
}

// EnsureDataset publishes a dataset under the already-translated target
// organization ID (empty for unowned datasets).
func (t *TargetClient) EnsureDataset(ctx context.Context, ds *model.Dataset, targetOrgID string) (repository.PublishResult, error) {
	name := utils.SanitizeName(ds.Name)

	if existing, err := t.showDataset(ctx, name); err == nil {
		t.log.Infof("dataset %q already exists on target as %s", name, existing.ID)
		return repository.PublishResult{TargetID: existing.ID, Status: model.StatusMatchedExisting}, nil
	} else if !errors.IsNotFound(err) {
		return repository.PublishResult{}, err
	}

	var created createdEntity
	err := t.client.Post(ctx, "package_create", datasetCreatePayload(ds, targetOrgID), &created)
	if err == nil {
		t.log.Infof("created dataset %q as %s", name, created.ID)
		return repository.PublishResult{TargetID: created.ID, Status: model.StatusCreated}, nil
	}
	if errors.IsConflict(err) {
		existing, showErr := t.showDataset(ctx, name)
		if showErr != nil {
			return repository.PublishResult{}, err
		}
		t.log.Infof("dataset %q created concurrently as %s", name, existing.ID)
		return repository.PublishResult{TargetID: existing.ID, Status: model.StatusMatchedExisting}, nil
	}
	return repository.PublishResult{}, err
}

func (t *TargetClient) showDataset(ctx context.Context, name string) (*createdEntity, error) {
	params := url.Values{}
	params.Set("id", name)

	var ds createdEntity
	if err := t.client.Get(ctx, "package_show", params, &ds); err != nil {
		return nil, err
	}
	return &ds, nil
}

// AttachResource uploads the staged file and attaches it to the target
// dataset. A 409 resolves to the already-attached resource; a 404 from the
// upload endpoint falls back to a minimal link-only create for targets
// that reject multipart resource creation.
func (t *TargetClient) AttachResource(ctx context.Context, res *model.Resource, targetDatasetID string, open repository.FileOpener) (repository.PublishResult, error) {
	fields := resourceFormFields(res, targetDatasetID)
	filename := uploadFilename(res)

	var created createdEntity
	err := t.client.Upload(ctx, "resource_create", func() (io.ReadCloser, string, error) {
		file, err := open()
		if err != nil {
			return nil, "", err
		}
		body, contentType := newMultipartBody(fields, filename, file)
		return &uploadBody{ReadCloser: body, file: file}, contentType, nil
	}, &created)
	if err == nil {
		t.log.Infof("attached resource %q to dataset %s as %s", filename, targetDatasetID, created.ID)
		return repository.PublishResult{TargetID: created.ID, Status: model.StatusCreated}, nil
	}

	if errors.IsConflict(err) {
		existing, resolveErr := t.resolveResource(ctx, res, targetDatasetID)
		if resolveErr != nil {
			return repository.PublishResult{}, err
		}
		t.log.Infof("resource %q already attached to dataset %s as %s", filename, targetDatasetID, existing.ID)
		return repository.PublishResult{TargetID: existing.ID, Status: model.StatusMatchedExisting}, nil
	}

	if errors.IsNotFound(err) {
		return t.attachResourceLink(ctx, res, targetDatasetID, err)
	}
	return repository.PublishResult{}, err
}

// attachResourceLink is the degraded path for targets whose upload endpoint
// answers 404: the resource is created by reference to its original URL.
func (t *TargetClient) attachResourceLink(ctx context.Context, res *model.Resource, targetDatasetID string, uploadErr error) (repository.PublishResult, error) {
	t.log.Warnf("upload endpoint missing for resource %s, creating link-only resource", res.ID)

	payload := map[string]interface{}{
		"package_id": targetDatasetID,
		"name":       utils.TruncateString(res.Name, 100),
		"url":        res.URL,
	}
	var created createdEntity
	if err := t.client.Post(ctx, "resource_create", payload, &created); err != nil {
		return repository.PublishResult{}, errors.NewCompatibilityError(
			fmt.Sprintf("resource %s rejected by both upload and link-only create", res.ID)).WithCause(uploadErr)
	}
	return repository.PublishResult{TargetID: created.ID, Status: model.StatusCreated}, nil
}

// resolveResource finds an already-attached resource on the target dataset
// by its (truncated) name.
func (t *TargetClient) resolveResource(ctx context.Context, res *model.Resource, targetDatasetID string) (*createdEntity, error) {
	params := url.Values{}
	params.Set("id", targetDatasetID)

	var ds struct {
		Resources []createdEntity `json:"resources"`
	}
	if err := t.client.Get(ctx, "package_show", params, &ds); err != nil {
		return nil, err
	}

	want := utils.TruncateString(res.Name, 100)
	for i := range ds.Resources {
		if ds.Resources[i].Name == want {
			return &ds.Resources[i], nil
		}
	}
	return nil, errors.NewNotFoundError(fmt.Sprintf("resource %q on dataset %s", want, targetDatasetID))
}

// uploadFilename picks the filename sent in the multipart part: the
// original URL's basename when present, the resource name or ID otherwise.
func uploadFilename(res *model.Resource) string {
	if res.URL != "" {
		if u, err := url.Parse(res.URL); err == nil {
			if base := path.Base(u.Path); base != "" && base != "." && base != "/" {
				return base
			}
		}
	}
	if res.Name != "" {
		return res.Name
	}
	return res.ID + "." + res.FileExtension()
}

// uploadBody ties the lifetime of the staged file to the multipart stream
// built over it.
type uploadBody struct {
	io.ReadCloser
	file io.Closer
}

func (b *uploadBody) Close() error {
	err := b.ReadCloser.Close()
	if ferr := b.file.Close(); err == nil {
		err = ferr
	}
	return err
}
