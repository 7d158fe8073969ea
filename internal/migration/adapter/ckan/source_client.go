package ckan

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"ckan-migrate/internal/migration/domain/model"
	"ckan-migrate/internal/migration/domain/repository"
	"ckan-migrate/internal/shared/errors"
	"ckan-migrate/internal/shared/logger"
)

const defaultPageSize = 100

// SourceClient reads organizations, datasets and resource files from the
// source CKAN instance.
type SourceClient struct {
	client   *Client
	pageSize int
	log      logger.Logger
}

// NewSourceClient wraps a Client for source-side reads. pageSize bounds
// dataset listing pages; zero means the default of 100.
func NewSourceClient(client *Client, pageSize int, log logger.Logger) *SourceClient {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &SourceClient{
		client:   client,
		pageSize: pageSize,
		log:      log.WithComponent("source-client"),
	}
}

var _ repository.CatalogSource = (*SourceClient)(nil)

// ListOrganizations returns all organization names, or the filter entries
// verbatim: CKAN's show endpoints accept names and IDs interchangeably, so
// a filtered run never lists the whole catalog.
func (s *SourceClient) ListOrganizations(ctx context.Context, filter repository.EntityFilter) ([]string, error) {
	if !filter.Empty() {
		s.log.Infof("restricting to %d specified organizations", len(filter.Names))
		return append([]string(nil), filter.Names...), nil
	}

	var ids []string
	if err := s.client.Get(ctx, "organization_list", nil, &ids); err != nil {
		return nil, err
	}
	s.log.Infof("found %d organizations in total", len(ids))
	return ids, nil
}

// FetchOrganization retrieves one organization's metadata.
func (s *SourceClient) FetchOrganization(ctx context.Context, id string) (*model.Organization, error) {
	params := url.Values{}
	params.Set("id", id)
	params.Set("include_datasets", "false")

	var org model.Organization
	if err := s.client.Get(ctx, "organization_show", params, &org); err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewNotFoundError(fmt.Sprintf("organization %s", id)).WithCause(err)
		}
		return nil, err
	}
	return &org, nil
}

// ListDatasets pages through package_list until an empty page signals
// exhaustion, or short-circuits to the filter entries.
func (s *SourceClient) ListDatasets(ctx context.Context, filter repository.EntityFilter) ([]string, error) {
	if !filter.Empty() {
		s.log.Infof("restricting to %d specified datasets", len(filter.Names))
		return append([]string(nil), filter.Names...), nil
	}

	var all []string
	for offset := 0; ; offset += s.pageSize {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(s.pageSize))
		params.Set("offset", strconv.Itoa(offset))

		var page []string
		if err := s.client.Get(ctx, "package_list", params, &page); err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < s.pageSize {
			break
		}
	}
	s.log.Infof("found %d datasets in total", len(all))
	return all, nil
}

// ListDatasetsForOrganization returns the dataset IDs owned by one
// organization.
func (s *SourceClient) ListDatasetsForOrganization(ctx context.Context, orgID string) ([]string, error) {
	params := url.Values{}
	params.Set("id", orgID)
	params.Set("include_datasets", "true")

	var result struct {
		Packages []struct {
			ID string `json:"id"`
		} `json:"packages"`
	}
	if err := s.client.Get(ctx, "organization_show", params, &result); err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewNotFoundError(fmt.Sprintf("organization %s", orgID)).WithCause(err)
		}
		return nil, err
	}

	ids := make([]string, 0, len(result.Packages))
	for _, pkg := range result.Packages {
		ids = append(ids, pkg.ID)
	}
	s.log.Infof("found %d datasets in organization %s", len(ids), orgID)
	return ids, nil
}

// FetchDataset retrieves one dataset's metadata including its resource
// descriptors.
func (s *SourceClient) FetchDataset(ctx context.Context, id string) (*model.Dataset, error) {
	params := url.Values{}
	params.Set("id", id)

	var ds model.Dataset
	if err := s.client.Get(ctx, "package_show", params, &ds); err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewNotFoundError(fmt.Sprintf("dataset %s", id)).WithCause(err)
		}
		return nil, err
	}
	return &ds, nil
}

// FetchResourceFile streams a resource's file blob from its download URL.
func (s *SourceClient) FetchResourceFile(ctx context.Context, res *model.Resource) (io.ReadCloser, error) {
	if !res.Downloadable() {
		return nil, errors.NewValidationError(fmt.Sprintf("resource %s has no download URL", res.ID))
	}
	return s.client.Download(ctx, res.URL)
}
