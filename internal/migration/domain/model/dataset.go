package model

import "ckan-migrate/internal/shared/errors"

// Dataset is a CKAN package as returned by package_show. OwnerOrg holds the
// source-side organization ID until the orchestrator translates it through
// the identity mapping.
type Dataset struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Title           string     `json:"title"`
	Notes           string     `json:"notes,omitempty"`
	OwnerOrg        string     `json:"owner_org,omitempty"`
	LicenseID       string     `json:"license_id,omitempty"`
	Author          string     `json:"author,omitempty"`
	AuthorEmail     string     `json:"author_email,omitempty"`
	Maintainer      string     `json:"maintainer,omitempty"`
	MaintainerEmail string     `json:"maintainer_email,omitempty"`
	URL             string     `json:"url,omitempty"`
	Version         string     `json:"version,omitempty"`
	Tags            []Tag      `json:"tags,omitempty"`
	Extras          []Extra    `json:"extras,omitempty"`
	Resources       []Resource `json:"resources,omitempty"`
}

// Validate checks the fields required before publishing to the target.
func (d *Dataset) Validate() error {
	if d.ID == "" {
		return errors.NewValidationError("dataset ID is required")
	}
	if d.Name == "" {
		return errors.NewValidationError("dataset name is required")
	}
	return nil
}

// HasOwner reports whether the source dataset references an organization.
func (d *Dataset) HasOwner() bool {
	return d.OwnerOrg != ""
}
