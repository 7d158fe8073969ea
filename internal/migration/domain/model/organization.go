package model

import "ckan-migrate/internal/shared/errors"

// Organization is a CKAN organization as returned by organization_show.
// It is the root of the migration dependency graph:
// Organization → Datasets → Resources.
type Organization struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	ImageURL    string  `json:"image_url,omitempty"`
	Extras      []Extra `json:"extras,omitempty"`
}

// Validate checks the fields required before publishing to the target.
func (o *Organization) Validate() error {
	if o.ID == "" {
		return errors.NewValidationError("organization ID is required")
	}
	if o.Name == "" {
		return errors.NewValidationError("organization name is required")
	}
	return nil
}

// DisplayName returns the human-facing name for logs and reports.
func (o *Organization) DisplayName() string {
	if o.Title != "" {
		return o.Title
	}
	return o.Name
}
