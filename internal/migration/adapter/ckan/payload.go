package ckan

import (
	"strconv"

	"ckan-migrate/internal/migration/domain/model"
	"ckan-migrate/internal/shared/utils"
)

// Create payloads are built field by field rather than by scrubbing raw
// source documents: only the fields the target CKAN version accepts on
// create are ever sent (no id, created, revision_*, package_count and
// friends).

func orgCreatePayload(org *model.Organization) map[string]interface{} {
	payload := map[string]interface{}{
		"name": utils.SanitizeName(org.Name),
	}
	if org.Title != "" {
		payload["title"] = org.Title
	}
	if org.Description != "" {
		payload["description"] = org.Description
	}
	if org.ImageURL != "" {
		payload["image_url"] = org.ImageURL
	}
	if len(org.Extras) > 0 {
		payload["extras"] = org.Extras
	}
	return payload
}

func datasetCreatePayload(ds *model.Dataset, targetOrgID string) map[string]interface{} {
	payload := map[string]interface{}{
		"name": utils.SanitizeName(ds.Name),
	}
	if ds.Title != "" {
		payload["title"] = ds.Title
	}
	if ds.Notes != "" {
		payload["notes"] = ds.Notes
	}
	if ds.LicenseID != "" {
		payload["license_id"] = ds.LicenseID
	}
	if ds.Author != "" {
		payload["author"] = ds.Author
	}
	if ds.AuthorEmail != "" {
		payload["author_email"] = ds.AuthorEmail
	}
	if ds.Maintainer != "" {
		payload["maintainer"] = ds.Maintainer
	}
	if ds.MaintainerEmail != "" {
		payload["maintainer_email"] = ds.MaintainerEmail
	}
	if ds.URL != "" {
		payload["url"] = ds.URL
	}
	if ds.Version != "" {
		payload["version"] = ds.Version
	}
	if len(ds.Tags) > 0 {
		payload["tags"] = ds.Tags
	}
	if len(ds.Extras) > 0 {
		payload["extras"] = ds.Extras
	}
	// Resources are attached separately in the resource phase.
	if targetOrgID != "" {
		payload["owner_org"] = targetOrgID
	}
	return payload
}

// resourceFormFields builds the plain form fields for a multipart
// resource_create upload. The target expects a form POST here, not JSON.
func resourceFormFields(res *model.Resource, targetDatasetID string) map[string]string {
	fields := map[string]string{
		"package_id": targetDatasetID,
	}
	if res.Name != "" {
		fields["name"] = utils.TruncateString(res.Name, 100)
	}
	if res.Description != "" {
		fields["description"] = res.Description
	}
	if res.URL != "" {
		fields["url"] = res.URL
	}
	if res.Format != "" {
		fields["format"] = res.Format
	}
	if res.Mimetype != "" {
		fields["mimetype"] = res.Mimetype
	}
	if res.Size > 0 {
		fields["size"] = strconv.FormatInt(res.Size, 10)
	}
	return fields
}
