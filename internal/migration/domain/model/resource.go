package model

import "strings"

// Resource is a CKAN resource descriptor. The file blob it points at is
// fetched from URL and staged locally before upload.
type Resource struct {
	ID          string `json:"id"`
	PackageID   string `json:"package_id,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	Format      string `json:"format,omitempty"`
	Mimetype    string `json:"mimetype,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// FileExtension derives the staged filename extension from the declared
// format, falling back to "bin" for unknown content.
func (r *Resource) FileExtension() string {
	format := strings.ToLower(strings.TrimSpace(r.Format))
	if format == "" {
		return "bin"
	}
	return format
}

// Downloadable reports whether the resource carries a URL to fetch.
func (r *Resource) Downloadable() bool {
	return r.URL != ""
}
