package model

// EntityKind identifies one of the three migrated entity families.
type EntityKind string

const (
	KindOrganization EntityKind = "organization"
	KindDataset      EntityKind = "dataset"
	KindResource     EntityKind = "resource"
)

// Kinds returns all entity kinds in dependency order.
func Kinds() []EntityKind {
	return []EntityKind{KindOrganization, KindDataset, KindResource}
}

// MappingStatus is the terminal status an entity reached during a run.
type MappingStatus string

const (
	StatusCreated         MappingStatus = "created"
	StatusMatchedExisting MappingStatus = "matched-existing"
	StatusSkipped         MappingStatus = "skipped"
	StatusFailed          MappingStatus = "failed"
)

// Extra is a CKAN key/value metadata field carried through unchanged.
type Extra struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Tag is a CKAN dataset tag.
type Tag struct {
	Name string `json:"name"`
}
