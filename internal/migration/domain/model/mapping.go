package model

// IdentityMapping records the correspondence between a source-side and
// target-side identifier for one entity.
type IdentityMapping struct {
	Kind     EntityKind    `json:"-"`
	SourceID string        `json:"-"`
	TargetID string        `json:"target_id"`
	Status   MappingStatus `json:"status"`
}

// Authoritative reports whether the mapping is immutable truth for later
// phases and re-runs: the entity exists on the target with TargetID.
func (m IdentityMapping) Authoritative() bool {
	return m.Status == StatusCreated || m.Status == StatusMatchedExisting
}
