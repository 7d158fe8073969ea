package model

import "time"

// KindStats aggregates per-kind outcome counts for one run.
type KindStats struct {
	Attempted       int `json:"attempted"`
	Created         int `json:"created"`
	MatchedExisting int `json:"matched_existing"`
	Skipped         int `json:"skipped"`
	Failed          int `json:"failed"`
}

// Failure describes one entity that did not reach the target, with enough
// identity for a targeted retry.
type Failure struct {
	Kind     EntityKind `json:"kind"`
	SourceID string     `json:"source_id"`
	Name     string     `json:"name,omitempty"`
	Reason   string     `json:"reason"`
}

// MigrationReport is the aggregated outcome of a run. It is owned and built
// incrementally by the orchestrator and finalized at process end.
type MigrationReport struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Organizations KindStats `json:"organizations"`
	Datasets      KindStats `json:"datasets"`
	Resources     KindStats `json:"resources"`
	Failures      []Failure `json:"failures,omitempty"`
}

// NewMigrationReport starts a report for the given run.
func NewMigrationReport(runID string) *MigrationReport {
	return &MigrationReport{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
	}
}

// StatsFor returns the mutable counter block for a kind.
func (r *MigrationReport) StatsFor(kind EntityKind) *KindStats {
	switch kind {
	case KindOrganization:
		return &r.Organizations
	case KindDataset:
		return &r.Datasets
	default:
		return &r.Resources
	}
}

// RecordOutcome bumps the counter matching a terminal status.
func (r *MigrationReport) RecordOutcome(kind EntityKind, status MappingStatus) {
	stats := r.StatsFor(kind)
	switch status {
	case StatusCreated:
		stats.Created++
	case StatusMatchedExisting:
		stats.MatchedExisting++
	case StatusSkipped:
		stats.Skipped++
	case StatusFailed:
		stats.Failed++
	}
}

// AddFailure records a failed entity with its classified reason.
func (r *MigrationReport) AddFailure(kind EntityKind, sourceID, name, reason string) {
	r.Failures = append(r.Failures, Failure{
		Kind:     kind,
		SourceID: sourceID,
		Name:     name,
		Reason:   reason,
	})
}

// Finalize stamps the end of the run.
func (r *MigrationReport) Finalize() {
	r.FinishedAt = time.Now().UTC()
}

// HasFailures reports whether any entity failed during the run.
func (r *MigrationReport) HasFailures() bool {
	return len(r.Failures) > 0
}
