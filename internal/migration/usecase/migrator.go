package usecase

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"ckan-migrate/internal/migration/domain/model"
	"ckan-migrate/internal/migration/domain/repository"
	"ckan-migrate/internal/shared/contextkeys"
	"ckan-migrate/internal/shared/errors"
	"ckan-migrate/internal/shared/logger"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// MigrateRequest selects what a run migrates. Phase skips and entity
// filters combine: a filter on organizations also narrows the dataset and
// resource phases to those organizations' content.
type MigrateRequest struct {
	SkipOrganizations bool
	SkipDatasets      bool
	SkipResources     bool
	Organizations     []string
	Datasets          []string
}

// Migrator orchestrates a migration run: organizations, then datasets,
// then resources, in strict dependency order. Entity failures are recorded
// and the run continues; only mapping-integrity violations abort it.
type Migrator struct {
	source   repository.CatalogSource
	target   repository.CatalogTarget
	mappings repository.MappingStore
	staging  repository.StagingStore
	limiter  *rate.Limiter
	log      logger.Logger
}

// NewMigrator creates the orchestrator. The limiter paces calls against
// both instances; nil disables throttling.
func NewMigrator(
	source repository.CatalogSource,
	target repository.CatalogTarget,
	mappings repository.MappingStore,
	staging repository.StagingStore,
	limiter *rate.Limiter,
	log logger.Logger,
) *Migrator {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Migrator{
		source:   source,
		target:   target,
		mappings: mappings,
		staging:  staging,
		limiter:  limiter,
		log:      log.WithComponent("migrator"),
	}
}

// Run executes one migration run and returns its report. The returned
// error is non-nil only for run-fatal conditions: an untrusted mapping
// file, an unreachable target or cancellation.
func (m *Migrator) Run(ctx context.Context, req MigrateRequest) (*model.MigrationReport, error) {
	report := model.NewMigrationReport(uuid.NewString())
	ctx = context.WithValue(ctx, contextkeys.RunIDKey, report.RunID)
	log := m.log.WithContext(ctx)

	defer report.Finalize()

	if err := m.mappings.Load(); err != nil {
		return report, err
	}

	version, err := m.target.CheckInstance(ctx)
	if err != nil {
		return report, err
	}
	log.Infof("target instance reachable, CKAN version %s", version)
	if !versionAtLeast(version, 2, 11) {
		log.Warnf("target reports CKAN %s, expected 2.11 or newer; API drift may surface as compatibility failures", version)
	}

	if !req.SkipOrganizations {
		if err := m.runOrganizationPhase(ctx, req, report); err != nil {
			return report, err
		}
	} else {
		log.Info("skipping organization phase")
	}

	if !req.SkipDatasets {
		if err := m.runDatasetPhase(ctx, req, report); err != nil {
			return report, err
		}
	} else {
		log.Info("skipping dataset phase")
	}

	if !req.SkipResources {
		if err := m.runResourcePhase(ctx, req, report); err != nil {
			return report, err
		}
	} else {
		log.Info("skipping resource phase")
	}

	if err := m.mappings.Persist(); err != nil {
		log.Errorf("persisting final mapping state: %v", err)
	}
	return report, nil
}

// throttle paces entity processing and doubles as the cooperative
// cancellation point between entities.
func (m *Migrator) throttle(ctx context.Context) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return ctx.Err()
	}
	return nil
}

// Organization phase

func (m *Migrator) runOrganizationPhase(ctx context.Context, req MigrateRequest, report *model.MigrationReport) error {
	ctx = context.WithValue(ctx, contextkeys.PhaseKey, "organizations")
	log := m.log.WithContext(ctx)

	tokens, err := m.source.ListOrganizations(ctx, repository.EntityFilter{Names: req.Organizations})
	if err != nil {
		return err
	}
	log.Infof("organization phase: %d to process", len(tokens))

	for _, token := range tokens {
		if err := m.throttle(ctx); err != nil {
			return err
		}
		if err := m.migrateOrganization(ctx, token, report); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) migrateOrganization(ctx context.Context, token string, report *model.MigrationReport) error {
	log := m.log.WithContext(context.WithValue(ctx, contextkeys.EntityIDKey, token))
	report.StatsFor(model.KindOrganization).Attempted++

	org, err := m.loadOrganization(ctx, token)
	if err != nil {
		if errors.IsNotFound(err) {
			log.Warnf("organization %s not found on source, skipping", token)
			report.RecordOutcome(model.KindOrganization, model.StatusSkipped)
			return nil
		}
		return m.recordFailure(model.KindOrganization, token, token, err, report)
	}

	if mapping, ok := m.mappings.Lookup(model.KindOrganization, org.ID); ok && mapping.Authoritative() {
		log.Infof("organization %s already mapped to %s", org.DisplayName(), mapping.TargetID)
		report.RecordOutcome(model.KindOrganization, model.StatusSkipped)
		return nil
	}
	if err := org.Validate(); err != nil {
		return m.recordFailure(model.KindOrganization, org.ID, org.Name, err, report)
	}

	result, err := m.target.EnsureOrganization(ctx, org)
	if err != nil {
		return m.recordFailure(model.KindOrganization, org.ID, org.Name, err, report)
	}
	return m.recordSuccess(model.KindOrganization, org.ID, result, report)
}

// loadOrganization reads staged metadata when present and falls back to the
// source API, staging what it fetched for the next run.
func (m *Migrator) loadOrganization(ctx context.Context, token string) (*model.Organization, error) {
	var staged model.Organization
	if ok, err := m.staging.GetMetadata(model.KindOrganization, token, &staged); err == nil && ok {
		return &staged, nil
	}

	org, err := m.source.FetchOrganization(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := m.staging.PutMetadata(model.KindOrganization, token, org); err != nil {
		m.log.Warnf("staging organization %s: %v", token, err)
	}
	return org, nil
}

// Dataset phase

func (m *Migrator) runDatasetPhase(ctx context.Context, req MigrateRequest, report *model.MigrationReport) error {
	ctx = context.WithValue(ctx, contextkeys.PhaseKey, "datasets")
	log := m.log.WithContext(ctx)

	tokens, err := m.listDatasets(ctx, req)
	if err != nil {
		return err
	}
	log.Infof("dataset phase: %d to process", len(tokens))

	for _, token := range tokens {
		if err := m.throttle(ctx); err != nil {
			return err
		}
		if err := m.migrateDataset(ctx, token, report); err != nil {
			return err
		}
	}
	return nil
}

// listDatasets narrows the dataset listing to the request's filters: named
// datasets win over named organizations, and an organization filter limits
// the phase to those organizations' datasets.
func (m *Migrator) listDatasets(ctx context.Context, req MigrateRequest) ([]string, error) {
	if len(req.Datasets) > 0 {
		return m.source.ListDatasets(ctx, repository.EntityFilter{Names: req.Datasets})
	}
	if len(req.Organizations) > 0 {
		var tokens []string
		for _, org := range req.Organizations {
			ids, err := m.source.ListDatasetsForOrganization(ctx, org)
			if err != nil {
				if errors.IsNotFound(err) {
					m.log.Warnf("organization %s not found on source, no datasets to list", org)
					continue
				}
				return nil, err
			}
			tokens = append(tokens, ids...)
		}
		return tokens, nil
	}
	return m.source.ListDatasets(ctx, repository.EntityFilter{})
}

func (m *Migrator) migrateDataset(ctx context.Context, token string, report *model.MigrationReport) error {
	log := m.log.WithContext(context.WithValue(ctx, contextkeys.EntityIDKey, token))
	report.StatsFor(model.KindDataset).Attempted++

	ds, err := m.loadDataset(ctx, token)
	if err != nil {
		if errors.IsNotFound(err) {
			log.Warnf("dataset %s not found on source, skipping", token)
			report.RecordOutcome(model.KindDataset, model.StatusSkipped)
			return nil
		}
		return m.recordFailure(model.KindDataset, token, token, err, report)
	}

	if mapping, ok := m.mappings.Lookup(model.KindDataset, ds.ID); ok && mapping.Authoritative() {
		log.Infof("dataset %s already mapped to %s", ds.Name, mapping.TargetID)
		report.RecordOutcome(model.KindDataset, model.StatusSkipped)
		return nil
	}
	if err := ds.Validate(); err != nil {
		return m.recordFailure(model.KindDataset, ds.ID, ds.Name, err, report)
	}

	// Ownership gate: a dataset whose organization never made it across
	// must not land unowned on the target.
	targetOrgID := ""
	if ds.HasOwner() {
		ownerMapping, ok := m.mappings.Lookup(model.KindOrganization, ds.OwnerOrg)
		if !ok || !ownerMapping.Authoritative() {
			log.Warnf("dataset %s skipped: owner organization %s is not mapped", ds.Name, ds.OwnerOrg)
			report.RecordOutcome(model.KindDataset, model.StatusSkipped)
			return nil
		}
		targetOrgID = ownerMapping.TargetID
	}

	result, err := m.target.EnsureDataset(ctx, ds, targetOrgID)
	if err != nil {
		return m.recordFailure(model.KindDataset, ds.ID, ds.Name, err, report)
	}
	return m.recordSuccess(model.KindDataset, ds.ID, result, report)
}

func (m *Migrator) loadDataset(ctx context.Context, token string) (*model.Dataset, error) {
	var staged model.Dataset
	if ok, err := m.staging.GetMetadata(model.KindDataset, token, &staged); err == nil && ok {
		return &staged, nil
	}

	ds, err := m.source.FetchDataset(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := m.staging.PutMetadata(model.KindDataset, token, ds); err != nil {
		m.log.Warnf("staging dataset %s: %v", token, err)
	}
	return ds, nil
}

// Resource phase

func (m *Migrator) runResourcePhase(ctx context.Context, req MigrateRequest, report *model.MigrationReport) error {
	ctx = context.WithValue(ctx, contextkeys.PhaseKey, "resources")
	log := m.log.WithContext(ctx)

	tokens, err := m.listDatasets(ctx, req)
	if err != nil {
		return err
	}
	log.Infof("resource phase: scanning %d datasets", len(tokens))

	for _, token := range tokens {
		if err := m.throttle(ctx); err != nil {
			return err
		}

		ds, err := m.loadDataset(ctx, token)
		if err != nil {
			if errors.IsNotFound(err) {
				log.Warnf("dataset %s not found on source, no resources to migrate", token)
				continue
			}
			log.Errorf("loading dataset %s for its resources: %v", token, err)
			continue
		}

		dsMapping, ok := m.mappings.Lookup(model.KindDataset, ds.ID)
		if !ok || !dsMapping.Authoritative() {
			// Cascade: without a target dataset the resources have
			// nowhere to land.
			for range ds.Resources {
				report.StatsFor(model.KindResource).Attempted++
				report.RecordOutcome(model.KindResource, model.StatusSkipped)
			}
			log.Warnf("dataset %s is not mapped, skipping its %d resources", ds.Name, len(ds.Resources))
			continue
		}

		for i := range ds.Resources {
			if err := m.throttle(ctx); err != nil {
				return err
			}
			if err := m.migrateResource(ctx, ds, &ds.Resources[i], dsMapping.TargetID, report); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Migrator) migrateResource(ctx context.Context, ds *model.Dataset, res *model.Resource, targetDatasetID string, report *model.MigrationReport) error {
	log := m.log.WithContext(context.WithValue(ctx, contextkeys.EntityIDKey, res.ID))
	report.StatsFor(model.KindResource).Attempted++

	if mapping, ok := m.mappings.Lookup(model.KindResource, res.ID); ok && mapping.Authoritative() {
		log.Infof("resource %s already mapped to %s", res.ID, mapping.TargetID)
		report.RecordOutcome(model.KindResource, model.StatusSkipped)
		return nil
	}

	if !res.Downloadable() {
		log.Warnf("resource %s has no download URL, skipping", res.ID)
		report.RecordOutcome(model.KindResource, model.StatusSkipped)
		return nil
	}

	path, err := m.stageResource(ctx, ds, res)
	if err != nil {
		if errors.IsNotFound(err) {
			log.Warnf("resource file for %s is gone from the source, skipping", res.ID)
			report.RecordOutcome(model.KindResource, model.StatusSkipped)
			return nil
		}
		return m.recordFailure(model.KindResource, res.ID, res.Name, err, report)
	}

	open := func() (io.ReadCloser, error) {
		return m.staging.OpenResourceFile(path)
	}
	result, err := m.target.AttachResource(ctx, res, targetDatasetID, open)
	if err != nil {
		return m.recordFailure(model.KindResource, res.ID, res.Name, err, report)
	}
	return m.recordSuccess(model.KindResource, res.ID, result, report)
}

// stageResource returns the local path of the resource's file blob,
// downloading it only when no staged copy exists.
func (m *Migrator) stageResource(ctx context.Context, ds *model.Dataset, res *model.Resource) (string, error) {
	ext := res.FileExtension()
	if path, ok := m.staging.ResourceFilePath(ds.ID, res.ID, ext); ok {
		return path, nil
	}

	body, err := m.source.FetchResourceFile(ctx, res)
	if err != nil {
		return "", err
	}
	defer body.Close()

	return m.staging.StageResourceFile(ds.ID, res.ID, ext, body)
}

// Outcome bookkeeping

// recordSuccess stores the identity mapping and persists it immediately so
// an interruption right after never repeats the create.
func (m *Migrator) recordSuccess(kind model.EntityKind, sourceID string, result repository.PublishResult, report *model.MigrationReport) error {
	if err := m.mappings.Record(kind, sourceID, result.TargetID, result.Status); err != nil {
		// Two source entities resolving to conflicting targets means the
		// mapping can no longer be trusted.
		return err
	}
	if err := m.mappings.Persist(); err != nil {
		m.log.Errorf("persisting mapping after %s %s: %v", kind, sourceID, err)
	}
	report.RecordOutcome(kind, result.Status)
	return nil
}

// recordFailure notes a failed entity and lets the run continue, unless
// the error poisons the whole run.
func (m *Migrator) recordFailure(kind model.EntityKind, sourceID, name string, cause error, report *model.MigrationReport) error {
	if errors.IsRunFatal(cause) {
		return cause
	}
	m.log.Errorf("%s %s failed: %v", kind, sourceID, cause)
	report.RecordOutcome(kind, model.StatusFailed)
	report.AddFailure(kind, sourceID, name, fmt.Sprintf("%v", cause))

	// A failed marker is deliberately non-authoritative so the next run
	// retries exactly these entities.
	if err := m.mappings.Record(kind, sourceID, "", model.StatusFailed); err != nil {
		m.log.Warnf("recording failure marker for %s %s: %v", kind, sourceID, err)
	}
	return nil
}

// versionAtLeast parses a dotted version string leniently; unparseable
// versions count as new enough rather than spamming warnings.
func versionAtLeast(version string, major, minor int) bool {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return true
	}
	gotMajor, err := strconv.Atoi(parts[0])
	if err != nil {
		return true
	}
	gotMinor, err := strconv.Atoi(strings.TrimFunc(parts[1], func(r rune) bool { return r < '0' || r > '9' }))
	if err != nil {
		return true
	}
	return gotMajor > major || (gotMajor == major && gotMinor >= minor)
}
