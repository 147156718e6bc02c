package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/acme-corp/module-registry-api/pkg/archive"
	"github.com/acme-corp/module-registry-api/pkg/gate"
	"github.com/acme-corp/module-registry-api/pkg/rating"
	problem "github.com/acme-corp/module-registry-api/pkg/registry/helpers/problem"
	"github.com/acme-corp/module-registry-api/pkg/registry/models"
	"github.com/acme-corp/module-registry-api/pkg/registry/repositories"
	"github.com/acme-corp/module-registry-api/pkg/sources"
	"github.com/google/uuid"
	"github.com/teris-io/shortid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const defaultVersion = "1.0.0"

// Config carries the orchestrator's policy toggles.
type Config struct {
	// RatingGateEnabled controls whether reference-mode ingestion is
	// gated on the rating thresholds. Default true.
	RatingGateEnabled bool
}

// PackageService drives the package lifecycle: creation (upload or
// reference mode), retrieval with the optional download gate, content
// update, deletion by id or name, on-demand rating, history and reset.
type PackageService struct {
	repo     repositories.PackageRepository
	resolver sources.Resolver
	rater    rating.Rater
	checker  gate.Checker
	cfg      Config
	locks    *keyedMutex
}

func NewPackageService(
	repo repositories.PackageRepository,
	resolver sources.Resolver,
	rater rating.Rater,
	checker gate.Checker,
	cfg Config,
) *PackageService {
	return &PackageService{
		repo:     repo,
		resolver: resolver,
		rater:    rater,
		checker:  checker,
		cfg:      cfg,
		locks:    newKeyedMutex(),
	}
}

// CreatePackage ingests a new package. Exactly one of Content and URL
// must be present on the input; the typed variant decides the path.
func (s *PackageService) CreatePackage(ctx context.Context, actor string, in *models.PackageInput) (*models.Package, error) {
	upload, reference, ok := in.Mode()
	if !ok {
		return nil, problem.NewBadRequest("body",
			"exactly one of Content and URL must be set",
			problem.InvalidParam{Name: "Content", Reason: "mutually exclusive with URL"},
			problem.InvalidParam{Name: "URL", Reason: "mutually exclusive with Content"},
		)
	}
	if upload != nil {
		return s.createFromUpload(ctx, actor, upload)
	}
	return s.createFromReference(ctx, actor, reference)
}

func (s *PackageService) createFromUpload(ctx context.Context, actor string, req *models.UploadRequest) (*models.Package, error) {
	digest := contentDigest(req.Content)

	s.locks.Lock("content:" + digest)
	defer s.locks.Unlock("content:" + digest)

	existing, err := s.repo.FindDataByDigest(ctx, digest)
	if err != nil {
		return nil, problem.NewInternalServerError(err.Error())
	}
	if existing != nil {
		return nil, problem.NewConflict("Content", "a package with identical content exists")
	}

	manifest, err := archive.LocateManifest(req.Content)
	if err != nil {
		return nil, mapArchiveErr(err)
	}

	// Upload-mode fallbacks: name defaults to the generated package ID,
	// version to 1.0.0. Reference mode uses different fallbacks.
	id := uuid.NewString()
	name := manifest.Name
	if name == "" {
		name = id
	}
	version := manifest.Version
	if version == "" {
		version = defaultVersion
	}

	rec := &models.PackageRecord{
		ID:         uuid.NewString(),
		MetadataID: id,
		DataID:     uuid.NewString(),
		Metadata:   &models.PackageMetadata{ID: id, Name: name, Version: version},
		Data: &models.PackageData{
			Content:       req.Content,
			ContentDigest: digest,
			URL:           manifest.Homepage,
			GateScript:    req.GateScript,
		},
	}
	rec.Data.ID = rec.DataID
	if err := s.repo.CreatePackage(ctx, rec); err != nil {
		return nil, problem.NewInternalServerError(err.Error())
	}
	log.Printf("[ingest] created package %s (%s@%s) from upload", id, name, version)

	// Only gate-script packages are audited on creation.
	if req.GateScript != "" {
		if err := s.audit(ctx, actor, id, models.ActionCreate); err != nil {
			return nil, err
		}
	}
	return packageView(rec), nil
}

func (s *PackageService) createFromReference(ctx context.Context, actor string, req *models.ReferenceRequest) (*models.Package, error) {
	if !s.resolver.Supported(req.URL) {
		return nil, problem.NewBadRequest("URL",
			"URL must point at a supported hosting or package-index domain",
			problem.InvalidParam{Name: "URL", Reason: "unrecognized host"})
	}

	s.locks.Lock("url:" + req.URL)
	defer s.locks.Unlock("url:" + req.URL)

	existing, err := s.repo.FindDataByURL(ctx, req.URL)
	if err != nil {
		return nil, problem.NewInternalServerError(err.Error())
	}
	if existing != nil {
		return nil, problem.NewConflict("URL", "a package with this URL exists")
	}

	if s.cfg.RatingGateEnabled {
		scores, err := s.rater.Rate(ctx, req.URL)
		if err != nil {
			return nil, problem.NewUpstreamError(req.URL, err.Error())
		}
		if !scores.PassesGate() {
			log.Printf("[ingest] gate rejected %s (net=%.2f)", req.URL, scores.NetScore)
			return nil, problem.NewGateRejected(req.URL, "package not uploaded due to disqualified rating")
		}
	}

	owner, repo, err := s.resolver.Resolve(ctx, req.URL)
	if err != nil {
		return nil, mapSourceErr(req.URL, err)
	}
	name, version, err := s.resolver.FetchManifest(ctx, owner, repo)
	if err != nil {
		return nil, mapSourceErr(req.URL, err)
	}
	content, err := s.resolver.FetchSnapshot(ctx, owner, repo)
	if err != nil {
		return nil, mapSourceErr(req.URL, err)
	}

	id := uuid.NewString()
	rec := &models.PackageRecord{
		ID:         uuid.NewString(),
		MetadataID: id,
		DataID:     uuid.NewString(),
		Metadata:   &models.PackageMetadata{ID: id, Name: name, Version: version},
		Data: &models.PackageData{
			Content:       content,
			ContentDigest: contentDigest(content),
			URL:           req.URL,
			GateScript:    req.GateScript,
		},
	}
	rec.Data.ID = rec.DataID
	if err := s.repo.CreatePackage(ctx, rec); err != nil {
		return nil, problem.NewInternalServerError(err.Error())
	}
	log.Printf("[ingest] created package %s (%s@%s) from %s", id, name, version, req.URL)

	if req.GateScript != "" {
		if err := s.audit(ctx, actor, id, models.ActionCreate); err != nil {
			return nil, err
		}
	}
	return packageView(rec), nil
}

// RetrievePackage returns the metadata+content view. Packages carrying a
// gate script run it first; its exit code alone decides the download, and
// an allowed download is audited.
func (s *PackageService) RetrievePackage(ctx context.Context, actor, id string) (*models.Package, error) {
	rec, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	if rec.Data.GateScript != "" {
		allowed, err := s.checker.Check(ctx, gate.CheckRequest{
			Script:  rec.Data.GateScript,
			Name:    rec.Metadata.Name,
			Version: rec.Metadata.Version,
			Actor:   actor,
		})
		if err != nil {
			return nil, problem.NewUpstreamError(id, err.Error())
		}
		if !allowed {
			return nil, problem.NewDownloadBlocked(id, "gate script rejected the download")
		}
		if err := s.audit(ctx, actor, id, models.ActionDownload); err != nil {
			return nil, err
		}
	}
	return packageView(rec), nil
}

// UpdatePackage replaces a package's content. The replacement's manifest
// must declare exactly the stored name and version; a mismatch is a
// validation failure, never a silent no-op.
func (s *PackageService) UpdatePackage(ctx context.Context, actor, id string, in *models.PackageInput) error {
	rec, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	if len(in.Content) == 0 {
		return problem.NewBadRequest("Content", "update requires replacement Content",
			problem.InvalidParam{Name: "Content", Reason: "is required"})
	}

	manifest, err := archive.LocateManifest(in.Content)
	if err != nil {
		return mapArchiveErr(err)
	}
	name := manifest.Name
	if name == "" {
		name = rec.Metadata.ID
	}
	version := manifest.Version
	if version == "" {
		version = defaultVersion
	}
	if name != rec.Metadata.Name || version != rec.Metadata.Version {
		return problem.NewBadRequest("body",
			fmt.Sprintf("replacement declares %s@%s but package is %s@%s",
				name, version, rec.Metadata.Name, rec.Metadata.Version),
			problem.InvalidParam{Name: "Content", Reason: "name and version must match the stored package"})
	}

	if err := s.repo.ReplaceContent(ctx, rec.DataID, in.Content, contentDigest(in.Content)); err != nil {
		return problem.NewInternalServerError(err.Error())
	}
	log.Printf("[ingest] updated content of package %s", id)

	if rec.Data.GateScript != "" {
		return s.audit(ctx, actor, id, models.ActionUpdate)
	}
	return nil
}

// DeletePackage removes one package and everything referencing it.
func (s *PackageService) DeletePackage(ctx context.Context, id string) error {
	if _, err := s.lookup(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeleteByMetadataID(ctx, id); err != nil {
		return problem.NewInternalServerError(err.Error())
	}
	log.Printf("[ingest] deleted package %s", id)
	return nil
}

// DeletePackageByName removes every version sharing the name, with their
// audit entries.
func (s *PackageService) DeletePackageByName(ctx context.Context, name string) error {
	versions, err := s.repo.FindMetadataByName(ctx, name)
	if err != nil {
		return problem.NewInternalServerError(err.Error())
	}
	if len(versions) == 0 {
		return problem.NewNotFound(name, "package does not exist")
	}
	for _, md := range versions {
		if err := s.repo.DeleteByMetadataID(ctx, md.ID); err != nil {
			return problem.NewInternalServerError(err.Error())
		}
	}
	log.Printf("[ingest] deleted %d version(s) of %s", len(versions), name)
	return nil
}

// RatePackage runs a fresh rating against the package's source URL,
// persists the record and audits RATE for gate-script packages.
func (s *PackageService) RatePackage(ctx context.Context, actor, id string) (*models.RatingRecord, error) {
	rec, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Data.URL == "" {
		return nil, problem.NewBadRequest(id, "package has no source URL to rate",
			problem.InvalidParam{Name: "URL", Reason: "package was uploaded without a homepage"})
	}

	scores, err := s.rater.Rate(ctx, rec.Data.URL)
	if err != nil {
		return nil, problem.NewUpstreamError(rec.Data.URL, err.Error())
	}

	record := ratingRecord(rec.Data.URL, scores)
	if err := s.repo.SaveRating(ctx, record); err != nil {
		return nil, problem.NewInternalServerError(err.Error())
	}

	if rec.Data.GateScript != "" {
		if err := s.audit(ctx, actor, id, models.ActionRate); err != nil {
			return nil, err
		}
	}
	return record, nil
}

// PackageHistory returns the audit trail across every version of a name.
func (s *PackageService) PackageHistory(ctx context.Context, name string) ([]models.AuditEntry, error) {
	versions, err := s.repo.FindMetadataByName(ctx, name)
	if err != nil {
		return nil, problem.NewInternalServerError(err.Error())
	}
	if len(versions) == 0 {
		return nil, problem.NewNotFound(name, "no such package")
	}
	var history []models.AuditEntry
	for _, md := range versions {
		entries, err := s.repo.AuditByMetadataID(ctx, md.ID)
		if err != nil {
			return nil, problem.NewInternalServerError(err.Error())
		}
		history = append(history, entries...)
	}
	return history, nil
}

// Reset restores the registry to its default state.
func (s *PackageService) Reset(ctx context.Context) error {
	if err := s.repo.Reset(ctx); err != nil {
		return problem.NewInternalServerError(err.Error())
	}
	log.Printf("[ingest] registry reset")
	return nil
}

// RateAllSources re-rates every package that carries a source URL,
// bounded by a weighted semaphore. Used by the daily job.
func (s *PackageService) RateAllSources(ctx context.Context) error {
	data, err := s.repo.FindDataWithSource(ctx)
	if err != nil {
		return err
	}

	const maxConcurrent = 2
	sem := semaphore.NewWeighted(int64(maxConcurrent))
	g, ctx := errgroup.WithContext(ctx)

	for _, d := range data {
		d := d
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		g.Go(func() error {
			defer sem.Release(1)

			rateCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			defer cancel()

			scores, err := s.rater.Rate(rateCtx, d.URL)
			if err != nil {
				// One broken source must not block the rest.
				log.Printf("[rate-all] skip url=%s: %v", d.URL, err)
				return nil
			}
			return s.repo.SaveRating(rateCtx, ratingRecord(d.URL, scores))
		})
	}
	return g.Wait()
}

// lookup resolves a package record by metadata ID, mapping a malformed or
// unknown ID to not-found and a dangling record to an internal error.
func (s *PackageService) lookup(ctx context.Context, id string) (*models.PackageRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, problem.NewNotFound(id, "package does not exist")
	}
	rec, err := s.repo.FindRecordByMetadataID(ctx, id)
	if err != nil {
		return nil, problem.NewInternalServerError(err.Error())
	}
	if rec == nil {
		return nil, problem.NewNotFound(id, "package does not exist")
	}
	if rec.Metadata == nil || rec.Data == nil {
		return nil, problem.NewInternalServerError(
			fmt.Sprintf("record %s references missing metadata or data", rec.ID))
	}
	return rec, nil
}

func (s *PackageService) audit(ctx context.Context, actor, metadataID, action string) error {
	entry := &models.AuditEntry{
		ID:         shortid.MustGenerate(),
		Actor:      actor,
		Timestamp:  time.Now(),
		MetadataID: metadataID,
		Action:     action,
	}
	if err := s.repo.SaveAudit(ctx, entry); err != nil {
		return problem.NewInternalServerError(err.Error())
	}
	return nil
}

func contentDigest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func packageView(rec *models.PackageRecord) *models.Package {
	return &models.Package{Metadata: *rec.Metadata, Data: *rec.Data}
}

func ratingRecord(url string, scores *rating.Record) *models.RatingRecord {
	return &models.RatingRecord{
		ID:                   uuid.NewString(),
		URL:                  url,
		NetScore:             scores.NetScore,
		BusFactor:            scores.BusFactor,
		Correctness:          scores.Correctness,
		RampUp:               scores.RampUp,
		ResponsiveMaintainer: scores.ResponsiveMaintainer,
		LicenseScore:         scores.LicenseScore,
		GoodPinningPractice:  scores.GoodPinningPractice,
		PullRequest:          scores.PullRequest,
	}
}

func mapArchiveErr(err error) error {
	switch {
	case errors.Is(err, archive.ErrManifestNotFound):
		return problem.NewBadRequest("Content", "no package.json in module",
			problem.InvalidParam{Name: "Content", Reason: "archive carries no readable manifest"})
	case errors.Is(err, archive.ErrMalformedArchive):
		return problem.NewBadRequest("Content", "content is not a valid archive",
			problem.InvalidParam{Name: "Content", Reason: "must be a base64 encoded zip"})
	default:
		return problem.NewInternalServerError(err.Error())
	}
}

func mapSourceErr(url string, err error) error {
	if errors.Is(err, sources.ErrInvalidSourceURL) {
		return problem.NewBadRequest("URL", err.Error(),
			problem.InvalidParam{Name: "URL", Reason: "unrecognized host"})
	}
	return problem.NewUpstreamError(url, err.Error())
}
