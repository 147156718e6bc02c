package repositories

import (
	"context"
	"errors"

	"github.com/acme-corp/module-registry-api/pkg/registry/models"
	"gorm.io/gorm"
)

// PackageRepository is the record store consumed by the services. Lookups
// return (nil, nil) when nothing matches; cascades run in one transaction
// so a failing step never leaves orphaned rows.
type PackageRepository interface {
	FindRecordByMetadataID(ctx context.Context, metadataID string) (*models.PackageRecord, error)
	FindDataByDigest(ctx context.Context, digest string) (*models.PackageData, error)
	FindDataByURL(ctx context.Context, url string) (*models.PackageData, error)
	FindDataWithSource(ctx context.Context) ([]models.PackageData, error)
	FindMetadataByName(ctx context.Context, name string) ([]models.PackageMetadata, error)
	QueryMetadata(ctx context.Context, name, version string) ([]models.PackageMetadata, error)
	CreatePackage(ctx context.Context, rec *models.PackageRecord) error
	ReplaceContent(ctx context.Context, dataID string, content []byte, digest string) error
	DeleteByMetadataID(ctx context.Context, metadataID string) error
	SaveAudit(ctx context.Context, entry *models.AuditEntry) error
	AuditByMetadataID(ctx context.Context, metadataID string) ([]models.AuditEntry, error)
	SaveRating(ctx context.Context, rec *models.RatingRecord) error
	EnsureDefaultUser(ctx context.Context) error
	Reset(ctx context.Context) error
}

type packageRepository struct {
	db *gorm.DB
}

func NewPackageRepository(db *gorm.DB) PackageRepository {
	return &packageRepository{db: db}
}

func (r *packageRepository) FindRecordByMetadataID(ctx context.Context, metadataID string) (*models.PackageRecord, error) {
	var rec models.PackageRecord
	err := r.db.WithContext(ctx).
		Preload("Metadata").
		Preload("Data").
		Where("metadata_id = ?", metadataID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *packageRepository) FindDataByDigest(ctx context.Context, digest string) (*models.PackageData, error) {
	return r.findData(ctx, "content_digest = ?", digest)
}

func (r *packageRepository) FindDataByURL(ctx context.Context, url string) (*models.PackageData, error) {
	return r.findData(ctx, "url = ?", url)
}

func (r *packageRepository) findData(ctx context.Context, cond string, arg any) (*models.PackageData, error) {
	var data models.PackageData
	err := r.db.WithContext(ctx).Where(cond, arg).First(&data).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &data, nil
}

// FindDataWithSource lists the data rows carrying a source URL, without
// their content blobs. Serves the batch re-rating job.
func (r *packageRepository) FindDataWithSource(ctx context.Context) ([]models.PackageData, error) {
	var out []models.PackageData
	err := r.db.WithContext(ctx).
		Select("id", "url", "gate_script").
		Where("url <> ''").
		Find(&out).Error
	return out, err
}

func (r *packageRepository) FindMetadataByName(ctx context.Context, name string) ([]models.PackageMetadata, error) {
	var out []models.PackageMetadata
	err := r.db.WithContext(ctx).
		Where("name = ?", name).
		Order("created_at, id").
		Find(&out).Error
	return out, err
}

// QueryMetadata serves the batch resolver. Name "*" matches everything;
// an empty version matches any version, otherwise literal equality.
// Ordering is stable for a given store state.
func (r *packageRepository) QueryMetadata(ctx context.Context, name, version string) ([]models.PackageMetadata, error) {
	q := r.db.WithContext(ctx).Model(&models.PackageMetadata{})
	if name != "*" {
		q = q.Where("name = ?", name)
	}
	if version != "" {
		q = q.Where("version = ?", version)
	}
	var out []models.PackageMetadata
	err := q.Order("created_at, id").Find(&out).Error
	return out, err
}

func (r *packageRepository) CreatePackage(ctx context.Context, rec *models.PackageRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec.Data).Error; err != nil {
			return err
		}
		if err := tx.Create(rec.Metadata).Error; err != nil {
			return err
		}
		return tx.Omit("Metadata", "Data").Create(rec).Error
	})
}

func (r *packageRepository) ReplaceContent(ctx context.Context, dataID string, content []byte, digest string) error {
	return r.db.WithContext(ctx).
		Model(&models.PackageData{}).
		Where("id = ?", dataID).
		Updates(map[string]any{"content": content, "content_digest": digest}).Error
}

// DeleteByMetadataID cascades record, data, metadata and every audit
// entry referencing the metadata.
func (r *packageRepository) DeleteByMetadataID(ctx context.Context, metadataID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec models.PackageRecord
		if err := tx.Where("metadata_id = ?", metadataID).First(&rec).Error; err != nil {
			return err
		}
		if err := tx.Where("metadata_id = ?", metadataID).Delete(&models.AuditEntry{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.PackageRecord{}, "id = ?", rec.ID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.PackageData{}, "id = ?", rec.DataID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.PackageMetadata{}, "id = ?", metadataID).Error
	})
}

func (r *packageRepository) SaveAudit(ctx context.Context, entry *models.AuditEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *packageRepository) AuditByMetadataID(ctx context.Context, metadataID string) ([]models.AuditEntry, error) {
	var out []models.AuditEntry
	err := r.db.WithContext(ctx).
		Where("metadata_id = ?", metadataID).
		Order("timestamp, id").
		Find(&out).Error
	return out, err
}

func (r *packageRepository) SaveRating(ctx context.Context, rec *models.RatingRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *packageRepository) EnsureDefaultUser(ctx context.Context) error {
	var u models.User
	err := r.db.WithContext(ctx).Where("name = ?", models.DefaultAdminUser).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.WithContext(ctx).Create(&models.User{Name: models.DefaultAdminUser, IsAdmin: true}).Error
	}
	return err
}

// Reset cleans every collection and recreates the default admin.
func (r *packageRepository) Reset(ctx context.Context) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range []any{
			&models.PackageRecord{},
			&models.PackageData{},
			&models.PackageMetadata{},
			&models.AuditEntry{},
			&models.RatingRecord{},
			&models.User{},
		} {
			if err := tx.Where("1 = 1").Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Create(&models.User{Name: models.DefaultAdminUser, IsAdmin: true}).Error
	})
}
