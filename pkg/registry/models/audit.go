package models

import "time"

// Audit actions. Entries are append-only and removed only as a cascade of
// deleting the package they reference.
const (
	ActionCreate   = "CREATE"
	ActionUpdate   = "UPDATE"
	ActionDownload = "DOWNLOAD"
	ActionRate     = "RATE"
)

// AuditEntry records one lifecycle action on a package, keyed by the
// package's metadata ID.
type AuditEntry struct {
	ID         string    `json:"-" gorm:"column:id;primaryKey"`
	Actor      string    `json:"User" gorm:"column:actor"`
	Timestamp  time.Time `json:"Date" gorm:"column:timestamp;autoCreateTime"`
	MetadataID string    `json:"PackageMetadataID" gorm:"column:metadata_id;index"`
	Action     string    `json:"Action" gorm:"column:action"`
}
