/*
 * ACME Module Registry API v1
 *
 * Registry for software packages ingested by upload or by source reference.
 */

package models

import "time"

// PackageMetadata is the catalog view of a stored package. ID is the only
// stable handle external callers should use; Name+Version pairs are not
// unique because multiple versions of a name coexist.
type PackageMetadata struct {
	ID        string    `json:"ID" gorm:"column:id;primaryKey"`
	Name      string    `json:"Name" gorm:"column:name;index"`
	Version   string    `json:"Version" gorm:"column:version"`
	CreatedAt time.Time `json:"-" gorm:"column:created_at;autoCreateTime"`
}

// PackageData holds the raw archive bytes plus the optional source URL and
// gate script. Content is always present after ingestion: upload mode
// stores the uploaded bytes, reference mode stores the fetched snapshot.
type PackageData struct {
	ID            string `json:"-" gorm:"column:id;primaryKey"`
	Content       []byte `json:"Content,omitempty" gorm:"column:content"`
	ContentDigest string `json:"-" gorm:"column:content_digest;index"`
	URL           string `json:"URL,omitempty" gorm:"column:url;index"`
	GateScript    string `json:"GateScript,omitempty" gorm:"column:gate_script"`
}

// PackageRecord links exactly one PackageMetadata to exactly one
// PackageData. Created and deleted atomically with both.
type PackageRecord struct {
	ID         string           `gorm:"column:id;primaryKey"`
	MetadataID string           `gorm:"column:metadata_id;index"`
	DataID     string           `gorm:"column:data_id"`
	Metadata   *PackageMetadata `gorm:"foreignKey:MetadataID"`
	Data       *PackageData     `gorm:"foreignKey:DataID"`
}

// Package is the external view returned by create/retrieve.
type Package struct {
	Metadata PackageMetadata `json:"metadata"`
	Data     PackageData     `json:"data"`
}

// User is the minimal identity record; the registry seeds one default
// admin on startup and after a reset.
type User struct {
	Name    string `json:"name" gorm:"column:name;primaryKey"`
	IsAdmin bool   `json:"isAdmin" gorm:"column:is_admin"`
}

// DefaultAdminUser is recreated by bootstrap and reset.
const DefaultAdminUser = "acme-default-admin"
