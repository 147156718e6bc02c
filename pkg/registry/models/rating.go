package models

import "time"

// RatingRecord stores one rating invocation. Produced fresh per rate
// request; no per-package history is kept beyond the stored rows.
type RatingRecord struct {
	ID                   string    `json:"-" gorm:"column:id;primaryKey"`
	URL                  string    `json:"-" gorm:"column:url"`
	NetScore             float64   `json:"NetScore" gorm:"column:net_score"`
	BusFactor            float64   `json:"BusFactor" gorm:"column:bus_factor"`
	Correctness          float64   `json:"Correctness" gorm:"column:correctness"`
	RampUp               float64   `json:"RampUp" gorm:"column:ramp_up"`
	ResponsiveMaintainer float64   `json:"ResponsiveMaintainer" gorm:"column:responsive_maintainer"`
	LicenseScore         float64   `json:"LicenseScore" gorm:"column:license_score"`
	GoodPinningPractice  float64   `json:"GoodPinningPractice" gorm:"column:good_pinning_practice"`
	PullRequest          float64   `json:"PullRequest" gorm:"column:pull_request"`
	CreatedAt            time.Time `json:"-" gorm:"column:created_at;autoCreateTime"`
}
