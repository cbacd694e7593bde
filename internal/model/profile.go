package model

import "time"

// ReferenceProfile is the ORM model for the 'dataset_reference_profiles'
// table: the persisted, normalized form of one parsed subject record. The
// full set for a (dataset type, uploader) or (dataset type, upload) scope is
// deleted before reprocessing, so re-running an ingest is idempotent.
type ReferenceProfile struct {
	ID           uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	DatasetType  string     `gorm:"type:varchar(50);not null;index" json:"datasetType"`
	SubjectLabel string     `gorm:"type:varchar(255);not null" json:"subjectLabel"`
	IsPositive   bool       `gorm:"not null" json:"isPositive"`
	Features     FeatureMap `gorm:"type:json" json:"features"`
	UploadID     *string    `gorm:"type:varchar(64);index" json:"uploadId"`
	UserID       uint       `gorm:"not null;index" json:"userId"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName maps the model to its table.
func (ReferenceProfile) TableName() string {
	return "dataset_reference_profiles"
}

// ComputedThreshold is the ORM model for the 'dataset_computed_thresholds'
// table: one row per (dataset type, metric), fully replaced on every
// processing run. It carries no per-user owner; thresholds are global derived
// state.
type ComputedThreshold struct {
	ID                 uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	DatasetType        string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_type_metric,priority:1" json:"datasetType"`
	MetricName         string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_type_metric,priority:2" json:"metricName"`
	PositiveMean       float64   `gorm:"not null" json:"positiveMean"`
	PositiveStd        float64   `gorm:"not null" json:"positiveStd"`
	NegativeMean       float64   `gorm:"not null" json:"negativeMean"`
	NegativeStd        float64   `gorm:"not null" json:"negativeStd"`
	OptimalThreshold   float64   `gorm:"not null" json:"optimalThreshold"`
	Weight             float64   `gorm:"not null" json:"weight"`
	SampleSizePositive int       `gorm:"not null" json:"sampleSizePositive"`
	SampleSizeNegative int       `gorm:"not null" json:"sampleSizeNegative"`
	ComputedAt         time.Time `gorm:"autoCreateTime" json:"computedAt"`
}

// TableName maps the model to its table.
func (ComputedThreshold) TableName() string {
	return "dataset_computed_thresholds"
}
