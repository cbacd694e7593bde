package repository

import (
	"neuroscreen-go/internal/model"

	"gorm.io/gorm"
)

// ProfileRepository persists reference profiles and computed thresholds.
type ProfileRepository interface {
	BatchCreateProfiles(profiles []*model.ReferenceProfile) error
	DeleteProfilesByTypeAndUser(datasetType string, userID uint) error
	DeleteProfilesByTypeAndUpload(datasetType, uploadID string) error
	ReplaceThresholds(datasetType string, thresholds []*model.ComputedThreshold) error
	FindThresholds(datasetType string) ([]model.ComputedThreshold, error)
}

type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

// BatchCreateProfiles inserts a batch of reference profiles in one statement.
func (r *profileRepository) BatchCreateProfiles(profiles []*model.ReferenceProfile) error {
	if len(profiles) == 0 {
		return nil
	}
	return r.db.CreateInBatches(profiles, 100).Error
}

// DeleteProfilesByTypeAndUser removes a user's profiles for one dataset type.
// Run before reprocessing so re-ingesting is idempotent, not additive.
func (r *profileRepository) DeleteProfilesByTypeAndUser(datasetType string, userID uint) error {
	return r.db.Where("dataset_type = ? AND user_id = ?", datasetType, userID).
		Delete(&model.ReferenceProfile{}).Error
}

// DeleteProfilesByTypeAndUpload removes the profiles produced from one upload.
func (r *profileRepository) DeleteProfilesByTypeAndUpload(datasetType, uploadID string) error {
	return r.db.Where("dataset_type = ? AND upload_id = ?", datasetType, uploadID).
		Delete(&model.ReferenceProfile{}).Error
}

// ReplaceThresholds deletes every threshold row for the dataset type and
// bulk-inserts the new set in one transaction. Thresholds are a pure function
// of the current run, never patched incrementally.
func (r *profileRepository) ReplaceThresholds(datasetType string, thresholds []*model.ComputedThreshold) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("dataset_type = ?", datasetType).Delete(&model.ComputedThreshold{}).Error; err != nil {
			return err
		}
		if len(thresholds) == 0 {
			return nil
		}
		return tx.CreateInBatches(thresholds, 100).Error
	})
}

// FindThresholds returns the threshold rows for a dataset type ordered by
// metric name.
func (r *profileRepository) FindThresholds(datasetType string) ([]model.ComputedThreshold, error) {
	var thresholds []model.ComputedThreshold
	err := r.db.Where("dataset_type = ?", datasetType).Order("metric_name asc").Find(&thresholds).Error
	return thresholds, err
}
