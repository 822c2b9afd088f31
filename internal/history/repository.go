package history

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// SaveRecommendation persists one published recommendation
func (r *Repository) SaveRecommendation(rec *RecommendationRecord) error {
	return r.db.Create(rec).Error
}

// GetRecommendations retrieves recommendations for a request type,
// newest first. An empty requestType returns all types.
func (r *Repository) GetRecommendations(requestType string, limit int) ([]RecommendationRecord, error) {
	var recs []RecommendationRecord
	query := r.db.Order("generated_at DESC")

	if requestType != "" {
		query = query.Where("request_type = ?", requestType)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&recs).Error
	return recs, err
}

// GetRecommendationsInRange retrieves recommendations within a time range
func (r *Repository) GetRecommendationsInRange(requestType string, start, end time.Time) ([]RecommendationRecord, error) {
	var recs []RecommendationRecord
	err := r.db.Where("request_type = ? AND generated_at BETWEEN ? AND ?", requestType, start, end).
		Order("generated_at ASC").
		Find(&recs).Error
	return recs, err
}

// LatestRecommendation gets the most recent recommendation for a type
func (r *Repository) LatestRecommendation(requestType string) (*RecommendationRecord, error) {
	var rec RecommendationRecord
	err := r.db.Where("request_type = ?", requestType).
		Order("generated_at DESC").
		First(&rec).Error

	if err != nil {
		return nil, fmt.Errorf("failed to get latest recommendation: %w", err)
	}

	return &rec, nil
}

// SaveReconciliation persists a feedback report
func (r *Repository) SaveReconciliation(rec *ReconciliationRecord) error {
	return r.db.Create(rec).Error
}

// GetReconciliations retrieves feedback reports for a request type
func (r *Repository) GetReconciliations(requestType string, limit int) ([]ReconciliationRecord, error) {
	var recs []ReconciliationRecord
	query := r.db.Where("request_type = ?", requestType).Order("timestamp DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&recs).Error
	return recs, err
}

// SaveInsightSnapshot persists one insights cycle
func (r *Repository) SaveInsightSnapshot(snapshot *InsightSnapshot) error {
	return r.db.Create(snapshot).Error
}

// GetInsightSnapshots retrieves insight snapshots, newest first
func (r *Repository) GetInsightSnapshots(limit int) ([]InsightSnapshot, error) {
	var snapshots []InsightSnapshot
	query := r.db.Order("generated_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&snapshots).Error
	return snapshots, err
}

// SaveAccuracySample persists a prediction-vs-observed comparison
func (r *Repository) SaveAccuracySample(sample *AccuracySample) error {
	return r.db.Create(sample).Error
}

// GetAccuracySamples retrieves accuracy samples for a strategy. Empty
// strategy matches all strategies for the type.
func (r *Repository) GetAccuracySamples(requestType string, strategy string) ([]AccuracySample, error) {
	var samples []AccuracySample
	query := r.db.Where("request_type = ?", requestType)

	if strategy != "" {
		query = query.Where("strategy = ?", strategy)
	}

	err := query.Order("timestamp DESC").Find(&samples).Error
	return samples, err
}

// GetTypeSummary gets aggregated stats for a request type
func (r *Repository) GetTypeSummary(requestType string) (map[string]interface{}, error) {
	summary := make(map[string]interface{})

	var stats struct {
		TotalRecommendations int64
		ActionableCount      int64
		AvgConfidence        float64
		MaxGainPercent       float64
		ReconciliationCount  int64
	}

	r.db.Model(&RecommendationRecord{}).
		Where("request_type = ?", requestType).
		Count(&stats.TotalRecommendations)

	r.db.Model(&RecommendationRecord{}).
		Where("request_type = ? AND strategy != ?", requestType, "none").
		Count(&stats.ActionableCount)

	r.db.Model(&RecommendationRecord{}).
		Where("request_type = ?", requestType).
		Select("AVG(confidence) as avg_confidence, MAX(estimated_gain_percent) as max_gain_percent").
		Scan(&stats)

	r.db.Model(&ReconciliationRecord{}).
		Where("request_type = ?", requestType).
		Count(&stats.ReconciliationCount)

	summary["request_type"] = requestType
	summary["statistics"] = stats

	return summary, nil
}

// BatchSaveRecommendations saves multiple recommendations efficiently
func (r *Repository) BatchSaveRecommendations(recs []RecommendationRecord) error {
	if len(recs) == 0 {
		return nil
	}

	return r.db.CreateInBatches(recs, 100).Error
}

// PruneBefore deletes all records older than the cutoff
func (r *Repository) PruneBefore(cutoff time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("generated_at < ?", cutoff).Delete(&RecommendationRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("timestamp < ?", cutoff).Delete(&ReconciliationRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("generated_at < ?", cutoff).Delete(&InsightSnapshot{}).Error; err != nil {
			return err
		}
		return tx.Where("timestamp < ?", cutoff).Delete(&AccuracySample{}).Error
	})
}
