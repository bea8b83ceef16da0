package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/xtarr/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// detailRepository implements DetailRepository using GORM.
type detailRepository struct {
	db *gorm.DB
}

// NewDetailRepository creates a new DetailRepository.
func NewDetailRepository(db *gorm.DB) DetailRepository {
	return &detailRepository{db: db}
}

// Upsert creates or updates a detail based on its (target, kind, content_id) key.
func (r *detailRepository) Upsert(ctx context.Context, detail *models.XtreamDetail) error {
	if err := detail.Validate(); err != nil {
		return fmt.Errorf("validating detail: %w", err)
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "target"}, {Name: "kind"}, {Name: "content_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"input",
			"payload",
			"updated_at",
		}),
	}).Create(detail).Error
}

// Get retrieves a detail by key.
func (r *detailRepository) Get(ctx context.Context, target string, kind models.DetailKind, contentID int64) (*models.XtreamDetail, error) {
	var detail models.XtreamDetail
	err := r.db.WithContext(ctx).
		Where("target = ? AND kind = ? AND content_id = ?", target, kind, contentID).
		First(&detail).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

// DeleteByTarget hard-deletes all details for a target.
func (r *detailRepository) DeleteByTarget(ctx context.Context, target string) (int64, error) {
	result := r.db.WithContext(ctx).Delete(&models.XtreamDetail{}, "target = ?", target)
	return result.RowsAffected, result.Error
}

// Count returns the number of details for a target.
func (r *detailRepository) Count(ctx context.Context, target string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.XtreamDetail{}).Where("target = ?", target).Count(&count).Error
	return count, err
}
