package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"pcbrecon/internal/model"
)

type ProjectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Create(project *model.Project) error {
	if err := r.db.Create(project).Error; err != nil {
		return fmt.Errorf("create project failed: %w", err)
	}
	return nil
}

func (r *ProjectRepository) GetByID(id uint) (*model.Project, error) {
	var project model.Project
	if err := r.db.First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get project failed: %w", err)
	}
	return &project, nil
}

func (r *ProjectRepository) GetByIDWithMessages(id uint) (*model.Project, error) {
	var project model.Project
	err := r.db.
		Preload("ChatMessages", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("id ASC")
		}).
		First(&project, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get project with messages failed: %w", err)
	}
	return &project, nil
}

// List returns projects newest first. The image blob is included so
// callers can render thumbnails.
func (r *ProjectRepository) List(offset, limit int) ([]model.Project, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 100
	}

	var projects []model.Project
	if err := r.db.Order("created_at DESC").Order("id DESC").Offset(offset).Limit(limit).Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("list projects failed: %w", err)
	}
	return projects, nil
}

// DeleteByID removes the project and its chat messages. It reports false
// when no project with that id existed.
func (r *ProjectRepository) DeleteByID(id uint) (bool, error) {
	var deleted bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", id).Delete(&model.ChatMessage{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&model.Project{}, id)
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete project failed: %w", err)
	}
	return deleted, nil
}

// FindAnalysisByDigest returns the newest non-empty analysis stored for an
// identical image, or "" when there is none.
func (r *ProjectRepository) FindAnalysisByDigest(digest string) (string, error) {
	if digest == "" {
		return "", nil
	}
	var analyses []string
	err := r.db.Model(&model.Project{}).
		Where("image_digest = ? AND analysis <> ''", digest).
		Order("id DESC").
		Limit(1).
		Pluck("analysis", &analyses).Error
	if err != nil {
		return "", fmt.Errorf("find analysis by digest failed: %w", err)
	}
	if len(analyses) == 0 {
		return "", nil
	}
	return analyses[0], nil
}
