package repository

import (
	"fmt"

	"gorm.io/gorm"

	"pcbrecon/internal/model"
)

type ChatMessageRepository struct {
	db *gorm.DB
}

func NewChatMessageRepository(db *gorm.DB) *ChatMessageRepository {
	return &ChatMessageRepository{db: db}
}

func (r *ChatMessageRepository) Create(message *model.ChatMessage) error {
	if err := r.db.Create(message).Error; err != nil {
		return fmt.Errorf("create chat message failed: %w", err)
	}
	return nil
}

// ListByProjectID returns the most recent limit messages in chronological
// order. limit <= 0 returns the whole conversation.
func (r *ChatMessageRepository) ListByProjectID(projectID uint, limit int) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	q := r.db.Where("project_id = ?", projectID)
	if limit > 0 {
		q = q.Order("created_at DESC").Order("id DESC").Limit(limit)
	} else {
		q = q.Order("created_at ASC").Order("id ASC")
	}
	if err := q.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list chat messages failed: %w", err)
	}
	if limit > 0 {
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
	}
	return messages, nil
}

func (r *ChatMessageRepository) DeleteByProjectID(projectID uint) error {
	if err := r.db.Where("project_id = ?", projectID).Delete(&model.ChatMessage{}).Error; err != nil {
		return fmt.Errorf("delete chat messages failed: %w", err)
	}
	return nil
}
