package app

import (
	"context"

	"pcbrecon/internal/model"
	"pcbrecon/internal/repository"
)

// MessagePublisher hands a chat message to whatever persists it. The
// RabbitMQ publisher does this asynchronously; DirectPublisher writes
// through the repository and fills in the generated ID.
type MessagePublisher interface {
	Publish(ctx context.Context, msg *model.ChatMessage) error
}

type DirectPublisher struct {
	repo *repository.ChatMessageRepository
}

func NewDirectPublisher(repo *repository.ChatMessageRepository) *DirectPublisher {
	return &DirectPublisher{repo: repo}
}

func (p *DirectPublisher) Publish(_ context.Context, msg *model.ChatMessage) error {
	return p.repo.Create(msg)
}
