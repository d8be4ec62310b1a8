package model

import "time"

const (
	SenderUser = "user"
	SenderBot  = "bot"
)

type ChatMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProjectID uint      `gorm:"not null;index" json:"project_id"`
	Sender    string    `gorm:"size:16;not null" json:"sender"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
