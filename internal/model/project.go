package model

import (
	"encoding/base64"
	"time"
)

type Project struct {
	ID           uint          `gorm:"primaryKey" json:"id"`
	Name         string        `gorm:"size:128;not null;index" json:"name"`
	ImagePath    string        `gorm:"size:512;not null" json:"image_path"`
	Image        []byte        `gorm:"not null" json:"-"`
	ImageMIME    string        `gorm:"size:64;not null" json:"image_mime"`
	ImageDigest  string        `gorm:"size:64;index" json:"image_digest"`
	Analysis     string        `gorm:"type:text" json:"analysis"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	ChatMessages []ChatMessage `gorm:"constraint:OnDelete:CASCADE" json:"chat_messages,omitempty"`
}

// ImageDataURL renders the stored image the way browsers and the upload
// form expect it back.
func (p *Project) ImageDataURL() string {
	if len(p.Image) == 0 {
		return ""
	}
	mime := p.ImageMIME
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(p.Image)
}
