package domain

import "time"

// AllowedRange stores one range descriptor admitted to the landing page.
type AllowedRange struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	// Descriptor holds the raw text (e.g. 192.0.2.0/24, 192.0.2.*, 192.0.2.1-192.0.2.9).
	Descriptor string `gorm:"size:64;uniqueIndex;not null"`
	Source     string `gorm:"size:512;not null;default:''"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
