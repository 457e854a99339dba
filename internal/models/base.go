package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base replaces gorm.Model with a string UUID key so ids can be handed out
// before a row is written.
type Base struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// All lists every model for migration.
func All() []interface{} {
	return []interface{}{
		&Schedule{},
		&ScheduleRun{},
		&Template{},
		&Report{},
		&Slide{},
		&Account{},
		&Integration{},
		&Campaign{},
		&Client{},
		&UserProfile{},
	}
}
