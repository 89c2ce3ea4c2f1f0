package models

import (
	"time"

	"gorm.io/gorm"

	"didex/internal/utils"
)

// Attachment — файл, приложенный к сделке; содержимое хранится во внешнем хранилище.
type Attachment struct {
	ID          string    `gorm:"primaryKey;size:21" json:"id"`
	DealID      string    `gorm:"size:21;not null;index" json:"dealID"`
	Deal        Deal      `gorm:"foreignKey:DealID" json:"-"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	ContentType string    `gorm:"type:varchar(128)" json:"contentType"`
	ObjectKey   string    `gorm:"type:varchar(255);not null" json:"-"`
	UploadedBy  string    `gorm:"type:varchar(255);not null" json:"uploadedBy"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (a *Attachment) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == "" {
		a.ID, err = utils.GenerateNanoID()
	}
	return
}
