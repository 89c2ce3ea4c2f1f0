package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"didex/internal/utils"
)

// Account — держатель DID, участник сделок.
type Account struct {
	ID           string         `gorm:"primaryKey;size:21"`
	DID          string         `gorm:"column:did;type:varchar(255);not null;unique"`
	Username     string         `gorm:"type:varchar(255);not null;unique"`
	Password     *string        `gorm:"type:varchar(255)"`
	PinCode      *string        `gorm:"type:varchar(255)"`
	TwoFAEnabled bool           `gorm:"not null;default:false"`
	TOTPSecret   *string        `gorm:"type:varchar(255)"`
	Bip39        datatypes.JSON `gorm:"type:json"`
	RegistredAt  time.Time      `gorm:"autoCreateTime"`
}

func (a *Account) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == "" {
		a.ID, err = utils.GenerateNanoID()
	}
	return
}
