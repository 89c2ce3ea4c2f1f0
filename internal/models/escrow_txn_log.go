package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"didex/internal/utils"
)

type EscrowTxnType string

const (
	EscrowTxnTypeTxn   EscrowTxnType = "txn"
	EscrowTxnTypeEvent EscrowTxnType = "event"
)

// EscrowTxnLog — журнал операций по эскроу, одна строка на счёт.
// Повтор идентичного события инкрементирует Counter вместо новой строки.
type EscrowTxnLog struct {
	ID          string         `gorm:"primaryKey;size:21" json:"id"`
	EscrowID    string         `gorm:"size:21;not null;unique" json:"escrowID"`
	Escrow      EscrowAccount  `gorm:"foreignKey:EscrowID" json:"-"`
	Type        EscrowTxnType  `gorm:"type:varchar(10);not null" json:"type"`
	Txn         datatypes.JSON `gorm:"type:json" json:"txn" swaggertype:"object"`
	Fingerprint string         `gorm:"type:varchar(64);not null;index" json:"-"`
	Comment     string         `gorm:"type:text" json:"comment"`
	Counter     int64          `gorm:"not null;default:1" json:"counter"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (l *EscrowTxnLog) BeforeCreate(tx *gorm.DB) (err error) {
	if l.ID == "" {
		l.ID, err = utils.GenerateNanoID()
	}
	return
}
