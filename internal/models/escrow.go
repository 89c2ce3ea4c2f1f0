package models

import (
	"time"

	"gorm.io/gorm"

	"didex/internal/utils"
)

type EscrowType string

const (
	EscrowTypeMultisig EscrowType = "multisig"
	EscrowTypeContract EscrowType = "contract"
)

type EscrowStatus string

const (
	EscrowStatusPending  EscrowStatus = "pending"
	EscrowStatusActive   EscrowStatus = "active"
	EscrowStatusInactive EscrowStatus = "inactive"
)

type EscrowRole string

const (
	EscrowRoleParticipant EscrowRole = "participant"
	EscrowRoleArbiter     EscrowRole = "arbiter"
)

// MultisigKey — ключ участника мультиподписи с весом.
type MultisigKey struct {
	Address string `json:"address"`
	Weight  int64  `json:"weight"`
}

// MultisigConfig — требуемая конфигурация прав эскроу-адреса.
type MultisigConfig struct {
	Threshold int64         `json:"threshold"`
	Keys      []MultisigKey `json:"keys"`
}

type AddressRole struct {
	Address string     `json:"address"`
	Role    EscrowRole `json:"role"`
}

type AddressRoles []AddressRole

// Participants возвращает адреса с ролью participant в порядке объявления.
func (r AddressRoles) Participants() []string {
	var out []string
	for _, ar := range r {
		if ar.Role == EscrowRoleParticipant {
			out = append(out, ar.Address)
		}
	}
	return out
}

// Arbiter возвращает адрес арбитра или пустую строку.
func (r AddressRoles) Arbiter() string {
	for _, ar := range r {
		if ar.Role == EscrowRoleArbiter {
			return ar.Address
		}
	}
	return ""
}

// EscrowAccount — зарегистрированный эскроу-счёт в сети блокчейна.
// Запись никогда не удаляется, только деактивируется.
type EscrowAccount struct {
	ID             string          `gorm:"primaryKey;size:21" json:"id"`
	Blockchain     string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_escrow_chain_addr" json:"blockchain"`
	Network        string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_escrow_chain_addr" json:"network"`
	Address        string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_escrow_chain_addr" json:"address"`
	Type           EscrowType      `gorm:"type:varchar(20);not null" json:"type"`
	MultisigConfig *MultisigConfig `gorm:"serializer:json" json:"multisigConfig,omitempty"`
	AddressRoles   AddressRoles    `gorm:"serializer:json" json:"addressRoles"`
	ArbiterAddress *string         `gorm:"type:varchar(255)" json:"arbiterAddress,omitempty"`
	OwnerDID       string          `gorm:"column:owner_did;type:varchar(255);not null" json:"ownerDID"`
	Status         EscrowStatus    `gorm:"type:varchar(20);not null;default:pending" json:"status"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (e *EscrowAccount) BeforeCreate(tx *gorm.DB) (err error) {
	if e.ID == "" {
		e.ID, err = utils.GenerateNanoID()
	}
	return
}
