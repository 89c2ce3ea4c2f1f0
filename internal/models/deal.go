package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"didex/internal/utils"
)

type DealStatus string

const (
	DealStatusWaitDeposit      DealStatus = "wait_deposit"
	DealStatusProcessing       DealStatus = "processing"
	DealStatusSuccess          DealStatus = "success"
	DealStatusAppeal           DealStatus = "appeal"
	DealStatusResolvedSender   DealStatus = "resolved_sender"
	DealStatusResolvedReceiver DealStatus = "resolved_receiver"
)

// IsTerminal сообщает, является ли статус конечным.
func (s DealStatus) IsTerminal() bool {
	switch s {
	case DealStatusSuccess, DealStatusResolvedSender, DealStatusResolvedReceiver:
		return true
	}
	return false
}

// Rank задаёт частичный порядок статусов для сверки журнала со сделкой:
// статус с большим рангом считается более поздним.
func (s DealStatus) Rank() int {
	switch s {
	case DealStatusWaitDeposit:
		return 0
	case DealStatusProcessing:
		return 1
	case DealStatusAppeal:
		return 2
	case DealStatusSuccess, DealStatusResolvedSender, DealStatusResolvedReceiver:
		return 3
	}
	return -1
}

// Requisites — платёжные реквизиты сделки, заменяются целиком.
type Requisites struct {
	Version int               `json:"version"`
	Method  string            `json:"method"`
	Country string            `json:"country"`
	Bank    string            `json:"bank,omitempty"`
	Account string            `json:"account"`
	Holder  string            `json:"holder,omitempty"`
	Extra   map[string]string `json:"extra,omitempty"`
}

// Commissioner — дополнительный получатель доли выплаты.
type Commissioner struct {
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
}

type Commissioners []Commissioner

// Sum возвращает суммарную долю комиссионеров.
func (cs Commissioners) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, c := range cs {
		total = total.Add(c.Amount)
	}
	return total
}

// Transfer — один перевод в составе выплаты.
type Transfer struct {
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
}

// PayoutDraft — рассчитанная выплата, ожидающая трансляции в сеть.
type PayoutDraft struct {
	Outcome   DealStatus `json:"outcome"`
	Transfers []Transfer `json:"transfers"`
	CreatedAt time.Time  `json:"createdAt"`
}

type Deal struct {
	ID                  string           `gorm:"primaryKey;size:21" json:"id"`
	SenderDID           string           `gorm:"column:sender_did;type:varchar(255);not null;index" json:"senderDID"`
	ReceiverDID         string           `gorm:"column:receiver_did;type:varchar(255);not null;index" json:"receiverDID"`
	ArbiterDID          string           `gorm:"column:arbiter_did;type:varchar(255);not null;index" json:"arbiterDID"`
	EscrowID            *string          `gorm:"size:21;index" json:"escrowID,omitempty"`
	Escrow              EscrowAccount    `gorm:"foreignKey:EscrowID" json:"-"`
	Label               string           `gorm:"type:varchar(255)" json:"label"`
	Description         string           `gorm:"type:text" json:"description"`
	Requisites          *Requisites      `gorm:"serializer:json" json:"requisites,omitempty"`
	Amount              *decimal.Decimal `gorm:"type:decimal(32,8)" json:"amount,omitempty"`
	DepositTxnHash      *string          `gorm:"type:varchar(255)" json:"depositTxnHash,omitempty"`
	PayoutTxnHash       *string          `gorm:"type:varchar(255)" json:"payoutTxnHash,omitempty"`
	PayoutSubmittedHash *string          `gorm:"type:varchar(255)" json:"payoutSubmittedHash,omitempty"`
	PayoutTxn           *PayoutDraft     `gorm:"serializer:json" json:"payoutTxn,omitempty"`
	Commissioners       Commissioners    `gorm:"serializer:json" json:"commissioners,omitempty"`
	NeedReceiverApprove bool             `gorm:"not null;default:false" json:"needReceiverApprove"`
	Status              DealStatus       `gorm:"type:varchar(20);not null;index" json:"status"`
	AppealReason        *string          `gorm:"type:text" json:"appealReason,omitempty"`
	AppealedAt          *time.Time       `json:"appealedAt,omitempty"`
	ResolvedAt          *time.Time       `json:"resolvedAt,omitempty"`
	CreatedAt           time.Time        `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt           time.Time        `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (d *Deal) BeforeCreate(tx *gorm.DB) (err error) {
	if d.ID == "" {
		d.ID, err = utils.GenerateNanoID()
	}
	return
}

// IsParty сообщает, является ли DID одной из двух сторон сделки.
func (d *Deal) IsParty(did string) bool {
	return did == d.SenderDID || did == d.ReceiverDID
}
