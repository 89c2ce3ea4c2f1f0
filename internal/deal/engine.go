package deal

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"didex/internal/escrow"
	"didex/internal/models"
)

// Engine — машина состояний сделки. Все переходы сериализуются по сделке:
// смена статуса выполняется условным UPDATE по текущему статусу, из двух
// конкурирующих переходов применяется ровно один. Каждый переход и запись
// в журнал эскроу фиксируются одной транзакцией хранилища, журнал пишется
// до смены статуса.
type Engine struct {
	db     *gorm.DB
	txnlog *escrow.TxnLog
}

func NewEngine(db *gorm.DB) *Engine {
	return &Engine{db: db, txnlog: escrow.NewTxnLog(db)}
}

// TxnLog возвращает журнал эскроу, используемый движком.
func (e *Engine) TxnLog() *escrow.TxnLog {
	return e.txnlog
}

// CreateParams — параметры создания сделки.
type CreateParams struct {
	SenderDID           string
	ReceiverDID         string
	ArbiterDID          string
	Label               string
	Description         string
	EscrowID            *string
	Amount              *decimal.Decimal
	Commissioners       models.Commissioners
	NeedReceiverApprove bool
}

// Create создаёт сделку в статусе wait_deposit.
func (e *Engine) Create(p CreateParams) (*models.Deal, error) {
	if p.SenderDID == "" || p.ReceiverDID == "" || p.ArbiterDID == "" {
		return nil, ErrInvalidParticipants
	}
	if p.SenderDID == p.ReceiverDID {
		return nil, ErrInvalidParticipants
	}
	if p.EscrowID != nil {
		var acc models.EscrowAccount
		if err := e.db.Where("id = ?", *p.EscrowID).First(&acc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, escrow.ErrUnknownEscrow
			}
			return nil, err
		}
		if acc.Status == models.EscrowStatusInactive {
			return nil, escrow.ErrEscrowInactive
		}
	}
	d := &models.Deal{
		SenderDID:           p.SenderDID,
		ReceiverDID:         p.ReceiverDID,
		ArbiterDID:          p.ArbiterDID,
		Label:               p.Label,
		Description:         p.Description,
		EscrowID:            p.EscrowID,
		Amount:              p.Amount,
		Commissioners:       p.Commissioners,
		NeedReceiverApprove: p.NeedReceiverApprove,
		Status:              models.DealStatusWaitDeposit,
	}
	if err := e.db.Create(d).Error; err != nil {
		return nil, err
	}
	return d, nil
}

// Get возвращает сделку, предварительно сверив её статус с журналом эскроу.
func (e *Engine) Get(dealID string) (*models.Deal, error) {
	d, err := e.load(e.db, dealID)
	if err != nil {
		return nil, err
	}
	if _, err := e.Reconcile(d); err != nil {
		return nil, err
	}
	return d, nil
}

// SubmitRequisites заменяет реквизиты целиком; версия растёт монотонно.
func (e *Engine) SubmitRequisites(dealID string, req models.Requisites, byDID string) (*models.Deal, error) {
	var out *models.Deal
	err := e.db.Transaction(func(tx *gorm.DB) error {
		d, err := e.load(tx, dealID)
		if err != nil {
			return err
		}
		if !d.IsParty(byDID) {
			return ErrUnauthorized
		}
		if d.Status.IsTerminal() {
			return ErrInvalidTransition
		}
		req.Version = 1
		if d.Requisites != nil {
			req.Version = d.Requisites.Version + 1
		}
		// сериализатор поля не применяется к map-значениям Update,
		// поэтому JSON кодируется явно
		raw, err := json.Marshal(&req)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.Deal{}).Where("id = ?", d.ID).
			Update("requisites", datatypes.JSON(raw)).Error; err != nil {
			return err
		}
		d.Requisites = &req
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ConfirmDeposit фиксирует подтверждённый депозит: wait_deposit -> processing.
// Повтор с тем же хешем — no-op; другой хеш при уже установленном —
// ErrConflictingDeposit, жёсткий стоп без перезаписи.
func (e *Engine) ConfirmDeposit(dealID, txnHash string, observedAmount decimal.Decimal) (*models.Deal, error) {
	var out *models.Deal
	err := e.db.Transaction(func(tx *gorm.DB) error {
		d, err := e.load(tx, dealID)
		if err != nil {
			return err
		}
		if d.DepositTxnHash != nil {
			if *d.DepositTxnHash == txnHash {
				out = d
				return nil
			}
			return ErrConflictingDeposit
		}
		if d.Status != models.DealStatusWaitDeposit {
			return ErrInvalidTransition
		}
		if d.Amount != nil && !d.Amount.Equal(observedAmount) {
			return ErrAmountMismatch
		}
		amount := observedAmount

		if err := e.recordTransition(tx, d, models.DealStatusProcessing, map[string]any{
			"deposit_txn_hash": txnHash,
			"amount":           amount.String(),
		}, "deposit confirmed"); err != nil {
			return err
		}

		res := tx.Model(&models.Deal{}).
			Where("id = ? AND status = ?", d.ID, models.DealStatusWaitDeposit).
			Updates(map[string]any{
				"status":           models.DealStatusProcessing,
				"deposit_txn_hash": txnHash,
				"amount":           amount,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}
		d.Status = models.DealStatusProcessing
		d.DepositTxnHash = &txnHash
		d.Amount = &amount
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Approve завершает сделку: processing -> success. Достаточно подтверждения
// получателя; отправителя — только если need_receiver_approve снят.
func (e *Engine) Approve(dealID, byDID string) (*models.Deal, error) {
	return e.finish(dealID, byDID, models.DealStatusSuccess, models.DealActionApprove, "deal approved")
}

// RaiseAppeal открывает спор: processing -> appeal. Доступно обеим сторонам.
func (e *Engine) RaiseAppeal(dealID, byDID, reason string) (*models.Deal, error) {
	var out *models.Deal
	err := e.db.Transaction(func(tx *gorm.DB) error {
		d, err := e.load(tx, dealID)
		if err != nil {
			return err
		}
		if d.Status != models.DealStatusProcessing {
			return ErrInvalidTransition
		}
		if !models.CanAct(d, byDID, models.DealActionAppeal) {
			return ErrUnauthorized
		}

		if err := e.recordTransition(tx, d, models.DealStatusAppeal, map[string]any{
			"raised_by": byDID,
		}, "appeal raised"); err != nil {
			return err
		}

		now := time.Now()
		res := tx.Model(&models.Deal{}).
			Where("id = ? AND status = ?", d.ID, models.DealStatusProcessing).
			Updates(map[string]any{
				"status":        models.DealStatusAppeal,
				"appeal_reason": reason,
				"appealed_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}
		d.Status = models.DealStatusAppeal
		d.AppealReason = &reason
		d.AppealedAt = &now
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Favor — сторона, в пользу которой арбитр решает спор.
type Favor string

const (
	FavorSender   Favor = "sender"
	FavorReceiver Favor = "receiver"
)

// ResolveAppeal решает спор: appeal -> resolved_sender | resolved_receiver.
// Доступно только арбитру сделки.
func (e *Engine) ResolveAppeal(dealID, byDID string, favor Favor) (*models.Deal, error) {
	var target models.DealStatus
	switch favor {
	case FavorSender:
		target = models.DealStatusResolvedSender
	case FavorReceiver:
		target = models.DealStatusResolvedReceiver
	default:
		return nil, ErrInvalidOutcome
	}
	return e.finish(dealID, byDID, target, models.DealActionResolve, "appeal resolved in favor of "+string(favor))
}

// ConfirmPayout фиксирует хеш подтверждённой в сети выплаты.
// Идемпотентно по тем же правилам, что и ConfirmDeposit.
func (e *Engine) ConfirmPayout(dealID, txnHash string) (*models.Deal, error) {
	var out *models.Deal
	err := e.db.Transaction(func(tx *gorm.DB) error {
		d, err := e.load(tx, dealID)
		if err != nil {
			return err
		}
		if d.PayoutTxnHash != nil {
			if *d.PayoutTxnHash == txnHash {
				out = d
				return nil
			}
			return ErrConflictingPayout
		}
		if !d.Status.IsTerminal() || d.PayoutTxn == nil {
			return ErrInvalidTransition
		}

		if err := e.recordTransition(tx, d, d.Status, map[string]any{
			"payout_txn_hash": txnHash,
		}, "payout confirmed"); err != nil {
			return err
		}

		res := tx.Model(&models.Deal{}).
			Where("id = ? AND payout_txn_hash IS NULL", d.ID).
			Update("payout_txn_hash", txnHash)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflictingPayout
		}
		d.PayoutTxnHash = &txnHash
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Reconcile сверяет статус сделки с журналом эскроу после возможного сбоя
// между записью журнала и фиксацией статуса. Журнал — источник истины:
// если он указывает на более поздний статус, хранимый статус продвигается.
// Идемпотентно, меняет только поле статуса.
func (e *Engine) Reconcile(d *models.Deal) (bool, error) {
	if d.EscrowID == nil {
		return false, nil
	}
	entry, err := e.txnlog.Get(*d.EscrowID)
	if err != nil || entry == nil {
		return false, err
	}
	var payload struct {
		DealID string `json:"deal_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(entry.Txn, &payload); err != nil || payload.DealID != d.ID {
		return false, nil
	}
	implied := models.DealStatus(payload.Status)
	if implied.Rank() <= d.Status.Rank() {
		return false, nil
	}
	if err := e.db.Model(&models.Deal{}).Where("id = ?", d.ID).
		Update("status", implied).Error; err != nil {
		return false, err
	}
	d.Status = implied
	return true, nil
}

// finish — общий путь входа в конечный статус: авторизация по таблице
// действий, расчёт выплаты, запись в журнал и условная смена статуса.
func (e *Engine) finish(dealID, byDID string, target models.DealStatus, action models.DealAction, comment string) (*models.Deal, error) {
	var out *models.Deal
	err := e.db.Transaction(func(tx *gorm.DB) error {
		d, err := e.load(tx, dealID)
		if err != nil {
			return err
		}
		from := models.DealStatusProcessing
		if target != models.DealStatusSuccess {
			from = models.DealStatusAppeal
		}
		if d.Status != from {
			return ErrInvalidTransition
		}
		if !models.CanAct(d, byDID, action) {
			return ErrUnauthorized
		}
		if target == models.DealStatusSuccess && d.Requisites == nil {
			return ErrRequisitesRequired
		}
		if d.Amount == nil {
			return ErrInvalidTransition
		}

		transfers, err := ComputePayout(*d.Amount, d.Commissioners, target,
			models.DIDAddress(d.SenderDID), models.DIDAddress(d.ReceiverDID))
		if err != nil {
			return err
		}
		now := time.Now()
		draft := &models.PayoutDraft{Outcome: target, Transfers: transfers, CreatedAt: now}
		draftJSON, err := json.Marshal(draft)
		if err != nil {
			return err
		}

		if err := e.recordTransition(tx, d, target, map[string]any{
			"approved_by": byDID,
		}, comment); err != nil {
			return err
		}

		res := tx.Model(&models.Deal{}).
			Where("id = ? AND status = ?", d.ID, from).
			Updates(map[string]any{
				"status":      target,
				"payout_txn":  datatypes.JSON(draftJSON),
				"resolved_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}
		d.Status = target
		d.PayoutTxn = draft
		d.ResolvedAt = &now
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// recordTransition пишет событие перехода в журнал эскроу до смены статуса.
// Сделки без эскроу журнала не имеют.
func (e *Engine) recordTransition(tx *gorm.DB, d *models.Deal, to models.DealStatus, extra map[string]any, comment string) error {
	if d.EscrowID == nil {
		return nil
	}
	payload := map[string]any{
		"deal_id": d.ID,
		"from":    string(d.Status),
		"status":  string(to),
	}
	for k, v := range extra {
		payload[k] = v
	}
	_, err := e.txnlog.RecordTx(tx, *d.EscrowID, models.EscrowTxnTypeEvent, payload, comment)
	return err
}

func (e *Engine) load(tx *gorm.DB, dealID string) (*models.Deal, error) {
	var d models.Deal
	if err := tx.Where("id = ?", dealID).First(&d).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownDeal
		}
		return nil, err
	}
	return &d, nil
}

