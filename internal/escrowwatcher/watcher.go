package escrowwatcher

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"didex/internal/deal"
	"didex/internal/escrow"
	"didex/internal/ledger"
	"didex/internal/models"
)

// Watcher периодически сверяет эскроу-счета и сделки с блокчейном:
// активирует pending-эскроу после проверки прав доступа on-chain,
// отправляет черновики выплат по завершённым сделкам и фиксирует
// подтверждённые хеши выплат.
type Watcher struct {
	db       *gorm.DB
	engine   *deal.Engine
	registry *escrow.Registry
	clients  map[string]ledger.Client
	interval time.Duration
	stopCh   chan struct{}
	// submitted хранит хеши отправленных, но ещё не подтверждённых выплат,
	// чтобы не отправлять одну выплату дважды между тиками
	submitted map[string]string
}

func New(db *gorm.DB, engine *deal.Engine, clients map[string]ledger.Client, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Watcher{
		db:        db,
		engine:    engine,
		registry:  escrow.NewRegistry(db),
		clients:   clients,
		interval:  interval,
		stopCh:    make(chan struct{}),
		submitted: make(map[string]string),
	}
}

// Start запускает периодическую проверку в отдельной горутине
func (w *Watcher) Start() {
	ticker := time.NewTicker(w.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.check()
			case <-w.stopCh:
				return
			}
		}
	}()
}

// Stop останавливает проверку
func (w *Watcher) Stop() { close(w.stopCh) }

func (w *Watcher) check() {
	ctx, cancel := context.WithTimeout(context.Background(), w.interval)
	defer cancel()
	w.activateOnce(ctx)
	w.payoutOnce(ctx)
}

// activateOnce активирует pending-эскроу, чьи on-chain права совпадают
// с заявленной мультиподписью. Расхождение оставляет счёт в pending.
func (w *Watcher) activateOnce(ctx context.Context) {
	var accounts []models.EscrowAccount
	if err := w.db.Where("status = ?", models.EscrowStatusPending).
		Limit(100).Find(&accounts).Error; err != nil {
		log.Printf("ошибка базы данных: %v", err)
		return
	}
	for _, acc := range accounts {
		cl, ok := w.clients[acc.Blockchain]
		if !ok {
			continue
		}
		perms, err := cl.GetAccountPermissions(ctx, acc.Address)
		if err != nil {
			if !errors.Is(err, ledger.ErrUnavailable) {
				log.Printf("эскроу %s: ошибка запроса прав: %v", acc.ID, err)
			}
			continue
		}
		if err := w.registry.Activate(acc.ID, perms); err != nil {
			if errors.Is(err, escrow.ErrPermissionMismatch) {
				log.Printf("эскроу %s: права on-chain не совпадают с конфигурацией", acc.ID)
				continue
			}
			log.Printf("эскроу %s: ошибка активации: %v", acc.ID, err)
		}
	}
}

// payoutOnce отправляет черновики выплат по завершённым сделкам и переводит
// подтверждённые сетью выплаты в payout_txn_hash. Хеш отправленной выплаты
// фиксируется в payout_submitted_hash сделки той же транзакцией, что и запись
// журнала, так что после перезапуска выплата не отправляется повторно,
// а дожидается подтверждения.
func (w *Watcher) payoutOnce(ctx context.Context) {
	terminal := []models.DealStatus{
		models.DealStatusSuccess,
		models.DealStatusResolvedSender,
		models.DealStatusResolvedReceiver,
	}
	var deals []models.Deal
	if err := w.db.Where(
		"status IN ? AND payout_txn IS NOT NULL AND payout_txn_hash IS NULL AND escrow_id IS NOT NULL",
		terminal).Limit(100).Find(&deals).Error; err != nil {
		log.Printf("ошибка базы данных: %v", err)
		return
	}
	for i := range deals {
		w.handlePayout(ctx, &deals[i])
	}
}

func (w *Watcher) handlePayout(ctx context.Context, d *models.Deal) {
	acc, err := w.registry.Get(*d.EscrowID)
	if err != nil {
		log.Printf("сделка %s: ошибка загрузки эскроу: %v", d.ID, err)
		return
	}
	cl, ok := w.clients[acc.Blockchain]
	if !ok {
		return
	}

	hash := w.submittedHash(d)
	if hash == "" {
		payload, err := json.Marshal(d.PayoutTxn)
		if err != nil {
			log.Printf("сделка %s: ошибка сериализации выплаты: %v", d.ID, err)
			return
		}
		hash, err = cl.SubmitTransaction(ctx, acc.Address, payload)
		if err != nil {
			if !errors.Is(err, ledger.ErrUnavailable) {
				log.Printf("сделка %s: выплата отклонена: %v", d.ID, err)
			}
			return
		}
		if err := w.rememberSubmission(acc.ID, d, hash); err != nil {
			log.Printf("сделка %s: ошибка фиксации отправки: %v", d.ID, err)
		}
		w.submitted[d.ID] = hash
	}

	status, err := cl.GetTransactionStatus(ctx, hash)
	if err != nil {
		if !errors.Is(err, ledger.ErrUnavailable) {
			log.Printf("сделка %s: ошибка запроса статуса выплаты: %v", d.ID, err)
		}
		return
	}
	switch status {
	case ledger.TxnStatusConfirmed:
		if _, err := w.engine.ConfirmPayout(d.ID, hash); err != nil {
			log.Printf("сделка %s: ошибка фиксации выплаты: %v", d.ID, err)
			return
		}
		delete(w.submitted, d.ID)
	case ledger.TxnStatusFailed:
		log.Printf("сделка %s: выплата %s не прошла, будет отправлена заново", d.ID, hash)
		delete(w.submitted, d.ID)
		w.forgetSubmission(acc.ID, d)
	}
}

// submittedHash возвращает хеш уже отправленной выплаты: сперва из памяти,
// затем из колонки сделки (случай перезапуска). Хеш хранится на сделке,
// а не в журнале эскроу: строка журнала одна на счёт, и событие другой
// сделки того же эскроу затёрло бы её.
func (w *Watcher) submittedHash(d *models.Deal) string {
	if h, ok := w.submitted[d.ID]; ok {
		return h
	}
	if d.PayoutSubmittedHash == nil || *d.PayoutSubmittedHash == "" {
		return ""
	}
	w.submitted[d.ID] = *d.PayoutSubmittedHash
	return *d.PayoutSubmittedHash
}

// rememberSubmission фиксирует хеш отправленной выплаты на сделке и в журнале
// эскроу одной транзакцией. Колонка сделки — защита от повторной отправки,
// запись журнала — аудит.
func (w *Watcher) rememberSubmission(escrowID string, d *models.Deal, hash string) error {
	return w.db.Transaction(func(tx *gorm.DB) error {
		if _, err := w.engine.TxnLog().RecordTx(tx, escrowID, models.EscrowTxnTypeTxn, map[string]any{
			"deal_id":         d.ID,
			"status":          string(d.Status),
			"payout_txn_hash": hash,
		}, "payout submitted"); err != nil {
			return err
		}
		if err := tx.Model(&models.Deal{}).Where("id = ?", d.ID).
			Update("payout_submitted_hash", hash).Error; err != nil {
			return err
		}
		d.PayoutSubmittedHash = &hash
		return nil
	})
}

// forgetSubmission снимает хеш провалившейся выплаты со сделки, иначе
// следующий тик снова взял бы его вместо переотправки.
func (w *Watcher) forgetSubmission(escrowID string, d *models.Deal) {
	if err := w.db.Model(&models.Deal{}).Where("id = ?", d.ID).
		Update("payout_submitted_hash", nil).Error; err != nil {
		log.Printf("сделка %s: ошибка сброса отправки: %v", d.ID, err)
		return
	}
	d.PayoutSubmittedHash = nil
	if _, err := w.engine.TxnLog().Record(escrowID, models.EscrowTxnTypeEvent, map[string]any{
		"deal_id": d.ID,
		"status":  string(d.Status),
	}, "payout failed"); err != nil {
		log.Printf("сделка %s: ошибка записи в журнал: %v", d.ID, err)
	}
}
