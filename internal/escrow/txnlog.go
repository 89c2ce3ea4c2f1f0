package escrow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"didex/internal/models"
)

// TxnLog — идемпотентный журнал операций по эскроу: одна строка на счёт,
// повтор идентичного события схлопывается в инкремент счётчика.
type TxnLog struct {
	db *gorm.DB
}

func NewTxnLog(db *gorm.DB) *TxnLog {
	return &TxnLog{db: db}
}

// Fingerprint считает отпечаток содержимого (тип + канонический JSON).
func Fingerprint(typ models.EscrowTxnType, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(typ))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Record записывает событие в собственной транзакции.
func (l *TxnLog) Record(escrowID string, typ models.EscrowTxnType, payload any, comment string) (*models.EscrowTxnLog, error) {
	var entry *models.EscrowTxnLog
	err := l.db.Transaction(func(tx *gorm.DB) error {
		var e error
		entry, e = l.RecordTx(tx, escrowID, typ, payload, comment)
		return e
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// RecordTx записывает событие внутри переданной транзакции — так переходы
// статусов сделки фиксируются в журнале атомарно с самим переходом.
// Инкремент счётчика выполняется атомарным UPDATE по отпечатку, поэтому
// конкурентные повторы одного события не теряются; уникальный индекс по
// escrow_id исключает вторую строку журнала.
func (l *TxnLog) RecordTx(tx *gorm.DB, escrowID string, typ models.EscrowTxnType, payload any, comment string) (*models.EscrowTxnLog, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	fp := Fingerprint(typ, raw)

	var count int64
	if err := tx.Model(&models.EscrowAccount{}).Where("id = ?", escrowID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrUnknownEscrow
	}

	// повтор того же события — инкремент вместо новой строки
	res := tx.Model(&models.EscrowTxnLog{}).
		Where("escrow_id = ? AND fingerprint = ?", escrowID, fp).
		UpdateColumn("counter", gorm.Expr("counter + 1"))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// новое содержимое: заменить существующую строку или создать первую
		res = tx.Model(&models.EscrowTxnLog{}).
			Where("escrow_id = ?", escrowID).
			Updates(map[string]any{
				"type":        typ,
				"txn":         datatypes.JSON(raw),
				"fingerprint": fp,
				"comment":     comment,
				"counter":     1,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			entry := models.EscrowTxnLog{
				EscrowID:    escrowID,
				Type:        typ,
				Txn:         datatypes.JSON(raw),
				Fingerprint: fp,
				Comment:     comment,
				Counter:     1,
			}
			if err := tx.Create(&entry).Error; err != nil {
				return nil, err
			}
			return &entry, nil
		}
	}

	var entry models.EscrowTxnLog
	if err := tx.Where("escrow_id = ?", escrowID).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// Get возвращает запись журнала эскроу или nil, если записей ещё не было.
func (l *TxnLog) Get(escrowID string) (*models.EscrowTxnLog, error) {
	var entry models.EscrowTxnLog
	if err := l.db.Where("escrow_id = ?", escrowID).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}
