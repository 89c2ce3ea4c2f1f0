package ledger

import (
	"context"
	"errors"
)

// TxnStatus — статус транзакции в сети.
type TxnStatus string

const (
	TxnStatusPending   TxnStatus = "pending"
	TxnStatusConfirmed TxnStatus = "confirmed"
	TxnStatusFailed    TxnStatus = "failed"
)

// Key — адрес с весом в структуре прав аккаунта.
type Key struct {
	Address string `json:"address"`
	Weight  int64  `json:"weight"`
}

// Permissions — наблюдаемая структура прав аккаунта в сети.
type Permissions struct {
	Threshold int64 `json:"threshold"`
	Keys      []Key `json:"keys"`
}

var (
	// ErrUnavailable — узел недоступен, вызов можно повторить.
	ErrUnavailable = errors.New("ledger unavailable")
	// ErrRejected — узел отверг запрос, повтор бессмысленен.
	ErrRejected = errors.New("ledger rejected")
)

// Client — клиент узла блокчейна, используемый ядром сделок.
// Вызовы блокирующие; таймаут задаёт вызывающая сторона через контекст.
type Client interface {
	SubmitTransaction(ctx context.Context, escrowAddress string, payload []byte) (string, error)
	GetTransactionStatus(ctx context.Context, txnHash string) (TxnStatus, error)
	GetAccountPermissions(ctx context.Context, address string) (Permissions, error)
}
