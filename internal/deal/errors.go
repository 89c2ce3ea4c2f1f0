package deal

import "errors"

var (
	// ErrInvalidParticipants — отправитель и получатель обязаны различаться,
	// все три DID обязательны.
	ErrInvalidParticipants = errors.New("invalid participants")
	// ErrUnknownDeal — сделка не найдена.
	ErrUnknownDeal = errors.New("unknown deal")
	// ErrUnauthorized — действие недоступно этому DID.
	ErrUnauthorized = errors.New("actor is not allowed to perform this action")
	// ErrInvalidTransition — переход из текущего статуса невозможен.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConflictingDeposit — депозит уже подтверждён другим хешем.
	// Фатально, требует ручного разбора.
	ErrConflictingDeposit = errors.New("conflicting deposit transaction")
	// ErrConflictingPayout — выплата уже подтверждена другим хешем.
	ErrConflictingPayout = errors.New("conflicting payout transaction")
	// ErrAmountMismatch — наблюдаемая сумма депозита не совпала с суммой сделки.
	ErrAmountMismatch = errors.New("deposit amount mismatch")
	// ErrRequisitesRequired — завершение сделки без реквизитов невозможно.
	ErrRequisitesRequired = errors.New("requisites are not submitted")
	// ErrInsufficientAmount — доли комиссионеров превышают сумму сделки.
	ErrInsufficientAmount = errors.New("commission exceeds deal amount")
	// ErrInvalidCommission — отрицательная доля комиссионера.
	ErrInvalidCommission = errors.New("invalid commissioner amount")
	// ErrInvalidOutcome — исход не является конечным статусом.
	ErrInvalidOutcome = errors.New("invalid payout outcome")
)
