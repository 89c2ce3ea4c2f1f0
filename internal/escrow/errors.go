package escrow

import "errors"

var (
	// ErrDuplicateEscrow — адрес уже зарегистрирован в этой сети.
	ErrDuplicateEscrow = errors.New("escrow already registered")
	// ErrInvalidRoles — карта ролей не содержит ровно двух участников.
	ErrInvalidRoles = errors.New("invalid address roles")
	// ErrUnauthorized — запросивший не является участником эскроу.
	ErrUnauthorized = errors.New("not an escrow participant")
	// ErrInvalidAddress — новый арбитр совпадает с адресом участника.
	ErrInvalidAddress = errors.New("invalid arbiter address")
	// ErrPermissionMismatch — права в сети не совпали с конфигурацией.
	// Не фатально: активацию можно повторить после смены прав.
	ErrPermissionMismatch = errors.New("on-chain permissions mismatch")
	// ErrUnknownEscrow — эскроу с таким идентификатором не зарегистрирован.
	ErrUnknownEscrow = errors.New("unknown escrow")
	// ErrEscrowInactive — эскроу деактивирован, операция невозможна.
	ErrEscrowInactive = errors.New("escrow is inactive")
)
