package escrow

import (
	"encoding/json"
	"errors"
	"sort"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"didex/internal/ledger"
	"didex/internal/models"
)

// Registry управляет записями эскроу-счетов: регистрация, роли, статус.
type Registry struct {
	db *gorm.DB
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// RegisterParams — параметры регистрации эскроу-счёта.
type RegisterParams struct {
	Blockchain string
	Network    string
	Address    string
	Type       models.EscrowType
	Config     *models.MultisigConfig
	Roles      models.AddressRoles
	OwnerDID   string
}

// Register создаёт запись эскроу в статусе pending.
// (blockchain, network, address) уникальны глобально.
func (r *Registry) Register(p RegisterParams) (*models.EscrowAccount, error) {
	participants := p.Roles.Participants()
	if len(participants) != 2 || participants[0] == participants[1] {
		return nil, ErrInvalidRoles
	}
	arbiters := 0
	for _, ar := range p.Roles {
		if ar.Role == models.EscrowRoleArbiter {
			arbiters++
		}
	}
	if arbiters > 1 {
		return nil, ErrInvalidRoles
	}

	acc := &models.EscrowAccount{
		Blockchain:     p.Blockchain,
		Network:        p.Network,
		Address:        p.Address,
		Type:           p.Type,
		MultisigConfig: p.Config,
		AddressRoles:   p.Roles,
		OwnerDID:       p.OwnerDID,
		Status:         models.EscrowStatusPending,
	}
	if arb := p.Roles.Arbiter(); arb != "" {
		acc.ArbiterAddress = &arb
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.EscrowAccount{}).
			Where("blockchain = ? AND network = ? AND address = ?", p.Blockchain, p.Network, p.Address).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateEscrow
		}
		return tx.Create(acc).Error
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// Get возвращает запись эскроу по идентификатору.
func (r *Registry) Get(escrowID string) (*models.EscrowAccount, error) {
	var acc models.EscrowAccount
	if err := r.db.Where("id = ?", escrowID).First(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownEscrow
		}
		return nil, err
	}
	return &acc, nil
}

// ReassignArbiter заменяет арбитра по запросу одного из участников.
// Роли и arbiter_address обновляются в одной транзакции.
func (r *Registry) ReassignArbiter(escrowID, newArbiter, requestedByDID string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var acc models.EscrowAccount
		if err := tx.Where("id = ?", escrowID).First(&acc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnknownEscrow
			}
			return err
		}
		if acc.Status == models.EscrowStatusInactive {
			return ErrEscrowInactive
		}

		requester := models.DIDAddress(requestedByDID)
		participant := false
		for _, addr := range acc.AddressRoles.Participants() {
			if addr == requester {
				participant = true
			}
			if addr == newArbiter {
				return ErrInvalidAddress
			}
		}
		if !participant {
			return ErrUnauthorized
		}

		roles := make(models.AddressRoles, 0, len(acc.AddressRoles))
		for _, ar := range acc.AddressRoles {
			if ar.Role != models.EscrowRoleArbiter {
				roles = append(roles, ar)
			}
		}
		roles = append(roles, models.AddressRole{Address: newArbiter, Role: models.EscrowRoleArbiter})
		// map-значения Updates минуют сериализатор поля, кодируем явно
		rolesJSON, err := json.Marshal(roles)
		if err != nil {
			return err
		}

		return tx.Model(&models.EscrowAccount{}).Where("id = ?", acc.ID).
			Updates(map[string]any{
				"address_roles":   datatypes.JSON(rolesJSON),
				"arbiter_address": newArbiter,
			}).Error
	})
}

// Activate переводит эскроу pending -> active, если наблюдаемые в сети права
// структурно совпадают с конфигурацией. Несовпадение оставляет pending и
// возвращает ErrPermissionMismatch; вызов можно повторить.
func (r *Registry) Activate(escrowID string, observed ledger.Permissions) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var acc models.EscrowAccount
		if err := tx.Where("id = ?", escrowID).First(&acc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnknownEscrow
			}
			return err
		}
		switch acc.Status {
		case models.EscrowStatusActive:
			return nil
		case models.EscrowStatusInactive:
			return ErrEscrowInactive
		}

		if acc.Type == models.EscrowTypeMultisig {
			if !permissionsMatch(acc.MultisigConfig, observed) {
				return ErrPermissionMismatch
			}
		}
		return tx.Model(&models.EscrowAccount{}).
			Where("id = ? AND status = ?", acc.ID, models.EscrowStatusPending).
			Update("status", models.EscrowStatusActive).Error
	})
}

// Deactivate выводит эскроу из оборота. Идемпотентно и необратимо:
// для повторного использования адреса регистрируется новая запись.
func (r *Registry) Deactivate(escrowID string) error {
	res := r.db.Model(&models.EscrowAccount{}).Where("id = ?", escrowID).
		Update("status", models.EscrowStatusInactive)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		r.db.Model(&models.EscrowAccount{}).Where("id = ?", escrowID).Count(&count)
		if count == 0 {
			return ErrUnknownEscrow
		}
	}
	return nil
}

// permissionsMatch сравнивает порог и набор ключей с весами,
// порядок ключей не учитывается.
func permissionsMatch(cfg *models.MultisigConfig, observed ledger.Permissions) bool {
	if cfg == nil {
		return false
	}
	if cfg.Threshold != observed.Threshold || len(cfg.Keys) != len(observed.Keys) {
		return false
	}
	want := make([]models.MultisigKey, len(cfg.Keys))
	copy(want, cfg.Keys)
	got := make([]ledger.Key, len(observed.Keys))
	copy(got, observed.Keys)
	sort.Slice(want, func(i, j int) bool { return want[i].Address < want[j].Address })
	sort.Slice(got, func(i, j int) bool { return got[i].Address < got[j].Address })
	for i := range want {
		if want[i].Address != got[i].Address || want[i].Weight != got[i].Weight {
			return false
		}
	}
	return true
}
