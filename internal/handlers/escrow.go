package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"didex/internal/escrow"
	"didex/internal/ledger"
	"didex/internal/models"
)

type RegisterEscrowRequest struct {
	Blockchain string                 `json:"blockchain"`
	Network    string                 `json:"network"`
	Address    string                 `json:"address"`
	Type       models.EscrowType      `json:"type"`
	Config     *models.MultisigConfig `json:"config,omitempty"`
	Roles      models.AddressRoles    `json:"roles"`
}

type ReassignArbiterRequest struct {
	Arbiter string `json:"arbiter"`
}

type EscrowDetailResponse struct {
	Escrow  models.EscrowAccount `json:"escrow"`
	LastTxn *models.EscrowTxnLog `json:"lastTxn,omitempty"`
}

// RegisterEscrow godoc
// @Summary Регистрация эскроу-счёта
// @Description Регистрирует эскроу-адрес в статусе pending. Активация происходит после сверки прав on-chain.
// @Tags escrows
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param input body RegisterEscrowRequest true "данные эскроу"
// @Success 200 {object} models.EscrowAccount
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /escrows [post]
func RegisterEscrow(db *gorm.DB) gin.HandlerFunc {
	registry := escrow.NewRegistry(db)
	return func(c *gin.Context) {
		did, ok := currentDID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no account"})
			return
		}
		var r RegisterEscrowRequest
		if err := c.BindJSON(&r); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
			return
		}
		if r.Blockchain == "tron" && !ledger.ValidTronAddress(r.Address) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid address"})
			return
		}
		acc, err := registry.Register(escrow.RegisterParams{
			Blockchain: r.Blockchain,
			Network:    r.Network,
			Address:    r.Address,
			Type:       r.Type,
			Config:     r.Config,
			Roles:      r.Roles,
			OwnerDID:   did,
		})
		if err != nil {
			switch {
			case errors.Is(err, escrow.ErrDuplicateEscrow):
				c.JSON(http.StatusConflict, ErrorResponse{Error: "escrow exists"})
			case errors.Is(err, escrow.ErrInvalidRoles):
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid roles"})
			default:
				c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			}
			return
		}
		c.JSON(http.StatusOK, acc)
	}
}

// ListEscrows godoc
// @Summary Список эскроу аккаунта
// @Description Возвращает эскроу, где аккаунт владелец или его адрес входит в роли.
// @Tags escrows
// @Security BearerAuth
// @Produce json
// @Param limit query int false "лимит"
// @Param offset query int false "смещение"
// @Success 200 {array} models.EscrowAccount
// @Router /escrows [get]
func ListEscrows(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		did, ok := currentDID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no account"})
			return
		}
		limit, offset := parsePagination(c)
		addr := models.DIDAddress(did)
		var accounts []models.EscrowAccount
		if err := db.Where("owner_did = ? OR address_roles LIKE ?", did, "%"+addr+"%").
			Order("created_at desc").
			Limit(limit).Offset(offset).Find(&accounts).Error; err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		c.JSON(http.StatusOK, accounts)
	}
}

// GetEscrow godoc
// @Summary Просмотр эскроу
// @Description Возвращает эскроу вместе с текущей записью его журнала транзакций.
// @Tags escrows
// @Security BearerAuth
// @Produce json
// @Param id path string true "ID эскроу"
// @Success 200 {object} EscrowDetailResponse
// @Failure 404 {object} ErrorResponse
// @Router /escrows/{id} [get]
func GetEscrow(db *gorm.DB) gin.HandlerFunc {
	registry := escrow.NewRegistry(db)
	txnlog := escrow.NewTxnLog(db)
	return func(c *gin.Context) {
		acc, err := registry.Get(c.Param("id"))
		if err != nil {
			if errors.Is(err, escrow.ErrUnknownEscrow) {
				c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		entry, err := txnlog.Get(acc.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		c.JSON(http.StatusOK, EscrowDetailResponse{Escrow: *acc, LastTxn: entry})
	}
}

// ReassignArbiter godoc
// @Summary Смена арбитра эскроу
// @Description Назначает нового арбитра. Доступно только участникам эскроу; арбитром не может стать участник.
// @Tags escrows
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "ID эскроу"
// @Param input body ReassignArbiterRequest true "адрес нового арбитра"
// @Success 200 {object} models.EscrowAccount
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /escrows/{id}/arbiter [post]
func ReassignArbiter(db *gorm.DB) gin.HandlerFunc {
	registry := escrow.NewRegistry(db)
	return func(c *gin.Context) {
		did, ok := currentDID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no account"})
			return
		}
		var r ReassignArbiterRequest
		if err := c.BindJSON(&r); err != nil || r.Arbiter == "" {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
			return
		}
		id := c.Param("id")
		if err := registry.ReassignArbiter(id, r.Arbiter, did); err != nil {
			switch {
			case errors.Is(err, escrow.ErrUnknownEscrow):
				c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
			case errors.Is(err, escrow.ErrUnauthorized):
				c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
			case errors.Is(err, escrow.ErrInvalidAddress):
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid arbiter"})
			default:
				c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			}
			return
		}
		acc, err := registry.Get(id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		c.JSON(http.StatusOK, acc)
	}
}

// DeactivateEscrow godoc
// @Summary Деактивация эскроу
// @Description Переводит эскроу в конечный статус inactive. Повторная деактивация — no-op.
// @Tags escrows
// @Security BearerAuth
// @Produce json
// @Param id path string true "ID эскроу"
// @Success 200 {object} StatusResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /escrows/{id}/deactivate [post]
func DeactivateEscrow(db *gorm.DB) gin.HandlerFunc {
	registry := escrow.NewRegistry(db)
	return func(c *gin.Context) {
		did, ok := currentDID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no account"})
			return
		}
		id := c.Param("id")
		acc, err := registry.Get(id)
		if err != nil {
			if errors.Is(err, escrow.ErrUnknownEscrow) {
				c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		if acc.OwnerDID != did {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
			return
		}
		if err := registry.Deactivate(id); err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		c.JSON(http.StatusOK, StatusResponse{Status: "deactivated"})
	}
}
