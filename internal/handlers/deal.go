package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"didex/internal/deal"
	"didex/internal/escrow"
	"didex/internal/models"
)

type CreateDealRequest struct {
	ReceiverDID         string               `json:"receiverDID"`
	ArbiterDID          string               `json:"arbiterDID"`
	Label               string               `json:"label"`
	Description         string               `json:"description"`
	EscrowID            *string              `json:"escrowID,omitempty"`
	Amount              *decimal.Decimal     `json:"amount,omitempty"`
	Commissioners       models.Commissioners `json:"commissioners,omitempty"`
	NeedReceiverApprove bool                 `json:"needReceiverApprove"`
}

// CreateDeal godoc
// @Summary Создание сделки
// @Description Создаёт сделку в статусе wait_deposit. Отправитель — текущий аккаунт.
// @Tags deals
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param input body CreateDealRequest true "данные сделки"
// @Success 200 {object} models.Deal
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /deals [post]
func CreateDeal(e *deal.Engine, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		did, ok := currentDID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no account"})
			return
		}
		var r CreateDealRequest
		if err := c.BindJSON(&r); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
			return
		}
		d, err := e.Create(deal.CreateParams{
			SenderDID:           did,
			ReceiverDID:         r.ReceiverDID,
			ArbiterDID:          r.ArbiterDID,
			Label:               r.Label,
			Description:         r.Description,
			EscrowID:            r.EscrowID,
			Amount:              r.Amount,
			Commissioners:       r.Commissioners,
			NeedReceiverApprove: r.NeedReceiverApprove,
		})
		if err != nil {
			switch {
			case errors.Is(err, deal.ErrInvalidParticipants):
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid participants"})
			case errors.Is(err, escrow.ErrUnknownEscrow):
				c.JSON(http.StatusNotFound, ErrorResponse{Error: "invalid escrow"})
			case errors.Is(err, escrow.ErrEscrowInactive):
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "escrow inactive"})
			default:
				c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			}
			return
		}
		c.JSON(http.StatusOK, d)
	}
}

// ListDeals godoc
// @Summary Список сделок аккаунта
// @Description Возвращает сделки, где аккаунт отправитель, получатель или арбитр.
// @Tags deals
// @Security BearerAuth
// @Produce json
// @Param status query string false "фильтр по статусу"
// @Param limit query int false "лимит"
// @Param offset query int false "смещение"
// @Success 200 {array} models.Deal
// @Router /deals [get]
func ListDeals(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		did, ok := currentDID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no account"})
			return
		}
		limit, offset := parsePagination(c)
		q := db.Where("sender_did = ? OR receiver_did = ? OR arbiter_did = ?", did, did, did)
		if status := c.Query("status"); status != "" {
			q = q.Where("status = ?", status)
		}
		var deals []models.Deal
		if err := q.Order("created_at desc").Limit(limit).Offset(offset).Find(&deals).Error; err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		c.JSON(http.StatusOK, deals)
	}
}

// GetDeal godoc
// @Summary Просмотр сделки
// @Description Возвращает сделку, предварительно сверив её статус с журналом эскроу.
// @Tags deals
// @Security BearerAuth
// @Produce json
// @Param id path string true "ID сделки"
// @Success 200 {object} models.Deal
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /deals/{id} [get]
func GetDeal(e *deal.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		did, ok := currentDID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no account"})
			return
		}
		d, err := e.Get(c.Param("id"))
		if err != nil {
			if errors.Is(err, deal.ErrUnknownDeal) {
				c.JSON(http.StatusNotFound, ErrorResponse{Error: "invalid deal"})
				return
			}
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		if !d.IsParty(did) && did != d.ArbiterDID {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
			return
		}
		c.JSON(http.StatusOK, d)
	}
}

// DealActionsResponse ответ со списком доступных действий
type DealActionsResponse struct {
	Actions []models.DealAction `json:"actions" swaggertype:"array,string" enums:"submitRequisites,confirmDeposit,approve,appeal,resolve,confirmPayout"`
}

// GetDealActions godoc
// @Summary Доступные действия по сделке
// @Description Возвращает действия, которые текущий аккаунт может выполнить над сделкой в её статусе.
// @Tags deals
// @Security BearerAuth
// @Produce json
// @Param id path string true "ID сделки"
// @Success 200 {object} DealActionsResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /deals/{id}/actions [get]
func GetDealActions(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		did, ok := currentDID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no account"})
			return
		}
		var d models.Deal
		if err := db.Where("id = ?", c.Param("id")).First(&d).Error; err != nil {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "invalid deal"})
			return
		}
		if !d.IsParty(did) && did != d.ArbiterDID {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
			return
		}
		actions := models.AllowedActions(&d, did)
		if actions == nil {
			actions = []models.DealAction{}
		}
		c.JSON(http.StatusOK, DealActionsResponse{Actions: actions})
	}
}
