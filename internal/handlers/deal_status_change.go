package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"didex/internal/deal"
	"didex/internal/ledger"
	"didex/internal/models"
)

// ReportDepositRequest тело запроса для сообщения о депозите
type ReportDepositRequest struct {
	TxnHash string          `json:"txnHash"`
	Amount  decimal.Decimal `json:"amount"`
}

// AppealRequest тело запроса для открытия апелляции
type AppealRequest struct {
	Reason string `json:"reason"`
}

// ResolveAppealRequest тело запроса для решения апелляции
type ResolveAppealRequest struct {
	Favor string `json:"favor"`
}

func dealError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, deal.ErrUnknownDeal):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "invalid deal"})
	case errors.Is(err, deal.ErrUnauthorized):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
	case errors.Is(err, deal.ErrInvalidTransition):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid status"})
	case errors.Is(err, deal.ErrConflictingDeposit):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "conflicting deposit"})
	case errors.Is(err, deal.ErrConflictingPayout):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "conflicting payout"})
	case errors.Is(err, deal.ErrAmountMismatch):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "amount mismatch"})
	case errors.Is(err, deal.ErrRequisitesRequired):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "requisites required"})
	case errors.Is(err, deal.ErrInsufficientAmount):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "insufficient amount"})
	case errors.Is(err, deal.ErrInvalidOutcome):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid favor"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
	}
}

// ReportDeposit godoc
// @Summary Сообщить о депозите
// @Description wait_deposit -> processing. Только отправитель. Транзакция проверяется в сети, принимаются только подтверждённые.
// @Tags deals
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "ID сделки"
// @Param input body ReportDepositRequest true "хеш и сумма депозита"
// @Success 200 {object} models.Deal
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /deals/{id}/deposit [post]
func ReportDeposit(e *deal.Engine, db *gorm.DB, clients map[string]ledger.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		did, ok := currentDID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no account"})
			return
		}
		var r ReportDepositRequest
		if err := c.BindJSON(&r); err != nil || r.TxnHash == "" {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
			return
		}
		d, err := e.Get(c.Param("id"))
		if err != nil {
			dealError(c, err)
			return
		}
		if did != d.SenderDID {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
			return
		}
		if d.EscrowID != nil {
			var acc models.EscrowAccount
			if err := db.Where("id = ?", *d.EscrowID).First(&acc).Error; err == nil {
				if cl, ok := clients[acc.Blockchain]; ok {
					status, err := cl.GetTransactionStatus(c.Request.Context(), r.TxnHash)
					if err != nil {
						if errors.Is(err, ledger.ErrUnavailable) {
							c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "ledger unavailable"})
							return
						}
						c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid txn"})
						return
					}
					if status != ledger.TxnStatusConfirmed {
						c.JSON(http.StatusBadRequest, ErrorResponse{Error: "txn not confirmed"})
						return
					}
				}
			}
		}
		d, err = e.ConfirmDeposit(d.ID, r.TxnHash, r.Amount)
		if err != nil {
			dealError(c, err)
			return
		}
		createDealStatusNotifications(db, *d)
		broadcastDealStatus(*d)
		c.JSON(http.StatusOK, d)
	}
}

// ApproveDeal godoc
// @Summary Подтвердить исполнение сделки
// @Description processing -> success. Получатель всегда, отправитель только без need_receiver_approve. Черновик выплаты рассчитывается автоматически.
// @Tags deals
// @Security BearerAuth
// @Produce json
// @Param id path string true "ID сделки"
// @Success 200 {object} models.Deal
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /deals/{id}/approve [post]
func ApproveDeal(e *deal.Engine, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		did, ok := currentDID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no account"})
			return
		}
		d, err := e.Approve(c.Param("id"), did)
		if err != nil {
			dealError(c, err)
			return
		}
		createDealStatusNotifications(db, *d)
		broadcastDealStatus(*d)
		c.JSON(http.StatusOK, d)
	}
}

// AppealDeal godoc
// @Summary Открыть апелляцию
// @Description processing -> appeal. Любая из сторон сделки.
// @Tags deals
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "ID сделки"
// @Param input body AppealRequest false "причина"
// @Success 200 {object} models.Deal
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /deals/{id}/appeal [post]
func AppealDeal(e *deal.Engine, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		did, ok := currentDID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no account"})
			return
		}
		var r AppealRequest
		_ = c.BindJSON(&r)
		d, err := e.RaiseAppeal(c.Param("id"), did, r.Reason)
		if err != nil {
			dealError(c, err)
			return
		}
		createDealStatusNotifications(db, *d)
		broadcastDealStatus(*d)
		c.JSON(http.StatusOK, d)
	}
}

// ConfirmPayoutRequest тело запроса для фиксации хеша выплаты
type ConfirmPayoutRequest struct {
	TxnHash string `json:"txnHash"`
}

// ConfirmDealPayout godoc
// @Summary Зафиксировать хеш выплаты
// @Description Записывает хеш подтверждённой в сети выплаты. Повтор с тем же хешем — no-op, другой хеш отклоняется.
// @Tags deals
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "ID сделки"
// @Param input body ConfirmPayoutRequest true "хеш выплаты"
// @Success 200 {object} models.Deal
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /deals/{id}/payout [post]
func ConfirmDealPayout(e *deal.Engine, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		did, ok := currentDID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no account"})
			return
		}
		var r ConfirmPayoutRequest
		if err := c.BindJSON(&r); err != nil || r.TxnHash == "" {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
			return
		}
		d, err := e.Get(c.Param("id"))
		if err != nil {
			dealError(c, err)
			return
		}
		if !d.IsParty(did) && did != d.ArbiterDID {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
			return
		}
		d, err = e.ConfirmPayout(d.ID, r.TxnHash)
		if err != nil {
			dealError(c, err)
			return
		}
		createDealStatusNotifications(db, *d)
		broadcastDealStatus(*d)
		c.JSON(http.StatusOK, d)
	}
}

// ResolveDealAppeal godoc
// @Summary Решить апелляцию
// @Description appeal -> resolved_sender или resolved_receiver. Только арбитр сделки.
// @Tags deals
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "ID сделки"
// @Param input body ResolveAppealRequest true "сторона, в пользу которой решён спор"
// @Success 200 {object} models.Deal
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /deals/{id}/appeal/resolve [post]
func ResolveDealAppeal(e *deal.Engine, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		did, ok := currentDID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no account"})
			return
		}
		var r ResolveAppealRequest
		if err := c.BindJSON(&r); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
			return
		}
		d, err := e.ResolveAppeal(c.Param("id"), did, deal.Favor(r.Favor))
		if err != nil {
			dealError(c, err)
			return
		}
		createDealStatusNotifications(db, *d)
		broadcastDealStatus(*d)
		c.JSON(http.StatusOK, d)
	}
}
