package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"didex/internal/models"
	"didex/internal/notifications"
	"didex/internal/services"
)

// DealStatusEvent уведомление об изменении статуса сделки.
// Type всегда `deal.status_changed`.
type DealStatusEvent struct {
	Type string      `json:"type" example:"deal.status_changed"`
	Deal models.Deal `json:"deal"`
}

var dealStatusClients = struct {
	sync.RWMutex
	m map[string]map[*websocket.Conn]bool
}{m: make(map[string]map[*websocket.Conn]bool)}

var dealEventCache *services.DealEventCache

// SetDealEventCache подключает Redis-кеш истории событий сделок.
func SetDealEventCache(cache *services.DealEventCache) {
	dealEventCache = cache
}

func sendDealStatusEvent(conn *websocket.Conn, d models.Deal) error {
	return conn.WriteJSON(DealStatusEvent{Type: "deal.status_changed", Deal: d})
}

// createDealStatusNotifications создаёт уведомления для всех сторон сделки,
// чьи DID привязаны к аккаунтам, и рассылает их по открытым соединениям.
func createDealStatusNotifications(db *gorm.DB, d models.Deal) {
	payload, err := json.Marshal(map[string]string{
		"dealId": d.ID,
		"status": string(d.Status),
	})
	if err != nil {
		return
	}
	dids := []string{d.SenderDID, d.ReceiverDID, d.ArbiterDID}
	var accounts []models.Account
	if err := db.Where("did IN ?", dids).Find(&accounts).Error; err != nil {
		return
	}
	for _, acc := range accounts {
		n := models.Notification{AccountID: acc.ID, Type: "deal.status_changed", Payload: payload}
		if err := db.Create(&n).Error; err == nil {
			notifications.Broadcast(acc.ID, n)
		}
	}
}

func broadcastDealStatus(d models.Deal) {
	if dealEventCache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = dealEventCache.AddEvent(ctx, d.ID, services.DealEvent{
			DealID: d.ID,
			Status: d.Status,
			At:     time.Now(),
		})
		cancel()
	}
	dealStatusClients.Lock()
	conns := dealStatusClients.m[d.ID]
	for c := range conns {
		if err := sendDealStatusEvent(c, d); err != nil {
			c.Close()
			delete(conns, c)
		}
	}
	dealStatusClients.Unlock()
}

// DealStatusWS godoc
// @Summary Websocket статуса сделки
// @Description Позволяет сторонам и арбитру получать события DealStatusEvent при каждом изменении статуса сделки.
// @Tags deals
// @Security BearerAuth
// @Param id path string true "ID сделки"
// @Success 101 {object} handlers.DealStatusEvent "Switching Protocols"
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /deals/{id}/ws [get]
func DealStatusWS(db *gorm.DB) gin.HandlerFunc {
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
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		dealStatusClients.Lock()
		conns, ok := dealStatusClients.m[d.ID]
		if !ok {
			conns = make(map[*websocket.Conn]bool)
			dealStatusClients.m[d.ID] = conns
		}
		conns[conn] = true
		dealStatusClients.Unlock()
		// при подключении проигрываем последние события из кеша
		if dealEventCache != nil {
			if events, err := dealEventCache.GetHistory(c.Request.Context(), d.ID); err == nil {
				for _, ev := range events {
					if err := conn.WriteJSON(ev); err != nil {
						break
					}
				}
			}
		}
		defer func() {
			dealStatusClients.Lock()
			delete(dealStatusClients.m[d.ID], conn)
			dealStatusClients.Unlock()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}
}

// DealHistory godoc
// @Summary История событий сделки
// @Description Возвращает последние события смены статуса из Redis-кеша.
// @Tags deals
// @Security BearerAuth
// @Produce json
// @Param id path string true "ID сделки"
// @Success 200 {array} services.DealEvent
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /deals/{id}/history [get]
func DealHistory(db *gorm.DB) gin.HandlerFunc {
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
		if dealEventCache == nil {
			c.JSON(http.StatusOK, []services.DealEvent{})
			return
		}
		events, err := dealEventCache.GetHistory(c.Request.Context(), d.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "cache error"})
			return
		}
		if events == nil {
			events = []services.DealEvent{}
		}
		c.JSON(http.StatusOK, events)
	}
}
