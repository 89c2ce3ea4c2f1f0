package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"didex/internal/models"
	"didex/internal/notifications"
)

// NotificationsWS godoc
// @Summary Websocket уведомлений
// @Description Подключает аккаунт к потоку уведомлений. После подключения сервер отправляет неотправленные уведомления.
// @Tags notifications
// @Security BearerAuth
// @Success 101 {object} models.Notification "Switching Protocols"
// @Failure 401 {object} ErrorResponse
// @Router /ws/notifications [get]
func NotificationsWS(db *gorm.DB) gin.HandlerFunc {
	notifications.SetDB(db)
	return func(c *gin.Context) {
		accountID, ok := currentAccountID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no account"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		notifications.AddClient(accountID, conn)
		defer func() {
			notifications.RemoveClient(accountID, conn)
			conn.Close()
		}()

		var list []models.Notification
		if err := db.Where("account_id = ? AND read_at IS NULL AND sent_at IS NULL", accountID).Find(&list).Error; err == nil {
			for _, n := range list {
				if err := notifications.Send(conn, n); err != nil {
					return
				}
			}
		}

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}
}
