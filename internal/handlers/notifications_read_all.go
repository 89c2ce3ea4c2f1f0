package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"didex/internal/models"
)

// NotificationsReadAllResponse ответ на массовое чтение уведомлений.
type NotificationsReadAllResponse struct {
	Count int `json:"count"`
}

// ReadAllNotifications godoc
// @Summary Отметить все уведомления прочитанными
// @Tags notifications
// @Security BearerAuth
// @Produce json
// @Success 200 {object} handlers.NotificationsReadAllResponse
// @Router /notifications/read-all [post]
func ReadAllNotifications(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := currentAccountID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no account"})
			return
		}
		now := time.Now()
		res := db.Model(&models.Notification{}).
			Where("account_id = ? AND read_at IS NULL", accountID).
			Update("read_at", now)
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		c.JSON(http.StatusOK, NotificationsReadAllResponse{Count: int(res.RowsAffected)})
	}
}
