package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"didex/internal/models"
)

// ListNotifications godoc
// @Summary Список уведомлений аккаунта
// @Tags notifications
// @Security BearerAuth
// @Produce json
// @Param limit query int false "лимит"
// @Param offset query int false "смещение"
// @Success 200 {array} models.Notification
// @Router /notifications [get]
func ListNotifications(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := currentAccountID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no account"})
			return
		}
		limit, offset := parsePagination(c)
		var ns []models.Notification
		if err := db.Where("account_id = ?", accountID).
			Order("created_at desc").
			Limit(limit).Offset(offset).Find(&ns).Error; err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		c.JSON(http.StatusOK, ns)
	}
}
