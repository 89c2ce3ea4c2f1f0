package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"didex/internal/deal"
	"didex/internal/models"
)

// SubmitRequisitesRequest тело запроса для замены реквизитов
type SubmitRequisitesRequest struct {
	Method  string            `json:"method"`
	Country string            `json:"country"`
	Bank    string            `json:"bank,omitempty"`
	Account string            `json:"account"`
	Holder  string            `json:"holder,omitempty"`
	Extra   map[string]string `json:"extra,omitempty"`
}

// SubmitDealRequisites godoc
// @Summary Замена реквизитов сделки
// @Description Реквизиты заменяются целиком, версия растёт монотонно. Страна сверяется со справочником.
// @Tags deals
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "ID сделки"
// @Param input body SubmitRequisitesRequest true "реквизиты"
// @Success 200 {object} models.Deal
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /deals/{id}/requisites [put]
func SubmitDealRequisites(e *deal.Engine, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		did, ok := currentDID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no account"})
			return
		}
		var r SubmitRequisitesRequest
		if err := c.BindJSON(&r); err != nil || r.Method == "" || r.Account == "" {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
			return
		}
		if r.Country != "" {
			var count int64
			db.Model(&models.Country{}).Where("name = ?", r.Country).Count(&count)
			if count == 0 {
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid country"})
				return
			}
		}
		d, err := e.SubmitRequisites(c.Param("id"), models.Requisites{
			Method:  r.Method,
			Country: r.Country,
			Bank:    r.Bank,
			Account: r.Account,
			Holder:  r.Holder,
			Extra:   r.Extra,
		}, did)
		if err != nil {
			dealError(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
	}
}

// GetCountries godoc
// @Summary Справочник стран
// @Tags reference
// @Security BearerAuth
// @Produce json
// @Success 200 {array} models.Country
// @Router /countries [get]
func GetCountries(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var countries []models.Country
		if err := db.Order("name asc").Find(&countries).Error; err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		c.JSON(http.StatusOK, countries)
	}
}
