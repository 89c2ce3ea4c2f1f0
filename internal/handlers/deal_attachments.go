package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"didex/internal/models"
	"didex/internal/services/storage"
	"didex/internal/utils"
)

// AttachmentResponse вложение со временной ссылкой на содержимое
type AttachmentResponse struct {
	models.Attachment
	URL string `json:"url"`
}

func loadDealForActor(c *gin.Context, db *gorm.DB) (*models.Deal, string, bool) {
	did, ok := currentDID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "no account"})
		return nil, "", false
	}
	var d models.Deal
	if err := db.Where("id = ?", c.Param("id")).First(&d).Error; err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "invalid deal"})
		return nil, "", false
	}
	if !d.IsParty(did) && did != d.ArbiterDID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
		return nil, "", false
	}
	return &d, did, true
}

// UploadDealAttachment godoc
// @Summary Загрузка вложения к сделке
// @Description Принимает файл multipart/form-data и сохраняет его во внешнем хранилище. Доступно сторонам и арбитру.
// @Tags deals
// @Security BearerAuth
// @Accept mpfd
// @Produce json
// @Param id path string true "ID сделки"
// @Param file formData file true "файл"
// @Success 200 {object} models.Attachment
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /deals/{id}/attachments [post]
func UploadDealAttachment(db *gorm.DB, store storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, did, ok := loadDealForActor(c, db)
		if !ok {
			return
		}
		fh, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "file required"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "file error"})
			return
		}
		defer f.Close()
		id, err := utils.GenerateNanoID()
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "id error"})
			return
		}
		contentType := fh.Header.Get("Content-Type")
		objectKey := fmt.Sprintf("deals/%s/%s_%s", d.ID, id, fh.Filename)
		if _, err := store.Upload(c.Request.Context(), objectKey, f, fh.Size, contentType); err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "storage error"})
			return
		}
		a := models.Attachment{
			DealID:      d.ID,
			Name:        fh.Filename,
			ContentType: contentType,
			ObjectKey:   objectKey,
			UploadedBy:  did,
		}
		if err := db.Create(&a).Error; err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

// ListDealAttachments godoc
// @Summary Вложения сделки
// @Description Возвращает вложения с временными ссылками на содержимое.
// @Tags deals
// @Security BearerAuth
// @Produce json
// @Param id path string true "ID сделки"
// @Success 200 {array} AttachmentResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /deals/{id}/attachments [get]
func ListDealAttachments(db *gorm.DB, store storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, _, ok := loadDealForActor(c, db)
		if !ok {
			return
		}
		var attachments []models.Attachment
		if err := db.Where("deal_id = ?", d.ID).Order("created_at asc").Find(&attachments).Error; err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		out := make([]AttachmentResponse, 0, len(attachments))
		for _, a := range attachments {
			url, err := store.GetURL(c.Request.Context(), a.ObjectKey, time.Hour)
			if err != nil {
				url = ""
			}
			out = append(out, AttachmentResponse{Attachment: a, URL: url})
		}
		c.JSON(http.StatusOK, out)
	}
}

// DeleteDealAttachment godoc
// @Summary Удаление вложения
// @Description Удалить вложение может только загрузивший его участник.
// @Tags deals
// @Security BearerAuth
// @Produce json
// @Param id path string true "ID сделки"
// @Param attachmentId path string true "ID вложения"
// @Success 200 {object} StatusResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /deals/{id}/attachments/{attachmentId} [delete]
func DeleteDealAttachment(db *gorm.DB, store storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, did, ok := loadDealForActor(c, db)
		if !ok {
			return
		}
		var a models.Attachment
		if err := db.Where("id = ? AND deal_id = ?", c.Param("attachmentId"), d.ID).First(&a).Error; err != nil {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "invalid attachment"})
			return
		}
		if a.UploadedBy != did {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
			return
		}
		if err := store.Remove(c.Request.Context(), a.ObjectKey); err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "storage error"})
			return
		}
		if err := db.Delete(&a).Error; err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "db error"})
			return
		}
		c.JSON(http.StatusOK, StatusResponse{Status: "deleted"})
	}
}
