package db

import (
	"github.com/biter777/countries"
	"gorm.io/gorm"

	"didex/internal/models"
)

// SeedCountries заполняет таблицу стран перечнем всех стран на английском языке.
// Страны используются при проверке реквизитов сделки.
func SeedCountries(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Country{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	var list []models.Country
	for _, code := range countries.All() {
		list = append(list, models.Country{Name: code.String()})
	}
	return db.Create(&list).Error
}
