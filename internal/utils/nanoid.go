package utils

import gonanoid "github.com/matoous/go-nanoid/v2"

// GenerateNanoID возвращает новый идентификатор для первичных ключей моделей.
func GenerateNanoID() (string, error) {
	return gonanoid.New()
}
