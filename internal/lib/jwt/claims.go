// Package jwt выпускает подписанные токены ссылок на заказ.
//
// Токен получает покупатель в письме с подтверждением заказа и по нему
// открывает заказ без входа в аккаунт: в токене зашиты id заказа и email покупателя.
package jwt

import (
	"time"
)

// MakerImpl выпускает токены поверх HMAC-секрета и времени жизни токена.
type MakerImpl struct {
	secretKey string
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewJWTMaker создаёт новый экземпляр MakerImpl на основе секретного ключа и TTL.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
		now:       time.Now,
	}
}
