package jwt

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "lectio-billing"

// OrderClaims описывает данные, хранящиеся в токене ссылки на заказ.
type OrderClaims struct {
	OrderID string `json:"oid"`
	Email   string `json:"email"`
	jwt.RegisteredClaims
}

// GenerateToken создает токен для заказа orderID, выданного покупателю email.
func (j *MakerImpl) GenerateToken(orderID, email string) (string, error) {
	const op = "jwt.GenerateToken"
	if orderID == "" {
		return "", fmt.Errorf("%s: empty order id", op)
	}
	now := j.now()
	claims := OrderClaims{
		OrderID: orderID,
		Email:   email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   orderID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(j.secretKey))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return signed, nil
}
