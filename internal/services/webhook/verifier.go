// Package webhook проверяет подпись событий платёжного провайдера и направляет
// проверенное событие ровно одному обработчику сверки.
package webhook

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

var (
	// ErrNoSignature — в запросе нет заголовка подписи.
	ErrNoSignature = errors.New("no signature")
	// ErrInvalidSignature — подпись не сошлась или тело не является событием.
	ErrInvalidSignature = errors.New("invalid signature")
)

// SignatureHeader — заголовок, в котором провайдер передаёт подпись.
const SignatureHeader = "Stripe-Signature"

// Verifier проверяет подпись над исходными байтами тела запроса.
type Verifier struct {
	secret string
}

// NewVerifier создает Verifier с общим секретом вебхука.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Verify проверяет подпись sigHeader над payload и разбирает событие.
// payload должен быть телом запроса без каких-либо преобразований.
func (v *Verifier) Verify(payload []byte, sigHeader string) (*stripe.Event, error) {
	const op = "webhook.Verify"

	if strings.TrimSpace(sigHeader) == "" {
		return nil, ErrNoSignature
	}
	evt, err := webhook.ConstructEventWithOptions(payload, sigHeader, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrInvalidSignature, err.Error())
	}
	if evt.ID == "" || evt.Type == "" {
		return nil, fmt.Errorf("%s: %w: event without id or type", op, ErrInvalidSignature)
	}
	return &evt, nil
}
