// Package paymentwebhook принимает события платёжного провайдера по HTTP.
package paymentwebhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/stripe/stripe-go/v82"

	"github.com/magabrotheeeer/lectio-billing/internal/http/response"
	"github.com/magabrotheeeer/lectio-billing/internal/lib/sl"
	"github.com/magabrotheeeer/lectio-billing/internal/services/webhook"
)

// Verifier проверяет подпись события.
type Verifier interface {
	Verify(payload []byte, sigHeader string) (*stripe.Event, error)
}

// Dispatcher обрабатывает проверенное событие.
type Dispatcher interface {
	Dispatch(ctx context.Context, evt *stripe.Event) (webhook.Result, error)
}

// Handler — транспортный адаптер конвейера сверки.
type Handler struct {
	log          *slog.Logger
	verifier     Verifier
	dispatcher   Dispatcher
	maxBodyBytes int64
}

// New создает Handler. maxBodyBytes ограничивает размер тела запроса.
func New(log *slog.Logger, verifier Verifier, dispatcher Dispatcher, maxBodyBytes int64) *Handler {
	return &Handler{
		log:          log,
		verifier:     verifier,
		dispatcher:   dispatcher,
		maxBodyBytes: maxBodyBytes,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.webhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	// Подпись считается по исходным байтам, поэтому тело читается целиком до разбора.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to read body"))
		return
	}

	evt, err := h.verifier.Verify(body, r.Header.Get(webhook.SignatureHeader))
	if err != nil {
		msg := "invalid signature"
		if errors.Is(err, webhook.ErrNoSignature) {
			msg = "no signature"
		}
		log.Warn("webhook rejected", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error(msg))
		return
	}

	res, err := h.dispatcher.Dispatch(r.Context(), evt)
	if err != nil {
		log.Error("failed to process webhook event", sl.Err(err), sl.Event(evt.ID, string(evt.Type)))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("webhook handler failed"))
		return
	}

	if res.Duplicate {
		render.JSON(w, r, response.Duplicate())
		return
	}
	render.JSON(w, r, response.Received())
}
