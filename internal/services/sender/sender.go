// Package sender читает уведомления из очереди и отправляет письма по SMTP.
package sender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"time"

	"github.com/magabrotheeeer/lectio-billing/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/lectio-billing/internal/lib/sl"
	"github.com/magabrotheeeer/lectio-billing/internal/lib/smtp"
	"github.com/magabrotheeeer/lectio-billing/internal/models"
)

// ErrUnknownTemplate означает, что для ключа уведомления нет шаблона.
var ErrUnknownTemplate = errors.New("unknown template")

// Service отправляет письма по сообщениям из очереди уведомлений.
type Service struct {
	transport smtp.TransportInterface
	templates *Templates
	log       *slog.Logger
	now       func() time.Time
}

// New создает Service.
func New(log *slog.Logger, transport smtp.TransportInterface, templates *Templates) *Service {
	return &Service{
		transport: transport,
		templates: templates,
		log:       log,
		now:       time.Now,
	}
}

// Handle обрабатывает одно сообщение очереди. Сообщение, которое нельзя разобрать
// или отрисовать, помечается rabbitmq.ErrDrop; ошибки SMTP возвращаются для повтора.
func (s *Service) Handle(_ context.Context, body []byte) error {
	const op = "sender.Handle"
	log := s.log.With(slog.String("op", op))

	var n models.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		log.Error("failed to unmarshal notification", sl.Err(err))
		return fmt.Errorf("%s: %w: %s", op, rabbitmq.ErrDrop, err.Error())
	}
	log = log.With(slog.String("template", n.Template))
	if strings.TrimSpace(n.To) == "" {
		log.Error("notification has no recipient")
		return fmt.Errorf("%s: %w: no recipient", op, rabbitmq.ErrDrop)
	}

	vars := make(map[string]any, len(n.Variables)+1)
	for k, v := range n.Variables {
		vars[k] = v
	}
	if _, ok := vars["name"]; !ok {
		vars["name"] = n.Name
	}
	subject, text, err := s.templates.Render(n.Template, vars)
	if err != nil {
		log.Error("failed to render notification", sl.Err(err))
		return fmt.Errorf("%s: %w: %s", op, rabbitmq.ErrDrop, err.Error())
	}

	if err := s.sendEmail(log, n.To, subject, text); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Service) buildMessage(to, subject, text string) string {
	return strings.Join([]string{
		"From: " + s.transport.Sender(),
		"To: " + to,
		"Subject: " + mime.QEncoding.Encode("utf-8", subject),
		"Date: " + s.now().UTC().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		strings.ReplaceAll(text, "\n", "\r\n"),
	}, "\r\n")
}

func (s *Service) sendEmail(log *slog.Logger, to, subject, text string) error {
	msg := s.buildMessage(to, subject, text)

	client, err := s.transport.Connect()
	if err != nil {
		log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer client.Close()

	if err := client.Mail(s.transport.Sender()); err != nil {
		log.Error("failed to set MAIL FROM", slog.String("from", s.transport.Sender()), sl.Err(err))
		return err
	}
	if err := client.Rcpt(to); err != nil {
		log.Error("failed to set RCPT TO", slog.String("recipient", to), sl.Err(err))
		return err
	}

	wc, err := client.Data()
	if err != nil {
		log.Error("failed to get data writer", sl.Err(err))
		return err
	}
	if _, err := wc.Write([]byte(msg)); err != nil {
		log.Error("failed to write email body", sl.Err(err))
		return err
	}
	if err := wc.Close(); err != nil {
		log.Error("failed to close data writer", sl.Err(err))
		return err
	}
	if err := client.Quit(); err != nil {
		log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	log.Info("email sent", slog.String("to", to))
	return nil
}
