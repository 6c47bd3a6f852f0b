package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/lectio-billing/internal/lib/sl"
)

// bestEffort выполняет побочное действие fn и только логирует его ошибку или панику.
// Результат сверки от fn не зависит.
func bestEffort(ctx context.Context, log *slog.Logger, what string, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("side effect panicked", slog.String("side_effect", what), slog.String("panic", fmt.Sprint(r)))
		}
	}()
	if err := fn(ctx); err != nil {
		log.Warn("side effect failed", slog.String("side_effect", what), sl.Err(err))
		return
	}
	log.Debug("side effect done", slog.String("side_effect", what))
}
