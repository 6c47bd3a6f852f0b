// Package sl содержит вспомогательные функции для работы с логгером slog.
// Основная цель — упростить формирование структурированных полей лога,
// например, для передачи информации об ошибках и событиях провайдера.
package sl

import "log/slog"

// Err возвращает slog.Attr с ключом "error" и значением текста ошибки.
//
// Пример:
//
//	log.Error("failed to do something", sl.Err(err))
func Err(err error) slog.Attr {
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Event возвращает группу "event" с идентификатором и типом события провайдера.
func Event(id, eventType string) slog.Attr {
	return slog.Group("event",
		slog.String("id", id),
		slog.String("type", eventType),
	)
}
