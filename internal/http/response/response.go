// Package response содержит типы JSON-ответов HTTP-обработчиков.
package response

// Response описывает ответ с ошибкой или статусом.
// Поле Status — "OK" или "Error", Error — текст ошибки при неуспехе.
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Ack — подтверждение приёма события провайдеру.
type Ack struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

const (
	// StatusOK — значение статуса для успешного ответа.
	StatusOK = "OK"
	// StatusError — значение статуса для ответа с ошибкой.
	StatusError = "Error"
)

// OK возвращает успешный Response.
func OK() Response {
	return Response{Status: StatusOK}
}

// Error возвращает Response с ошибкой и переданным сообщением.
func Error(msg string) Response {
	return Response{
		Status: StatusError,
		Error:  msg,
	}
}

// Received подтверждает приём события.
func Received() Ack {
	return Ack{Received: true}
}

// Duplicate подтверждает повторную доставку уже обработанного события.
func Duplicate() Ack {
	return Ack{Received: true, Duplicate: true}
}
