package instagram

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected — для пользователя нет привязанного Instagram аккаунта.
	ErrNotConnected = errors.New("instagram account not connected")
	// ErrTokenExpired — токен истек, нужна повторная авторизация, refresh невозможен.
	ErrTokenExpired = errors.New("instagram token has expired, please reconnect the account")
)

// APIError — ответ Graph API со статусом вне 2xx. Сообщение провайдера
// передается вызывающему без изменений.
type APIError struct {
	Endpoint string
	Status   int
	Code     int
	Subcode  int
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("instagram %s: status %d: %s", e.Endpoint, e.Status, e.Message)
}

// TokenInvalid распознает сигнатуру протухшего/отозванного токена:
// code 190 либо сабкоды 463 (истек) и 467 (инвалидирован).
func (e *APIError) TokenInvalid() bool {
	return e.Code == 190 || e.Subcode == 463 || e.Subcode == 467
}

// ProtocolError — провайдер ответил 2xx, но без обязательного поля.
type ProtocolError struct {
	Endpoint string
	Missing  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("instagram %s: response is missing %q", e.Endpoint, e.Missing)
}
