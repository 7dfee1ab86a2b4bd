package ohclient

import (
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
)

// Ошибки клиента. Асинхронные (разрыв, таймауты соединения) приходят через
// OnError/OnDisconnected; ErrRequestTimeout и ServerError отклоняют
// конкретный ожидающий запрос.
var (
	ErrExistingConnection = errors.New("connection already exists")
	ErrNotConnected       = errors.New("not connected")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrConnectionTimeout  = errors.New("connection timeout")
	ErrHeartbeatTimeout   = errors.New("heartbeat timeout: no pong between pings")
	ErrRequestTimeout     = errors.New("request timeout")
	ErrInvalidAuth        = errors.New("invalid authentication")
	ErrSessionSuperseded  = errors.New("session superseded by another connection")
	ErrAbnormalClosure    = errors.New("abnormal closure")
)

// Коды закрытия сокета со стороны сервера.
const (
	closeInvalidAuth = 4001
	closeSuperseded  = 4003
)

// ServerError — поле e в ответе сервера на конкретный запрос.
type ServerError string

func (e ServerError) Error() string { return string(e) }

// closeCause интерпретирует ошибку чтения из сокета.
// Второе значение — считать ли закрытие штатным (clean close без ошибки).
func closeCause(err error) (error, bool) {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return fmt.Errorf("%w: %w", ErrAbnormalClosure, err), false
	}
	switch ce.Code {
	case closeInvalidAuth:
		return ErrInvalidAuth, false
	case closeSuperseded:
		return ErrSessionSuperseded, false
	case websocket.CloseAbnormalClosure: // 1006
		return ErrAbnormalClosure, false
	case websocket.CloseNormalClosure, websocket.CloseGoingAway:
		return nil, true
	default:
		// прочие коды гонят тот же путь отключения, только с предупреждением
		return fmt.Errorf("close code %d: %s", ce.Code, ce.Text), false
	}
}
