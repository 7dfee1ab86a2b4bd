package ohclient

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ========================= low-level =========================

// onConnectTimeout — сокет открылся, но auth-good так и не пришёл.
func (c *Client) onConnectTimeout() {
	s := c.State()
	if s != StateConnecting && s != StateAuthenticating {
		return
	}
	c.emitError(ErrConnectionTimeout)
	c.disconnect(ErrConnectionTimeout, true)
}

// startHeartbeat запускает цикл ping после подтверждения аутентификации.
func (c *Client) startHeartbeat(conn *websocket.Conn) {
	c.mu.Lock()
	if c.hbStop != nil {
		close(c.hbStop)
	}
	stop := make(chan struct{})
	c.hbStop = stop
	c.mu.Unlock()

	c.awaitingPong.Store(false)
	go c.heartbeatLoop(conn, stop)
}

// heartbeatLoop каждые PingInterval шлёт текстовый "ping". Если к очередному
// тику pong так и не пришёл — соединение мёртвое, рвём с автореконнектом.
func (c *Client) heartbeatLoop(conn *websocket.Conn, stop <-chan struct{}) {
	t := time.NewTicker(c.cfg.PingInterval)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if c.awaitingPong.Load() {
				c.emitError(ErrHeartbeatTimeout)
				c.disconnect(ErrHeartbeatTimeout, true)
				return
			}
			c.awaitingPong.Store(true)
			c.pingSentAt.Store(time.Now().UnixNano())

			// ping идёт мимо rate limiter'а: heartbeat не должен голодать
			c.wmu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.TextMessage, []byte("ping"))
			c.wmu.Unlock()
			if err != nil {
				c.disconnect(err, true)
				return
			}
		}
	}
}

// handlePong обновляет оценку задержки и снимает флаг ожидания.
func (c *Client) handlePong() {
	if sent := c.pingSentAt.Load(); sent != 0 {
		c.latency.Store(time.Since(time.Unix(0, sent)).Nanoseconds())
	}
	c.awaitingPong.Store(false)
}

// disconnect отцепляет и закрывает сокет, глушит таймеры и отклоняет
// ожидающие запросы. Повторный вызов для того же сокета — no-op.
// retry=true при включённом автореконнекте планирует повтор; закрытие по
// невалидной аутентификации повтор подавляет (иначе горячий цикл об
// отвергающий сервер).
func (c *Client) disconnect(cause error, retry bool) {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	if c.hbStop != nil {
		close(c.hbStop)
		c.hbStop = nil
	}
	if c.connTimer != nil {
		c.connTimer.Stop()
		c.connTimer = nil
	}
	c.mu.Unlock()

	if conn == nil {
		return
	}

	// ошибки закрытия — в лог, не наружу
	if err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second)); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		log.Warn().Str("module", "ohclient").Err(err).Msg("write close frame")
	}
	if err := conn.Close(); err != nil {
		log.Warn().Str("module", "ohclient").Err(err).Msg("close socket")
	}

	c.awaitingPong.Store(false)
	c.pingSentAt.Store(0)

	failErr := cause
	if failErr == nil {
		failErr = ErrConnectionClosed
	}
	c.pending.failAll(failErr)

	if c.OnDisconnected != nil {
		c.OnDisconnected(cause)
	}

	if retry && c.cfg.AutoReconnect && !c.closed.Load() && !errors.Is(cause, ErrInvalidAuth) {
		c.scheduleReconnect()
		return
	}
	c.hardReset()
}

// hardReset — полный сброс сессии: backoff на пол, счётчик попыток в ноль,
// зеркало и голосовой кэш опустошаются.
func (c *Client) hardReset() {
	c.setState(StateIdle)
	c.reconnectWait.Store(int64(reconnectFloor))
	c.attempts.Store(0)
	c.latency.Store(0)
	c.mirror.reset()
	c.voice.reset()
}

// scheduleReconnect планирует повтор через текущий интервал backoff и
// растит интервал на следующий раз.
func (c *Client) scheduleReconnect() {
	c.setState(StateReconnectWait)

	wait := time.Duration(c.reconnectWait.Load())
	c.reconnectWait.Store(int64(nextReconnectDelay(wait)))
	attempt := c.attempts.Add(1)

	log.Info().Str("module", "ohclient").
		Dur("wait", wait).
		Int32("attempt", attempt).
		Msg("reconnect scheduled")

	c.mu.Lock()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.reconnectTimer = time.AfterFunc(wait, func() {
		if c.closed.Load() {
			return
		}
		if err := c.Connect(context.Background()); err != nil &&
			!errors.Is(err, ErrExistingConnection) {
			log.Warn().Str("module", "ohclient").Err(err).Msg("reconnect attempt failed")
		}
	})
	c.mu.Unlock()
}

// nextReconnectDelay растит интервал случайным множителем из [1,3)
// с потолком 60s. Пол восстанавливается только после успешного auth-good.
func nextReconnectDelay(prev time.Duration) time.Duration {
	next := time.Duration(float64(prev) * (1 + rand.Float64()*2))
	if next > reconnectCap {
		next = reconnectCap
	}
	return next
}
