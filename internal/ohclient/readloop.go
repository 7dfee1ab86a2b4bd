package ohclient

import (
	"context"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// readLoop читает кадры одного сокета до ошибки. Кадры обрабатываются
// строго в порядке прихода — все мутации зеркала и таблицы ожидающих
// запросов сериализованы этой горутиной.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	// закрыть сокет по отмене контекста, чтобы ReadMessage проснулся
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.Disconnect()
		case <-done:
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			same := c.conn == conn
			c.mu.Unlock()
			if !same {
				// сокет уже отцеплен кем-то другим (heartbeat, Disconnect)
				return
			}
			if c.closed.Load() {
				c.disconnect(nil, false)
				return
			}
			cause, clean := closeCause(err)
			if clean {
				c.disconnect(nil, true)
				return
			}
			c.emitError(cause)
			c.disconnect(cause, true)
			return
		}
		c.handleDataFrame(msgType, data)
	}
}

// handleDataFrame отделяет контрольный "pong" от envelope-кадров.
func (c *Client) handleDataFrame(msgType int, data []byte) {
	if msgType == websocket.TextMessage && string(data) == "pong" {
		c.handlePong()
		return
	}
	if err := c.handleFrame(msgType, data); err != nil {
		log.Warn().Str("module", "ohclient").Err(err).Msg("bad frame")
		c.emitError(err)
	}
}
