package ohclient

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zlib"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
)

// handleFrame разбирает envelope-кадр: сперва сырой хук, затем обработчик
// по op-коду, затем — независимо — корреляция с таблицей ожидающих
// запросов. Один кадр может быть одновременно broadcast‑изменением
// состояния и ответом на запрос.
func (c *Client) handleFrame(msgType int, data []byte) error {
	if c.OnRawFrame != nil {
		c.OnRawFrame(data)
	}

	// бинарные кадры — zlib-сжатый JSON
	if msgType == websocket.BinaryMessage {
		z, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("inflate frame: %w", err)
		}
		inflated, err := io.ReadAll(z)
		z.Close()
		if err != nil {
			return fmt.Errorf("inflate frame: %w", err)
		}
		data = inflated
	}

	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}

	c.dispatchOp(&f)

	if id := f.correlationID(); id != "" {
		c.pending.resolve(id, f.payload(), f.E)
	}
	return nil
}

// dispatchOp выбирает обработчик по op-коду из закрытого набора.
// Неизвестные op с зарезервированным префиксом переизлучаются как есть,
// остальные неизвестные — опционально в лог.
func (c *Client) dispatchOp(f *frame) {
	p := f.payload()
	switch f.Op {
	case "":
		// чистый ответ на запрос, вся работа — в корреляции
	case opAuthGood:
		c.handleAuthGood(p)
	case opNewTokens:
		c.handleNewTokens(p)
	case opJoinRoomDone:
		c.handleJoinRoomDone(p)
	case opUserJoinRoom:
		c.handleUserJoinRoom(p)
	case opUserLeftRoom:
		c.handleUserLeftRoom(p)
	case opActiveSpeakerChange:
		c.handleActiveSpeakerChange(p)
	case opMuteChanged:
		c.handleMuteChanged(p)
	case opDeafenChanged:
		c.handleDeafenChanged(p)
	case opNewChatMsg:
		c.handleNewChatMsg(p)
	case opMessageDeleted:
		c.handleMessageDeleted(p)
	case opJoinedAsPeer:
		c.handleVoiceJoin(p, c.OnJoinedAsPeer)
	case opJoinedAsSpeaker:
		c.handleJoinedAsSpeaker(p)
	case opNowSpeaker:
		c.handleNowSpeaker(p)
	case opHandRaised:
		c.handleHandRaised(p)
	case opSpeakerAdded:
		c.handleSpeakerAdded(p)
	case opSpeakerRemoved:
		c.handleSpeakerRemoved(p)
	case opYouLeftRoom:
		c.handleYouLeftRoom(p)
	case opModChanged:
		c.handleModChanged(p)
	case opNewRoomCreator:
		c.handleNewRoomCreator(p)
	default:
		if strings.HasPrefix(f.Op, customOpPrefix) {
			if c.OnCustomEvent != nil {
				c.OnCustomEvent(f.Op, p)
			}
			return
		}
		if c.cfg.LogUnhandled {
			log.Warn().Str("module", "ohclient").Str("op", f.Op).Msg("unhandled op")
		}
	}
}

func (c *Client) handleAuthGood(p jsoniter.RawMessage) {
	var body struct {
		User User `json:"user"`
	}
	if err := json.Unmarshal(p, &body); err != nil {
		c.emitError(fmt.Errorf("auth-good: %w", err))
		return
	}

	c.mu.Lock()
	c.session.self = body.User
	if c.connTimer != nil {
		c.connTimer.Stop()
		c.connTimer = nil
	}
	conn := c.conn
	c.mu.Unlock()

	// успешная аутентификация возвращает backoff на пол
	c.setState(StateReady)
	c.reconnectWait.Store(int64(reconnectFloor))
	c.attempts.Store(0)

	if conn != nil {
		c.startHeartbeat(conn)
	}
	if c.OnReady != nil {
		c.OnReady(body.User)
	}
}

func (c *Client) handleNewTokens(p jsoniter.RawMessage) {
	var body struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(p, &body); err != nil {
		c.emitError(fmt.Errorf("new-tokens: %w", err))
		return
	}
	c.mu.Lock()
	c.session.accessToken = body.AccessToken
	c.session.refreshToken = body.RefreshToken
	c.mu.Unlock()
	if c.OnTokens != nil {
		c.OnTokens(body.AccessToken, body.RefreshToken)
	}
}

// JoinRoomReply — тело завершения входа в комнату.
type JoinRoomReply struct {
	Room    Room            `json:"room"`
	Users   []User          `json:"users"`
	MuteMap map[string]bool `json:"muteMap"`
	DeafMap map[string]bool `json:"deafMap"`
}

func (c *Client) handleJoinRoomDone(p jsoniter.RawMessage) {
	var body JoinRoomReply
	if err := json.Unmarshal(p, &body); err != nil {
		c.emitError(fmt.Errorf("join-room-done: %w", err))
		return
	}

	ar := c.mirror.setCurrent(body.Room, c.Self().ID, body.Users)
	for id, v := range body.MuteMap {
		ar.setMuted(id, v)
	}
	for id, v := range body.DeafMap {
		ar.setDeafened(id, v)
	}
	if c.OnJoinedRoom != nil {
		c.OnJoinedRoom(ar)
	}
}

func (c *Client) handleUserJoinRoom(p jsoniter.RawMessage) {
	var body struct {
		RoomID string `json:"roomId"`
		User   User   `json:"user"`
	}
	if err := json.Unmarshal(p, &body); err != nil {
		c.emitError(fmt.Errorf("new-user-join-room: %w", err))
		return
	}
	ar := c.currentRoom(body.RoomID)
	if ar == nil {
		return
	}
	ru, added := ar.addUser(body.User)
	if added && c.OnUserJoinRoom != nil {
		c.OnUserJoinRoom(ru, ar)
	}
}

func (c *Client) handleUserLeftRoom(p jsoniter.RawMessage) {
	var body struct {
		RoomID string `json:"roomId"`
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(p, &body); err != nil {
		c.emitError(fmt.Errorf("user-left-room: %w", err))
		return
	}
	ar := c.currentRoom(body.RoomID)
	if ar == nil {
		return
	}
	if ar.removeUser(body.UserID) && c.OnUserLeftRoom != nil {
		c.OnUserLeftRoom(body.UserID, ar)
	}
}

func (c *Client) handleActiveSpeakerChange(p jsoniter.RawMessage) {
	var body struct {
		RoomID string             `json:"roomId"`
		Users  []VoiceObservation `json:"users"`
	}
	if err := json.Unmarshal(p, &body); err != nil {
		c.emitError(fmt.Errorf("active-speaker-change: %w", err))
		return
	}
	ar := c.currentRoom(body.RoomID)
	if ar == nil {
		return
	}
	speaking, mutedUsers, deafenedUsers := ar.applyVoiceDelta(body.Users)
	for _, u := range speaking {
		if c.OnSpeakingChange != nil {
			c.OnSpeakingChange(u, u.Voice.Speaking)
		}
	}
	for _, u := range mutedUsers {
		if c.OnMuteChange != nil {
			c.OnMuteChange(u, u.Voice.Muted)
		}
	}
	for _, u := range deafenedUsers {
		if c.OnDeafenChange != nil {
			c.OnDeafenChange(u, u.Voice.Deafened)
		}
	}
}

func (c *Client) handleMuteChanged(p jsoniter.RawMessage) {
	var body struct {
		RoomID string `json:"roomId"`
		UserID string `json:"userId"`
		Muted  bool   `json:"muted"`
	}
	if err := json.Unmarshal(p, &body); err != nil {
		c.emitError(fmt.Errorf("mute-changed: %w", err))
		return
	}
	ar := c.currentRoom(body.RoomID)
	if ar == nil {
		return
	}
	if u, changed := ar.setMuted(body.UserID, body.Muted); changed && c.OnMuteChange != nil {
		c.OnMuteChange(u, body.Muted)
	}
}

func (c *Client) handleDeafenChanged(p jsoniter.RawMessage) {
	var body struct {
		RoomID   string `json:"roomId"`
		UserID   string `json:"userId"`
		Deafened bool   `json:"deafened"`
	}
	if err := json.Unmarshal(p, &body); err != nil {
		c.emitError(fmt.Errorf("deafen-changed: %w", err))
		return
	}
	ar := c.currentRoom(body.RoomID)
	if ar == nil {
		return
	}
	if u, changed := ar.setDeafened(body.UserID, body.Deafened); changed && c.OnDeafenChange != nil {
		c.OnDeafenChange(u, body.Deafened)
	}
}

func (c *Client) handleNewChatMsg(p jsoniter.RawMessage) {
	var body struct {
		Msg ChatMessage `json:"msg"`
	}
	if err := json.Unmarshal(p, &body); err != nil {
		c.emitError(fmt.Errorf("new-chat-msg: %w", err))
		return
	}
	if c.OnChatMessage != nil {
		c.OnChatMessage(body.Msg)
	}
}

func (c *Client) handleMessageDeleted(p jsoniter.RawMessage) {
	var body struct {
		MessageID string `json:"messageId"`
		DeleterID string `json:"deleterId"`
	}
	if err := json.Unmarshal(p, &body); err != nil {
		c.emitError(fmt.Errorf("message-deleted: %w", err))
		return
	}
	if c.OnMessageDeleted != nil {
		c.OnMessageDeleted(body.MessageID, body.DeleterID)
	}
}

// handleVoiceJoin пополняет голосовой кэш из подтверждения входа.
func (c *Client) handleVoiceJoin(p jsoniter.RawMessage, emit func(roomID string)) {
	var body voiceTransportPayload
	if err := json.Unmarshal(p, &body); err != nil {
		c.emitError(fmt.Errorf("voice join: %w", err))
		return
	}
	c.voice.merge(body)
	if emit != nil {
		emit(body.RoomID)
	}
}

func (c *Client) handleJoinedAsSpeaker(p jsoniter.RawMessage) {
	c.handleVoiceJoin(p, func(roomID string) {
		c.setSelfSpeaker(roomID)
		if c.OnJoinedAsSpeaker != nil {
			c.OnJoinedAsSpeaker(roomID)
		}
	})
}

func (c *Client) handleNowSpeaker(p jsoniter.RawMessage) {
	c.handleVoiceJoin(p, func(roomID string) {
		c.setSelfSpeaker(roomID)
		if c.OnBecameSpeaker != nil {
			c.OnBecameSpeaker(roomID)
		}
	})
}

func (c *Client) setSelfSpeaker(roomID string) {
	ar := c.currentRoom(roomID)
	if ar == nil {
		return
	}
	if self, ok := ar.Self(); ok {
		ar.mu.Lock()
		self.Perms.IsSpeaker = true
		self.Perms.AskedToSpeak = false
		ar.mu.Unlock()
	}
}

func (c *Client) handleHandRaised(p jsoniter.RawMessage) {
	c.updatePerms(p, "hand-raised", func(u *RoomUser) bool {
		if u.Perms.AskedToSpeak {
			return false
		}
		u.Perms.AskedToSpeak = true
		return true
	}, c.OnHandRaised)
}

func (c *Client) handleSpeakerAdded(p jsoniter.RawMessage) {
	c.updatePerms(p, "speaker-added", func(u *RoomUser) bool {
		if u.Perms.IsSpeaker {
			return false
		}
		u.Perms.IsSpeaker = true
		u.Perms.AskedToSpeak = false
		return true
	}, c.OnSpeakerAdded)
}

func (c *Client) handleSpeakerRemoved(p jsoniter.RawMessage) {
	c.updatePerms(p, "speaker-removed", func(u *RoomUser) bool {
		if !u.Perms.IsSpeaker {
			return false
		}
		u.Perms.IsSpeaker = false
		return true
	}, c.OnSpeakerRemoved)
}

// updatePerms — общий каркас для пакетов "roomId+userId меняют права".
// mutate возвращает false, если дельта уже применялась (дубль пакета).
func (c *Client) updatePerms(p jsoniter.RawMessage, op string, mutate func(*RoomUser) bool, emit func(*RoomUser)) {
	var body struct {
		RoomID string `json:"roomId"`
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(p, &body); err != nil {
		c.emitError(fmt.Errorf("%s: %w", op, err))
		return
	}
	ar := c.currentRoom(body.RoomID)
	if ar == nil {
		return
	}
	u, ok := ar.User(body.UserID)
	if !ok {
		return
	}
	ar.mu.Lock()
	changed := mutate(u)
	ar.mu.Unlock()
	if changed && emit != nil {
		emit(u)
	}
}

func (c *Client) handleYouLeftRoom(p jsoniter.RawMessage) {
	var body struct {
		RoomID string `json:"roomId"`
		Kicked bool   `json:"kicked"`
	}
	if err := json.Unmarshal(p, &body); err != nil {
		c.emitError(fmt.Errorf("you-left-room: %w", err))
		return
	}
	c.mirror.clearCurrent()
	if c.OnLeftRoom != nil {
		c.OnLeftRoom(body.RoomID, body.Kicked)
	}
}

func (c *Client) handleModChanged(p jsoniter.RawMessage) {
	var body struct {
		RoomID string `json:"roomId"`
		UserID string `json:"userId"`
		IsMod  bool   `json:"isMod"`
	}
	if err := json.Unmarshal(p, &body); err != nil {
		c.emitError(fmt.Errorf("mod-changed: %w", err))
		return
	}
	ar := c.currentRoom(body.RoomID)
	if ar == nil {
		return
	}
	u, ok := ar.User(body.UserID)
	if !ok {
		return
	}
	ar.mu.Lock()
	changed := u.Perms.IsMod != body.IsMod
	u.Perms.IsMod = body.IsMod
	ar.mu.Unlock()
	if changed && c.OnModChange != nil {
		c.OnModChange(u, body.IsMod)
	}
}

func (c *Client) handleNewRoomCreator(p jsoniter.RawMessage) {
	var body struct {
		RoomID string `json:"roomId"`
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(p, &body); err != nil {
		c.emitError(fmt.Errorf("new-room-creator: %w", err))
		return
	}
	ar := c.currentRoom(body.RoomID)
	if ar == nil {
		return
	}

	ar.mu.Lock()
	for _, u := range ar.users {
		u.Perms.IsCreator = u.ID == body.UserID
	}
	ar.CreatorID = body.UserID
	u := ar.users[body.UserID]
	ar.mu.Unlock()

	c.mirror.UpsertRoom(ar.Room)
	if u != nil && c.OnCreatorChange != nil {
		c.OnCreatorChange(u)
	}
}

// currentRoom возвращает активную комнату, если пакет адресован именно ей.
// Дельты для чужих комнат молча игнорируются (сессия их уже покинула).
func (c *Client) currentRoom(roomID string) *ActiveRoom {
	ar := c.mirror.Current()
	if ar == nil || (roomID != "" && ar.ID != roomID) {
		return nil
	}
	return ar
}
