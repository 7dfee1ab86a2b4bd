package ohclient

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// Высокоуровневые операции поверх Send/SendCall. Каждая просто
// заворачивает тело в нужный envelope; ошибки сервера приходят
// через ServerError из таблицы ожидающих запросов.

// RoomOptions — параметры создания и обновления комнаты.
type RoomOptions struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"isPrivate"`
}

// CreateRoom создаёт комнату и дожидается подтверждения. Сервер сам
// помещает создателя в комнату, так что вслед прилетит join-room-done.
func (c *Client) CreateRoom(opts RoomOptions) (Room, error) {
	raw, err := c.SendCall(opRoomCreate, opts)
	if err != nil {
		return Room{}, fmt.Errorf("create room: %w", err)
	}
	var body struct {
		Room Room `json:"room"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return Room{}, fmt.Errorf("create room: %w", err)
	}
	return body.Room, nil
}

// JoinRoom входит в комнату по id и дожидается снимка участников.
func (c *Client) JoinRoom(roomID string) (*ActiveRoom, error) {
	raw, err := c.SendCall(opRoomJoin, map[string]string{"roomId": roomID})
	if err != nil {
		return nil, fmt.Errorf("join room: %w", err)
	}
	var body JoinRoomReply
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("join room: %w", err)
	}
	// ответ несёт тот же снимок, что и broadcast join-room-done;
	// зеркало уже обновлено диспетчером, если нет — обновляем здесь
	ar := c.mirror.Current()
	if ar == nil || ar.ID != body.Room.ID {
		ar = c.mirror.setCurrent(body.Room, c.Self().ID, body.Users)
	}
	return ar, nil
}

// LeaveRoom выходит из текущей комнаты.
func (c *Client) LeaveRoom() error {
	if _, err := c.SendCall(opRoomLeave, struct{}{}); err != nil {
		return fmt.Errorf("leave room: %w", err)
	}
	c.mirror.clearCurrent()
	return nil
}

// UpdateRoom меняет атрибуты текущей комнаты (доступно создателю и модераторам).
func (c *Client) UpdateRoom(opts RoomOptions) error {
	if _, err := c.SendCall(opRoomUpdate, opts); err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	return nil
}

// SetMuted выставляет собственный флаг mute.
func (c *Client) SetMuted(v bool) error {
	return c.SendLegacy(opMute, map[string]bool{"value": v}, "")
}

// SetDeafened выставляет собственный флаг deafen.
func (c *Client) SetDeafened(v bool) error {
	return c.SendLegacy(opDeafen, map[string]bool{"value": v}, "")
}

// AskToSpeak поднимает руку в текущей комнате.
func (c *Client) AskToSpeak() error {
	return c.SendLegacy(opAskToSpeak, struct{}{}, "")
}

// AddSpeaker даёт пользователю право говорить (модераторская операция).
func (c *Client) AddSpeaker(userID string) error {
	return c.SendLegacy(opAddSpeaker, map[string]string{"userId": userID}, "")
}

// RemoveSpeaker отбирает у пользователя право говорить.
func (c *Client) RemoveSpeaker(userID string) error {
	return c.SendLegacy(opRemoveSpeaker, map[string]string{"userId": userID}, "")
}

// SetMod назначает или снимает модератора.
func (c *Client) SetMod(userID string, v bool) error {
	return c.SendLegacy(opChangeMod, map[string]any{"userId": userID, "value": v}, "")
}

// ChangeRoomCreator передаёт комнату другому пользователю.
func (c *Client) ChangeRoomCreator(userID string) error {
	return c.SendLegacy(opChangeCreator, map[string]string{"userId": userID}, "")
}

// SendChatMessage отправляет токены в чат комнаты. whisperTo непустой —
// сообщение видно только перечисленным пользователям.
func (c *Client) SendChatMessage(tokens []MessageToken, whisperTo ...string) error {
	body := map[string]any{"tokens": tokens}
	if len(whisperTo) > 0 {
		body["whisperedTo"] = whisperTo
	}
	return c.SendLegacy(opSendChatMsg, body, "")
}

// Say — удобная обёртка: разбивает строку на текстовые токены и шлёт в чат.
func (c *Client) Say(text string) error {
	return c.SendChatMessage(NewMessage().Text(text).Tokens())
}

// DeleteChatMessage удаляет сообщение из чата комнаты.
func (c *Client) DeleteChatMessage(messageID, userID string) error {
	body := map[string]string{"messageId": messageID, "userId": userID}
	return c.SendLegacy(opDeleteChatMsg, body, "")
}

// RoomPreview — строка публичного каталога комнат.
type RoomPreview struct {
	Room
	NumPeopleInside int `json:"numPeopleInside"`
}

// TopRooms запрашивает публичный каталог комнат, отсортированный по людности.
func (c *Client) TopRooms(cursor int) ([]RoomPreview, int, error) {
	raw, err := c.SendCallLegacy(opGetTopRooms, map[string]int{"cursor": cursor})
	if err != nil {
		return nil, 0, fmt.Errorf("top rooms: %w", err)
	}
	var body struct {
		Rooms      []RoomPreview `json:"rooms"`
		NextCursor int           `json:"nextCursor"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, 0, fmt.Errorf("top rooms: %w", err)
	}
	for _, r := range body.Rooms {
		c.mirror.UpsertRoom(r.Room)
	}
	return body.Rooms, body.NextCursor, nil
}

// UserProfile — расширенный профиль пользователя.
type UserProfile struct {
	User
	Bio          string `json:"bio"`
	NumFollowers int    `json:"numFollowers"`
	NumFollowing int    `json:"numFollowing"`
	Online       bool   `json:"online"`
}

// UserInfo запрашивает профиль пользователя по id или username.
func (c *Client) UserInfo(idOrUsername string) (UserProfile, error) {
	raw, err := c.SendCallLegacy(opGetUserInfo, map[string]string{"userIdOrUsername": idOrUsername})
	if err != nil {
		return UserProfile{}, fmt.Errorf("user info: %w", err)
	}
	var p UserProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return UserProfile{}, fmt.Errorf("user info: %w", err)
	}
	return p, nil
}

// CustomSend шлёт кадр с зарезервированным пользовательским op-кодом.
func (c *Client) CustomSend(op string, payload any) error {
	if !strings.HasPrefix(op, customOpPrefix) {
		op = customOpPrefix + op
	}
	_, err := c.Send(op, payload, "")
	return err
}

// RawPayload — алиас для непрозрачных тел; наружу jsoniter не протекает.
type RawPayload = jsoniter.RawMessage
