package ohclient

import jsoniter "github.com/json-iterator/go"

// Версия протокола для envelope нового формата.
const protocolVersion = "0.2.0"

// Префикс зарезервированных пользовательских op-кодов: такие пакеты
// переизлучаются как есть через OnCustomEvent.
const customOpPrefix = "custom:"

// Входящие broadcast-оп-коды (закрытый набор).
const (
	opAuthGood            = "auth-good"
	opNewTokens           = "new-tokens"
	opJoinRoomDone        = "join-room-done"
	opUserJoinRoom        = "new-user-join-room"
	opUserLeftRoom        = "user-left-room"
	opActiveSpeakerChange = "active-speaker-change"
	opMuteChanged         = "mute-changed"
	opDeafenChanged       = "deafen-changed"
	opNewChatMsg          = "new-chat-msg"
	opMessageDeleted      = "message-deleted"
	opJoinedAsPeer        = "you-joined-as-peer"
	opJoinedAsSpeaker     = "you-joined-as-speaker"
	opNowSpeaker          = "you-are-now-a-speaker"
	opHandRaised          = "hand-raised"
	opSpeakerAdded        = "speaker-added"
	opSpeakerRemoved      = "speaker-removed"
	opYouLeftRoom         = "you-left-room"
	opModChanged          = "mod-changed"
	opNewRoomCreator      = "new-room-creator"
)

// Исходящие op-коды. Room-операции ходят новым envelope (op/p/version/ref),
// остальные — legacy (op/d/fetchId): сервер принимает новый формат не везде.
const (
	opAuth       = "auth"
	opRoomCreate = "room:create"
	opRoomJoin   = "room:join"
	opRoomLeave  = "room:leave"
	opRoomUpdate = "room:update"

	opMute          = "mute"
	opDeafen        = "deafen"
	opAskToSpeak    = "ask_to_speak"
	opAddSpeaker    = "add_speaker"
	opRemoveSpeaker = "remove_speaker"
	opChangeMod     = "change_mod"
	opChangeCreator = "change_room_creator"
	opSendChatMsg   = "send_room_chat_msg"
	opDeleteChatMsg = "delete_room_chat_message"
	opGetTopRooms   = "get_top_public_rooms"
	opGetUserInfo   = "get_user_profile"
)

// frame — входящий кадр: любой из двух envelope-форматов.
// Payload лежит либо в p (новый формат), либо в d (legacy);
// идентификатор корреляции — в ref либо fetchId.
type frame struct {
	Op      string              `json:"op"`
	P       jsoniter.RawMessage `json:"p,omitempty"`
	D       jsoniter.RawMessage `json:"d,omitempty"`
	E       string              `json:"e,omitempty"`
	Version string              `json:"version,omitempty"`
	Ref     string              `json:"ref,omitempty"`
	FetchID string              `json:"fetchId,omitempty"`
}

// payload возвращает тело кадра независимо от формата.
func (f *frame) payload() jsoniter.RawMessage {
	if f.P != nil {
		return f.P
	}
	return f.D
}

// correlationID возвращает идентификатор корреляции независимо от формата.
func (f *frame) correlationID() string {
	if f.Ref != "" {
		return f.Ref
	}
	return f.FetchID
}

// outFrame — исходящий кадр нового формата.
type outFrame struct {
	Op      string `json:"op"`
	P       any    `json:"p"`
	Version string `json:"version"`
	Ref     string `json:"ref"`
}

// outFrameLegacy — исходящий кадр старого формата.
type outFrameLegacy struct {
	Op      string `json:"op"`
	D       any    `json:"d"`
	FetchID string `json:"fetchId,omitempty"`
}
