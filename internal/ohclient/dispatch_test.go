package ohclient

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zlib"
	jsoniter "github.com/json-iterator/go"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	return New(Config{})
}

func textFrame(t *testing.T, c *Client, raw string) {
	t.Helper()
	if err := c.handleFrame(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("handleFrame: %v", err)
	}
}

func TestHandleAuthGood(t *testing.T) {
	c := newTestClient(t)
	c.reconnectWait.Store(int64(30 * time.Second))
	c.attempts.Store(4)

	var ready *User
	c.OnReady = func(u User) { ready = &u }

	textFrame(t, c, `{"op":"auth-good","d":{"user":{"id":"me","username":"bot"}}}`)

	if ready == nil || ready.ID != "me" {
		t.Fatalf("OnReady = %+v", ready)
	}
	if c.Self().Username != "bot" {
		t.Errorf("self = %+v", c.Self())
	}
	if c.State() != StateReady {
		t.Errorf("state = %s", c.State())
	}
	if got := time.Duration(c.reconnectWait.Load()); got != reconnectFloor {
		t.Errorf("backoff not reset: %s", got)
	}
	if c.attempts.Load() != 0 {
		t.Errorf("attempts not reset: %d", c.attempts.Load())
	}
}

func TestHandleNewTokens(t *testing.T) {
	c := newTestClient(t)

	var gotA, gotR string
	c.OnTokens = func(a, r string) { gotA, gotR = a, r }

	textFrame(t, c, `{"op":"new-tokens","d":{"accessToken":"a2","refreshToken":"r2"}}`)

	if gotA != "a2" || gotR != "r2" {
		t.Errorf("OnTokens = %q %q", gotA, gotR)
	}
	a, r := c.Tokens()
	if a != "a2" || r != "r2" {
		t.Errorf("Tokens() = %q %q", a, r)
	}
}

func joinTestRoom(t *testing.T, c *Client) {
	t.Helper()
	textFrame(t, c, `{"op":"auth-good","d":{"user":{"id":"me","username":"bot"}}}`)
	textFrame(t, c, `{"op":"join-room-done","d":{
		"room":{"id":"r1","name":"lobby","creatorId":"me"},
		"users":[{"id":"me","username":"bot"},{"id":"u1","username":"alice"}],
		"muteMap":{"u1":true},
		"deafMap":{}
	}}`)
}

func TestHandleJoinRoomDone(t *testing.T) {
	c := newTestClient(t)

	var joined *ActiveRoom
	c.OnJoinedRoom = func(ar *ActiveRoom) { joined = ar }

	joinTestRoom(t, c)

	if joined == nil || joined.ID != "r1" {
		t.Fatalf("OnJoinedRoom = %+v", joined)
	}
	if joined.UserCount() != 2 {
		t.Errorf("users = %d, want 2", joined.UserCount())
	}
	if u, _ := joined.User("u1"); !u.Voice.Muted {
		t.Error("muteMap not applied")
	}
	if self, ok := joined.Self(); !ok || self.ID != "me" {
		t.Error("self not in room")
	}
	if c.Mirror().Current() != joined {
		t.Error("mirror current mismatch")
	}
}

func TestHandleUserJoinRoomIdempotent(t *testing.T) {
	c := newTestClient(t)
	joinTestRoom(t, c)

	var joins int
	c.OnUserJoinRoom = func(*RoomUser, *ActiveRoom) { joins++ }

	pkt := `{"op":"new-user-join-room","d":{"roomId":"r1","user":{"id":"u2","username":"bob"}}}`
	textFrame(t, c, pkt)
	textFrame(t, c, pkt) // дубль

	if joins != 1 {
		t.Errorf("OnUserJoinRoom fired %d times, want 1", joins)
	}
	if c.Mirror().Current().UserCount() != 3 {
		t.Errorf("users = %d, want 3", c.Mirror().Current().UserCount())
	}

	// дельта для чужой комнаты игнорируется
	textFrame(t, c, `{"op":"new-user-join-room","d":{"roomId":"other","user":{"id":"u9"}}}`)
	if joins != 1 || c.Mirror().Current().UserCount() != 3 {
		t.Error("foreign-room delta applied")
	}
}

func TestHandleUserLeftRoom(t *testing.T) {
	c := newTestClient(t)
	joinTestRoom(t, c)

	var left []string
	c.OnUserLeftRoom = func(id string, _ *ActiveRoom) { left = append(left, id) }

	pkt := `{"op":"user-left-room","d":{"roomId":"r1","userId":"u1"}}`
	textFrame(t, c, pkt)
	textFrame(t, c, pkt) // дубль

	if len(left) != 1 || left[0] != "u1" {
		t.Errorf("left = %v", left)
	}
}

func TestHandleMuteChangedIdempotent(t *testing.T) {
	c := newTestClient(t)
	joinTestRoom(t, c)

	var events int
	c.OnMuteChange = func(*RoomUser, bool) { events++ }

	// u1 уже замьючен через muteMap
	textFrame(t, c, `{"op":"mute-changed","d":{"roomId":"r1","userId":"u1","muted":true}}`)
	if events != 0 {
		t.Error("no-op mute produced event")
	}
	textFrame(t, c, `{"op":"mute-changed","d":{"roomId":"r1","userId":"u1","muted":false}}`)
	if events != 1 {
		t.Errorf("events = %d, want 1", events)
	}
}

func TestHandleActiveSpeakerChange(t *testing.T) {
	c := newTestClient(t)
	joinTestRoom(t, c)

	var speaking []string
	c.OnSpeakingChange = func(u *RoomUser, v bool) {
		if v {
			speaking = append(speaking, u.ID)
		}
	}

	textFrame(t, c, `{"op":"active-speaker-change","d":{"roomId":"r1","users":[
		{"userId":"u1","speaking":true},
		{"userId":"me","speaking":false}
	]}}`)

	if len(speaking) != 1 || speaking[0] != "u1" {
		t.Errorf("speaking = %v", speaking)
	}
}

func TestHandleChatAndDelete(t *testing.T) {
	c := newTestClient(t)

	var msg ChatMessage
	c.OnChatMessage = func(m ChatMessage) { msg = m }
	var deleted, deleter string
	c.OnMessageDeleted = func(id, by string) { deleted, deleter = id, by }

	textFrame(t, c, `{"op":"new-chat-msg","d":{"msg":{
		"id":"m1","userId":"u1","username":"alice",
		"tokens":[{"t":"text","v":"hello"},{"t":"mention","v":"bot"}]
	}}}`)
	if msg.ID != "m1" || msg.Text() != "hello @bot" {
		t.Errorf("msg = %+v text=%q", msg, msg.Text())
	}

	textFrame(t, c, `{"op":"message-deleted","d":{"messageId":"m1","deleterId":"mod1"}}`)
	if deleted != "m1" || deleter != "mod1" {
		t.Errorf("deleted = %q by %q", deleted, deleter)
	}
}

func TestHandleSpeakerLifecycle(t *testing.T) {
	c := newTestClient(t)
	joinTestRoom(t, c)

	var raised, added, removed, became int
	c.OnHandRaised = func(*RoomUser) { raised++ }
	c.OnSpeakerAdded = func(*RoomUser) { added++ }
	c.OnSpeakerRemoved = func(*RoomUser) { removed++ }
	c.OnBecameSpeaker = func(string) { became++ }

	hand := `{"op":"hand-raised","d":{"roomId":"r1","userId":"u1"}}`
	textFrame(t, c, hand)
	textFrame(t, c, hand) // дубль
	if raised != 1 {
		t.Errorf("raised = %d, want 1", raised)
	}
	u1, _ := c.Mirror().Current().User("u1")
	if !u1.Perms.AskedToSpeak {
		t.Error("AskedToSpeak not set")
	}

	textFrame(t, c, `{"op":"speaker-added","d":{"roomId":"r1","userId":"u1"}}`)
	if added != 1 || !u1.Perms.IsSpeaker || u1.Perms.AskedToSpeak {
		t.Errorf("after add: added=%d perms=%+v", added, u1.Perms)
	}

	textFrame(t, c, `{"op":"speaker-removed","d":{"roomId":"r1","userId":"u1"}}`)
	if removed != 1 || u1.Perms.IsSpeaker {
		t.Errorf("after remove: removed=%d perms=%+v", removed, u1.Perms)
	}

	textFrame(t, c, `{"op":"you-are-now-a-speaker","d":{"roomId":"r1","sendTransportOptions":{"id":"send"}}}`)
	if became != 1 {
		t.Errorf("became = %d, want 1", became)
	}
	self, _ := c.Mirror().Current().Self()
	if !self.Perms.IsSpeaker {
		t.Error("self IsSpeaker not set")
	}
	if string(c.VoiceData().SendTransportOptions()) != `{"id":"send"}` {
		t.Error("send transport options not cached")
	}
}

func TestHandleYouLeftRoom(t *testing.T) {
	c := newTestClient(t)
	joinTestRoom(t, c)

	var roomID string
	var kicked bool
	c.OnLeftRoom = func(id string, k bool) { roomID, kicked = id, k }

	textFrame(t, c, `{"op":"you-left-room","d":{"roomId":"r1","kicked":true}}`)

	if roomID != "r1" || !kicked {
		t.Errorf("OnLeftRoom = %q %t", roomID, kicked)
	}
	if c.Mirror().Current() != nil {
		t.Error("current room survives you-left-room")
	}
	if _, ok := c.Mirror().Room("r1"); !ok {
		t.Error("arena entry lost on leave")
	}
}

func TestHandleModAndCreatorChange(t *testing.T) {
	c := newTestClient(t)
	joinTestRoom(t, c)

	var modEvents int
	c.OnModChange = func(*RoomUser, bool) { modEvents++ }
	var creator string
	c.OnCreatorChange = func(u *RoomUser) { creator = u.ID }

	pkt := `{"op":"mod-changed","d":{"roomId":"r1","userId":"u1","isMod":true}}`
	textFrame(t, c, pkt)
	textFrame(t, c, pkt) // дубль
	if modEvents != 1 {
		t.Errorf("mod events = %d, want 1", modEvents)
	}

	textFrame(t, c, `{"op":"new-room-creator","d":{"roomId":"r1","userId":"u1"}}`)
	if creator != "u1" {
		t.Errorf("creator = %q", creator)
	}
	ar := c.Mirror().Current()
	if ar.CreatorID != "u1" {
		t.Errorf("room creator = %q", ar.CreatorID)
	}
	u1, _ := ar.User("u1")
	me, _ := ar.User("me")
	if !u1.Perms.IsCreator || me.Perms.IsCreator {
		t.Error("creator flags not exclusive")
	}
}

func TestReplyResolvesBothEnvelopes(t *testing.T) {
	c := newTestClient(t)

	var gotRef, gotFetch string
	c.pending.register("ref-1", func(p jsoniter.RawMessage) { gotRef = string(p) }, nil)
	c.pending.register("fetch-1", func(p jsoniter.RawMessage) { gotFetch = string(p) }, nil)

	textFrame(t, c, `{"op":"","p":{"a":1},"version":"0.2.0","ref":"ref-1"}`)
	textFrame(t, c, `{"op":"","d":{"b":2},"fetchId":"fetch-1"}`)

	if gotRef != `{"a":1}` {
		t.Errorf("ref payload = %q", gotRef)
	}
	if gotFetch != `{"b":2}` {
		t.Errorf("fetchId payload = %q", gotFetch)
	}
}

func TestReplyServerError(t *testing.T) {
	c := newTestClient(t)

	var got error
	c.pending.register("ref-1", nil, func(err error) { got = err })

	textFrame(t, c, `{"op":"","e":"room is full","ref":"ref-1"}`)

	var se ServerError
	if !errors.As(got, &se) || string(se) != "room is full" {
		t.Errorf("error = %v", got)
	}
}

// Кадр с op и ref одновременно: и broadcast-обработчик, и корреляция.
func TestFrameIsBroadcastAndReply(t *testing.T) {
	c := newTestClient(t)

	var joined bool
	c.OnJoinedRoom = func(*ActiveRoom) { joined = true }
	var resolved bool
	c.pending.register("ref-1", func(jsoniter.RawMessage) { resolved = true }, nil)

	textFrame(t, c, `{"op":"join-room-done","p":{"room":{"id":"r1"},"users":[]},"ref":"ref-1"}`)

	if !joined {
		t.Error("broadcast handler skipped")
	}
	if !resolved {
		t.Error("pending not resolved")
	}
}

func TestHandleFrameBinaryZlib(t *testing.T) {
	c := newTestClient(t)

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write([]byte(`{"op":"new-tokens","d":{"accessToken":"z","refreshToken":"z"}}`))
	zw.Close()

	var fired bool
	c.OnTokens = func(a, r string) { fired = a == "z" }

	if err := c.handleFrame(websocket.BinaryMessage, buf.Bytes()); err != nil {
		t.Fatalf("handleFrame: %v", err)
	}
	if !fired {
		t.Error("compressed frame not dispatched")
	}
}

func TestHandleFrameBadData(t *testing.T) {
	c := newTestClient(t)
	if err := c.handleFrame(websocket.TextMessage, []byte("{not json")); err == nil {
		t.Error("bad JSON accepted")
	}
	if err := c.handleFrame(websocket.BinaryMessage, []byte{0x00, 0x01}); err == nil {
		t.Error("bad zlib accepted")
	}
}

func TestCustomOpReemit(t *testing.T) {
	c := newTestClient(t)

	var op, payload string
	c.OnCustomEvent = func(o string, p jsoniter.RawMessage) { op, payload = o, string(p) }

	textFrame(t, c, `{"op":"custom:score","d":{"points":10}}`)

	if op != "custom:score" || payload != `{"points":10}` {
		t.Errorf("custom event = %q %q", op, payload)
	}
}

func TestUnknownOpIgnored(t *testing.T) {
	c := newTestClient(t)
	c.OnError = func(err error) { t.Errorf("unexpected error: %v", err) }
	textFrame(t, c, `{"op":"totally-new-op","d":{}}`)
}

func TestRawFrameHook(t *testing.T) {
	c := newTestClient(t)

	var raw []byte
	c.OnRawFrame = func(b []byte) { raw = b }

	textFrame(t, c, `{"op":"new-tokens","d":{}}`)
	if len(raw) == 0 {
		t.Error("OnRawFrame not called")
	}
}
