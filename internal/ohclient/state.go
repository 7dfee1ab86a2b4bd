package ohclient

import (
	"sync"

	jsoniter "github.com/json-iterator/go"
)

// User — идентичность пользователя, как её присылает сервер.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

// Room — статические атрибуты комнаты.
type Room struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"isPrivate"`
	CreatorID   string `json:"creatorId"`
}

// VoiceState — голосовые флаги одного пользователя.
type VoiceState struct {
	Muted      bool `json:"muted"`
	Deafened   bool `json:"deafened"`
	Speaking   bool `json:"speaking"`
	HandRaised bool `json:"handRaised"`
}

// Permissions — права пользователя в текущей комнате.
type Permissions struct {
	IsSpeaker    bool `json:"isSpeaker"`
	IsMod        bool `json:"isMod"`
	IsCreator    bool `json:"isCreator"`
	AskedToSpeak bool `json:"askedToSpeak"`
}

// RoomUser — участник активной комнаты.
type RoomUser struct {
	User
	Voice VoiceState
	Perms Permissions

	room *ActiveRoom // слабая обратная ссылка, только для навигации
}

// Room возвращает комнату, которой принадлежит участник.
func (u *RoomUser) Room() *ActiveRoom { return u.room }

// ActiveRoom — комната, в которой сессия находится (или недавно находилась).
// Владеет коллекцией участников; id пользователя уникален в коллекции.
type ActiveRoom struct {
	Room

	mu     sync.RWMutex
	users  map[string]*RoomUser
	selfID string
}

func newActiveRoom(r Room, selfID string) *ActiveRoom {
	return &ActiveRoom{
		Room:   r,
		users:  make(map[string]*RoomUser),
		selfID: selfID,
	}
}

// User возвращает участника по id.
func (r *ActiveRoom) User(id string) (*RoomUser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	return u, ok
}

// Self возвращает собственного участника, если он есть в коллекции.
func (r *ActiveRoom) Self() (*RoomUser, bool) {
	return r.User(r.selfID)
}

// Users возвращает срез участников (порядок не определён).
func (r *ActiveRoom) Users() []*RoomUser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*RoomUser, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out
}

// UserCount возвращает число участников.
func (r *ActiveRoom) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// addUser добавляет участника с голосовым состоянием по умолчанию.
// Повторное добавление того же id лишь обновляет идентичность (идемпотентно);
// added=false значит событие уже излучалось.
func (r *ActiveRoom) addUser(u User) (*RoomUser, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ru, ok := r.users[u.ID]; ok {
		ru.User = u
		return ru, false
	}
	ru := &RoomUser{User: u, room: r}
	r.users[u.ID] = ru
	return ru, true
}

func (r *ActiveRoom) removeUser(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return false
	}
	delete(r.users, id)
	return true
}

// Mirror — локальное зеркало серверного состояния, собираемое только из
// входящих дельт. Комнаты лежат в арене по id; две записи с одним id
// невозможны — поздний join вытесняет раннюю запись.
type Mirror struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	current *ActiveRoom
}

func newMirror() *Mirror {
	return &Mirror{rooms: make(map[string]*Room)}
}

// UpsertRoom кладёт комнату в арену; запись с тем же id замещается.
func (m *Mirror) UpsertRoom(r Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertLocked(r)
}

func (m *Mirror) upsertLocked(r Room) {
	if old, ok := m.rooms[r.ID]; ok {
		*old = r
		return
	}
	cp := r
	m.rooms[r.ID] = &cp
}

// Room возвращает комнату из арены по id.
func (m *Mirror) Room(id string) (Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.rooms[id]; ok {
		return *r, true
	}
	return Room{}, false
}

// Rooms возвращает снимок арены.
func (m *Mirror) Rooms() []Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, *r)
	}
	return out
}

// Current возвращает активную комнату (nil, если сессия не в комнате).
func (m *Mirror) Current() *ActiveRoom {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// setCurrent делает комнату активной и заполняет участников.
// ActiveRoom вытесняет из арены обычную Room с тем же id.
func (m *Mirror) setCurrent(r Room, selfID string, users []User) *ActiveRoom {
	ar := newActiveRoom(r, selfID)
	for _, u := range users {
		ar.addUser(u)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertLocked(r)
	m.current = ar
	return ar
}

// clearCurrent сбрасывает активную комнату (выход из комнаты).
// Сама комната остается известной в арене.
func (m *Mirror) clearCurrent() *ActiveRoom {
	m.mu.Lock()
	defer m.mu.Unlock()
	ar := m.current
	m.current = nil
	return ar
}

// reset опустошает зеркало. Вызывается только при полном сбросе сессии.
func (m *Mirror) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms = make(map[string]*Room)
	m.current = nil
}

// VoiceData — сессионный кэш непрозрачных параметров голосового транспорта.
// Разные пакеты доносят разные подмножества; кэш пополняется аддитивно и
// очищается только при сбросе сессии.
type VoiceData struct {
	mu           sync.RWMutex
	routerCaps   jsoniter.RawMessage
	recvOptions  jsoniter.RawMessage
	sendOptions  jsoniter.RawMessage
}

type voiceTransportPayload struct {
	RoomID                string              `json:"roomId"`
	RouterRTPCapabilities jsoniter.RawMessage `json:"routerRtpCapabilities,omitempty"`
	RecvTransportOptions  jsoniter.RawMessage `json:"recvTransportOptions,omitempty"`
	SendTransportOptions  jsoniter.RawMessage `json:"sendTransportOptions,omitempty"`
}

func (v *VoiceData) merge(p voiceTransportPayload) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if p.RouterRTPCapabilities != nil {
		v.routerCaps = p.RouterRTPCapabilities
	}
	if p.RecvTransportOptions != nil {
		v.recvOptions = p.RecvTransportOptions
	}
	if p.SendTransportOptions != nil {
		v.sendOptions = p.SendTransportOptions
	}
}

// RouterCapabilities возвращает закэшированные возможности роутера.
func (v *VoiceData) RouterCapabilities() jsoniter.RawMessage {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.routerCaps
}

// RecvTransportOptions возвращает параметры принимающего транспорта.
func (v *VoiceData) RecvTransportOptions() jsoniter.RawMessage {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.recvOptions
}

// SendTransportOptions возвращает параметры передающего транспорта.
func (v *VoiceData) SendTransportOptions() jsoniter.RawMessage {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.sendOptions
}

func (v *VoiceData) reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.routerCaps, v.recvOptions, v.sendOptions = nil, nil, nil
}
