package ohclient

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"

	"example.com/openhouse/internal/authapi"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Значения по умолчанию. Интервал ping больше ~8s опасен: сервер сам
// закрывает молчащие соединения.
const (
	DefaultSocketURL = "wss://api.openhouse.chat/socket"
	DefaultAPIURL    = "https://api.openhouse.chat"

	defaultConnectionTimeout = 15 * time.Second
	defaultCallbackTimeout   = 10 * time.Second
	defaultPingInterval      = 8 * time.Second
	maxPingInterval          = 8 * time.Second

	reconnectFloor = time.Second
	reconnectCap   = 60 * time.Second

	writeTimeout = 5 * time.Second
)

// Config — распознаваемые опции клиента.
type Config struct {
	SocketURL string `json:"socket_url" mapstructure:"socket_url"`
	APIURL    string `json:"api_url" mapstructure:"api_url"`

	// Либо сырой APIKey (обменивается на пару токенов HTTP-запросом
	// перед открытием сокета), либо готовая пара токенов.
	APIKey       string `json:"api_key" mapstructure:"api_key"`
	AccessToken  string `json:"access_token" mapstructure:"access_token"`
	RefreshToken string `json:"refresh_token" mapstructure:"refresh_token"`

	AutoReconnect     bool          `json:"auto_reconnect" mapstructure:"auto_reconnect"`
	ConnectionTimeout time.Duration `json:"connection_timeout" mapstructure:"connection_timeout"`
	CallbackTimeout   time.Duration `json:"callback_timeout" mapstructure:"callback_timeout"`
	PingInterval      time.Duration `json:"ping_interval" mapstructure:"ping_interval"`

	// Логировать ли неизвестные op-коды.
	LogUnhandled bool `json:"log_unhandled" mapstructure:"log_unhandled"`
}

func (c Config) withDefaults() Config {
	if c.SocketURL == "" {
		c.SocketURL = DefaultSocketURL
	}
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = defaultConnectionTimeout
	}
	if c.CallbackTimeout <= 0 {
		c.CallbackTimeout = defaultCallbackTimeout
	}
	if c.PingInterval <= 0 || c.PingInterval > maxPingInterval {
		c.PingInterval = defaultPingInterval
	}
	return c
}

// ConnState — состояние машины подключения.
type ConnState int32

const (
	StateIdle ConnState = iota
	StateConnecting
	StateAuthenticating
	StateReady
	StateReconnectWait
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateReconnectWait:
		return "reconnect-wait"
	default:
		return "unknown"
	}
}

// session — переживающие кадры поля сессии (под mu).
type session struct {
	accessToken  string
	refreshToken string
	self         User
}

// Client — клиент Openhouse поверх одного WebSocket: подключение,
// аутентификация, heartbeat, реконнект с backoff, зеркало состояния комнат
// и корреляция запрос/ответ.
type Client struct {
	cfg  Config
	auth *authapi.Client

	dialer *websocket.Dialer

	mu      sync.Mutex // защищает conn, session, таймеры
	wmu     sync.Mutex // сериализует запись в websocket
	conn    *websocket.Conn
	session session

	state      atomic.Int32
	closed     atomic.Bool // явный Disconnect: реконнект запрещён
	connecting atomic.Bool // только одна попытка подключения за раз

	pending *pendingTable
	mirror  *Mirror
	voice   *VoiceData
	limiter RateLimiter

	hbStop       chan struct{} // под mu
	awaitingPong atomic.Bool
	pingSentAt   atomic.Int64 // unix nanos
	latency      atomic.Int64 // nanos

	reconnectWait  atomic.Int64 // текущий интервал реконнекта, nanos
	attempts       atomic.Int32
	connTimer      *time.Timer // под mu: таймаут подключения
	reconnectTimer *time.Timer // под mu

	// "События" (аналог EventEmitter)
	OnConnecting   func()
	OnConnected    func()      // сокет открыт, auth ещё не подтверждён
	OnReady        func(User)  // auth-good
	OnDisconnected func(error) // причина может быть nil
	OnError        func(error)
	OnRawFrame     func([]byte) // диагностический хук: каждый кадр до разбора

	OnTokens          func(accessToken, refreshToken string)
	OnJoinedRoom      func(*ActiveRoom)
	OnUserJoinRoom    func(*RoomUser, *ActiveRoom)
	OnUserLeftRoom    func(userID string, room *ActiveRoom)
	OnSpeakingChange  func(*RoomUser, bool)
	OnMuteChange      func(*RoomUser, bool)
	OnDeafenChange    func(*RoomUser, bool)
	OnChatMessage     func(ChatMessage)
	OnMessageDeleted  func(messageID, deleterID string)
	OnJoinedAsPeer    func(roomID string)
	OnJoinedAsSpeaker func(roomID string)
	OnBecameSpeaker   func(roomID string)
	OnHandRaised      func(*RoomUser)
	OnSpeakerAdded    func(*RoomUser)
	OnSpeakerRemoved  func(*RoomUser)
	OnLeftRoom        func(roomID string, kicked bool)
	OnModChange       func(*RoomUser, bool)
	OnCreatorChange   func(*RoomUser)
	OnCustomEvent     func(op string, payload jsoniter.RawMessage)
}

func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:     cfg,
		auth:    authapi.New(cfg.APIURL),
		dialer:  websocket.DefaultDialer,
		pending: newPendingTable(cfg.CallbackTimeout),
		mirror:  newMirror(),
		voice:   &VoiceData{},
		limiter: NewRateLimiter(),
	}
	c.session.accessToken = cfg.AccessToken
	c.session.refreshToken = cfg.RefreshToken
	c.reconnectWait.Store(int64(reconnectFloor))
	return c
}

func (c *Client) State() ConnState { return ConnState(c.state.Load()) }

func (c *Client) setState(s ConnState) { c.state.Store(int32(s)) }

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.closed.Load()
}

// Latency возвращает последнюю измеренную задержку ping/pong.
func (c *Client) Latency() time.Duration {
	return time.Duration(c.latency.Load())
}

// Self возвращает аутентифицированную идентичность.
func (c *Client) Self() User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.self
}

// Mirror возвращает зеркало состояния комнат.
func (c *Client) Mirror() *Mirror { return c.mirror }

// VoiceData возвращает кэш параметров голосового транспорта.
func (c *Client) VoiceData() *VoiceData { return c.voice }

// Tokens возвращает текущую пару токенов сессии.
func (c *Client) Tokens() (access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.accessToken, c.session.refreshToken
}

// Connect устанавливает WebSocket, отправляет auth и запускает readLoop.
// Если задан только APIKey — сперва одноразовый HTTP-обмен на пару токенов.
// Повторный вызов при живом соединении — нефатальная ошибка.
func (c *Client) Connect(ctx context.Context) error {
	if !c.connecting.CompareAndSwap(false, true) {
		return ErrExistingConnection
	}
	defer c.connecting.Store(false)

	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		c.emitError(ErrExistingConnection)
		return ErrExistingConnection
	}
	access, key := c.session.accessToken, c.cfg.APIKey
	c.mu.Unlock()

	c.closed.Store(false)
	c.setState(StateConnecting)
	if c.OnConnecting != nil {
		c.OnConnecting()
	}

	if access == "" && key != "" {
		tokens, err := c.auth.Exchange(ctx, key)
		if err != nil {
			c.setState(StateIdle)
			err = fmt.Errorf("%w: %w", ErrInvalidAuth, err)
			c.emitError(err)
			return err
		}
		c.mu.Lock()
		c.session.accessToken = tokens.AccessToken
		c.session.refreshToken = tokens.RefreshToken
		c.mu.Unlock()
	}

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.SocketURL, nil)
	if err != nil {
		c.setState(StateIdle)
		c.emitError(err)
		// разрыв на стадии dial при включённом автореконнекте тоже ретраим
		if c.cfg.AutoReconnect && !c.closed.Load() {
			c.scheduleReconnect()
		}
		return err
	}

	c.limiter.Reset()

	c.mu.Lock()
	c.conn = conn
	c.connTimer = time.AfterFunc(c.cfg.ConnectionTimeout, c.onConnectTimeout)
	c.mu.Unlock()

	if c.OnConnected != nil {
		c.OnConnected()
	}

	c.setState(StateAuthenticating)
	if err := c.sendAuth(); err != nil {
		c.disconnect(err, true)
		return err
	}

	go c.readLoop(ctx, conn)
	return nil
}

// Disconnect закрывает соединение по требованию, без реконнекта.
func (c *Client) Disconnect() {
	c.closed.Store(true)
	c.mu.Lock()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.mu.Unlock()
	c.disconnect(nil, false)
}

// sendAuth шлёт AUTH-кадр с токенами и базовыми голосовыми флагами.
func (c *Client) sendAuth() error {
	c.mu.Lock()
	access, refresh := c.session.accessToken, c.session.refreshToken
	c.mu.Unlock()
	return c.writeJSON(outFrameLegacy{
		Op: opAuth,
		D: authPayload{
			AccessToken:      access,
			RefreshToken:     refresh,
			Muted:            false,
			Deafened:         false,
			ReconnectToVoice: true,
			Platform:         "openhouse-go",
		},
	})
}

type authPayload struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	Muted            bool   `json:"muted"`
	Deafened         bool   `json:"deafened"`
	ReconnectToVoice bool   `json:"reconnectToVoice"`
	Platform         string `json:"platform"`
}

// writeJSON — запись строго через один мьютекс + write-deadline,
// с пропуском через rate limiter.
func (c *Client) writeJSON(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	if err := c.limiter.Wait(context.Background()); err != nil {
		return err
	}
	defer c.limiter.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Send шлёт кадр нового формата (op/p/version/ref) без ожидания ответа.
// Пустой ref генерируется. Возвращает использованный ref.
func (c *Client) Send(op string, payload any, ref string) (string, error) {
	if ref == "" {
		ref = uuid.NewString()
	}
	return ref, c.writeJSON(outFrame{Op: op, P: payload, Version: protocolVersion, Ref: ref})
}

// SendLegacy шлёт кадр старого формата (op/d/fetchId) без ожидания ответа.
func (c *Client) SendLegacy(op string, payload any, fetchID string) error {
	return c.writeJSON(outFrameLegacy{Op: op, D: payload, FetchID: fetchID})
}

// SendCall шлёт запрос нового формата и ждёт коррелированный ответ.
// Таймаут ответа — CallbackTimeout; ошибка сервера (поле e) отклоняет вызов.
func (c *Client) SendCall(op string, payload any) (jsoniter.RawMessage, error) {
	ref := uuid.NewString()
	return c.call(ref, func() error {
		_, err := c.Send(op, payload, ref)
		return err
	})
}

// SendCallLegacy — то же для старого формата (fetchId).
func (c *Client) SendCallLegacy(op string, payload any) (jsoniter.RawMessage, error) {
	fetchID := uuid.NewString()
	return c.call(fetchID, func() error {
		return c.SendLegacy(op, payload, fetchID)
	})
}

func (c *Client) call(id string, send func() error) (jsoniter.RawMessage, error) {
	respCh := make(chan jsoniter.RawMessage, 1)
	errCh := make(chan error, 1)
	c.pending.register(id,
		func(p jsoniter.RawMessage) { respCh <- p },
		func(err error) { errCh <- err },
	)

	if err := send(); err != nil {
		// сеть упала между регистрацией и записью: отказ получает весь
		// набор, включая чужие регистрации на этом же идентификаторе
		c.pending.fail(id, err)
		return nil, err
	}

	select {
	case p := <-respCh:
		return p, nil
	case err := <-errCh:
		return nil, err
	}
}

func (c *Client) emitError(err error) {
	if c.OnError != nil {
		c.OnError(err)
		return
	}
	log.Debug().Str("module", "ohclient").Err(err).Msg("unobserved error")
}
