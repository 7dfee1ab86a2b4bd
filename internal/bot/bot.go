package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"example.com/openhouse/internal/mediahook"
	"example.com/openhouse/internal/ohclient"
)

// OpenhouseBot — прикладной бот поверх ohclient: чат-команды, приветствия,
// отслеживание пользователей, авто-возврат в комнату после реконнекта.
type OpenhouseBot struct {
	client    *ohclient.Client
	mediaHook *mediahook.Hook

	cfg *configStore

	muted    bool
	deafened bool

	stopCh chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	// чтобы не дёргать rejoin слишком часто при серии быстрых реконнектов
	rejoinMu   sync.Mutex
	lastRejoin time.Time
}

func New() *OpenhouseBot {
	return &OpenhouseBot{}
}

// Client возвращает нижележащий клиент (для прямых вызовов API).
func (bot *OpenhouseBot) Client() *ohclient.Client { return bot.client }

// SetClient создаёт клиент и подвешивает обработчики событий.
func (bot *OpenhouseBot) SetClient(cfg ohclient.Config) {
	bot.client = ohclient.New(cfg)
	c := bot.client

	c.OnConnecting = func() {
		log.Info().Str("module", "bot").Msg("connecting...")
	}

	// КЛЮЧЕВОЕ: каждое успешное подключение (первое или реконнект) —
	// возвращаемся в свою комнату
	c.OnReady = func(u ohclient.User) {
		log.Info().Str("module", "bot").Str("user", u.Username).Msg("ready")
		go bot.rejoinRoom()
	}

	c.OnDisconnected = func(err error) {
		log.Warn().Str("module", "bot").Err(err).Msg("disconnected")
	}

	c.OnError = func(err error) {
		log.Error().Str("module", "bot").Err(err).Msg("client error")
	}

	c.OnChatMessage = func(m ohclient.ChatMessage) {
		if m.UserID == c.Self().ID {
			return
		}
		text := strings.TrimSpace(m.Text())
		log.Info().Str("module", "bot").Str("from", m.Username).Msg(text)
		if !strings.HasPrefix(text, "!") {
			return
		}
		if !bot.allowed(m.UserID, m.Username) {
			return
		}
		// команды зовут блокирующие вызовы клиента (JoinRoom и т.п.),
		// а ответ им доставляет тот же цикл чтения, который вызвал нас.
		// Поэтому обработку уводим в отдельную горутину.
		go func() {
			if err := bot.HandleCommand(m.Username, text); err != nil {
				_ = c.Say("err: " + err.Error())
			}
		}()
	}

	c.OnUserJoinRoom = func(u *ohclient.RoomUser, _ *ohclient.ActiveRoom) {
		bot.onUserJoin(u)
	}

	c.OnUserLeftRoom = func(userID string, _ *ohclient.ActiveRoom) {
		bot.onUserLeft(userID)
	}

	c.OnHandRaised = func(u *ohclient.RoomUser) {
		cfg := bot.cfg
		if cfg == nil {
			return
		}
		if cb := callbackForSound(cfg.snapshot().HandRaiseSound); cb != nil {
			go cb()
		}
		_ = c.Say("@" + u.Username + " wants to speak")
	}
}

// SetMediaHook вешает глобальные медиа-клавиши: UP — mute, DOWN — deafen.
func (bot *OpenhouseBot) SetMediaHook() {
	h, err := mediahook.New(
		func() {
			bot.mu.Lock()
			bot.muted = !bot.muted
			v := bot.muted
			bot.mu.Unlock()
			log.Info().Str("module", "bot").Bool("muted", v).Msg("UP pressed")
			_ = bot.client.SetMuted(v)
		},
		func() {
			bot.mu.Lock()
			bot.deafened = !bot.deafened
			v := bot.deafened
			bot.mu.Unlock()
			log.Info().Str("module", "bot").Bool("deafened", v).Msg("DOWN pressed")
			_ = bot.client.SetDeafened(v)
		},
	)
	if err != nil {
		log.Warn().Str("module", "bot").Err(err).Msg("mediahook unavailable")
		return
	}
	bot.mediaHook = h
}

// UseConfig подключает JSON-состояние бота и следит за его правками.
func (bot *OpenhouseBot) UseConfig(path string) error {
	bot.cfg = newConfigStore(path)
	if err := bot.cfg.Load(); err != nil {
		return err
	}
	return bot.cfg.Watch(func(data BotConfig) {
		// бот мог быть переведён в другую комнату правкой файла
		if data.Room != "" && bot.client.IsConnected() {
			go bot.rejoinRoom()
		}
	})
}

func (bot *OpenhouseBot) Start() error {
	if bot == nil {
		return errors.New("бот не инициализирован")
	}
	if bot.client == nil {
		return errors.New("клиент не инициализирован")
	}
	bot.mu.Lock()
	if bot.stopCh != nil {
		bot.mu.Unlock()
		return errors.New("уже запущен")
	}
	stopCh := make(chan struct{})
	bot.stopCh = stopCh
	bot.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	if err := bot.client.Connect(ctx); err != nil {
		cancel()
		bot.mu.Lock()
		bot.stopCh = nil
		bot.mu.Unlock()
		return err
	}

	if bot.mediaHook != nil {
		if err := bot.mediaHook.Start(); err != nil {
			log.Warn().Str("module", "bot").Err(err).Msg("mediahook")
		}
	}

	// сторож для остановки
	bot.wg.Add(1)
	go func() {
		defer bot.wg.Done()
		<-stopCh
		if bot.mediaHook != nil {
			bot.mediaHook.Close()
		}
		if bot.cfg != nil {
			bot.cfg.Close()
		}
		cancel()
		bot.client.Disconnect()
	}()

	return nil
}

func (bot *OpenhouseBot) Stop() {
	bot.mu.Lock()
	ch := bot.stopCh
	bot.stopCh = nil
	bot.mu.Unlock()

	if ch != nil {
		close(ch)     // повторный Stop() ничего не делает
		bot.wg.Wait() // дождёмся остановки фоновой горутины
	}
}

// rejoinRoom возвращает бота в сконфигурированную комнату.
func (bot *OpenhouseBot) rejoinRoom() {
	// антидребезг: серию быстрых OnReady коллапсируем в один вызов
	bot.rejoinMu.Lock()
	if time.Since(bot.lastRejoin) < 2*time.Second {
		bot.rejoinMu.Unlock()
		return
	}
	bot.lastRejoin = time.Now()
	bot.rejoinMu.Unlock()

	if bot.cfg == nil {
		return
	}
	roomID := bot.cfg.snapshot().Room
	if roomID == "" {
		return
	}
	if cur := bot.client.Mirror().Current(); cur != nil && cur.ID == roomID {
		return
	}
	if _, err := bot.client.JoinRoom(roomID); err != nil {
		log.Warn().Str("module", "bot").Str("room", roomID).Err(err).Msg("rejoin failed")
		return
	}
	log.Info().Str("module", "bot").Str("room", roomID).Msg("rejoined room")
}

// allowed пропускает администраторов из конфига и модераторов комнаты.
func (bot *OpenhouseBot) allowed(userID, username string) bool {
	if bot.cfg != nil {
		for _, a := range bot.cfg.snapshot().Admins {
			if strings.EqualFold(a, username) {
				return true
			}
		}
	}
	ar := bot.client.Mirror().Current()
	if ar == nil {
		return false
	}
	if u, ok := ar.User(userID); ok {
		return u.Perms.IsMod || u.Perms.IsCreator
	}
	return false
}

func (bot *OpenhouseBot) onUserJoin(u *ohclient.RoomUser) {
	if bot.cfg == nil {
		return
	}
	data := bot.cfg.snapshot()
	if data.Greeting != "" {
		text := strings.ReplaceAll(data.Greeting, "{name}", u.DisplayName)
		_ = bot.client.Say(text)
	}
	for _, t := range data.Tracked {
		if t.ID == u.ID {
			_ = bot.client.Say("[track] " + trackedLabel(t, u.Username) + " joined")
			return
		}
	}
}

func (bot *OpenhouseBot) onUserLeft(userID string) {
	if bot.cfg == nil {
		return
	}
	for _, t := range bot.cfg.snapshot().Tracked {
		if t.ID == userID {
			_ = bot.client.Say("[track] " + trackedLabel(t, "") + " left")
			return
		}
	}
}

func trackedLabel(t TrackedConf, fallback string) string {
	if t.Name != "" {
		return t.Name
	}
	if fallback != "" {
		return fallback
	}
	return t.ID
}
