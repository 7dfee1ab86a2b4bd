package bot

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/radovskyb/watcher"
	"github.com/rs/zerolog/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TrackedConf — отслеживаемый пользователь: бот сообщает в чат о его
// входах и выходах.
type TrackedConf struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// BotConfig — мутабельное состояние бота, переживающее рестарты.
type BotConfig struct {
	// Комната, в которую бот возвращается после (ре)подключения.
	Room string `json:"room,omitempty"`
	// Usernames, которым разрешены команды (модераторы комнаты
	// проходят всегда).
	Admins []string `json:"admins"`
	// Отслеживаемые пользователи.
	Tracked []TrackedConf `json:"tracked"`
	// Приветствие для входящих; {name} заменяется на имя.
	Greeting string `json:"greeting,omitempty"`
	// Звук при поднятой руке: "none" или имя файла в ./sounds.
	HandRaiseSound string `json:"hand_raise_sound,omitempty"`
}

type configStore struct {
	mu   sync.Mutex
	path string
	data BotConfig

	w *watcher.Watcher
}

func newConfigStore(path string) *configStore {
	return &configStore{path: path}
}

func (cs *configStore) Load() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.loadLocked()
}

func (cs *configStore) loadLocked() error {
	_ = os.MkdirAll(filepath.Dir(cs.path), 0755)
	b, err := os.ReadFile(cs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return cs.saveLocked() // создаём пустой
		}
		return err
	}
	return json.Unmarshal(b, &cs.data)
}

func (cs *configStore) Save() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.saveLocked()
}

func (cs *configStore) saveLocked() error {
	b, err := json.MarshalIndent(&cs.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(cs.path, b, 0644)
}

// snapshot возвращает копию данных, чтобы читатели не держали мьютекс.
func (cs *configStore) snapshot() BotConfig {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cp := cs.data
	cp.Admins = append([]string(nil), cs.data.Admins...)
	cp.Tracked = append([]TrackedConf(nil), cs.data.Tracked...)
	return cp
}

func (cs *configStore) update(fn func(*BotConfig)) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	fn(&cs.data)
	return cs.saveLocked()
}

// Watch перечитывает файл при внешних правках (редактирование руками
// на живом боте). Собственные Save тоже будят watcher, но повторная
// загрузка только что записанных данных безвредна.
func (cs *configStore) Watch(onReload func(BotConfig)) error {
	w := watcher.New()
	w.SetMaxEvents(1)
	w.FilterOps(watcher.Write, watcher.Create)
	if err := w.Add(cs.path); err != nil {
		return err
	}
	cs.w = w

	go func() {
		for {
			select {
			case <-w.Event:
				if err := cs.Load(); err != nil {
					log.Warn().Str("module", "bot").Err(err).Msg("config reload failed")
					continue
				}
				log.Info().Str("module", "bot").Str("path", cs.path).Msg("config reloaded")
				if onReload != nil {
					onReload(cs.snapshot())
				}
			case err := <-w.Error:
				log.Warn().Str("module", "bot").Err(err).Msg("config watcher")
			case <-w.Closed:
				return
			}
		}
	}()

	go func() {
		if err := w.Start(500 * time.Millisecond); err != nil {
			log.Warn().Str("module", "bot").Err(err).Msg("config watcher start")
		}
	}()
	return nil
}

func (cs *configStore) Close() {
	if cs.w != nil {
		cs.w.Close()
	}
}
