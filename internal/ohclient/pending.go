package ohclient

import (
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// pendingCallback — пара продолжений одного зарегистрированного запроса.
// Каждая пара срабатывает не более одного раза, и только одна её половина.
type pendingCallback struct {
	onSuccess func(jsoniter.RawMessage)
	onError   func(error)
}

// pendingSet — все регистрации с одним идентификатором корреляции.
// Таймер на идентификатор ровно один: повторная регистрация подсаживается
// к уже идущему таймеру (fan-out).
type pendingSet struct {
	cbs   []pendingCallback
	timer *time.Timer
}

// pendingTable сопоставляет исходящий идентификатор запроса с его
// продолжениями и следит за таймаутом ответа.
type pendingTable struct {
	mu      sync.Mutex
	timeout time.Duration
	sets    map[string]*pendingSet
}

func newPendingTable(timeout time.Duration) *pendingTable {
	return &pendingTable{
		timeout: timeout,
		sets:    make(map[string]*pendingSet),
	}
}

// register запоминает пару продолжений под идентификатором id.
func (t *pendingTable) register(id string, onSuccess func(jsoniter.RawMessage), onError func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if set, ok := t.sets[id]; ok {
		set.cbs = append(set.cbs, pendingCallback{onSuccess, onError})
		return
	}

	set := &pendingSet{cbs: []pendingCallback{{onSuccess, onError}}}
	set.timer = time.AfterFunc(t.timeout, func() { t.expire(id, set) })
	t.sets[id] = set
}

// resolve разбирает пришедший ответ: поле e зовёт только onError,
// иначе только onSuccess. Продолжения и таймер снимаются атомарно,
// так что опоздавший дубль ответа уже никого не найдёт.
func (t *pendingTable) resolve(id string, payload jsoniter.RawMessage, serverErr string) bool {
	set := t.take(id, nil)
	if set == nil {
		return false
	}
	for _, cb := range set.cbs {
		if serverErr != "" {
			if cb.onError != nil {
				cb.onError(ServerError(serverErr))
			}
			continue
		}
		if cb.onSuccess != nil {
			cb.onSuccess(payload)
		}
	}
	return true
}

// expire — срабатывание таймера: все продолжения идентификатора получают
// ErrRequestTimeout. Проверка идентичности set отсекает гонку с resolve.
func (t *pendingTable) expire(id string, set *pendingSet) {
	got := t.take(id, set)
	if got == nil {
		return
	}
	for _, cb := range got.cbs {
		if cb.onError != nil {
			cb.onError(ErrRequestTimeout)
		}
	}
}

// remove снимает регистрации молча.
func (t *pendingTable) remove(id string) {
	t.take(id, nil)
}

// fail отклоняет все продолжения идентификатора ошибкой err. Используется
// когда запись в сокет не удалась уже после регистрации: подсевшие к тому
// же идентификатору fan-out регистрации тоже должны получить отказ,
// иначе они повиснут без таймера.
func (t *pendingTable) fail(id string, err error) {
	set := t.take(id, nil)
	if set == nil {
		return
	}
	for _, cb := range set.cbs {
		if cb.onError != nil {
			cb.onError(err)
		}
	}
}

// failAll отклоняет все ожидающие запросы (разрыв соединения).
func (t *pendingTable) failAll(err error) {
	t.mu.Lock()
	sets := t.sets
	t.sets = make(map[string]*pendingSet)
	t.mu.Unlock()

	for _, set := range sets {
		set.timer.Stop()
		for _, cb := range set.cbs {
			if cb.onError != nil {
				cb.onError(err)
			}
		}
	}
}

// take изымает набор по id, останавливая таймер. Если want != nil,
// изъятие происходит только когда в таблице лежит именно этот набор.
func (t *pendingTable) take(id string, want *pendingSet) *pendingSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.sets[id]
	if !ok || (want != nil && set != want) {
		return nil
	}
	delete(t.sets, id)
	set.timer.Stop()
	return set
}

func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sets)
}
