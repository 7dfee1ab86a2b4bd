package ohclient

// VoiceObservation — наблюдение по одному пользователю из частичной дельты
// активных спикеров. Пользователи, отсутствующие в дельте, не трогаются.
type VoiceObservation struct {
	UserID   string `json:"userId"`
	Speaking bool   `json:"speaking"`
	Muted    bool   `json:"muted"`
	Deafened bool   `json:"deafened"`
}

// applyVoiceDelta применяет дельту к комнате и возвращает три списка:
// у кого реально сменился speaking, mute и deafen. Событие должно уходить
// только по фактически изменившемуся флагу, поэтому сравниваем с текущим
// состоянием до записи. Каждый список — множество различных пользователей
// в порядке дельты.
func (r *ActiveRoom) applyVoiceDelta(obs []VoiceObservation) (speaking, muted, deafened []*RoomUser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seenSpeak := make(map[string]bool)
	seenMute := make(map[string]bool)
	seenDeaf := make(map[string]bool)

	for _, o := range obs {
		u, ok := r.users[o.UserID]
		if !ok {
			continue
		}
		if u.Voice.Speaking != o.Speaking {
			u.Voice.Speaking = o.Speaking
			if !seenSpeak[u.ID] {
				seenSpeak[u.ID] = true
				speaking = append(speaking, u)
			}
		}
		if u.Voice.Muted != o.Muted {
			u.Voice.Muted = o.Muted
			if !seenMute[u.ID] {
				seenMute[u.ID] = true
				muted = append(muted, u)
			}
		}
		if u.Voice.Deafened != o.Deafened {
			u.Voice.Deafened = o.Deafened
			if !seenDeaf[u.ID] {
				seenDeaf[u.ID] = true
				deafened = append(deafened, u)
			}
		}
	}
	return speaking, muted, deafened
}

// setMuted выставляет флаг mute и сообщает, изменился ли он.
func (r *ActiveRoom) setMuted(userID string, v bool) (*RoomUser, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok || u.Voice.Muted == v {
		return u, false
	}
	u.Voice.Muted = v
	return u, true
}

// setDeafened выставляет флаг deafen и сообщает, изменился ли он.
func (r *ActiveRoom) setDeafened(userID string, v bool) (*RoomUser, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok || u.Voice.Deafened == v {
		return u, false
	}
	u.Voice.Deafened = v
	return u, true
}
