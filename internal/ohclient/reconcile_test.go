package ohclient

import (
	"fmt"
	"math/rand"
	"testing"
)

func testRoom(n int) *ActiveRoom {
	ar := newActiveRoom(Room{ID: "room-1", Name: "test"}, "u0")
	for i := 0; i < n; i++ {
		ar.addUser(User{ID: fmt.Sprintf("u%d", i), Username: fmt.Sprintf("user%d", i)})
	}
	return ar
}

func TestApplyVoiceDeltaEmitsOnlyChanges(t *testing.T) {
	ar := testRoom(3)

	speaking, muted, deafened := ar.applyVoiceDelta([]VoiceObservation{
		{UserID: "u0", Speaking: true},
		{UserID: "u1"}, // всё по умолчанию, изменений нет
		{UserID: "u2", Muted: true, Deafened: true},
	})

	if len(speaking) != 1 || speaking[0].ID != "u0" {
		t.Errorf("speaking = %v", ids(speaking))
	}
	if len(muted) != 1 || muted[0].ID != "u2" {
		t.Errorf("muted = %v", ids(muted))
	}
	if len(deafened) != 1 || deafened[0].ID != "u2" {
		t.Errorf("deafened = %v", ids(deafened))
	}
}

func TestApplyVoiceDeltaIdempotent(t *testing.T) {
	ar := testRoom(2)

	delta := []VoiceObservation{{UserID: "u0", Speaking: true}}
	ar.applyVoiceDelta(delta)

	// повтор той же дельты не должен давать событий
	speaking, muted, deafened := ar.applyVoiceDelta(delta)
	if len(speaking)+len(muted)+len(deafened) != 0 {
		t.Errorf("repeat delta produced events: %v %v %v", ids(speaking), ids(muted), ids(deafened))
	}
}

func TestApplyVoiceDeltaUnknownUser(t *testing.T) {
	ar := testRoom(1)
	speaking, _, _ := ar.applyVoiceDelta([]VoiceObservation{{UserID: "ghost", Speaking: true}})
	if len(speaking) != 0 {
		t.Errorf("unknown user produced events: %v", ids(speaking))
	}
}

func TestApplyVoiceDeltaDistinctUsers(t *testing.T) {
	ar := testRoom(1)

	// флип туда-обратно в одной дельте: пользователь в списке один раз
	speaking, _, _ := ar.applyVoiceDelta([]VoiceObservation{
		{UserID: "u0", Speaking: true},
		{UserID: "u0", Speaking: false},
		{UserID: "u0", Speaking: true},
	})
	if len(speaking) != 1 {
		t.Errorf("user appears %d times in speaking list", len(speaking))
	}
	if u, _ := ar.User("u0"); !u.Voice.Speaking {
		t.Error("final state lost: want Speaking=true")
	}
}

// Случайные дельты: итоговое состояние всегда равно последнему наблюдению
// по каждому пользователю, а списки не содержат дублей.
func TestApplyVoiceDeltaRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		ar := testRoom(5)
		n := 1 + rng.Intn(20)
		obs := make([]VoiceObservation, n)
		last := make(map[string]VoiceObservation)
		for i := range obs {
			o := VoiceObservation{
				UserID:   fmt.Sprintf("u%d", rng.Intn(5)),
				Speaking: rng.Intn(2) == 0,
				Muted:    rng.Intn(2) == 0,
				Deafened: rng.Intn(2) == 0,
			}
			obs[i] = o
			last[o.UserID] = o
		}

		speaking, muted, deafened := ar.applyVoiceDelta(obs)
		for _, list := range [][]*RoomUser{speaking, muted, deafened} {
			seen := map[string]bool{}
			for _, u := range list {
				if seen[u.ID] {
					t.Fatalf("trial %d: duplicate user %s in change list", trial, u.ID)
				}
				seen[u.ID] = true
			}
		}
		for id, o := range last {
			u, _ := ar.User(id)
			if u.Voice.Speaking != o.Speaking || u.Voice.Muted != o.Muted || u.Voice.Deafened != o.Deafened {
				t.Fatalf("trial %d: user %s state %+v, want %+v", trial, id, u.Voice, o)
			}
		}
	}
}

func TestSetMutedChangeDetection(t *testing.T) {
	ar := testRoom(1)

	if _, changed := ar.setMuted("u0", true); !changed {
		t.Error("first set reported no change")
	}
	if _, changed := ar.setMuted("u0", true); changed {
		t.Error("duplicate set reported change")
	}
	if _, changed := ar.setMuted("ghost", true); changed {
		t.Error("unknown user reported change")
	}
	if _, changed := ar.setDeafened("u0", true); !changed {
		t.Error("deafen set reported no change")
	}
}

func ids(users []*RoomUser) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.ID
	}
	return out
}
