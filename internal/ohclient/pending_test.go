package ohclient

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
)

func TestPendingResolveSuccess(t *testing.T) {
	tbl := newPendingTable(time.Second)

	var got string
	tbl.register("r1",
		func(p jsoniter.RawMessage) { got = string(p) },
		func(err error) { t.Errorf("unexpected error: %v", err) },
	)

	if !tbl.resolve("r1", jsoniter.RawMessage(`{"ok":true}`), "") {
		t.Fatal("resolve returned false for registered id")
	}
	if got != `{"ok":true}` {
		t.Errorf("payload = %q", got)
	}
	if tbl.size() != 0 {
		t.Errorf("table not empty after resolve: %d", tbl.size())
	}
}

func TestPendingResolveServerError(t *testing.T) {
	tbl := newPendingTable(time.Second)

	var got error
	tbl.register("r1",
		func(jsoniter.RawMessage) { t.Error("onSuccess called for error reply") },
		func(err error) { got = err },
	)

	tbl.resolve("r1", nil, "rate limited")

	var se ServerError
	if !errors.As(got, &se) || string(se) != "rate limited" {
		t.Errorf("error = %v, want ServerError(\"rate limited\")", got)
	}
}

func TestPendingResolveUnknownID(t *testing.T) {
	tbl := newPendingTable(time.Second)
	if tbl.resolve("nope", nil, "") {
		t.Error("resolve returned true for unknown id")
	}
}

func TestPendingAtMostOnce(t *testing.T) {
	tbl := newPendingTable(time.Second)

	var calls atomic.Int32
	tbl.register("r1",
		func(jsoniter.RawMessage) { calls.Add(1) },
		func(error) { calls.Add(1) },
	)

	tbl.resolve("r1", nil, "")
	// поздний дубль ответа
	if tbl.resolve("r1", nil, "") {
		t.Error("duplicate reply resolved")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("callbacks fired %d times, want 1", n)
	}
}

func TestPendingFanOut(t *testing.T) {
	tbl := newPendingTable(time.Second)

	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		tbl.register("shared", func(jsoniter.RawMessage) { calls.Add(1) }, nil)
	}
	if tbl.size() != 1 {
		t.Fatalf("size = %d, want 1 (single set per id)", tbl.size())
	}

	tbl.resolve("shared", nil, "")
	if n := calls.Load(); n != 3 {
		t.Errorf("callbacks fired %d times, want 3", n)
	}
}

func TestPendingTimeout(t *testing.T) {
	tbl := newPendingTable(20 * time.Millisecond)

	errCh := make(chan error, 1)
	tbl.register("r1",
		func(jsoniter.RawMessage) { t.Error("onSuccess after timeout") },
		func(err error) { errCh <- err },
	)

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrRequestTimeout) {
			t.Errorf("error = %v, want ErrRequestTimeout", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout callback never fired")
	}

	// после таймаута ответ уже никого не находит
	if tbl.resolve("r1", nil, "") {
		t.Error("late reply resolved after timeout")
	}
}

func TestPendingRemoveSilent(t *testing.T) {
	tbl := newPendingTable(20 * time.Millisecond)

	tbl.register("r1",
		func(jsoniter.RawMessage) { t.Error("onSuccess after remove") },
		func(error) { t.Error("onError after remove") },
	)
	tbl.remove("r1")

	time.Sleep(60 * time.Millisecond) // таймер не должен сработать
	if tbl.size() != 0 {
		t.Errorf("size = %d after remove", tbl.size())
	}
}

func TestPendingFailRejectsWholeSet(t *testing.T) {
	tbl := newPendingTable(time.Second)

	cause := errors.New("write: broken pipe")
	var calls atomic.Int32
	// две независимые регистрации на одном идентификаторе
	for i := 0; i < 2; i++ {
		tbl.register("shared",
			func(jsoniter.RawMessage) { t.Error("onSuccess after fail") },
			func(err error) {
				if !errors.Is(err, cause) {
					t.Errorf("error = %v, want %v", err, cause)
				}
				calls.Add(1)
			})
	}

	tbl.fail("shared", cause)
	if n := calls.Load(); n != 2 {
		t.Errorf("callbacks fired %d times, want 2", n)
	}
	if tbl.size() != 0 {
		t.Errorf("table not empty after fail: %d", tbl.size())
	}
	// повторный fail и поздний ответ уже никого не находят
	tbl.fail("shared", cause)
	if tbl.resolve("shared", nil, "") {
		t.Error("late reply resolved after fail")
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("callbacks fired %d times after duplicate fail, want 2", n)
	}
}

func TestPendingFailAll(t *testing.T) {
	tbl := newPendingTable(time.Second)

	cause := errors.New("socket gone")
	var calls atomic.Int32
	for _, id := range []string{"a", "b", "c"} {
		tbl.register(id, nil, func(err error) {
			if !errors.Is(err, cause) {
				t.Errorf("error = %v, want %v", err, cause)
			}
			calls.Add(1)
		})
	}

	tbl.failAll(cause)
	if n := calls.Load(); n != 3 {
		t.Errorf("callbacks fired %d times, want 3", n)
	}
	if tbl.size() != 0 {
		t.Errorf("table not empty after failAll: %d", tbl.size())
	}
}
