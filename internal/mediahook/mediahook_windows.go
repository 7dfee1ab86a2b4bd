//go:build windows

// Package mediahook перехватывает глобальные медиа-клавиши Windows
// (volume up/down), чтобы управлять mute/deafen бота, не трогая фокус окна.
package mediahook

import (
	"errors"
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/windows"
)

// --- WinAPI constants/structs ---

const (
	whKeyboardLL = 13

	wmKeyDown    = 0x0100
	wmSysKeyDown = 0x0104
	wmQuit       = 0x0012

	vkVolumeDown = 0xAE
	vkVolumeUp   = 0xAF
)

type kbdLLHookStruct struct {
	VKCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type msg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

// --- DLL procs ---

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")

	procGetCurrentThreadId = kernel32.NewProc("GetCurrentThreadId")
)

// singleton: WH_KEYBOARD_LL один на процесс
var (
	curMu   sync.Mutex
	current *Hook
)

// Hook — глобальный low-level keyboard hook на медиа-клавиши.
type Hook struct {
	hHook    uintptr
	threadID uint32
	started  atomic.Bool

	onUp   func()
	onDown func()
}

// New создаёт, но не запускает хук.
func New(onUp, onDown func()) (*Hook, error) {
	return &Hook{onUp: onUp, onDown: onDown}, nil
}

// Start устанавливает хук и запускает цикл сообщений в горутине.
func (h *Hook) Start() error {
	if h.started.Swap(true) {
		return errors.New("mediahook: already started")
	}

	curMu.Lock()
	if current != nil {
		curMu.Unlock()
		h.started.Store(false)
		return errors.New("mediahook: another hook is already installed")
	}
	current = h
	curMu.Unlock()

	go h.run()
	return nil
}

// Close снимает хук и завершает цикл сообщений.
func (h *Hook) Close() error {
	if !h.started.Load() {
		return nil
	}
	h.started.Store(false)

	if h.hHook != 0 {
		procUnhookWindowsHookEx.Call(h.hHook)
		h.hHook = 0
	}

	// WM_QUIT в наш поток, чтобы GetMessage вернулся
	if h.threadID != 0 {
		procPostThreadMessageW.Call(uintptr(h.threadID), uintptr(wmQuit), 0, 0)
	}

	curMu.Lock()
	if current == h {
		current = nil
	}
	curMu.Unlock()

	return nil
}

func (h *Hook) run() {
	// id текущего потока нужен для PostThreadMessageW
	tid, _, _ := procGetCurrentThreadId.Call()
	h.threadID = uint32(tid)

	cb := syscall.NewCallback(llKeyboardProc)
	ret, _, err := procSetWindowsHookExW.Call(
		uintptr(whKeyboardLL),
		cb,
		0,
		0,
	)
	if ret == 0 {
		log.Warn().Str("module", "mediahook").Err(err).Msg("SetWindowsHookExW failed")
		h.Close()
		return
	}
	h.hHook = ret

	// цикл сообщений, чтобы хук получал события
	var m msg
	for {
		r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(r) <= 0 || !h.started.Load() {
			break
		}
	}
}

// llKeyboardProc — callback для WH_KEYBOARD_LL.
// Возвращаем 1, чтобы «проглотить» событие. Иначе — CallNextHookEx.
func llKeyboardProc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	if nCode == 0 && (wParam == wmKeyDown || wParam == wmSysKeyDown) {
		//nolint:govet // lParam is an OS-provided pointer (KBDLLHOOKSTRUCT)
		k := (*kbdLLHookStruct)(unsafe.Pointer(lParam))

		curMu.Lock()
		h := current
		curMu.Unlock()

		if h != nil && h.started.Load() {
			switch k.VKCode {
			case vkVolumeUp:
				if h.onUp != nil {
					h.onUp()
				}
				return 1 // блокируем изменение громкости
			case vkVolumeDown:
				if h.onDown != nil {
					h.onDown()
				}
				return 1
			}
		}
	}
	r, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return r
}
