//go:build !windows

// Package mediahook перехватывает глобальные медиа-клавиши Windows
// (volume up/down), чтобы управлять mute/deafen бота, не трогая фокус окна.
// На остальных платформах хук недоступен.
package mediahook

import "errors"

// Hook — заглушка для платформ без глобальных хуков.
type Hook struct{}

// New возвращает ошибку: глобальные медиа-клавиши есть только на Windows.
func New(onUp, onDown func()) (*Hook, error) {
	return nil, errors.New("mediahook: unsupported platform")
}

func (h *Hook) Start() error { return nil }
func (h *Hook) Close() error { return nil }
