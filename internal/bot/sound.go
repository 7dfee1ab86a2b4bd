package bot

import (
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
)

// PlaySoundFile открывает звуковой файл через ассоциированную программу ОС.
func PlaySoundFile(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/C", "start", "", path)
	case "darwin":
		cmd = exec.Command("open", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	return cmd.Start()
}

// коллбэк из строки sound: "" и "none" — без звука
func callbackForSound(sound string) func() {
	s := strings.TrimSpace(sound)
	if s == "" || strings.EqualFold(s, "none") {
		return nil
	}
	path := filepath.Join("sounds", s) // ./sounds/<sound>

	return func() {
		if err := PlaySoundFile(path); err != nil {
			log.Warn().Str("module", "bot").Err(err).Msg("sound open error")
		}
	}
}
