package bot

import (
	"fmt"
	"regexp"
	"strings"

	"example.com/openhouse/internal/ohclient"
)

// сплит с поддержкой кавычек: greeting="добро пожаловать, {name}"
var reArg = regexp.MustCompile(`"([^"]*)"|(\S+)`)

// HandleCommand разбирает и исполняет чат-команду от допущенного
// пользователя.
func (bot *OpenhouseBot) HandleCommand(sender, text string) error {
	fields := splitArgs(text)
	if len(fields) == 0 {
		return nil
	}
	cmd := strings.ToLower(fields[0])

	c := bot.client
	say := func(s string) { _ = c.Say(s) }

	switch cmd {

	case "!help":
		say(strings.Join([]string{
			"!help",
			"!ping",
			"!room",
			"!join <room_id>",
			"!leave",
			"!say \"...\"",
		}, "\n"))
		say(strings.Join([]string{
			"!mute on|off",
			"!deafen on|off",
			"!speak",
			"!speaker add|del <username>",
			"!mod <username> on|off",
			"!creator <username>",
		}, "\n"))
		say(strings.Join([]string{
			"!track add <user_id> [name]",
			"!track del <user_id>",
			"!track list",
			"!greet [text=\"...\"]",
			"!save",
		}, "\n"))
		return nil

	case "!ping":
		say(fmt.Sprintf("pong (%s, state=%s)", c.Latency(), c.State()))
		return nil

	case "!room":
		ar := c.Mirror().Current()
		if ar == nil {
			say("room: (none)")
			return nil
		}
		var rows []string
		for _, u := range ar.Users() {
			tag := ""
			switch {
			case u.Perms.IsCreator:
				tag = " [creator]"
			case u.Perms.IsMod:
				tag = " [mod]"
			case u.Perms.IsSpeaker:
				tag = " [speaker]"
			}
			rows = append(rows, u.Username+tag)
		}
		say(fmt.Sprintf("%s (%d):\n%s", ar.Name, ar.UserCount(), strings.Join(rows, "\n")))
		return nil

	// ---------- ROOM ----------
	case "!join":
		if len(fields) < 2 {
			return fmt.Errorf("usage: !join <room_id>")
		}
		roomID := fields[1]
		ar, err := c.JoinRoom(roomID)
		if err != nil {
			return err
		}
		if bot.cfg != nil {
			_ = bot.cfg.update(func(d *BotConfig) { d.Room = roomID })
		}
		say("joined: " + ar.Name)
		return nil

	case "!leave":
		if err := c.LeaveRoom(); err != nil {
			return err
		}
		if bot.cfg != nil {
			_ = bot.cfg.update(func(d *BotConfig) { d.Room = "" })
		}
		return nil

	case "!say":
		if len(fields) < 2 {
			return fmt.Errorf("usage: !say \"...\"")
		}
		say(strings.Join(fields[1:], " "))
		return nil

	// ---------- VOICE ----------
	case "!mute", "!deafen":
		if len(fields) < 2 {
			return fmt.Errorf("usage: %s on|off", cmd)
		}
		v, err := parseOnOff(fields[1])
		if err != nil {
			return err
		}
		bot.mu.Lock()
		if cmd == "!mute" {
			bot.muted = v
		} else {
			bot.deafened = v
		}
		bot.mu.Unlock()
		if cmd == "!mute" {
			return c.SetMuted(v)
		}
		return c.SetDeafened(v)

	case "!speak":
		if err := c.AskToSpeak(); err != nil {
			return err
		}
		say("hand raised")
		return nil

	case "!speaker":
		if len(fields) < 3 {
			return fmt.Errorf("usage: !speaker add|del <username>")
		}
		u, err := bot.findUser(fields[2])
		if err != nil {
			return err
		}
		switch strings.ToLower(fields[1]) {
		case "add":
			if err := c.AddSpeaker(u.ID); err != nil {
				return err
			}
			say("speaker added: " + u.Username)
		case "del":
			if err := c.RemoveSpeaker(u.ID); err != nil {
				return err
			}
			say("speaker removed: " + u.Username)
		default:
			return fmt.Errorf("usage: !speaker add|del <username>")
		}
		return nil

	case "!mod":
		if len(fields) < 3 {
			return fmt.Errorf("usage: !mod <username> on|off")
		}
		u, err := bot.findUser(fields[1])
		if err != nil {
			return err
		}
		v, err := parseOnOff(fields[2])
		if err != nil {
			return err
		}
		if err := c.SetMod(u.ID, v); err != nil {
			return err
		}
		say(fmt.Sprintf("mod %s: %t", u.Username, v))
		return nil

	case "!creator":
		if len(fields) < 2 {
			return fmt.Errorf("usage: !creator <username>")
		}
		u, err := bot.findUser(fields[1])
		if err != nil {
			return err
		}
		if err := c.ChangeRoomCreator(u.ID); err != nil {
			return err
		}
		say("room handed to " + u.Username)
		return nil

	// ---------- TRACK ----------
	case "!track":
		if len(fields) < 2 {
			return fmt.Errorf("usage: !track add|del|list")
		}
		if bot.cfg == nil {
			return fmt.Errorf("config not enabled")
		}
		sub := strings.ToLower(fields[1])

		switch sub {
		case "list":
			data := bot.cfg.snapshot()
			if len(data.Tracked) == 0 {
				say("tracked: (empty)")
				return nil
			}
			var rows []string
			for _, t := range data.Tracked {
				rows = append(rows, fmt.Sprintf("%s (%s)", t.Name, t.ID))
			}
			say("tracked:\n" + strings.Join(rows, "\n"))
			return nil

		case "add":
			if len(fields) < 3 {
				return fmt.Errorf("usage: !track add <user_id> [name]")
			}
			id := fields[2]
			name := ""
			if len(fields) >= 4 {
				name = fields[3]
			}
			_ = bot.cfg.update(func(d *BotConfig) {
				for i := range d.Tracked {
					if d.Tracked[i].ID == id {
						d.Tracked[i].Name = name
						return
					}
				}
				d.Tracked = append(d.Tracked, TrackedConf{ID: id, Name: name})
			})
			say(fmt.Sprintf("track added: %s (%s)", name, id))
			return nil

		case "del":
			if len(fields) < 3 {
				return fmt.Errorf("usage: !track del <user_id>")
			}
			id := fields[2]
			_ = bot.cfg.update(func(d *BotConfig) {
				out := make([]TrackedConf, 0, len(d.Tracked))
				for _, t := range d.Tracked {
					if t.ID != id {
						out = append(out, t)
					}
				}
				d.Tracked = out
			})
			say("track deleted: " + id)
			return nil

		default:
			return fmt.Errorf("usage: !track add|del|list")
		}

	// ---------- GREETING ----------
	case "!greet":
		if bot.cfg == nil {
			return fmt.Errorf("config not enabled")
		}
		kv := parseKV(fields[1:])
		if text, ok := kv["text"]; ok {
			_ = bot.cfg.update(func(d *BotConfig) { d.Greeting = text })
			say("greeting set")
			return nil
		}
		g := bot.cfg.snapshot().Greeting
		if g == "" {
			say("greeting: (none)")
		} else {
			say("greeting: " + g)
		}
		return nil

	// ---------- SAVE ----------
	case "!save":
		if bot.cfg != nil {
			if err := bot.cfg.Save(); err != nil {
				return err
			}
			say("config saved")
			return nil
		}
		return fmt.Errorf("config not enabled")

	default:
		return fmt.Errorf("unknown command. try !help")
	}
}

// findUser ищет участника текущей комнаты по username или id.
func (bot *OpenhouseBot) findUser(key string) (*ohclient.RoomUser, error) {
	ar := bot.client.Mirror().Current()
	if ar == nil {
		return nil, fmt.Errorf("not in a room")
	}
	key = strings.TrimPrefix(key, "@")
	if u, ok := ar.User(key); ok {
		return u, nil
	}
	for _, u := range ar.Users() {
		if strings.EqualFold(u.Username, key) {
			return u, nil
		}
	}
	return nil, fmt.Errorf("user not found: %s", key)
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on|off, got %q", s)
}

func splitArgs(s string) []string {
	var out []string
	for _, m := range reArg.FindAllStringSubmatch(s, -1) {
		if m[1] != "" {
			out = append(out, m[1])
		} else {
			out = append(out, m[2])
		}
	}
	return out
}

func parseKV(args []string) map[string]string {
	res := map[string]string{}
	for _, a := range args {
		kv := strings.SplitN(a, "=", 2)
		if len(kv) == 2 {
			res[strings.ToLower(kv[0])] = kv[1]
		}
	}
	return res
}
