package ohclient

import "strings"

// Типы токенов чат-сообщения. Сообщение на проводе — массив токенов,
// а не плоская строка; клиенты сами решают, как их отрисовывать.
const (
	TokenText    = "text"
	TokenMention = "mention"
	TokenLink    = "link"
	TokenEmote   = "emote"
	TokenBlock   = "block"
)

// MessageToken — один токен чат-сообщения.
type MessageToken struct {
	T string `json:"t"`
	V string `json:"v"`
}

// ChatMessage — сообщение чата комнаты, как его присылает сервер.
type ChatMessage struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId"`
	Username    string         `json:"username"`
	DisplayName string         `json:"displayName"`
	AvatarURL   string         `json:"avatarUrl"`
	Tokens      []MessageToken `json:"tokens"`
	SentAt      string         `json:"sentAt"`
	IsWhisper   bool           `json:"isWhisper"`
}

// Text склеивает токены в читаемую строку: упоминания получают префикс @,
// эмоции — обрамление двоеточиями, остальное идёт как есть.
func (m ChatMessage) Text() string {
	var b strings.Builder
	for i, t := range m.Tokens {
		if i > 0 {
			b.WriteByte(' ')
		}
		switch t.T {
		case TokenMention:
			b.WriteByte('@')
			b.WriteString(t.V)
		case TokenEmote:
			b.WriteByte(':')
			b.WriteString(t.V)
			b.WriteByte(':')
		default:
			b.WriteString(t.V)
		}
	}
	return b.String()
}

// MessageBuilder собирает массив токенов для отправки в чат.
// Методы возвращают сам builder, так что вызовы сцепляются.
type MessageBuilder struct {
	tokens []MessageToken
}

// NewMessage создаёт пустой builder.
func NewMessage() *MessageBuilder {
	return &MessageBuilder{}
}

// Text добавляет текст; каждое слово становится отдельным токеном,
// как того ждёт сервер.
func (b *MessageBuilder) Text(s string) *MessageBuilder {
	for _, w := range strings.Fields(s) {
		b.tokens = append(b.tokens, MessageToken{T: TokenText, V: w})
	}
	return b
}

// Mention добавляет упоминание пользователя по username.
func (b *MessageBuilder) Mention(username string) *MessageBuilder {
	b.tokens = append(b.tokens, MessageToken{T: TokenMention, V: username})
	return b
}

// Link добавляет ссылку.
func (b *MessageBuilder) Link(url string) *MessageBuilder {
	b.tokens = append(b.tokens, MessageToken{T: TokenLink, V: url})
	return b
}

// Emote добавляет эмоцию по имени.
func (b *MessageBuilder) Emote(name string) *MessageBuilder {
	b.tokens = append(b.tokens, MessageToken{T: TokenEmote, V: name})
	return b
}

// Block добавляет моноширинный блок.
func (b *MessageBuilder) Block(s string) *MessageBuilder {
	b.tokens = append(b.tokens, MessageToken{T: TokenBlock, V: s})
	return b
}

// Tokens возвращает собранный массив.
func (b *MessageBuilder) Tokens() []MessageToken {
	return b.tokens
}
