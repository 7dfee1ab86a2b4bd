package ohclient

import "testing"

func TestMessageBuilder(t *testing.T) {
	tokens := NewMessage().
		Text("hello there").
		Mention("alice").
		Link("https://example.com").
		Emote("wave").
		Tokens()

	want := []MessageToken{
		{T: TokenText, V: "hello"},
		{T: TokenText, V: "there"},
		{T: TokenMention, V: "alice"},
		{T: TokenLink, V: "https://example.com"},
		{T: TokenEmote, V: "wave"},
	}
	if len(tokens) != len(want) {
		t.Fatalf("tokens = %v", tokens)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token[%d] = %+v, want %+v", i, tokens[i], want[i])
		}
	}
}

func TestChatMessageText(t *testing.T) {
	tests := []struct {
		name string
		msg  ChatMessage
		want string
	}{
		{"empty", ChatMessage{}, ""},
		{"plain", ChatMessage{Tokens: []MessageToken{
			{T: TokenText, V: "hi"}, {T: TokenText, V: "all"},
		}}, "hi all"},
		{"mixed", ChatMessage{Tokens: []MessageToken{
			{T: TokenMention, V: "bot"},
			{T: TokenText, V: "look"},
			{T: TokenLink, V: "https://x"},
			{T: TokenEmote, V: "fire"},
		}}, "@bot look https://x :fire:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}
