package bot

import (
	"fmt"

	tb "gopkg.in/tucnak/telebot.v2"
)

// RegisterStatus adds the /status command reporting the open registration sessions.
func RegisterStatus(sessions func() int) {
	RegisterCommands("status", func(b *Bot, m *tb.Message, params []string) {
		b.Reply(m, fmt.Sprintf("%v registration sessions open", sessions()))
	})
}
