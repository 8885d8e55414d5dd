package bot

import (
	"strings"
	"time"

	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/pkg/log"
	tb "gopkg.in/tucnak/telebot.v2"
)

// Bot posts registration notices to an operations chat and answers its commands.
type Bot struct {
	Bot  *tb.Bot
	Chat *tb.Chat
}

type CommandHandler func(b *Bot, m *tb.Message, params []string)

var GlobalCommandMapper = make(map[string]CommandHandler)

func RegisterCommands(command string, f CommandHandler) {
	GlobalCommandMapper[command] = f
}

func New(token string, chatID int64, poller *tb.LongPoller) (*Bot, error) {
	if poller == nil {
		poller = &tb.LongPoller{Timeout: 15 * time.Second}
	}
	b, err := tb.NewBot(tb.Settings{
		Token:  token,
		Poller: poller,
	})
	if err != nil {
		return nil, err
	}
	bot := &Bot{
		Bot:  b,
		Chat: &tb.Chat{ID: chatID},
	}
	handle := func(m *tb.Message) {
		// only the configured chat may command the bot
		if m.Chat == nil || m.Chat.ID != chatID {
			return
		}
		command, params, ok := ParseCommand(m.Text)
		if !ok {
			return
		}
		if handler, ok := GlobalCommandMapper[command]; ok {
			handler(bot, m, params)
		}
	}
	b.Handle(tb.OnText, handle)
	b.Handle(tb.OnChannelPost, handle)
	go b.Start()
	return bot, nil
}

// ParseCommand splits "/command@bot a b" into its command name and parameters.
func ParseCommand(text string) (command string, params []string, ok bool) {
	if !strings.HasPrefix(text, "/") || len(text) <= 1 {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(text, "/"))
	if len(fields) == 0 {
		return "", nil, false
	}
	command = fields[0]
	if i := strings.IndexByte(command, '@'); i >= 0 {
		command = command[:i]
	}
	return command, fields[1:], command != ""
}

func (b *Bot) Reply(m *tb.Message, text string) {
	if _, err := b.Bot.Reply(m, text, tb.Silent, tb.NoPreview); err != nil {
		log.Warn("bot reply: %v", err)
	}
}

func (b *Bot) Stop() {
	b.Bot.Stop()
}
