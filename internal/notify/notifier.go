package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// StatusFunc renders the current bot status for the /status command.
type StatusFunc func() string

type TelegramConfig struct {
	Token  string
	ChatID int64
	// Endpoint overrides the Bot API URL format, e.g. "http://host/bot%s/%s".
	Endpoint string
	Timeout  time.Duration
}

// Telegram sends alerts to one chat and answers /status and /help there.
// Delivery is best effort: failures are logged and never reach the caller.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
	log    *zap.Logger
	status StatusFunc
}

func NewTelegram(cfg TelegramConfig, log *zap.Logger) (*Telegram, error) {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = tgbot.APIEndpoint
	}

	b, err := tgbot.NewBotAPIWithClient(cfg.Token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram bot api: %w", err)
	}
	return &Telegram{
		bot:    b,
		chatID: cfg.ChatID,
		log:    log.Named("telegram"),
	}, nil
}

func (t *Telegram) SetStatus(f StatusFunc) { t.status = f }

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		t.log.Warn("telegram send failed", zap.Error(err))
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

// Start long-polls for commands from the configured chat until ctx is done.
func (t *Telegram) Start(ctx context.Context) {
	if t == nil || t.bot == nil {
		return
	}

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}

	updates := t.bot.GetUpdatesChan(u)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				if upd.Message == nil || upd.Message.Chat == nil ||
					upd.Message.Chat.ID != t.chatID || !upd.Message.IsCommand() {
					continue
				}
				if reply := t.reply(upd.Message.Command()); reply != "" {
					t.Send(reply)
				}
			}
		}
	}()
}

func (t *Telegram) Stop() {
	if t == nil || t.bot == nil {
		return
	}
	t.bot.StopReceivingUpdates()
}

func (t *Telegram) reply(cmd string) string {
	switch cmd {
	case "status":
		if t.status == nil {
			return "status unavailable"
		}
		return t.status()
	case "help", "start":
		return "/status: position, phase and daily P&L"
	default:
		return ""
	}
}

// Stdout logs alerts instead of delivering them.
type Stdout struct {
	log *zap.Logger
}

func NewStdout(log *zap.Logger) *Stdout {
	if log == nil {
		log = zap.NewNop()
	}
	return &Stdout{log: log.Named("alerts")}
}

func (s *Stdout) Send(msg string) {
	s.log.Warn("telegram not configured; alert not delivered", zap.String("alert", msg))
}

func (s *Stdout) Sendf(format string, args ...any) { s.Send(fmt.Sprintf(format, args...)) }
