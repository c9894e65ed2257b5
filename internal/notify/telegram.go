package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// Telegram sends notifications through the bot. Send errors are logged and
// swallowed.
type Telegram struct {
	Bot *telego.Bot
	Log *log.Logger
}

func NewTelegram(bot *telego.Bot, logger *log.Logger) *Telegram {
	if logger == nil {
		logger = log.Default()
	}
	return &Telegram{Bot: bot, Log: logger}
}

func (t *Telegram) PaymentCompleted(ctx context.Context, telegramID int64, text string) {
	t.send(ctx, telegramID, text)
}

func (t *Telegram) MinutesLow(ctx context.Context, telegramID int64, remaining int) {
	t.send(ctx, telegramID, fmt.Sprintf(
		"⚠️ Осталось мало минут: %d. Продлите тариф или купите пакет минут в меню.", remaining))
}

func (t *Telegram) send(ctx context.Context, telegramID int64, text string) {
	if _, err := t.Bot.SendMessage(ctx, tu.Message(tu.ID(telegramID), text)); err != nil {
		t.Log.Printf("Failed to notify user %d: %v", telegramID, err)
	}
}
