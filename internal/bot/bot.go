package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"

	"transkript-bot/internal/billing"
	"transkript-bot/internal/models"
	"transkript-bot/internal/repository"
)

// Bot is the Telegram front end: balance, history and checkout links. All
// money movement happens through the payment gateway; the bot only hands
// out redirect URLs.
type Bot struct {
	Instance *telego.Bot
	Billing  *billing.Service
	Repo     repository.Repository
	Log      *log.Logger
}

func NewBot(token string, b *billing.Service, repo repository.Repository, logger *log.Logger) (*Bot, error) {
	tgBot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Bot{Instance: tgBot, Billing: b, Repo: repo, Log: logger}, nil
}

func mainKeyboard() *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("⏱ Баланс минут").WithCallbackData("balance"),
			tu.InlineKeyboardButton("📜 История").WithCallbackData("history"),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("💳 Тарифы").WithCallbackData("plans"),
			tu.InlineKeyboardButton("🎁 Пакеты минут").WithCallbackData("packages"),
		),
	)
}

func (b *Bot) Start() {
	updates, _ := b.Instance.UpdatesViaLongPolling(context.Background(), nil)

	handler, _ := th.NewBotHandler(b.Instance, updates)

	// /start command
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		message := update.Message
		user, err := b.Repo.FirstOrCreateUser(message.From.ID, message.From.Username)
		if err != nil {
			b.Log.Printf("Failed to get/create user: %v", err)
			return nil
		}
		// First touch activates the free tier.
		if _, err := b.Billing.EnsureSubscription(user.ID); err != nil {
			b.Log.Printf("Failed to ensure subscription for user %d: %v", user.ID, err)
		}

		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
			tu.ID(message.Chat.ID),
			fmt.Sprintf("Привет, %s! 👋\n\nОтправь мне аудио — я расшифрую его в текст. Бесплатный тариф уже активирован.", message.From.FirstName),
		).WithReplyMarkup(mainKeyboard()))
		return nil
	}, th.CommandEqual("start"))

	// Balance
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		user, err := b.Repo.GetUserByTelegramID(callback.From.ID)
		if err != nil {
			return nil
		}
		balance, err := b.Billing.GetBalance(user.ID)
		if err != nil {
			b.Log.Printf("Failed to load balance for user %d: %v", user.ID, err)
			return nil
		}

		var text string
		if balance.Status == models.SubscriptionStatusInactive {
			text = "У вас пока нет подписки. Нажмите /start, чтобы активировать бесплатный тариф."
		} else {
			text = fmt.Sprintf(
				"Тариф: %s\nМинуты тарифа: %d из %d\nБонусные минуты: %d\nВсего доступно: %d мин\nЦикл до: %s",
				balance.PlanName, balance.PlanRemaining, balance.PlanTotal,
				balance.Bonus, balance.TotalAvailable,
				balance.CycleEnd.Format("02.01.2006"),
			)
		}
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(callback.From.ID), text))
		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.CallbackDataEqual("balance"))

	// History
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		user, err := b.Repo.GetUserByTelegramID(callback.From.ID)
		if err != nil {
			return nil
		}
		txs, err := b.Billing.Transactions(user.ID, 10, 0)
		if err != nil {
			b.Log.Printf("Failed to load history for user %d: %v", user.ID, err)
			return nil
		}
		if len(txs) == 0 {
			_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(callback.From.ID), "История пока пуста."))
			return nil
		}

		var sb strings.Builder
		sb.WriteString("Последние операции:\n")
		for _, tx := range txs {
			sb.WriteString(fmt.Sprintf("%s  %+d мин  (%s)\n",
				tx.CreatedAt.Format("02.01 15:04"), tx.MinutesDelta, txTypeLabel(tx.Type)))
		}
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(callback.From.ID), sb.String()))
		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.CallbackDataEqual("history"))

	// Plan catalog
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		plans, err := b.Billing.ListPlans()
		if err != nil {
			b.Log.Printf("Failed to list plans: %v", err)
			return nil
		}
		var rows [][]telego.InlineKeyboardButton
		for _, p := range plans {
			if p.Price == 0 {
				continue
			}
			rows = append(rows, tu.InlineKeyboardRow(
				tu.InlineKeyboardButton(
					fmt.Sprintf("%s — %d мин/мес — %d сум", p.Name, p.MinutesPerCycle, p.Price),
				).WithCallbackData("buy_plan_"+p.Name),
			))
		}
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
			tu.ID(callback.From.ID), "Выберите тариф:",
		).WithReplyMarkup(tu.InlineKeyboard(rows...)))
		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.CallbackDataEqual("plans"))

	// Package catalog
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		packages, err := b.Billing.ListPackages()
		if err != nil {
			b.Log.Printf("Failed to list packages: %v", err)
			return nil
		}
		var rows [][]telego.InlineKeyboardButton
		for _, p := range packages {
			rows = append(rows, tu.InlineKeyboardRow(
				tu.InlineKeyboardButton(
					fmt.Sprintf("%s — %d мин — %d сум", p.Name, p.Minutes, p.Price),
				).WithCallbackData("buy_package_"+p.Name),
			))
		}
		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
			tu.ID(callback.From.ID), "Выберите пакет минут:",
		).WithReplyMarkup(tu.InlineKeyboard(rows...)))
		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.CallbackDataEqual("packages"))

	// Buy plan / buy package: reserve a payment, send the checkout link.
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		user, err := b.Repo.GetUserByTelegramID(callback.From.ID)
		if err != nil {
			return nil
		}

		var url string
		switch {
		case strings.HasPrefix(callback.Data, "buy_plan_"):
			name := strings.TrimPrefix(callback.Data, "buy_plan_")
			_, url, err = b.Billing.CreatePlanPaymentByName(user.ID, name)
		case strings.HasPrefix(callback.Data, "buy_package_"):
			name := strings.TrimPrefix(callback.Data, "buy_package_")
			_, url, err = b.Billing.CreatePackagePaymentByName(user.ID, name)
		default:
			return nil
		}
		if err != nil {
			b.Log.Printf("Failed to create payment for user %d: %v", user.ID, err)
			_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
				tu.ID(callback.From.ID), purchaseErrorText(err)))
			return nil
		}

		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
			tu.ID(callback.From.ID),
			fmt.Sprintf("Для оплаты перейдите по ссылке:\n%s\n\nПосле оплаты минуты будут начислены автоматически.", url),
		))
		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.CallbackDataPrefix("buy_"))

	b.Log.Println("Bot started")
	_ = handler.Start()
}

func txTypeLabel(txType string) string {
	switch txType {
	case models.MinuteTxPlanActivation:
		return "активация тарифа"
	case models.MinuteTxPlanRenewal:
		return "продление тарифа"
	case models.MinuteTxPackagePurchase:
		return "покупка пакета"
	case models.MinuteTxUsageDebit:
		return "расшифровка"
	case models.MinuteTxRefund:
		return "возврат"
	case models.MinuteTxPromoCredit:
		return "промо-бонус"
	default:
		return "корректировка"
	}
}

func purchaseErrorText(err error) string {
	switch {
	case errors.Is(err, billing.ErrPlanAlreadyActive):
		return "Этот тариф уже активен."
	case errors.Is(err, billing.ErrPlanConflict):
		return "Сменить тариф можно после окончания текущего оплаченного цикла."
	default:
		return "Не удалось создать платёж. Попробуйте позже."
	}
}
