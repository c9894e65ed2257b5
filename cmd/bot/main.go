package main

import (
	"log"
	"net/http"
	"time"

	"transkript-bot/internal/billing"
	"transkript-bot/internal/bot"
	"transkript-bot/internal/config"
	"transkript-bot/internal/database"
	"transkript-bot/internal/gateway"
	"transkript-bot/internal/notify"
	"transkript-bot/internal/repository"
	"transkript-bot/internal/worker"
)

func main() {
	cfg := config.LoadConfig()

	db, err := database.ConnectPostgres(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	rdb, err := database.ConnectRedis(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}

	repo := repository.NewGorm(db)

	billingSvc := billing.NewService(repo, billing.Config{
		CyclePeriod:     time.Duration(cfg.CycleDays) * 24 * time.Hour,
		FreePlanName:    cfg.FreePlanName,
		Provider:        "payme",
		MerchantID:      cfg.MerchantID,
		CheckoutBaseURL: cfg.CheckoutBaseURL,
	}, log.Default())

	tgBot, err := bot.NewBot(cfg.BotToken, billingSvc, repo, log.Default())
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	notifier := notify.NewTelegram(tgBot.Instance, log.Default())

	gatewaySvc := gateway.NewService(repo, billingSvc, notifier, log.Default())
	handler := gateway.NewHandler(gatewaySvc, cfg.MerchantKey, cfg.GatewayAllowedIPs, log.Default())

	http.Handle(cfg.GatewayPath, handler)
	go func() {
		log.Printf("Payment gateway listening on %s%s", cfg.GatewayAddr, cfg.GatewayPath)
		if err := http.ListenAndServe(cfg.GatewayAddr, nil); err != nil {
			log.Fatalf("Gateway server failed: %v", err)
		}
	}()

	checker := worker.NewChecker(repo, gatewaySvc, rdb, notifier, log.Default())
	go checker.Start()

	tgBot.Start()
}
