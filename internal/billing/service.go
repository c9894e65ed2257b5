package billing

import (
	"log"
	"time"

	"transkript-bot/internal/repository"
)

const (
	// DefaultCyclePeriod is one billing cycle. Rollover always advances by
	// exactly one period from the old cycle end.
	DefaultCyclePeriod = 30 * 24 * time.Hour

	DefaultFreePlanName = "free"
	DefaultProvider     = "payme"
)

type Config struct {
	CyclePeriod     time.Duration
	FreePlanName    string
	Provider        string
	MerchantID      string
	CheckoutBaseURL string
}

// Service is the billing core: the minutes ledger, the payment record
// lifecycle and the catalog, all behind one repository port.
type Service struct {
	repo repository.Repository
	cfg  Config
	log  *log.Logger

	// now is swappable in tests.
	now func() time.Time
}

func NewService(repo repository.Repository, cfg Config, logger *log.Logger) *Service {
	if cfg.CyclePeriod <= 0 {
		cfg.CyclePeriod = DefaultCyclePeriod
	}
	if cfg.FreePlanName == "" {
		cfg.FreePlanName = DefaultFreePlanName
	}
	if cfg.Provider == "" {
		cfg.Provider = DefaultProvider
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		repo: repo,
		cfg:  cfg,
		log:  logger,
		now:  time.Now,
	}
}
