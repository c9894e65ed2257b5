package repository

import (
	"time"

	"gorm.io/gorm"

	"transkript-bot/internal/models"
)

// Sentinel errors shared by every implementation. The GORM sentinels are
// reused so callers branch the same way against the memory store.
var (
	ErrNotFound  = gorm.ErrRecordNotFound
	ErrDuplicate = gorm.ErrDuplicatedKey
)

// Repository is the persistence port for the billing core. It exposes only
// what the core needs from a backing store: lookups, unique-constraint
// backed inserts, conditional updates and multi-row transactional commits
// via Transact.
type Repository interface {
	// Transact runs fn inside one storage transaction. The Repository
	// passed to fn is bound to that transaction; an error from fn rolls
	// everything back.
	Transact(fn func(Repository) error) error

	// Users
	GetUserByID(id uint) (*models.User, error)
	GetUserByTelegramID(telegramID int64) (*models.User, error)
	FirstOrCreateUser(telegramID int64, username string) (*models.User, error)

	// Catalog
	GetPlanByID(id uint) (*models.Plan, error)
	GetPlanByName(name string) (*models.Plan, error)
	ListActivePlans() ([]models.Plan, error)
	GetPackageByID(id uint) (*models.Package, error)
	GetPackageByName(name string) (*models.Package, error)
	ListPackages() ([]models.Package, error)

	// Subscriptions
	GetSubscriptionByUser(userID uint) (*models.Subscription, error)
	// GetSubscriptionByUserForUpdate locks the row for the duration of the
	// surrounding transaction.
	GetSubscriptionByUserForUpdate(userID uint) (*models.Subscription, error)
	CreateSubscription(sub *models.Subscription) error
	SaveSubscription(sub *models.Subscription) error
	DeleteSubscription(id uint) error
	ListSubscriptions() ([]models.Subscription, error)

	// Audit log (append-only; no update or delete methods exist)
	CreateMinuteTransaction(tx *models.MinuteTransaction) error
	ListMinuteTransactions(userID uint, limit, offset int) ([]models.MinuteTransaction, error)

	// Usage charges
	CreateUsageCharge(charge *models.UsageCharge) error
	GetUsageCharge(userID uint, sourceRefID string) (*models.UsageCharge, error)
	// MarkUsageChargeRefunded conditionally flips Refunded false -> true and
	// reports whether this call won the flip.
	MarkUsageChargeRefunded(userID uint, sourceRefID string) (bool, error)

	// Payments
	CreatePayment(p *models.Payment) error
	GetPaymentByID(id uint) (*models.Payment, error)
	// GetPaymentByIDForUpdate locks the row for the duration of the
	// surrounding transaction; status transitions read through it.
	GetPaymentByIDForUpdate(id uint) (*models.Payment, error)
	GetPendingPayment(userID uint, kind string, targetID uint) (*models.Payment, error)
	SavePayment(p *models.Payment) error

	// Shadow transactions
	CreateShadowTransaction(s *models.ShadowTransaction) error
	GetShadowByExternalID(externalID string) (*models.ShadowTransaction, error)
	// GetShadowByExternalIDForUpdate locks the row so a state transition can
	// re-check the current state before writing.
	GetShadowByExternalIDForUpdate(externalID string) (*models.ShadowTransaction, error)
	GetShadowByPaymentID(paymentID uint) (*models.ShadowTransaction, error)
	ListShadowsByState(state string) ([]models.ShadowTransaction, error)
	ListShadowsByClientTime(from, to time.Time) ([]models.ShadowTransaction, error)
	SaveShadowTransaction(s *models.ShadowTransaction) error

	// ReassignUserRows repoints payments, minute transactions and usage
	// charges from one user id to another. Callers wrap it in Transact
	// together with the subscription-merge bookkeeping.
	ReassignUserRows(fromUserID, toUserID uint) error
}
