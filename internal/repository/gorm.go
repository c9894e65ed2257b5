package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"transkript-bot/internal/models"
)

type gormRepository struct {
	db *gorm.DB
}

// NewGorm creates the production repository. The *gorm.DB must be opened
// with TranslateError so unique-index violations surface as ErrDuplicate.
func NewGorm(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transact(fn func(Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) GetUserByID(id uint) (*models.User, error) {
	var u models.User
	if err := r.db.First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) GetUserByTelegramID(telegramID int64) (*models.User, error) {
	var u models.User
	if err := r.db.Where("telegram_id = ?", telegramID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) FirstOrCreateUser(telegramID int64, username string) (*models.User, error) {
	var u models.User
	err := r.db.Where(models.User{TelegramID: telegramID}).
		Attrs(models.User{Username: username, Status: models.UserStatusActive}).
		FirstOrCreate(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) GetPlanByID(id uint) (*models.Plan, error) {
	var p models.Plan
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetPlanByName(name string) (*models.Plan, error) {
	var p models.Plan
	if err := r.db.Where("name = ?", name).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) ListActivePlans() ([]models.Plan, error) {
	var plans []models.Plan
	err := r.db.Where("is_active = ?", true).Order("price ASC").Find(&plans).Error
	return plans, err
}

func (r *gormRepository) GetPackageByID(id uint) (*models.Package, error) {
	var p models.Package
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetPackageByName(name string) (*models.Package, error) {
	var p models.Package
	if err := r.db.Where("name = ?", name).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) ListPackages() ([]models.Package, error) {
	var packages []models.Package
	err := r.db.Order("price ASC").Find(&packages).Error
	return packages, err
}

func (r *gormRepository) GetSubscriptionByUser(userID uint) (*models.Subscription, error) {
	var s models.Subscription
	if err := r.db.Where("user_id = ?", userID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *gormRepository) GetSubscriptionByUserForUpdate(userID uint) (*models.Subscription, error) {
	var s models.Subscription
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *gormRepository) CreateSubscription(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *gormRepository) SaveSubscription(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

func (r *gormRepository) DeleteSubscription(id uint) error {
	return r.db.Delete(&models.Subscription{}, id).Error
}

func (r *gormRepository) ListSubscriptions() ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Find(&subs).Error
	return subs, err
}

func (r *gormRepository) CreateMinuteTransaction(tx *models.MinuteTransaction) error {
	return r.db.Create(tx).Error
}

func (r *gormRepository) ListMinuteTransactions(userID uint, limit, offset int) ([]models.MinuteTransaction, error) {
	var txs []models.MinuteTransaction
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&txs).Error
	return txs, err
}

func (r *gormRepository) CreateUsageCharge(charge *models.UsageCharge) error {
	return r.db.Create(charge).Error
}

func (r *gormRepository) GetUsageCharge(userID uint, sourceRefID string) (*models.UsageCharge, error) {
	var c models.UsageCharge
	err := r.db.Where("user_id = ? AND source_ref_id = ?", userID, sourceRefID).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) MarkUsageChargeRefunded(userID uint, sourceRefID string) (bool, error) {
	res := r.db.Model(&models.UsageCharge{}).
		Where("user_id = ? AND source_ref_id = ? AND refunded = ?", userID, sourceRefID, false).
		Update("refunded", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) CreatePayment(p *models.Payment) error {
	return r.db.Create(p).Error
}

func (r *gormRepository) GetPaymentByID(id uint) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetPaymentByIDForUpdate(id uint) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetPendingPayment(userID uint, kind string, targetID uint) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("user_id = ? AND kind = ? AND target_id = ? AND status = ?",
		userID, kind, targetID, models.PaymentStatusPending).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) SavePayment(p *models.Payment) error {
	return r.db.Save(p).Error
}

func (r *gormRepository) CreateShadowTransaction(s *models.ShadowTransaction) error {
	return r.db.Create(s).Error
}

func (r *gormRepository) GetShadowByExternalID(externalID string) (*models.ShadowTransaction, error) {
	var s models.ShadowTransaction
	if err := r.db.Where("external_id = ?", externalID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *gormRepository) GetShadowByExternalIDForUpdate(externalID string) (*models.ShadowTransaction, error) {
	var s models.ShadowTransaction
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("external_id = ?", externalID).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *gormRepository) GetShadowByPaymentID(paymentID uint) (*models.ShadowTransaction, error) {
	var s models.ShadowTransaction
	if err := r.db.Where("payment_id = ?", paymentID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *gormRepository) ListShadowsByState(state string) ([]models.ShadowTransaction, error) {
	var shadows []models.ShadowTransaction
	err := r.db.Where("state = ?", state).Find(&shadows).Error
	return shadows, err
}

func (r *gormRepository) ListShadowsByClientTime(from, to time.Time) ([]models.ShadowTransaction, error) {
	var shadows []models.ShadowTransaction
	err := r.db.Where("client_time BETWEEN ? AND ?", from, to).
		Order("client_time ASC").Find(&shadows).Error
	return shadows, err
}

func (r *gormRepository) SaveShadowTransaction(s *models.ShadowTransaction) error {
	return r.db.Save(s).Error
}

func (r *gormRepository) ReassignUserRows(fromUserID, toUserID uint) error {
	tables := []interface{}{
		&models.Payment{},
		&models.MinuteTransaction{},
		&models.UsageCharge{},
	}
	for _, table := range tables {
		if err := r.db.Model(table).
			Where("user_id = ?", fromUserID).
			Update("user_id", toUserID).Error; err != nil {
			return err
		}
	}
	return nil
}
