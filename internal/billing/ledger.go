package billing

import (
	"errors"
	"fmt"
	"time"

	"transkript-bot/internal/models"
	"transkript-bot/internal/repository"
)

// Balance is the computed minutes position for one user.
type Balance struct {
	PlanName       string
	Status         string
	PlanTotal      int
	PlanUsed       int
	PlanRemaining  int
	Bonus          int
	TotalAvailable int
	CycleStart     time.Time
	CycleEnd       time.Time
}

// RequiredMinutes converts a job duration to billed minutes, rounding up.
func RequiredMinutes(durationSeconds int) int {
	if durationSeconds <= 0 {
		return 0
	}
	return (durationSeconds + 59) / 60
}

// GetBalance rolls the billing cycle if it expired and returns the current
// position. A user without a subscription gets an explicit zero "inactive"
// balance, not an error.
func (s *Service) GetBalance(userID uint) (*Balance, error) {
	var balance *Balance
	err := s.repo.Transact(func(r repository.Repository) error {
		sub, err := r.GetSubscriptionByUserForUpdate(userID)
		if errors.Is(err, repository.ErrNotFound) {
			balance = &Balance{Status: models.SubscriptionStatusInactive}
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := s.rollCycleIfExpired(r, sub); err != nil {
			return err
		}
		b, err := s.balanceOf(r, sub)
		if err != nil {
			return err
		}
		balance = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

func (s *Service) balanceOf(r repository.Repository, sub *models.Subscription) (*Balance, error) {
	plan, err := r.GetPlanByID(sub.PlanID)
	if err != nil {
		return nil, fmt.Errorf("plan %d referenced by subscription %d: %w", sub.PlanID, sub.ID, err)
	}
	remaining := sub.MinutesIncluded - sub.MinutesUsed
	if remaining < 0 {
		remaining = 0
	}
	return &Balance{
		PlanName:       plan.Name,
		Status:         sub.Status,
		PlanTotal:      sub.MinutesIncluded,
		PlanUsed:       sub.MinutesUsed,
		PlanRemaining:  remaining,
		Bonus:          sub.BonusMinutes,
		TotalAvailable: remaining + sub.BonusMinutes,
		CycleStart:     sub.CycleStart,
		CycleEnd:       sub.CycleEnd,
	}, nil
}

// rollCycleIfExpired advances an expired cycle by exactly one period from
// the old cycle end. No catch-up: a subscription idle for several periods
// still advances a single step per touch.
func (s *Service) rollCycleIfExpired(r repository.Repository, sub *models.Subscription) (bool, error) {
	if s.now().Before(sub.CycleEnd) {
		return false, nil
	}
	sub.CycleStart = sub.CycleEnd
	sub.CycleEnd = sub.CycleStart.Add(s.cfg.CyclePeriod)
	sub.MinutesUsed = 0
	if err := r.SaveSubscription(sub); err != nil {
		return false, err
	}
	if err := r.CreateMinuteTransaction(&models.MinuteTransaction{
		UserID:            sub.UserID,
		SubscriptionID:    &sub.ID,
		Type:              models.MinuteTxPlanRenewal,
		MinutesDelta:      sub.MinutesIncluded,
		PlanMinutesAfter:  sub.MinutesIncluded,
		BonusMinutesAfter: sub.BonusMinutes,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// HasEnoughMinutes is the job pipeline's admission check.
func (s *Service) HasEnoughMinutes(userID uint, durationSeconds int) (bool, error) {
	balance, err := s.GetBalance(userID)
	if err != nil {
		return false, err
	}
	return balance.TotalAvailable >= RequiredMinutes(durationSeconds), nil
}

// DeductMinutes charges a job's minutes against the user. Bonus minutes
// are consumed before plan quota. Insufficient balance returns false, not
// an error; the charge is recorded so a later refund is exact and
// exactly-once per sourceRefID.
func (s *Service) DeductMinutes(userID uint, sourceRefID string, durationSeconds int) (bool, error) {
	required := RequiredMinutes(durationSeconds)
	if required == 0 {
		return true, nil
	}
	err := s.repo.Transact(func(r repository.Repository) error {
		sub, err := r.GetSubscriptionByUserForUpdate(userID)
		if errors.Is(err, repository.ErrNotFound) {
			return errInsufficient
		}
		if err != nil {
			return err
		}
		if _, err := s.rollCycleIfExpired(r, sub); err != nil {
			return err
		}

		planRemaining := sub.MinutesIncluded - sub.MinutesUsed
		if planRemaining < 0 {
			planRemaining = 0
		}
		if planRemaining+sub.BonusMinutes < required {
			return errInsufficient
		}

		fromBonus := required
		if fromBonus > sub.BonusMinutes {
			fromBonus = sub.BonusMinutes
		}
		sub.BonusMinutes -= fromBonus
		sub.MinutesUsed += required - fromBonus
		if err := r.SaveSubscription(sub); err != nil {
			return err
		}

		charge := &models.UsageCharge{UserID: userID, SourceRefID: sourceRefID, Minutes: required}
		if err := r.CreateUsageCharge(charge); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return errDuplicateCharge
			}
			return err
		}

		planRemaining = sub.MinutesIncluded - sub.MinutesUsed
		if planRemaining < 0 {
			planRemaining = 0
		}
		ref := sourceRefID
		return r.CreateMinuteTransaction(&models.MinuteTransaction{
			UserID:            userID,
			SubscriptionID:    &sub.ID,
			SourceRefID:       &ref,
			Type:              models.MinuteTxUsageDebit,
			MinutesDelta:      -required,
			PlanMinutesAfter:  planRemaining,
			BonusMinutesAfter: sub.BonusMinutes,
		})
	})
	if errors.Is(err, errInsufficient) || errors.Is(err, errDuplicateCharge) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RefundMinutes returns the full previously charged amount for sourceRefID
// into bonus minutes. Returns false when nothing was charged or the charge
// was already refunded.
func (s *Service) RefundMinutes(userID uint, sourceRefID string) (bool, error) {
	refunded := false
	err := s.repo.Transact(func(r repository.Repository) error {
		charge, err := r.GetUsageCharge(userID, sourceRefID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		won, err := r.MarkUsageChargeRefunded(userID, sourceRefID)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}

		sub, err := r.GetSubscriptionByUserForUpdate(userID)
		if err != nil {
			// A charge without a subscription row is an integrity error.
			return fmt.Errorf("refund %q for user %d: %w", sourceRefID, userID, err)
		}
		// Refunds always land in bonus, never back into plan quota, so a
		// cycle rollover between charge and refund needs no reasoning.
		sub.BonusMinutes += charge.Minutes
		if err := r.SaveSubscription(sub); err != nil {
			return err
		}

		planRemaining := sub.MinutesIncluded - sub.MinutesUsed
		if planRemaining < 0 {
			planRemaining = 0
		}
		ref := sourceRefID
		if err := r.CreateMinuteTransaction(&models.MinuteTransaction{
			UserID:            userID,
			SubscriptionID:    &sub.ID,
			SourceRefID:       &ref,
			Type:              models.MinuteTxRefund,
			MinutesDelta:      charge.Minutes,
			PlanMinutesAfter:  planRemaining,
			BonusMinutesAfter: sub.BonusMinutes,
		}); err != nil {
			return err
		}
		refunded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return refunded, nil
}

// ActivatePlan creates or replaces the user's subscription with a fresh
// cycle on the given plan. Existing bonus minutes survive the switch.
func (s *Service) ActivatePlan(userID, planID uint) error {
	return s.repo.Transact(func(r repository.Repository) error {
		return s.activatePlan(r, userID, planID)
	})
}

func (s *Service) activatePlan(r repository.Repository, userID, planID uint) error {
	plan, err := r.GetPlanByID(planID)
	if err != nil {
		return fmt.Errorf("activate plan %d: %w", planID, err)
	}
	now := s.now()

	sub, err := r.GetSubscriptionByUserForUpdate(userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		sub = &models.Subscription{
			UserID:          userID,
			PlanID:          plan.ID,
			CycleStart:      now,
			CycleEnd:        now.Add(s.cfg.CyclePeriod),
			MinutesIncluded: plan.MinutesPerCycle,
			Status:          models.SubscriptionStatusActive,
		}
		if err := r.CreateSubscription(sub); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		sub.PlanID = plan.ID
		sub.CycleStart = now
		sub.CycleEnd = now.Add(s.cfg.CyclePeriod)
		sub.MinutesIncluded = plan.MinutesPerCycle
		sub.MinutesUsed = 0
		sub.Status = models.SubscriptionStatusActive
		if err := r.SaveSubscription(sub); err != nil {
			return err
		}
	}

	return r.CreateMinuteTransaction(&models.MinuteTransaction{
		UserID:            userID,
		SubscriptionID:    &sub.ID,
		Type:              models.MinuteTxPlanActivation,
		MinutesDelta:      plan.MinutesPerCycle,
		PlanMinutesAfter:  plan.MinutesPerCycle,
		BonusMinutesAfter: sub.BonusMinutes,
	})
}

// PurchasePackage credits a package's minutes into bonus, lazily creating
// a free-tier subscription for users who never had one.
func (s *Service) PurchasePackage(userID, packageID uint) (*models.MinuteTransaction, error) {
	var entry *models.MinuteTransaction
	err := s.repo.Transact(func(r repository.Repository) error {
		e, err := s.purchasePackage(r, userID, packageID)
		if err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) purchasePackage(r repository.Repository, userID, packageID uint) (*models.MinuteTransaction, error) {
	pkg, err := r.GetPackageByID(packageID)
	if err != nil {
		return nil, fmt.Errorf("purchase package %d: %w", packageID, err)
	}
	sub, err := s.ensureSubscription(r, userID)
	if err != nil {
		return nil, err
	}
	sub.BonusMinutes += pkg.Minutes
	if err := r.SaveSubscription(sub); err != nil {
		return nil, err
	}

	planRemaining := sub.MinutesIncluded - sub.MinutesUsed
	if planRemaining < 0 {
		planRemaining = 0
	}
	entry := &models.MinuteTransaction{
		UserID:            userID,
		SubscriptionID:    &sub.ID,
		PackageID:         &pkg.ID,
		Type:              models.MinuteTxPackagePurchase,
		MinutesDelta:      pkg.Minutes,
		PlanMinutesAfter:  planRemaining,
		BonusMinutesAfter: sub.BonusMinutes,
	}
	if err := r.CreateMinuteTransaction(entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// EnsureSubscription returns the user's subscription, activating the free
// tier on first touch.
func (s *Service) EnsureSubscription(userID uint) (*models.Subscription, error) {
	var sub *models.Subscription
	err := s.repo.Transact(func(r repository.Repository) error {
		got, err := s.ensureSubscription(r, userID)
		if err != nil {
			return err
		}
		sub = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) ensureSubscription(r repository.Repository, userID uint) (*models.Subscription, error) {
	sub, err := r.GetSubscriptionByUserForUpdate(userID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	freePlan, err := r.GetPlanByName(s.cfg.FreePlanName)
	if err != nil {
		return nil, fmt.Errorf("free plan %q missing from catalog: %w", s.cfg.FreePlanName, err)
	}
	if err := s.activatePlan(r, userID, freePlan.ID); err != nil {
		return nil, err
	}
	return r.GetSubscriptionByUserForUpdate(userID)
}

// GrantPromoMinutes credits promotional bonus minutes.
func (s *Service) GrantPromoMinutes(userID uint, minutes int, ref string) error {
	if minutes <= 0 {
		return fmt.Errorf("promo credit must be positive, got %d", minutes)
	}
	return s.adjustBonus(userID, minutes, models.MinuteTxPromoCredit, ref)
}

// AdminAdjustMinutes applies a signed operator correction to bonus minutes.
// Bonus never goes negative.
func (s *Service) AdminAdjustMinutes(userID uint, delta int, ref string) error {
	return s.adjustBonus(userID, delta, models.MinuteTxAdminAdjustment, ref)
}

func (s *Service) adjustBonus(userID uint, delta int, txType, ref string) error {
	return s.repo.Transact(func(r repository.Repository) error {
		sub, err := s.ensureSubscription(r, userID)
		if err != nil {
			return err
		}
		if sub.BonusMinutes+delta < 0 {
			return fmt.Errorf("adjustment %d would drive bonus below zero (have %d)", delta, sub.BonusMinutes)
		}
		sub.BonusMinutes += delta
		if err := r.SaveSubscription(sub); err != nil {
			return err
		}
		planRemaining := sub.MinutesIncluded - sub.MinutesUsed
		if planRemaining < 0 {
			planRemaining = 0
		}
		entry := &models.MinuteTransaction{
			UserID:            userID,
			SubscriptionID:    &sub.ID,
			Type:              txType,
			MinutesDelta:      delta,
			PlanMinutesAfter:  planRemaining,
			BonusMinutesAfter: sub.BonusMinutes,
		}
		if ref != "" {
			entry.SourceRefID = &ref
		}
		return r.CreateMinuteTransaction(entry)
	})
}

// MergeAccounts moves all billing rows from one user to another in a
// single transaction. When both users own a subscription, the source's
// remaining plan quota and bonus fold into the target's bonus and the
// source subscription row is removed.
func (s *Service) MergeAccounts(fromUserID, toUserID uint) error {
	if fromUserID == toUserID {
		return fmt.Errorf("cannot merge user %d into itself", fromUserID)
	}
	return s.repo.Transact(func(r repository.Repository) error {
		if _, err := r.GetUserByID(fromUserID); err != nil {
			return fmt.Errorf("merge source user %d: %w", fromUserID, err)
		}
		if _, err := r.GetUserByID(toUserID); err != nil {
			return fmt.Errorf("merge target user %d: %w", toUserID, err)
		}

		srcSub, err := r.GetSubscriptionByUserForUpdate(fromUserID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if srcSub != nil {
			dstSub, err := r.GetSubscriptionByUserForUpdate(toUserID)
			switch {
			case errors.Is(err, repository.ErrNotFound):
				srcSub.UserID = toUserID
				if err := r.SaveSubscription(srcSub); err != nil {
					return err
				}
			case err != nil:
				return err
			default:
				carried := srcSub.BonusMinutes
				if remaining := srcSub.MinutesIncluded - srcSub.MinutesUsed; remaining > 0 {
					carried += remaining
				}
				if err := r.DeleteSubscription(srcSub.ID); err != nil {
					return err
				}
				if carried > 0 {
					dstSub.BonusMinutes += carried
					if err := r.SaveSubscription(dstSub); err != nil {
						return err
					}
					planRemaining := dstSub.MinutesIncluded - dstSub.MinutesUsed
					if planRemaining < 0 {
						planRemaining = 0
					}
					if err := r.CreateMinuteTransaction(&models.MinuteTransaction{
						UserID:            toUserID,
						SubscriptionID:    &dstSub.ID,
						Type:              models.MinuteTxAdminAdjustment,
						MinutesDelta:      carried,
						PlanMinutesAfter:  planRemaining,
						BonusMinutesAfter: dstSub.BonusMinutes,
					}); err != nil {
						return err
					}
				}
			}
		}

		return r.ReassignUserRows(fromUserID, toUserID)
	})
}
