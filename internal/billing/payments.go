package billing

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"transkript-bot/internal/models"
	"transkript-bot/internal/repository"
)

// CreatePayment reserves a pending payment for a plan or package. Free
// targets are rejected, mid-cycle switches away from a paid plan are
// rejected, and re-buying the currently active plan is rejected. A pending
// payment already held for the same (user, target) is returned unchanged so
// retried client requests never reserve twice.
func (s *Service) CreatePayment(userID uint, kind string, targetID uint) (*models.Payment, error) {
	if kind != models.PaymentKindPlan && kind != models.PaymentKindPackage {
		return nil, ErrUnknownKind
	}
	var payment *models.Payment
	err := s.repo.Transact(func(r repository.Repository) error {
		if _, err := r.GetUserByID(userID); err != nil {
			return fmt.Errorf("payment for user %d: %w", userID, err)
		}

		price, err := s.targetPrice(r, kind, targetID)
		if err != nil {
			return err
		}
		if price == 0 {
			return ErrFreeTarget
		}

		if kind == models.PaymentKindPlan {
			if err := s.checkPlanPurchase(r, userID, targetID); err != nil {
				return err
			}
		}

		existing, err := r.GetPendingPayment(userID, kind, targetID)
		if err == nil {
			payment = existing
			return nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		payment = &models.Payment{
			PublicID: uuid.NewString(),
			UserID:   userID,
			Kind:     kind,
			TargetID: targetID,
			Amount:   price * 100, // tiyin
			Provider: s.cfg.Provider,
			Status:   models.PaymentStatusPending,
		}
		return r.CreatePayment(payment)
	})
	if errors.Is(err, repository.ErrDuplicate) {
		// Lost the pending-reservation race to a concurrent caller; the
		// partial unique index rolled our insert back, so serve the
		// winner's row.
		return s.repo.GetPendingPayment(userID, kind, targetID)
	}
	if err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *Service) targetPrice(r repository.Repository, kind string, targetID uint) (int64, error) {
	if kind == models.PaymentKindPlan {
		plan, err := r.GetPlanByID(targetID)
		if err != nil {
			return 0, fmt.Errorf("plan %d: %w", targetID, err)
		}
		return plan.Price, nil
	}
	pkg, err := r.GetPackageByID(targetID)
	if err != nil {
		return 0, fmt.Errorf("package %d: %w", targetID, err)
	}
	return pkg.Price, nil
}

// checkPlanPurchase enforces the no-mid-cycle-switch policy: a user on a
// paid plan keeps it until cycle end, and the active plan cannot be bought
// again.
func (s *Service) checkPlanPurchase(r repository.Repository, userID, planID uint) error {
	sub, err := r.GetSubscriptionByUser(userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if sub.Status != models.SubscriptionStatusActive || !s.now().Before(sub.CycleEnd) {
		return nil
	}
	current, err := r.GetPlanByID(sub.PlanID)
	if err != nil {
		return err
	}
	if current.Price == 0 {
		// Upgrading off the free tier is always allowed.
		return nil
	}
	if sub.PlanID == planID {
		return ErrPlanAlreadyActive
	}
	return ErrPlanConflict
}

// ConfirmPayment marks a pending payment completed and activates its
// entitlement in the same transaction. A payment already completed is
// returned unchanged, which makes duplicate gateway callbacks safe.
func (s *Service) ConfirmPayment(paymentID uint, providerTxID, rawPayload string) (*models.Payment, error) {
	var payment *models.Payment
	err := s.repo.Transact(func(r repository.Repository) error {
		p, err := s.confirmPayment(r, paymentID, providerTxID, rawPayload)
		if err != nil {
			return err
		}
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// ConfirmPaymentWith runs the confirm inside the caller's transaction, so a
// caller can commit its own state transition atomically with the payment's.
func (s *Service) ConfirmPaymentWith(r repository.Repository, paymentID uint, providerTxID, rawPayload string) (*models.Payment, error) {
	return s.confirmPayment(r, paymentID, providerTxID, rawPayload)
}

func (s *Service) confirmPayment(r repository.Repository, paymentID uint, providerTxID, rawPayload string) (*models.Payment, error) {
	// The locked read serializes concurrent confirms on the row: the loser
	// of the race re-reads the committed completed status and takes the
	// replay branch instead of activating a second time.
	p, err := r.GetPaymentByIDForUpdate(paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status == models.PaymentStatusCompleted {
		return p, nil
	}
	if p.Status != models.PaymentStatusPending {
		return nil, ErrPaymentNotPending
	}

	now := s.now()
	p.Status = models.PaymentStatusCompleted
	p.CompletedAt = &now
	if providerTxID != "" {
		p.ProviderTxID = &providerTxID
	}
	if rawPayload != "" {
		p.RawPayloadJSON = rawPayload
	}
	if err := r.SavePayment(p); err != nil {
		return nil, err
	}

	// Activation failure rolls the completed transition back with it.
	switch p.Kind {
	case models.PaymentKindPlan:
		if err := s.activatePlan(r, p.UserID, p.TargetID); err != nil {
			return nil, err
		}
	case models.PaymentKindPackage:
		if _, err := s.purchasePackage(r, p.UserID, p.TargetID); err != nil {
			return nil, err
		}
	default:
		return nil, ErrUnknownKind
	}
	return p, nil
}

// FailPayment moves a pending payment to failed. Any other source state is
// rejected.
func (s *Service) FailPayment(paymentID uint, reason string) (*models.Payment, error) {
	var payment *models.Payment
	err := s.repo.Transact(func(r repository.Repository) error {
		p, err := r.GetPaymentByIDForUpdate(paymentID)
		if err != nil {
			return err
		}
		if p.Status != models.PaymentStatusPending {
			return ErrPaymentNotPending
		}
		p.Status = models.PaymentStatusFailed
		if err := r.SavePayment(p); err != nil {
			return err
		}
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Printf("payment %d failed: %s", paymentID, reason)
	return payment, nil
}

// CreatePlanPaymentByName is the bot/REST entry point: reserve a payment
// for the named plan and hand back the provider checkout link.
func (s *Service) CreatePlanPaymentByName(userID uint, planName string) (*models.Payment, string, error) {
	plan, err := s.repo.GetPlanByName(planName)
	if err != nil {
		return nil, "", fmt.Errorf("plan %q: %w", planName, err)
	}
	payment, err := s.CreatePayment(userID, models.PaymentKindPlan, plan.ID)
	if err != nil {
		return nil, "", err
	}
	url := s.CheckoutURL(payment, plan.Name)
	return payment, url, nil
}

// CreatePackagePaymentByName mirrors CreatePlanPaymentByName for packages.
func (s *Service) CreatePackagePaymentByName(userID uint, packageName string) (*models.Payment, string, error) {
	pkg, err := s.repo.GetPackageByName(packageName)
	if err != nil {
		return nil, "", fmt.Errorf("package %q: %w", packageName, err)
	}
	payment, err := s.CreatePayment(userID, models.PaymentKindPackage, pkg.ID)
	if err != nil {
		return nil, "", err
	}
	url := s.CheckoutURL(payment, pkg.Name)
	return payment, url, nil
}
