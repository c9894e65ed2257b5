package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"transkript-bot/internal/billing"
	"transkript-bot/internal/models"
	"transkript-bot/internal/notify"
	"transkript-bot/internal/repository"
)

// TransactionTimeout is how long a CREATED transaction may wait for
// PerformTransaction before any touch flips it to CANCELLED.
const TransactionTimeout = 12 * time.Hour

// reasonTimeout is the provider's cancel-reason code for transactions
// cancelled by timeout.
const reasonTimeout = 4

// Service implements the merchant protocol state machine. All methods are
// idempotent under at-least-once delivery, keyed by the provider's
// transaction id.
type Service struct {
	repo     repository.Repository
	billing  *billing.Service
	notifier notify.Notifier
	log      *log.Logger
	timeout  time.Duration

	now func() time.Time
}

func NewService(repo repository.Repository, b *billing.Service, notifier notify.Notifier, logger *log.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		repo:     repo,
		billing:  b,
		notifier: notifier,
		log:      logger,
		timeout:  TransactionTimeout,
		now:      time.Now,
	}
}

func stateCode(state string) int {
	switch state {
	case models.ShadowStateCreated:
		return 1
	case models.ShadowStateCompleted:
		return 2
	case models.ShadowStateCancelled:
		return -1
	case models.ShadowStateCancelledAfterComplete:
		return -2
	default:
		return 0
	}
}

// order is a validated checkout target.
type order struct {
	user    *models.User
	kind    string
	target  uint
	name    string
	price   int64 // soums
}

// validateOrder resolves the account fields and verifies the amount. Pure
// validation, no state mutation.
func (s *Service) validateOrder(amount int64, account Account) (*order, *RPCError) {
	userField := account.Field("user_id")
	userID, err := strconv.ParseUint(userField, 10, 32)
	if err != nil {
		return nil, rpcErrData(CodeUserNotFound, "User not found", "user_id")
	}
	user, err := s.repo.GetUserByID(uint(userID))
	if err != nil {
		return nil, rpcErrData(CodeUserNotFound, "User not found", "user_id")
	}

	planName := account.Field("plan_id")
	packageName := account.Field("package_id")
	ord := &order{user: user}
	switch {
	case planName != "" && packageName == "":
		plan, err := s.repo.GetPlanByName(planName)
		if err != nil {
			return nil, rpcErrData(CodePlanNotFound, "Plan not found", "plan_id")
		}
		ord.kind = models.PaymentKindPlan
		ord.target = plan.ID
		ord.name = plan.Name
		ord.price = plan.Price
	case packageName != "" && planName == "":
		pkg, err := s.repo.GetPackageByName(packageName)
		if err != nil {
			return nil, rpcErrData(CodePackageNotFound, "Package not found", "package_id")
		}
		ord.kind = models.PaymentKindPackage
		ord.target = pkg.ID
		ord.name = pkg.Name
		ord.price = pkg.Price
	default:
		return nil, rpcErr(CodeInvalidOrderType, "Order must reference exactly one of plan_id or package_id")
	}

	if amount != ord.price*100 {
		return nil, errInvalidAmount
	}
	return ord, nil
}

// CheckPerformTransaction answers whether a checkout with these account
// fields and amount could succeed right now.
func (s *Service) CheckPerformTransaction(p CheckPerformParams) (*CheckPerformResult, error) {
	if _, rpcE := s.validateOrder(p.Amount, p.Account); rpcE != nil {
		return nil, rpcE
	}
	return &CheckPerformResult{Allow: true}, nil
}

func (s *Service) expired(sh *models.ShadowTransaction) bool {
	return s.now().Sub(sh.CreateTime) > s.timeout
}

// errStateChanged aborts a transition whose shadow row moved underneath
// between the initial read and the locked re-read. Callers re-read and
// serve the stored answer for the new state.
var errStateChanged = errors.New("gateway: transaction changed state concurrently")

// cancelCreated flips a CREATED shadow transaction to CANCELLED and fails
// its payment, in one transaction. The row is re-read under lock so a
// transition that already happened elsewhere is never overwritten.
func (s *Service) cancelCreated(externalID string, reason int) (*models.ShadowTransaction, error) {
	var cancelled *models.ShadowTransaction
	err := s.repo.Transact(func(r repository.Repository) error {
		sh, err := r.GetShadowByExternalIDForUpdate(externalID)
		if err != nil {
			return err
		}
		if sh.State != models.ShadowStateCreated {
			return errStateChanged
		}
		now := s.now()
		sh.State = models.ShadowStateCancelled
		sh.CancelTime = &now
		sh.ReasonCode = &reason
		if err := r.SaveShadowTransaction(sh); err != nil {
			return err
		}
		p, err := r.GetPaymentByIDForUpdate(sh.PaymentID)
		if err != nil {
			return err
		}
		if p.Status == models.PaymentStatusPending {
			p.Status = models.PaymentStatusFailed
			if err := r.SavePayment(p); err != nil {
				return err
			}
		}
		cancelled = sh
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// CreateTransaction registers (or replays) a provider transaction against a
// reserved payment. The unique external id index absorbs duplicate
// delivery; the unique payment id index closes the order-in-progress race.
func (s *Service) CreateTransaction(p CreateParams) (*CreateResult, error) {
	if existing, err := s.repo.GetShadowByExternalID(p.ID); err == nil {
		if existing.Terminal() {
			return nil, errCannotPerform
		}
		if s.expired(existing) {
			if _, err := s.cancelCreated(existing.ExternalID, reasonTimeout); err != nil && !errors.Is(err, errStateChanged) {
				return nil, err
			}
			return nil, errCannotPerform
		}
		payment, err := s.repo.GetPaymentByID(existing.PaymentID)
		if err != nil {
			return nil, err
		}
		return &CreateResult{
			CreateTime:  timeToMS(existing.CreateTime),
			Transaction: payment.PublicID,
			State:       stateCode(existing.State),
		}, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	ord, rpcE := s.validateOrder(p.Amount, p.Account)
	if rpcE != nil {
		return nil, rpcE
	}

	payment, err := s.billing.CreatePayment(ord.user.ID, ord.kind, ord.target)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrPlanAlreadyActive), errors.Is(err, billing.ErrPlanConflict):
			return nil, rpcErr(CodeOrderUnavailable, "Order cannot be fulfilled for this account")
		case errors.Is(err, billing.ErrFreeTarget):
			return nil, errInvalidAmount
		default:
			return nil, err
		}
	}

	// Best-effort read-then-act guard; the unique payment_id index below is
	// the real lock.
	if other, err := s.repo.GetShadowByPaymentID(payment.ID); err == nil {
		if other.State == models.ShadowStateCreated && !s.expired(other) {
			return nil, rpcErr(CodeOrderInProgress, "Order is already being paid in another transaction")
		}
		return nil, errCannotPerform
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	sh := &models.ShadowTransaction{
		ExternalID: p.ID,
		PaymentID:  payment.ID,
		Amount:     p.Amount,
		ClientTime: msToTime(p.Time),
		State:      models.ShadowStateCreated,
		CreateTime: s.now(),
	}
	if err := s.repo.CreateShadowTransaction(sh); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Lost a race: either a replay of the same external id landed
			// first (serve its stored answer) or another transaction claimed
			// the payment.
			if stored, lookupErr := s.repo.GetShadowByExternalID(p.ID); lookupErr == nil &&
				stored.State == models.ShadowStateCreated {
				return &CreateResult{
					CreateTime:  timeToMS(stored.CreateTime),
					Transaction: payment.PublicID,
					State:       stateCode(stored.State),
				}, nil
			}
			return nil, rpcErr(CodeOrderInProgress, "Order is already being paid in another transaction")
		}
		return nil, err
	}

	return &CreateResult{
		CreateTime:  timeToMS(sh.CreateTime),
		Transaction: payment.PublicID,
		State:       stateCode(sh.State),
	}, nil
}

// PerformTransaction settles a CREATED transaction: confirm the payment,
// grant the entitlement, mark COMPLETED. Replays after success return the
// stored perform time unchanged, so the user is never charged twice.
func (s *Service) PerformTransaction(p PerformParams) (*PerformResult, error) {
	sh, err := s.repo.GetShadowByExternalID(p.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errTransactionNotFound
	}
	if err != nil {
		return nil, err
	}

	payment, err := s.repo.GetPaymentByID(sh.PaymentID)
	if err != nil {
		return nil, err
	}

	switch sh.State {
	case models.ShadowStateCompleted:
		return &PerformResult{
			Transaction: payment.PublicID,
			PerformTime: ptrToMS(sh.PerformTime),
			State:       stateCode(sh.State),
		}, nil
	case models.ShadowStateCreated:
		// fallthrough below
	default:
		return nil, errCannotPerform
	}

	if s.expired(sh) {
		if _, err := s.cancelCreated(sh.ExternalID, reasonTimeout); err != nil && !errors.Is(err, errStateChanged) {
			return nil, err
		}
		return nil, errCannotPerform
	}

	// The confirm, the entitlement and the CREATED -> COMPLETED transition
	// commit as one unit. The locked re-read rejects a shadow row that a
	// concurrent cancel or perform moved after the read above.
	err = s.repo.Transact(func(r repository.Repository) error {
		cur, err := r.GetShadowByExternalIDForUpdate(p.ID)
		if err != nil {
			return err
		}
		if cur.State != models.ShadowStateCreated {
			return errStateChanged
		}
		if _, err := s.billing.ConfirmPaymentWith(r, payment.ID, p.ID, ""); err != nil {
			return err
		}
		now := s.now()
		cur.State = models.ShadowStateCompleted
		cur.PerformTime = &now
		if err := r.SaveShadowTransaction(cur); err != nil {
			return err
		}
		sh = cur
		return nil
	})
	if errors.Is(err, errStateChanged) {
		// Serve the stored answer for whatever state won the race.
		return s.PerformTransaction(p)
	}
	if err != nil {
		return nil, err
	}

	s.notifyCompleted(payment)

	return &PerformResult{
		Transaction: payment.PublicID,
		PerformTime: ptrToMS(sh.PerformTime),
		State:       stateCode(sh.State),
	}, nil
}

// notifyCompleted is strictly best-effort and runs only after the perform
// transaction committed.
func (s *Service) notifyCompleted(payment *models.Payment) {
	user, err := s.repo.GetUserByID(payment.UserID)
	if err != nil {
		s.log.Printf("notify: user %d lookup failed: %v", payment.UserID, err)
		return
	}
	text := "✅ Оплата прошла успешно!"
	switch payment.Kind {
	case models.PaymentKindPlan:
		if plan, err := s.repo.GetPlanByID(payment.TargetID); err == nil {
			text = fmt.Sprintf("✅ Оплата прошла успешно! Тариф «%s» активирован: %d минут на цикл.",
				plan.Name, plan.MinutesPerCycle)
		}
	case models.PaymentKindPackage:
		if pkg, err := s.repo.GetPackageByID(payment.TargetID); err == nil {
			text = fmt.Sprintf("✅ Оплата прошла успешно! Пакет «%s» зачислен: +%d бонусных минут.",
				pkg.Name, pkg.Minutes)
		}
	}
	s.notifier.PaymentCompleted(context.Background(), user.TelegramID, text)
}

// CancelTransaction handles both the abandoned-checkout path
// (CREATED → CANCELLED, payment failed) and the post-hoc reversal
// (COMPLETED → CANCELLED_AFTER_COMPLETE). The latter never revokes the
// granted entitlement; it is flagged for manual reconciliation instead.
func (s *Service) CancelTransaction(p CancelParams) (*CancelResult, error) {
	sh, err := s.repo.GetShadowByExternalID(p.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errTransactionNotFound
	}
	if err != nil {
		return nil, err
	}

	payment, err := s.repo.GetPaymentByID(sh.PaymentID)
	if err != nil {
		return nil, err
	}

	reason := 0
	if p.Reason != nil {
		reason = *p.Reason
	}

	switch sh.State {
	case models.ShadowStateCancelled, models.ShadowStateCancelledAfterComplete:
		return &CancelResult{
			Transaction: payment.PublicID,
			CancelTime:  ptrToMS(sh.CancelTime),
			State:       stateCode(sh.State),
		}, nil
	case models.ShadowStateCreated:
		cancelled, err := s.cancelCreated(sh.ExternalID, reason)
		if errors.Is(err, errStateChanged) {
			return s.CancelTransaction(p)
		}
		if err != nil {
			return nil, err
		}
		sh = cancelled
	case models.ShadowStateCompleted:
		err := s.repo.Transact(func(r repository.Repository) error {
			cur, err := r.GetShadowByExternalIDForUpdate(p.ID)
			if err != nil {
				return err
			}
			if cur.State != models.ShadowStateCompleted {
				return errStateChanged
			}
			now := s.now()
			cur.State = models.ShadowStateCancelledAfterComplete
			cur.CancelTime = &now
			cur.ReasonCode = &reason
			if err := r.SaveShadowTransaction(cur); err != nil {
				return err
			}
			sh = cur
			return nil
		})
		if errors.Is(err, errStateChanged) {
			return s.CancelTransaction(p)
		}
		if err != nil {
			return nil, err
		}
		// Entitlement stays granted; operators reconcile these by hand.
		s.log.Printf("transaction %s cancelled after completion (reason %d), payment %d needs manual reconciliation",
			sh.ExternalID, reason, payment.ID)
	default:
		return nil, errCannotCancel
	}

	return &CancelResult{
		Transaction: payment.PublicID,
		CancelTime:  ptrToMS(sh.CancelTime),
		State:       stateCode(sh.State),
	}, nil
}

// CheckTransaction is a read-only projection of the stored state.
func (s *Service) CheckTransaction(p CheckParams) (*CheckResult, error) {
	sh, err := s.repo.GetShadowByExternalID(p.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	payment, err := s.repo.GetPaymentByID(sh.PaymentID)
	if err != nil {
		return nil, err
	}
	return &CheckResult{
		CreateTime:  timeToMS(sh.CreateTime),
		PerformTime: ptrToMS(sh.PerformTime),
		CancelTime:  ptrToMS(sh.CancelTime),
		Transaction: payment.PublicID,
		State:       stateCode(sh.State),
		Reason:      sh.ReasonCode,
	}, nil
}

// GetStatement returns every transaction whose client-supplied time falls
// in [from, to], re-projected into the provider's account representation.
// Deterministic and side-effect free.
func (s *Service) GetStatement(p StatementParams) (*StatementResult, error) {
	shadows, err := s.repo.ListShadowsByClientTime(msToTime(p.From), msToTime(p.To))
	if err != nil {
		return nil, err
	}
	result := &StatementResult{Transactions: make([]StatementTransaction, 0, len(shadows))}
	for _, sh := range shadows {
		payment, err := s.repo.GetPaymentByID(sh.PaymentID)
		if err != nil {
			return nil, err
		}
		account := Account{"user_id": strconv.FormatUint(uint64(payment.UserID), 10)}
		switch payment.Kind {
		case models.PaymentKindPlan:
			if plan, err := s.repo.GetPlanByID(payment.TargetID); err == nil {
				account["plan_id"] = plan.Name
			}
		case models.PaymentKindPackage:
			if pkg, err := s.repo.GetPackageByID(payment.TargetID); err == nil {
				account["package_id"] = pkg.Name
			}
		}
		result.Transactions = append(result.Transactions, StatementTransaction{
			ID:          sh.ExternalID,
			Time:        timeToMS(sh.ClientTime),
			Amount:      sh.Amount,
			Account:     account,
			CreateTime:  timeToMS(sh.CreateTime),
			PerformTime: ptrToMS(sh.PerformTime),
			CancelTime:  ptrToMS(sh.CancelTime),
			Transaction: payment.PublicID,
			State:       stateCode(sh.State),
			Reason:      sh.ReasonCode,
		})
	}
	return result, nil
}

// SweepExpired cancels every CREATED transaction older than the timeout.
// The background worker calls this so abandoned checkouts do not wait for
// the provider to touch them again.
func (s *Service) SweepExpired() (int, error) {
	shadows, err := s.repo.ListShadowsByState(models.ShadowStateCreated)
	if err != nil {
		return 0, err
	}
	cancelled := 0
	for i := range shadows {
		sh := shadows[i]
		if !s.expired(&sh) {
			continue
		}
		if _, err := s.cancelCreated(sh.ExternalID, reasonTimeout); err != nil {
			if !errors.Is(err, errStateChanged) {
				s.log.Printf("sweep: cancel transaction %s: %v", sh.ExternalID, err)
			}
			continue
		}
		cancelled++
	}
	return cancelled, nil
}
