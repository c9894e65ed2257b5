package repository

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transkript-bot/internal/models"
)

func TestTransactRollsBackOnError(t *testing.T) {
	repo := NewMemory()
	user := repo.SeedUser(models.User{TelegramID: 1})

	boom := errors.New("boom")
	err := repo.Transact(func(r Repository) error {
		if err := r.CreateSubscription(&models.Subscription{UserID: user.ID, PlanID: 1}); err != nil {
			return err
		}
		if err := r.CreateMinuteTransaction(&models.MinuteTransaction{UserID: user.ID, Type: models.MinuteTxPromoCredit}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = repo.GetSubscriptionByUser(user.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	txs, err := repo.ListMinuteTransactions(user.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestTransactCommits(t *testing.T) {
	repo := NewMemory()
	user := repo.SeedUser(models.User{TelegramID: 1})

	err := repo.Transact(func(r Repository) error {
		return r.CreateSubscription(&models.Subscription{UserID: user.ID, PlanID: 1})
	})
	require.NoError(t, err)

	sub, err := repo.GetSubscriptionByUser(user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, sub.UserID)
}

func TestShadowUniqueness(t *testing.T) {
	repo := NewMemory()

	require.NoError(t, repo.CreateShadowTransaction(&models.ShadowTransaction{
		ExternalID: "ext-1", PaymentID: 1, State: models.ShadowStateCreated,
	}))

	err := repo.CreateShadowTransaction(&models.ShadowTransaction{
		ExternalID: "ext-1", PaymentID: 2, State: models.ShadowStateCreated,
	})
	assert.ErrorIs(t, err, ErrDuplicate, "external id is unique")

	err = repo.CreateShadowTransaction(&models.ShadowTransaction{
		ExternalID: "ext-2", PaymentID: 1, State: models.ShadowStateCreated,
	})
	assert.ErrorIs(t, err, ErrDuplicate, "one shadow transaction per payment, ever")
}

func TestPendingPaymentUniqueness(t *testing.T) {
	repo := NewMemory()

	first := &models.Payment{
		PublicID: "pay-1", UserID: 7, Kind: models.PaymentKindPlan, TargetID: 2,
		Amount: 2900000, Provider: "payme", Status: models.PaymentStatusPending,
	}
	require.NoError(t, repo.CreatePayment(first))

	dup := &models.Payment{
		PublicID: "pay-2", UserID: 7, Kind: models.PaymentKindPlan, TargetID: 2,
		Amount: 2900000, Provider: "payme", Status: models.PaymentStatusPending,
	}
	err := repo.CreatePayment(dup)
	assert.ErrorIs(t, err, ErrDuplicate, "one pending payment per (user, kind, target)")

	// A different target, or a non-pending row, does not occupy the slot.
	other := &models.Payment{
		PublicID: "pay-3", UserID: 7, Kind: models.PaymentKindPlan, TargetID: 3,
		Amount: 7900000, Provider: "payme", Status: models.PaymentStatusPending,
	}
	require.NoError(t, repo.CreatePayment(other))

	first.Status = models.PaymentStatusFailed
	require.NoError(t, repo.SavePayment(first))
	require.NoError(t, repo.CreatePayment(dup))
}

func TestUsageChargeUniquenessAndRefundFlip(t *testing.T) {
	repo := NewMemory()

	require.NoError(t, repo.CreateUsageCharge(&models.UsageCharge{UserID: 1, SourceRefID: "job-1", Minutes: 5}))
	err := repo.CreateUsageCharge(&models.UsageCharge{UserID: 1, SourceRefID: "job-1", Minutes: 5})
	assert.ErrorIs(t, err, ErrDuplicate)

	// Same ref for another user is a distinct charge.
	require.NoError(t, repo.CreateUsageCharge(&models.UsageCharge{UserID: 2, SourceRefID: "job-1", Minutes: 5}))

	won, err := repo.MarkUsageChargeRefunded(1, "job-1")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.MarkUsageChargeRefunded(1, "job-1")
	require.NoError(t, err)
	assert.False(t, won, "the refund flip is won at most once")
}

func TestListMinuteTransactionsPaging(t *testing.T) {
	repo := NewMemory()
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.CreateMinuteTransaction(&models.MinuteTransaction{
			UserID: 1, Type: models.MinuteTxPromoCredit, MinutesDelta: i + 1,
		}))
	}

	page, err := repo.ListMinuteTransactions(1, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 5, page[0].MinutesDelta, "newest first")

	page, err = repo.ListMinuteTransactions(1, 2, 4)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, 1, page[0].MinutesDelta)

	page, err = repo.ListMinuteTransactions(1, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}
