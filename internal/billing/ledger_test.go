package billing

import (
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transkript-bot/internal/models"
	"transkript-bot/internal/repository"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *repository.MemoryRepository) {
	t.Helper()
	repo := repository.NewMemory()
	repo.SeedPlan(models.Plan{Name: "free", Price: 0, MinutesPerCycle: 30, IsActive: true})
	repo.SeedPlan(models.Plan{Name: "start", Price: 29000, MinutesPerCycle: 300, IsActive: true})
	repo.SeedPlan(models.Plan{Name: "pro", Price: 79000, MinutesPerCycle: 1200, IsActive: true})
	repo.SeedPackage(models.Package{Name: "1hr", Price: 9000, Minutes: 60})
	repo.SeedPackage(models.Package{Name: "5hr", Price: 39000, Minutes: 300})

	svc := NewService(repo, Config{
		MerchantID:      "merchant123",
		CheckoutBaseURL: "https://checkout.paycom.uz/",
	}, log.New(testWriter{t}, "", 0))
	svc.now = func() time.Time { return testEpoch }
	return svc, repo
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func seedUser(repo *repository.MemoryRepository) models.User {
	return repo.SeedUser(models.User{TelegramID: 100500, Username: "tester", Status: models.UserStatusActive})
}

func TestRequiredMinutes(t *testing.T) {
	cases := []struct {
		seconds int
		want    int
	}{
		{0, 0},
		{-5, 0},
		{1, 1},
		{59, 1},
		{60, 1},
		{61, 2},
		{3000, 50},
		{3001, 51},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, RequiredMinutes(tc.seconds), "seconds=%d", tc.seconds)
	}
}

func TestGetBalanceWithoutSubscription(t *testing.T) {
	svc, repo := newTestService(t)
	user := seedUser(repo)

	balance, err := svc.GetBalance(user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusInactive, balance.Status)
	assert.Zero(t, balance.TotalAvailable)
}

func TestDeductMinutesBonusFirst(t *testing.T) {
	svc, repo := newTestService(t)
	user := seedUser(repo)

	// 60 plan minutes plus 30 bonus.
	plan60 := repo.SeedPlan(models.Plan{Name: "mini", Price: 5000, MinutesPerCycle: 60, IsActive: true})
	require.NoError(t, svc.ActivatePlan(user.ID, plan60.ID))
	require.NoError(t, svc.GrantPromoMinutes(user.ID, 30, "welcome"))

	ok, err := svc.DeductMinutes(user.ID, "job-1", 50*60)
	require.NoError(t, err)
	require.True(t, ok)

	balance, err := svc.GetBalance(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, balance.Bonus, "bonus is consumed before plan quota")
	assert.Equal(t, 20, balance.PlanUsed)
	assert.Equal(t, 40, balance.TotalAvailable)
}

func TestHasEnoughMinutes(t *testing.T) {
	svc, repo := newTestService(t)
	user := seedUser(repo)
	require.NoError(t, svc.ActivatePlan(user.ID, 1)) // free, 30 minutes

	ok, err := svc.HasEnoughMinutes(user.ID, 30*60)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasEnoughMinutes(user.ID, 30*60+1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeductMinutesInsufficient(t *testing.T) {
	svc, repo := newTestService(t)
	user := seedUser(repo)
	require.NoError(t, svc.ActivatePlan(user.ID, 1)) // free, 30 minutes

	ok, err := svc.DeductMinutes(user.ID, "job-big", 31*60)
	require.NoError(t, err)
	assert.False(t, ok)

	balance, err := svc.GetBalance(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, balance.PlanUsed, "failed deduction must not touch the balance")
	assert.Equal(t, 30, balance.TotalAvailable)
}

func TestDeductMinutesZeroDuration(t *testing.T) {
	svc, repo := newTestService(t)
	user := seedUser(repo)

	ok, err := svc.DeductMinutes(user.ID, "job-empty", 0)
	require.NoError(t, err)
	assert.True(t, ok, "a zero-length job is free even without a subscription")
}

func TestDeductMinutesDuplicateSourceRef(t *testing.T) {
	svc, repo := newTestService(t)
	user := seedUser(repo)
	require.NoError(t, svc.ActivatePlan(user.ID, 1))

	ok, err := svc.DeductMinutes(user.ID, "job-1", 10*60)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.DeductMinutes(user.ID, "job-1", 10*60)
	require.NoError(t, err)
	assert.False(t, ok, "same source ref must not charge twice")

	balance, err := svc.GetBalance(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, balance.PlanUsed)
}

func TestRefundMinutesExactlyOnce(t *testing.T) {
	svc, repo := newTestService(t)
	user := seedUser(repo)
	require.NoError(t, svc.ActivatePlan(user.ID, 1))

	ok, err := svc.DeductMinutes(user.ID, "job-1", 17*60)
	require.NoError(t, err)
	require.True(t, ok)

	refunded, err := svc.RefundMinutes(user.ID, "job-1")
	require.NoError(t, err)
	assert.True(t, refunded)

	balance, err := svc.GetBalance(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 17, balance.Bonus, "refund lands in bonus, not back into plan quota")
	assert.Equal(t, 17, balance.PlanUsed)

	refunded, err = svc.RefundMinutes(user.ID, "job-1")
	require.NoError(t, err)
	assert.False(t, refunded, "second refund of the same charge is a no-op")

	balance, err = svc.GetBalance(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 17, balance.Bonus)
}

func TestRefundMinutesUnknownRef(t *testing.T) {
	svc, repo := newTestService(t)
	user := seedUser(repo)
	require.NoError(t, svc.ActivatePlan(user.ID, 1))

	refunded, err := svc.RefundMinutes(user.ID, "never-charged")
	require.NoError(t, err)
	assert.False(t, refunded)
}

func TestCycleRolloverSingleStep(t *testing.T) {
	svc, repo := newTestService(t)
	user := seedUser(repo)
	require.NoError(t, svc.ActivatePlan(user.ID, 1))
	require.NoError(t, svc.GrantPromoMinutes(user.ID, 12, "promo"))

	ok, err := svc.DeductMinutes(user.ID, "job-1", 25*60)
	require.NoError(t, err)
	require.True(t, ok)

	oldEnd := testEpoch.Add(DefaultCyclePeriod)
	// Two and a half periods later; rollover still advances one step only.
	svc.now = func() time.Time { return testEpoch.Add(DefaultCyclePeriod * 5 / 2) }

	balance, err := svc.GetBalance(user.ID)
	require.NoError(t, err)
	assert.Equal(t, oldEnd, balance.CycleStart, "new cycle starts at the old cycle end")
	assert.Equal(t, oldEnd.Add(DefaultCyclePeriod), balance.CycleEnd)
	assert.Equal(t, 0, balance.PlanUsed, "plan quota resets on rollover")
	assert.Equal(t, 0, balance.Bonus, "bonus carries over untouched")
	assert.Equal(t, 30, balance.TotalAvailable)

	txs, err := svc.Transactions(user.ID, 20, 0)
	require.NoError(t, err)
	renewals := 0
	for _, tx := range txs {
		if tx.Type == models.MinuteTxPlanRenewal {
			renewals++
		}
	}
	assert.Equal(t, 1, renewals)
}

func TestAdminAdjustBonusNeverNegative(t *testing.T) {
	svc, repo := newTestService(t)
	user := seedUser(repo)
	require.NoError(t, svc.GrantPromoMinutes(user.ID, 5, "promo"))

	err := svc.AdminAdjustMinutes(user.ID, -10, "ticket-42")
	require.Error(t, err)

	balance, err := svc.GetBalance(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, balance.Bonus)

	require.NoError(t, svc.AdminAdjustMinutes(user.ID, -5, "ticket-42"))
	balance, err = svc.GetBalance(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, balance.Bonus)
}

func TestGrantPromoRequiresPositive(t *testing.T) {
	svc, repo := newTestService(t)
	user := seedUser(repo)
	require.Error(t, svc.GrantPromoMinutes(user.ID, 0, "promo"))
	require.Error(t, svc.GrantPromoMinutes(user.ID, -3, "promo"))
}

func TestEnsureSubscriptionActivatesFreeTier(t *testing.T) {
	svc, repo := newTestService(t)
	user := seedUser(repo)

	sub, err := svc.EnsureSubscription(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, sub.MinutesIncluded)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)

	again, err := svc.EnsureSubscription(user.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, again.ID)
}

func TestMergeAccounts(t *testing.T) {
	svc, repo := newTestService(t)
	src := seedUser(repo)
	dst := repo.SeedUser(models.User{TelegramID: 100501, Username: "other", Status: models.UserStatusActive})

	require.NoError(t, svc.ActivatePlan(src.ID, 1)) // 30 plan minutes
	require.NoError(t, svc.GrantPromoMinutes(src.ID, 10, "promo"))
	ok, err := svc.DeductMinutes(src.ID, "job-src", 10*60)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, svc.ActivatePlan(dst.ID, 2)) // start, 300 minutes

	require.NoError(t, svc.MergeAccounts(src.ID, dst.ID))

	srcBalance, err := svc.GetBalance(src.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusInactive, srcBalance.Status)

	// Source had 30 plan remaining and 0 bonus after the 10-minute debit
	// ate the promo bonus first; all of it folds into the target's bonus.
	dstBalance, err := svc.GetBalance(dst.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, dstBalance.Bonus)
	assert.Equal(t, 330, dstBalance.TotalAvailable)

	// The source's audit rows now belong to the target.
	txs, err := svc.Transactions(dst.ID, 100, 0)
	require.NoError(t, err)
	foundDebit := false
	for _, tx := range txs {
		if tx.Type == models.MinuteTxUsageDebit {
			foundDebit = true
		}
	}
	assert.True(t, foundDebit)
}

func TestMergeAccountsSelf(t *testing.T) {
	svc, repo := newTestService(t)
	user := seedUser(repo)
	require.Error(t, svc.MergeAccounts(user.ID, user.ID))
}
