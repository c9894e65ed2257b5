package billing

import (
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transkript-bot/internal/models"
)

func TestCheckoutURLPlan(t *testing.T) {
	svc, repo := newTestService(t)
	user := seedUser(repo)

	payment, err := svc.CreatePayment(user.ID, models.PaymentKindPlan, 2)
	require.NoError(t, err)

	url := svc.CheckoutURL(payment, "start")
	require.True(t, strings.HasPrefix(url, "https://checkout.paycom.uz/"))

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "https://checkout.paycom.uz/"))
	require.NoError(t, err)
	want := fmt.Sprintf("m=merchant123;ac.user_id=%d;ac.plan_id=start;a=2900000", user.ID)
	assert.Equal(t, want, string(decoded))
}

func TestCheckoutURLPackage(t *testing.T) {
	svc, repo := newTestService(t)
	user := seedUser(repo)

	payment, err := svc.CreatePayment(user.ID, models.PaymentKindPackage, 2)
	require.NoError(t, err)

	url := svc.CheckoutURL(payment, "5hr")
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "https://checkout.paycom.uz/"))
	require.NoError(t, err)
	want := fmt.Sprintf("m=merchant123;ac.user_id=%d;ac.package_id=5hr;a=3900000", user.ID)
	assert.Equal(t, want, string(decoded))
}
