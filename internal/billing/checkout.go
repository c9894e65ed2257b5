package billing

import (
	"encoding/base64"
	"fmt"

	"transkript-bot/internal/models"
)

// CheckoutURL builds the provider redirect link. The parameter string and
// its base64 form are provider-mandated and bit-exact: the account field
// name must match the order kind (ac.plan_id vs ac.package_id) and the
// amount is in tiyin.
func (s *Service) CheckoutURL(p *models.Payment, targetName string) string {
	field := "plan_id"
	if p.Kind == models.PaymentKindPackage {
		field = "package_id"
	}
	params := fmt.Sprintf("m=%s;ac.user_id=%d;ac.%s=%s;a=%d",
		s.cfg.MerchantID, p.UserID, field, targetName, p.Amount)
	return s.cfg.CheckoutBaseURL + base64.StdEncoding.EncodeToString([]byte(params))
}
