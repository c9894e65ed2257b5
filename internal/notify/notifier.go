package notify

import "context"

// Notifier delivers user-facing messages after a state transition has
// committed. Implementations must be non-blocking for correctness: a
// delivery failure is logged by the implementation and never propagated
// into the transition that triggered it.
type Notifier interface {
	PaymentCompleted(ctx context.Context, telegramID int64, text string)
	MinutesLow(ctx context.Context, telegramID int64, remaining int)
}

// Nop discards all notifications.
type Nop struct{}

func (Nop) PaymentCompleted(context.Context, int64, string) {}
func (Nop) MinutesLow(context.Context, int64, int)          {}
