package rollover

import (
	"time"

	"advocacy-engine/services/ledger"
)

// TierFor maps a compliance streak onto the reward staircase. The mapping
// depends on nothing but the streak, so a missed cycle resetting the streak
// to 0 is the only way a tier ever regresses.
func TierFor(streak int64) string {
	switch {
	case streak >= 12:
		return ledger.TierLifetime
	case streak >= 9:
		return ledger.TierCommissionBump
	case streak >= 6:
		return ledger.TierRecurring6Mo
	case streak >= 3:
		return ledger.TierRecurring3Mo
	default:
		return ledger.TierNone
	}
}

// CycleIDFor names the monthly accounting period a moment belongs to.
func CycleIDFor(t time.Time) string {
	return t.Format("2006-01")
}

// WindowFor bounds the cycle containing t, [first of month, first of next).
func WindowFor(t time.Time) ledger.CycleWindow {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return ledger.CycleWindow{From: start, To: start.AddDate(0, 1, 0)}
}

func isLastDayOfMonth(t time.Time) bool {
	return t.AddDate(0, 0, 1).Day() == 1
}
