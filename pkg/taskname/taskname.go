package taskname

const (
	// Rollover tasks
	RolloverSweep    = "rollover:sweep"
	RolloverReminder = "rollover:reminder"

	// Recovery tasks
	RecoveryScan = "recovery:scan"

	// Export tasks
	ExportSnapshot = "export:snapshot"

	// Ledger tasks
	LedgerReconcile = "ledger:reconcile"
)
