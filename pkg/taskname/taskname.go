package taskname

const (
	// Funding tasks
	ContractFunded   = "funding:contract:funded"
	EscrowReleased   = "funding:escrow:released"
	EscrowRefunded   = "funding:escrow:refunded"
	FundingReconcile = "funding:reconcile:pending"

	// Withdrawal tasks
	WithdrawalRequested = "withdrawal:requested"
	WithdrawalCompleted = "withdrawal:completed"
	WithdrawalRejected  = "withdrawal:rejected"
)
