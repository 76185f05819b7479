package model

// SignerBtcState is the signer federation's Bitcoin-side state as seen at
// the start of a sweep round (design §4.4 step 4).
type SignerBtcState struct {
	FeeRate            float64
	CurrentUTXO        SignerUtxo
	XOnlyAggregateKey  [32]byte
	LastFees           *Fees
	MagicBytes         [2]byte
}

// AcceptedDeposit pairs a validated deposit request with the vote bitmap
// recorded for it (design §4.4 step 3).
type AcceptedDeposit struct {
	Request DepositRequest
	Votes   VoteBitmap
}

// AcceptedWithdrawal pairs a withdrawal request with its vote bitmap.
type AcceptedWithdrawal struct {
	Request WithdrawalRequest
	Votes   VoteBitmap
}

// SweepRequestSet is the transient bundle that drives one coordination
// round (design §3): the set of requests eligible for this tick plus the
// signer's current Bitcoin-side state.
type SweepRequestSet struct {
	Deposits     []AcceptedDeposit
	Withdrawals  []AcceptedWithdrawal
	SignerState  SignerBtcState
}

// IsEmpty reports whether there is no work for this round (design §4.4
// step 5).
func (s SweepRequestSet) IsEmpty() bool {
	return len(s.Deposits) == 0 && len(s.Withdrawals) == 0
}
