package model

// DepositRequest is created only after validation against the on-chain
// Bitcoin transaction (design §4.1 step 1); once written it is immutable.
type DepositRequest struct {
	Outpoint      Outpoint
	Amount        uint64
	DepositScript []byte
	ReclaimScript []byte
	Recipient     []byte
	MaxFee        uint64
	LockTime      uint32
}

// CandidateDeposit is an unvalidated request fetched from the registry
// (Emily) before it has been checked against the chain.
type CandidateDeposit struct {
	Outpoint      Outpoint
	DepositScript []byte
	ReclaimScript []byte
}

// WithdrawalRequest is immutable once written (design §3).
type WithdrawalRequest struct {
	RequestID     uint64
	StacksBlockID StacksBlockID
	Recipient     []byte
	Amount        uint64
	MaxFee        uint64
}

// VoteBitmap records, for a pending request, which signers in the set
// voted to accept it.
type VoteBitmap []bool

// ApprovedCount returns the number of true bits.
func (v VoteBitmap) ApprovedCount() int {
	n := 0
	for _, ok := range v {
		if ok {
			n++
		}
	}
	return n
}
