package engine

import (
	solanago "github.com/gagliardetto/solana-go"
)

// Ledger is the durable state record for a bounty pool. There is exactly one
// per pool, at a deterministic address, and its balance and counters are
// mutated only by the settlement operations in this package.
type Ledger struct {
	// Authority may perform administrative actions (emergency recovery).
	Authority solanago.PublicKey `json:"authority"`
	// JudgeAuthority is the off-chain decision service identity whose
	// signature authorizes payouts.
	JudgeAuthority solanago.PublicKey `json:"judge_authority"`
	// Balance is the pooled value in smallest units. Never negative.
	Balance uint64 `json:"balance"`
	// FloorAmount is the amount the pool is seeded with and reset to after
	// a winning payout.
	FloorAmount uint64 `json:"floor_amount"`
	// EntryFee is the minimum accepted payment per entry. Zero disables the
	// minimum.
	EntryFee uint64 `json:"entry_fee"`
	// EntryCount counts accepted entries in the current round. Monotonic
	// within a round; reset to zero when a decision or escape plan settles
	// the pool.
	EntryCount uint64 `json:"entry_count"`
	// LastParticipant is the owner of the most recent accepted entry. The
	// escape plan pays its 20% share here.
	LastParticipant solanago.PublicKey `json:"last_participant"`
	// LastActivityTime is the unix timestamp of the most recent accepted
	// entry. Drives the escape-plan timeout.
	LastActivityTime int64 `json:"last_activity_time"`
	// ProcessingLock is true only while a settlement operation is inside
	// its fund-moving critical section.
	ProcessingLock bool `json:"processing_lock"`
	// LastRecoveryTime is the unix timestamp of the most recent emergency
	// recovery, zero if never.
	LastRecoveryTime int64 `json:"last_recovery_time"`
}

// clone returns a copy the caller can mutate freely. Operations work on a
// copy and persist it at their commit point, so an aborted operation leaves
// no partial effects.
func (l *Ledger) clone() *Ledger {
	c := *l
	return &c
}

// Entry is the write-once record proving a specific payment was accepted.
// Keyed by (ledger, owner, nonce); never mutated after creation. Retired
// entries are kept as an audit trail.
type Entry struct {
	Owner solanago.PublicKey `json:"owner"`
	// AmountPaid is the gross payment in smallest units.
	AmountPaid uint64 `json:"amount_paid"`
	// PoolShare is the 60% slice that went into the ledger balance.
	PoolShare uint64 `json:"pool_share"`
	// SidePocketShare is the 40% slice routed to the side-pocket wallet.
	SidePocketShare uint64 `json:"side_pocket_share"`
	// Nonce is the caller-supplied uniqueness token.
	Nonce     uint64 `json:"nonce"`
	CreatedAt int64  `json:"created_at"`
}
