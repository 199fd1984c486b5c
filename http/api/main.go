// Package api holds the request and response shapes of the settlement HTTP
// surface. Clients import this package instead of redeclaring the types.
package api

type DefaultJSONResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// CreateLedgerRequest initializes the pool ledger. Wallets are base58.
type CreateLedgerRequest struct {
	Authority      string  `json:"authority"`
	JudgeAuthority string  `json:"judge_authority"`
	FloorAmount    uint64  `json:"floor_amount"`
	EntryFee       *uint64 `json:"entry_fee,omitempty"`
}

// LedgerResponse is the public view of the ledger account.
type LedgerResponse struct {
	Address          string `json:"address"`
	Authority        string `json:"authority"`
	JudgeAuthority   string `json:"judge_authority"`
	Balance          uint64 `json:"balance"`
	FloorAmount      uint64 `json:"floor_amount"`
	EntryFee         uint64 `json:"entry_fee"`
	EntryCount       uint64 `json:"entry_count"`
	LastParticipant  string `json:"last_participant,omitempty"`
	LastActivityTime int64  `json:"last_activity_time"`
	ProcessingLock   bool   `json:"processing_lock"`
	LastRecoveryTime int64  `json:"last_recovery_time,omitempty"`
}

// EntryRequest submits a paid attempt. Owner is base58; the nonce makes the
// payment write-once, reusing one is rejected.
type EntryRequest struct {
	Owner  string `json:"owner"`
	Amount uint64 `json:"amount"`
	Nonce  uint64 `json:"nonce"`
}

type EntryResponse struct {
	Owner           string `json:"owner"`
	AmountPaid      uint64 `json:"amount_paid"`
	PoolShare       uint64 `json:"pool_share"`
	SidePocketShare uint64 `json:"side_pocket_share"`
	Nonce           uint64 `json:"nonce"`
	CreatedAt       int64  `json:"created_at"`
}

// DecisionRequest carries a judge decision message. ContentHash is hex,
// Signature is base58, WinnerWallet is base58 and only consulted on wins.
type DecisionRequest struct {
	ParticipantMessage string `json:"participant_message"`
	JudgeResponse      string `json:"judge_response"`
	ContentHash        string `json:"content_hash"`
	Signature          string `json:"signature"`
	IsWin              bool   `json:"is_win"`
	ParticipantID      uint64 `json:"participant_id"`
	SessionID          string `json:"session_id"`
	Timestamp          int64  `json:"timestamp"`
	WinnerWallet       string `json:"winner_wallet,omitempty"`
}

type DecisionResponse struct {
	IsWin  bool   `json:"is_win"`
	Winner string `json:"winner,omitempty"`
	Payout uint64 `json:"payout"`
}

type EscapePlanResponse struct {
	LastParticipant      string `json:"last_participant"`
	LastParticipantShare uint64 `json:"last_participant_share"`
	RetainedShare        uint64 `json:"retained_share"`
}

// RecoveryRequest reclaims a bounded amount of the pool. Caller must be the
// ledger authority; the admin token does not bypass that check.
type RecoveryRequest struct {
	Caller string `json:"caller"`
	Amount uint64 `json:"amount"`
}

type RecoveryResponse struct {
	Amount             uint64 `json:"amount"`
	RemainingBalance   uint64 `json:"remaining_balance"`
	MaxRecoveryAllowed uint64 `json:"max_recovery_allowed"`
}

// InstructionRequest submits a raw wire-encoded instruction: a one-byte
// discriminator followed by Borsh-encoded arguments, base64 in transit.
type InstructionRequest struct {
	Data string `json:"data"`
}

type InstructionResponse struct {
	Kind   string `json:"kind"`
	Result any    `json:"result,omitempty"`
}
