package engine

import (
	"context"
	"log/slog"

	solanago "github.com/gagliardetto/solana-go"
)

// Events are emitted after an operation commits. They are the audit trail
// for every fund movement; the emergency-recovery path in particular exists
// because it is dangerous, so it carries the most detail.

type Event interface {
	// EventName is a stable identifier for the event kind.
	EventName() string
}

type LedgerInitialized struct {
	Ledger         Address            `json:"ledger"`
	Authority      solanago.PublicKey `json:"authority"`
	JudgeAuthority solanago.PublicKey `json:"judge_authority"`
	FloorAmount    uint64             `json:"floor_amount"`
	EntryFee       uint64             `json:"entry_fee"`
}

func (LedgerInitialized) EventName() string { return "ledger_initialized" }

type EntryProcessed struct {
	Ledger          Address            `json:"ledger"`
	Owner           solanago.PublicKey `json:"owner"`
	Amount          uint64             `json:"amount"`
	Nonce           uint64             `json:"nonce"`
	PoolShare       uint64             `json:"pool_share"`
	SidePocketShare uint64             `json:"side_pocket_share"`
	NewBalance      uint64             `json:"new_balance"`
	EntryCount      uint64             `json:"entry_count"`
}

func (EntryProcessed) EventName() string { return "entry_processed" }

// DecisionLogged is emitted for every authorized decision, wins and
// declines alike, so there is a record of "judge evaluated and declined".
type DecisionLogged struct {
	Ledger        Address  `json:"ledger"`
	ParticipantID uint64   `json:"participant_id"`
	SessionID     string   `json:"session_id"`
	IsWin         bool     `json:"is_win"`
	Timestamp     int64    `json:"timestamp"`
	ContentHash   [32]byte `json:"content_hash"`
}

func (DecisionLogged) EventName() string { return "decision_logged" }

type WinnerPaid struct {
	Ledger        Address            `json:"ledger"`
	Winner        solanago.PublicKey `json:"winner"`
	Amount        uint64             `json:"amount"`
	ParticipantID uint64             `json:"participant_id"`
	SessionID     string             `json:"session_id"`
}

func (WinnerPaid) EventName() string { return "winner_paid" }

type EscapePlanExecuted struct {
	Ledger               Address            `json:"ledger"`
	TotalPool            uint64             `json:"total_pool"`
	LastParticipant      solanago.PublicKey `json:"last_participant"`
	LastParticipantShare uint64             `json:"last_participant_share"`
	RetainedShare        uint64             `json:"retained_share"`
	Entries              uint64             `json:"entries"`
}

func (EscapePlanExecuted) EventName() string { return "escape_plan_executed" }

type EmergencyRecovered struct {
	Ledger             Address            `json:"ledger"`
	Authority          solanago.PublicKey `json:"authority"`
	Amount             uint64             `json:"amount"`
	RemainingBalance   uint64             `json:"remaining_balance"`
	MaxRecoveryAllowed uint64             `json:"max_recovery_allowed"`
	Timestamp          int64              `json:"timestamp"`
}

func (EmergencyRecovered) EventName() string { return "emergency_recovered" }

// EventSink receives committed events. Implementations must not block the
// settlement path; heavy delivery belongs in the sink, not the engine.
type EventSink interface {
	Emit(ctx context.Context, ev Event)
}

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(ctx context.Context, ev Event) {
	s.Logger.InfoContext(ctx, "settlement event", "event", ev.EventName(), "payload", ev)
}

// MultiSink fans an event out to several sinks.
type MultiSink []EventSink

func (m MultiSink) Emit(ctx context.Context, ev Event) {
	for _, s := range m {
		s.Emit(ctx, ev)
	}
}

type nopSink struct{}

func (nopSink) Emit(context.Context, Event) {}
