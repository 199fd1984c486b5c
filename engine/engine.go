package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
)

const (
	// EntryPoolPct is the pool side of the 60/40 entry payment split; the
	// side pocket absorbs the rounding remainder.
	EntryPoolPct = 60
	// EscapeLastParticipantPct is the last-participant side of the 20/80
	// escape-plan split; the retained pool absorbs the remainder.
	EscapeLastParticipantPct = 20
	// RecoveryCapPct caps a single emergency recovery at 10% of the pool.
	RecoveryCapPct = 10

	// DefaultEscapeTimeout is how long the pool must sit idle before the
	// escape plan becomes executable.
	DefaultEscapeTimeout = 24 * time.Hour
	// DefaultRecoveryCooldown is the minimum spacing between emergency
	// recoveries.
	DefaultRecoveryCooldown = 24 * time.Hour
)

// FundsMover is the native value-transfer primitive of the substrate. Every
// operation that moves balance goes through it; tests swap in a mock.
type FundsMover interface {
	Transfer(ctx context.Context, from, to solanago.PublicKey, amount uint64) error
}

// Config identifies the pool this engine settles and the fixed wallets funds
// route through.
type Config struct {
	// LedgerSeed names the pool; the ledger address is derived from it.
	LedgerSeed string
	// PoolWallet is the custody wallet holding the pooled balance.
	PoolWallet solanago.PublicKey
	// SidePocketWallet receives the 40% side of every entry payment.
	SidePocketWallet solanago.PublicKey
	// EscapeTimeout and RecoveryCooldown default to 24h when zero.
	EscapeTimeout    time.Duration
	RecoveryCooldown time.Duration
}

// Engine executes the five settlement operations against a single ledger.
// Each operation is a synchronous total function from (current state, input)
// to (new state, emitted event) or (unchanged state, error): state mutations
// are staged on a copy of the ledger and persisted only at the commit point,
// so a failed operation has zero side effects.
//
// The substrate this engine targets does not serialize transactions per
// account on its own, so the engine provides the mutual exclusion itself:
// the persisted processing lock is claimed with an atomic check-and-set at
// the store, which makes it the cross-caller guard even when several server
// instances share one database. A second operation arriving while one is in
// flight fails fast with ErrOperationInProgress rather than queueing.
type Engine struct {
	cfg      Config
	store    Store
	funds    FundsMover
	verifier SignatureVerifier
	clock    clockwork.Clock
	logger   *slog.Logger
	events   EventSink
	addr     Address
}

// Option configures an Engine.
type Option func(*Engine)

func WithVerifier(v SignatureVerifier) Option {
	return func(e *Engine) { e.verifier = v }
}

func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithEventSink(s EventSink) Option {
	return func(e *Engine) { e.events = s }
}

// New creates an engine for the pool named by cfg.LedgerSeed.
func New(cfg Config, store Store, funds FundsMover, opts ...Option) *Engine {
	if cfg.EscapeTimeout == 0 {
		cfg.EscapeTimeout = DefaultEscapeTimeout
	}
	if cfg.RecoveryCooldown == 0 {
		cfg.RecoveryCooldown = DefaultRecoveryCooldown
	}
	e := &Engine{
		cfg:      cfg,
		store:    store,
		funds:    funds,
		verifier: Ed25519Verifier{},
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
		events:   nopSink{},
		addr:     LedgerAddress(cfg.LedgerSeed),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Address returns the deterministic address of this engine's ledger.
func (e *Engine) Address() Address {
	return e.addr
}

// Ledger returns a snapshot of the current ledger state.
func (e *Engine) Ledger(ctx context.Context) (*Ledger, error) {
	return e.store.GetLedger(ctx, e.addr)
}

// Entry returns the entry record for (owner, nonce), if it exists.
func (e *Engine) Entry(ctx context.Context, owner solanago.PublicKey, nonce uint64) (*Entry, error) {
	return e.store.GetEntry(ctx, EntryAddress(e.addr, owner, nonce))
}

// beginProcessing claims the processing lock through the store's atomic
// check-and-set and returns a working copy of the ledger the operation may
// mutate freely. A held lock surfaces as ErrOperationInProgress.
func (e *Engine) beginProcessing(ctx context.Context) (*Ledger, error) {
	ledger, err := e.store.AcquireProcessingLock(ctx, e.addr)
	if err != nil {
		return nil, err
	}
	return ledger.clone(), nil
}

// endProcessing releases the processing lock on every exit path. On success
// it persists the operation's mutated copy in the same write; on failure the
// copy is discarded and only the lock is cleared, leaving state untouched.
// The lock is held here, so no other writer can touch the row in between.
func (e *Engine) endProcessing(ctx context.Context, committed *Ledger, opErr error) error {
	if opErr != nil || committed == nil {
		current, err := e.store.GetLedger(ctx, e.addr)
		if err != nil {
			return fmt.Errorf("failed to reload ledger while releasing lock: %w", err)
		}
		current.ProcessingLock = false
		return e.store.PutLedger(ctx, e.addr, current)
	}
	committed.ProcessingLock = false
	return e.store.PutLedger(ctx, e.addr, committed)
}

// InitializeParams configures a new ledger.
type InitializeParams struct {
	Authority      solanago.PublicKey
	JudgeAuthority solanago.PublicKey
	FloorAmount    uint64
	EntryFee       uint64
}

// Initialize creates the ledger at its deterministic address and seeds the
// pool with FloorAmount, funded by a transfer from the initializing
// authority. Fails if the address already holds a ledger.
func (e *Engine) Initialize(ctx context.Context, p InitializeParams) (*Ledger, error) {
	if p.FloorAmount == 0 {
		return nil, ErrInvalidInput
	}
	if p.Authority.IsZero() || p.JudgeAuthority.IsZero() {
		return nil, ErrInvalidIdentity
	}
	if _, err := e.store.GetLedger(ctx, e.addr); err == nil {
		return nil, ErrLedgerExists
	}

	// Seed the pool before the ledger exists; if the transfer fails there is
	// nothing to roll back.
	if err := e.funds.Transfer(ctx, p.Authority, e.cfg.PoolWallet, p.FloorAmount); err != nil {
		return nil, fmt.Errorf("failed to seed pool floor: %w", err)
	}

	now := e.clock.Now().Unix()
	ledger := &Ledger{
		Authority:        p.Authority,
		JudgeAuthority:   p.JudgeAuthority,
		Balance:          p.FloorAmount,
		FloorAmount:      p.FloorAmount,
		EntryFee:         p.EntryFee,
		LastActivityTime: now,
	}
	if err := e.store.CreateLedger(ctx, e.addr, ledger); err != nil {
		return nil, err
	}
	e.events.Emit(ctx, LedgerInitialized{
		Ledger:         e.addr,
		Authority:      p.Authority,
		JudgeAuthority: p.JudgeAuthority,
		FloorAmount:    p.FloorAmount,
		EntryFee:       p.EntryFee,
	})
	return ledger.clone(), nil
}

// EntryParams describes one paid attempt.
type EntryParams struct {
	Owner  solanago.PublicKey
	Amount uint64
	Nonce  uint64
	// FundsReceived marks a payment already verified to have landed in the
	// pool wallet, the flow where the participant pays an invoice directly
	// and the caller confirms it on chain first. The engine then moves only
	// the side-pocket share, out of the pool wallet, instead of pulling
	// both shares from the owner.
	FundsReceived bool
}

// ProcessEntryPayment accepts a payment, splits it 60/40 between the pool
// and the side pocket, and records a write-once entry at the deterministic
// (ledger, owner, nonce) address. Reusing a nonce fails with
// ErrDuplicateEntry, which is the replay rejection.
func (e *Engine) ProcessEntryPayment(ctx context.Context, p EntryParams) (entry *Entry, err error) {
	if p.Amount == 0 || p.Nonce == 0 {
		return nil, ErrInvalidInput
	}
	if p.Owner.IsZero() {
		return nil, ErrInvalidIdentity
	}

	ledger, err := e.beginProcessing(ctx)
	if err != nil {
		return nil, err
	}
	var committed *Ledger
	defer func() {
		if relErr := e.endProcessing(ctx, committed, err); relErr != nil && err == nil {
			err = relErr
		}
	}()

	if ledger.EntryFee > 0 && p.Amount < ledger.EntryFee {
		return nil, ErrInvalidInput
	}

	entryAddr := EntryAddress(e.addr, p.Owner, p.Nonce)
	if _, getErr := e.store.GetEntry(ctx, entryAddr); getErr == nil {
		return nil, ErrDuplicateEntry
	}

	poolShare, sideShare, err := Split(p.Amount, EntryPoolPct)
	if err != nil {
		return nil, err
	}
	// The split guarantees this by construction; if it ever fails, abort
	// before any funds move.
	if poolShare+sideShare != p.Amount {
		return nil, ErrSplitMismatch
	}
	newBalance, err := CheckedAdd(ledger.Balance, poolShare)
	if err != nil {
		return nil, err
	}
	newCount, err := CheckedAdd(ledger.EntryCount, 1)
	if err != nil {
		return nil, err
	}

	if p.FundsReceived {
		// The full payment is already in the pool wallet; forward the side
		// pocket's slice and keep the rest.
		if err = e.funds.Transfer(ctx, e.cfg.PoolWallet, e.cfg.SidePocketWallet, sideShare); err != nil {
			return nil, fmt.Errorf("failed to forward side pocket share: %w", err)
		}
	} else {
		if err = e.funds.Transfer(ctx, p.Owner, e.cfg.PoolWallet, poolShare); err != nil {
			return nil, fmt.Errorf("failed to transfer pool share: %w", err)
		}
		if err = e.funds.Transfer(ctx, p.Owner, e.cfg.SidePocketWallet, sideShare); err != nil {
			return nil, fmt.Errorf("failed to transfer side pocket share: %w", err)
		}
	}

	now := e.clock.Now().Unix()
	entry = &Entry{
		Owner:           p.Owner,
		AmountPaid:      p.Amount,
		PoolShare:       poolShare,
		SidePocketShare: sideShare,
		Nonce:           p.Nonce,
		CreatedAt:       now,
	}
	if err = e.store.CreateEntry(ctx, entryAddr, entry); err != nil {
		return nil, err
	}

	ledger.Balance = newBalance
	ledger.EntryCount = newCount
	ledger.LastParticipant = p.Owner
	ledger.LastActivityTime = now
	committed = ledger

	e.events.Emit(ctx, EntryProcessed{
		Ledger:          e.addr,
		Owner:           p.Owner,
		Amount:          p.Amount,
		Nonce:           p.Nonce,
		PoolShare:       poolShare,
		SidePocketShare: sideShare,
		NewBalance:      newBalance,
		EntryCount:      newCount,
	})
	return entry, nil
}

// DecisionResult reports what an authorized decision did.
type DecisionResult struct {
	IsWin  bool               `json:"is_win"`
	Winner solanago.PublicKey `json:"winner"`
	// Payout is the amount transferred to the winner, zero for declines.
	Payout uint64 `json:"payout"`
}

// ProcessDecision verifies a judge decision and, if it declares a win, pays
// the entire pool balance to the winner's wallet and starts a fresh round at
// the floor. An authorized decision with is_win=false moves no funds but is
// still logged. The processing lock is held for the duration and released on
// every exit path.
func (e *Engine) ProcessDecision(ctx context.Context, d *Decision, winnerWallet solanago.PublicKey) (res *DecisionResult, err error) {
	ledger, err := e.beginProcessing(ctx)
	if err != nil {
		return nil, err
	}
	var committed *Ledger
	defer func() {
		if relErr := e.endProcessing(ctx, committed, err); relErr != nil && err == nil {
			err = relErr
		}
	}()

	if err = AuthorizeDecision(d, ledger.JudgeAuthority, e.clock.Now(), e.verifier); err != nil {
		return nil, err
	}

	res = &DecisionResult{IsWin: d.IsWin}
	if d.IsWin {
		if winnerWallet.IsZero() {
			return nil, ErrInvalidIdentity
		}
		payout := ledger.Balance
		if payout == 0 {
			return nil, ErrInsufficientFunds
		}
		if err = e.funds.Transfer(ctx, e.cfg.PoolWallet, winnerWallet, payout); err != nil {
			return nil, fmt.Errorf("failed to pay out winner: %w", err)
		}
		ledger.Balance = ledger.FloorAmount
		ledger.EntryCount = 0
		res.Winner = winnerWallet
		res.Payout = payout
		e.events.Emit(ctx, WinnerPaid{
			Ledger:        e.addr,
			Winner:        winnerWallet,
			Amount:        payout,
			ParticipantID: d.ParticipantID,
			SessionID:     d.SessionID,
		})
	}
	committed = ledger

	e.events.Emit(ctx, DecisionLogged{
		Ledger:        e.addr,
		ParticipantID: d.ParticipantID,
		SessionID:     d.SessionID,
		IsWin:         d.IsWin,
		Timestamp:     d.Timestamp,
		ContentHash:   d.ContentHash,
	})
	return res, nil
}

// EscapeResult reports a completed escape-plan distribution.
type EscapeResult struct {
	LastParticipant      solanago.PublicKey `json:"last_participant"`
	LastParticipantShare uint64             `json:"last_participant_share"`
	RetainedShare        uint64             `json:"retained_share"`
}

// ExecuteEscapePlan runs the timeout fallback: once the pool has sat idle
// past the escape timeout with at least one entry, 20% of the balance goes
// to the most recent entrant and 80% is retained as the next round's pool.
// There is no background scheduler; callers invoke this opportunistically
// and the readiness check is the precondition.
func (e *Engine) ExecuteEscapePlan(ctx context.Context) (res *EscapeResult, err error) {
	ledger, err := e.beginProcessing(ctx)
	if err != nil {
		return nil, err
	}
	var committed *Ledger
	defer func() {
		if relErr := e.endProcessing(ctx, committed, err); relErr != nil && err == nil {
			err = relErr
		}
	}()

	if ledger.EntryCount == 0 {
		return nil, ErrNoParticipants
	}
	now := e.clock.Now().Unix()
	if now-ledger.LastActivityTime < int64(e.cfg.EscapeTimeout/time.Second) {
		return nil, ErrEscapePlanNotReady
	}
	if ledger.LastParticipant.IsZero() {
		return nil, ErrInvalidIdentity
	}

	total := ledger.Balance
	lastShare, retained, err := Split(total, EscapeLastParticipantPct)
	if err != nil {
		return nil, err
	}
	if lastShare > 0 {
		if err = e.funds.Transfer(ctx, e.cfg.PoolWallet, ledger.LastParticipant, lastShare); err != nil {
			return nil, fmt.Errorf("failed to pay last participant share: %w", err)
		}
	}

	entries := ledger.EntryCount
	ledger.Balance = retained
	ledger.EntryCount = 0
	ledger.LastActivityTime = now
	committed = ledger

	e.events.Emit(ctx, EscapePlanExecuted{
		Ledger:               e.addr,
		TotalPool:            total,
		LastParticipant:      ledger.LastParticipant,
		LastParticipantShare: lastShare,
		RetainedShare:        retained,
		Entries:              entries,
	})
	return &EscapeResult{
		LastParticipant:      ledger.LastParticipant,
		LastParticipantShare: lastShare,
		RetainedShare:        retained,
	}, nil
}

// RecoveryResult reports a completed emergency recovery.
type RecoveryResult struct {
	Amount             uint64 `json:"amount"`
	RemainingBalance   uint64 `json:"remaining_balance"`
	MaxRecoveryAllowed uint64 `json:"max_recovery_allowed"`
}

// EmergencyRecovery lets the ledger authority reclaim a bounded slice of the
// pool: at most 10% of the balance, no more often than the cooldown allows.
// This is the escape valve for operational incidents, and because it is the
// dangerous path it emits the most detailed event.
func (e *Engine) EmergencyRecovery(ctx context.Context, caller solanago.PublicKey, amount uint64) (res *RecoveryResult, err error) {
	if amount == 0 {
		return nil, ErrInvalidInput
	}
	if caller.IsZero() {
		return nil, ErrInvalidIdentity
	}

	ledger, err := e.beginProcessing(ctx)
	if err != nil {
		return nil, err
	}
	var committed *Ledger
	defer func() {
		if relErr := e.endProcessing(ctx, committed, err); relErr != nil && err == nil {
			err = relErr
		}
	}()

	if caller != ledger.Authority {
		return nil, ErrUnauthorized
	}
	now := e.clock.Now().Unix()
	if ledger.LastRecoveryTime > 0 && now-ledger.LastRecoveryTime < int64(e.cfg.RecoveryCooldown/time.Second) {
		return nil, ErrRecoveryCooldownActive
	}
	maxRecovery, _, err := Split(ledger.Balance, RecoveryCapPct)
	if err != nil {
		return nil, err
	}
	if amount > maxRecovery {
		return nil, ErrRecoveryExceedsLimit
	}
	remaining, err := CheckedSub(ledger.Balance, amount)
	if err != nil {
		return nil, ErrInsufficientFunds
	}

	if err = e.funds.Transfer(ctx, e.cfg.PoolWallet, ledger.Authority, amount); err != nil {
		return nil, fmt.Errorf("failed to transfer recovery amount: %w", err)
	}

	ledger.Balance = remaining
	ledger.LastRecoveryTime = now
	committed = ledger

	e.logger.WarnContext(ctx, "emergency recovery executed",
		"authority", ledger.Authority.String(),
		"amount", amount,
		"remaining_balance", remaining,
		"max_recovery_allowed", maxRecovery,
		"timestamp", now,
	)
	e.events.Emit(ctx, EmergencyRecovered{
		Ledger:             e.addr,
		Authority:          ledger.Authority,
		Amount:             amount,
		RemainingBalance:   remaining,
		MaxRecoveryAllowed: maxRecovery,
		Timestamp:          now,
	})
	return &RecoveryResult{
		Amount:             amount,
		RemainingBalance:   remaining,
		MaxRecoveryAllowed: maxRecovery,
	}, nil
}
