package engine

import "context"

// Store is the durable-substrate seam. The engine assumes that record
// creation at an occupied address fails, that reads and writes of a single
// record are atomic, and that AcquireProcessingLock is an atomic
// check-and-set across every process sharing the store; the processing lock
// is what serializes settlement operations between server instances.
type Store interface {
	// CreateLedger persists a new ledger at addr. Returns ErrLedgerExists
	// if the address already holds one.
	CreateLedger(ctx context.Context, addr Address, l *Ledger) error
	// GetLedger returns the ledger at addr, or ErrLedgerNotFound.
	GetLedger(ctx context.Context, addr Address) (*Ledger, error)
	// AcquireProcessingLock sets the processing lock at addr if it is
	// clear and returns the ledger as of acquisition. Returns
	// ErrOperationInProgress when the lock is already held and
	// ErrLedgerNotFound when no ledger exists. The check-and-set must be
	// atomic; two concurrent callers may not both succeed.
	AcquireProcessingLock(ctx context.Context, addr Address) (*Ledger, error)
	// PutLedger overwrites the ledger at addr.
	PutLedger(ctx context.Context, addr Address, l *Ledger) error
	// CreateEntry persists a new write-once entry at addr. Returns
	// ErrDuplicateEntry if the address is already occupied.
	CreateEntry(ctx context.Context, addr Address, e *Entry) error
	// GetEntry returns the entry at addr, or ErrEntryNotFound.
	GetEntry(ctx context.Context, addr Address) (*Entry, error)
}
