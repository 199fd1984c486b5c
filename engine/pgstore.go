package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the Postgres-backed Store. Record creation relies on primary
// key conflicts for the "creation at an occupied address fails" semantics,
// which is what makes nonce replay rejection durable across restarts.
type PGStore struct {
	pool *pgxpool.Pool
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS ledgers (
	address            BYTEA PRIMARY KEY,
	authority          BYTEA NOT NULL,
	judge_authority    BYTEA NOT NULL,
	balance            BIGINT NOT NULL CHECK (balance >= 0),
	floor_amount       BIGINT NOT NULL,
	entry_fee          BIGINT NOT NULL,
	entry_count        BIGINT NOT NULL,
	last_participant   BYTEA NOT NULL,
	last_activity_time BIGINT NOT NULL,
	processing_lock    BOOLEAN NOT NULL,
	last_recovery_time BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	address           BYTEA PRIMARY KEY,
	owner             BYTEA NOT NULL,
	amount_paid       BIGINT NOT NULL,
	pool_share        BIGINT NOT NULL,
	side_pocket_share BIGINT NOT NULL,
	nonce             BIGINT NOT NULL,
	created_at        BIGINT NOT NULL
);`

// NewPGStore connects to Postgres and ensures the schema exists.
func NewPGStore(ctx context.Context, connString string) (*PGStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) Close() {
	s.pool.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *PGStore) CreateLedger(ctx context.Context, addr Address, l *Ledger) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ledgers (address, authority, judge_authority, balance, floor_amount, entry_fee,
			entry_count, last_participant, last_activity_time, processing_lock, last_recovery_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		addr.Bytes(), l.Authority.Bytes(), l.JudgeAuthority.Bytes(), int64(l.Balance), int64(l.FloorAmount),
		int64(l.EntryFee), int64(l.EntryCount), l.LastParticipant.Bytes(), l.LastActivityTime,
		l.ProcessingLock, l.LastRecoveryTime)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrLedgerExists
		}
		return fmt.Errorf("failed to create ledger: %w", err)
	}
	return nil
}

func (s *PGStore) GetLedger(ctx context.Context, addr Address) (*Ledger, error) {
	var l Ledger
	var authority, judge, lastParticipant []byte
	var balance, floor, fee, count int64
	err := s.pool.QueryRow(ctx,
		`SELECT authority, judge_authority, balance, floor_amount, entry_fee, entry_count,
			last_participant, last_activity_time, processing_lock, last_recovery_time
		 FROM ledgers WHERE address = $1`, addr.Bytes()).
		Scan(&authority, &judge, &balance, &floor, &fee, &count,
			&lastParticipant, &l.LastActivityTime, &l.ProcessingLock, &l.LastRecoveryTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLedgerNotFound
		}
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}
	copy(l.Authority[:], authority)
	copy(l.JudgeAuthority[:], judge)
	copy(l.LastParticipant[:], lastParticipant)
	l.Balance = uint64(balance)
	l.FloorAmount = uint64(floor)
	l.EntryFee = uint64(fee)
	l.EntryCount = uint64(count)
	return &l, nil
}

// AcquireProcessingLock claims the lock with a single conditional UPDATE,
// so two server instances sharing the database cannot both enter an
// operation: the row matches only while processing_lock is clear and the
// write is atomic at the database.
func (s *PGStore) AcquireProcessingLock(ctx context.Context, addr Address) (*Ledger, error) {
	var l Ledger
	var authority, judge, lastParticipant []byte
	var balance, floor, fee, count int64
	err := s.pool.QueryRow(ctx,
		`UPDATE ledgers SET processing_lock = TRUE
		 WHERE address = $1 AND processing_lock = FALSE
		 RETURNING authority, judge_authority, balance, floor_amount, entry_fee, entry_count,
			last_participant, last_activity_time, last_recovery_time`, addr.Bytes()).
		Scan(&authority, &judge, &balance, &floor, &fee, &count,
			&lastParticipant, &l.LastActivityTime, &l.LastRecoveryTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No matching row means either the ledger is missing or the lock
			// is held; a plain read tells them apart.
			if _, getErr := s.GetLedger(ctx, addr); getErr != nil {
				return nil, getErr
			}
			return nil, ErrOperationInProgress
		}
		return nil, fmt.Errorf("failed to acquire processing lock: %w", err)
	}
	copy(l.Authority[:], authority)
	copy(l.JudgeAuthority[:], judge)
	copy(l.LastParticipant[:], lastParticipant)
	l.Balance = uint64(balance)
	l.FloorAmount = uint64(floor)
	l.EntryFee = uint64(fee)
	l.EntryCount = uint64(count)
	l.ProcessingLock = true
	return &l, nil
}

func (s *PGStore) PutLedger(ctx context.Context, addr Address, l *Ledger) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ledgers SET authority = $2, judge_authority = $3, balance = $4, floor_amount = $5,
			entry_fee = $6, entry_count = $7, last_participant = $8, last_activity_time = $9,
			processing_lock = $10, last_recovery_time = $11
		 WHERE address = $1`,
		addr.Bytes(), l.Authority.Bytes(), l.JudgeAuthority.Bytes(), int64(l.Balance), int64(l.FloorAmount),
		int64(l.EntryFee), int64(l.EntryCount), l.LastParticipant.Bytes(), l.LastActivityTime,
		l.ProcessingLock, l.LastRecoveryTime)
	if err != nil {
		return fmt.Errorf("failed to update ledger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLedgerNotFound
	}
	return nil
}

func (s *PGStore) CreateEntry(ctx context.Context, addr Address, e *Entry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO entries (address, owner, amount_paid, pool_share, side_pocket_share, nonce, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		addr.Bytes(), e.Owner.Bytes(), int64(e.AmountPaid), int64(e.PoolShare),
		int64(e.SidePocketShare), int64(e.Nonce), e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("failed to create entry: %w", err)
	}
	return nil
}

func (s *PGStore) GetEntry(ctx context.Context, addr Address) (*Entry, error) {
	var e Entry
	var owner []byte
	var paid, pool, side, nonce int64
	err := s.pool.QueryRow(ctx,
		`SELECT owner, amount_paid, pool_share, side_pocket_share, nonce, created_at
		 FROM entries WHERE address = $1`, addr.Bytes()).
		Scan(&owner, &paid, &pool, &side, &nonce, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	copy(e.Owner[:], owner)
	e.AmountPaid = uint64(paid)
	e.PoolShare = uint64(pool)
	e.SidePocketShare = uint64(side)
	e.Nonce = uint64(nonce)
	return &e, nil
}
