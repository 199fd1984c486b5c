package engine

import (
	"context"
	"sync"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreLockSingleClaim(t *testing.T) {
	store := NewMemStore()
	addr := LedgerAddress("lock-claim")
	require.NoError(t, store.CreateLedger(context.Background(), addr, &Ledger{
		Authority:      solanago.NewWallet().PublicKey(),
		JudgeAuthority: solanago.NewWallet().PublicKey(),
		Balance:        1000,
		FloorAmount:    1000,
	}))

	// Many concurrent claimants, exactly one may win.
	const claimants = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.AcquireProcessingLock(context.Background(), addr); err == nil {
				mu.Lock()
				acquired++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrOperationInProgress)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, acquired, "exactly one claimant acquires the lock")

	l, err := store.GetLedger(context.Background(), addr)
	require.NoError(t, err)
	assert.True(t, l.ProcessingLock)

	// Releasing via PutLedger makes the lock claimable again.
	l.ProcessingLock = false
	require.NoError(t, store.PutLedger(context.Background(), addr, l))
	claimed, err := store.AcquireProcessingLock(context.Background(), addr)
	require.NoError(t, err)
	assert.True(t, claimed.ProcessingLock)
}

func TestMemStoreLockMissingLedger(t *testing.T) {
	store := NewMemStore()
	_, err := store.AcquireProcessingLock(context.Background(), LedgerAddress("nothing-here"))
	assert.ErrorIs(t, err, ErrLedgerNotFound)
}
