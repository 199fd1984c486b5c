package engine

import (
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerAddressDeterminism(t *testing.T) {
	a := LedgerAddress("main")
	b := LedgerAddress("main")
	assert.Equal(t, a, b, "same seed must derive the same address")
	assert.NotEqual(t, a, LedgerAddress("other"), "different seeds must derive different addresses")
	assert.False(t, a.IsZero())
}

func TestEntryAddressUniqueness(t *testing.T) {
	ledger := LedgerAddress("main")
	owner := solanago.NewWallet().PublicKey()
	other := solanago.NewWallet().PublicKey()

	a := EntryAddress(ledger, owner, 1)
	assert.Equal(t, a, EntryAddress(ledger, owner, 1), "entry address must be deterministic")
	assert.NotEqual(t, a, EntryAddress(ledger, owner, 2), "different nonces must not collide")
	assert.NotEqual(t, a, EntryAddress(ledger, other, 1), "different owners must not collide")
	assert.NotEqual(t, a, EntryAddress(LedgerAddress("other"), owner, 1), "different ledgers must not collide")
}

func TestSeedBoundariesDoNotCollide(t *testing.T) {
	// Length-prefixed seeds: shifting bytes between adjacent seeds must
	// change the derived address.
	a := deriveAddress([]byte("ab"), []byte("c"))
	b := deriveAddress([]byte("a"), []byte("bc"))
	assert.NotEqual(t, a, b)
}

func TestAddressString(t *testing.T) {
	a := LedgerAddress("main")
	s := a.String()
	require.NotEmpty(t, s)
	assert.Equal(t, s, LedgerAddress("main").String())
}
