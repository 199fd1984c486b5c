package engine

import (
	"crypto/sha256"
	"encoding/binary"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Address is the deterministic storage address of a durable record. Every
// address is derived from a small set of semantic seeds, so clients can
// predict where a record will live before it exists. That determinism is
// what makes replay rejection work: creating a record at an occupied
// address fails.
type Address [32]byte

// String renders the address in base58, matching how the rest of the stack
// renders Solana identities.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// IsZero reports whether the address is the all-zero value.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Bytes returns the raw address bytes.
func (a Address) Bytes() []byte {
	return a[:]
}

// deriveAddress hashes the seeds into an address. Each seed is prefixed with
// its length so that ("ab","c") and ("a","bc") cannot collide.
func deriveAddress(seeds ...[]byte) Address {
	h := sha256.New()
	var lenBuf [4]byte
	for _, s := range seeds {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
		h.Write(lenBuf[:])
		h.Write(s)
	}
	var a Address
	copy(a[:], h.Sum(nil))
	return a
}

// LedgerAddress derives the address of the ledger account for a named pool.
func LedgerAddress(seed string) Address {
	return deriveAddress([]byte("ledger"), []byte(seed))
}

// EntryAddress derives the address of the entry record for a given
// (ledger, owner, nonce) triple.
func EntryAddress(ledger Address, owner solanago.PublicKey, nonce uint64) Address {
	var nonceBuf [8]byte
	binary.LittleEndian.PutUint64(nonceBuf[:], nonce)
	return deriveAddress([]byte("entry"), ledger[:], owner[:], nonceBuf[:])
}
