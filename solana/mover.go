package solana

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// DefaultConfirmTimeout bounds how long a Mover waits for a transfer to
// confirm before giving up.
const DefaultConfirmTimeout = 90 * time.Second

// Mover executes fund movements as on-chain USDC transfers. It holds the
// private keys of the custody wallets it is allowed to move funds out of;
// a transfer from any other wallet is refused. It satisfies the settlement
// engine's FundsMover interface.
type Mover struct {
	client         RPCClient
	mint           solanago.PublicKey
	keys           map[solanago.PublicKey]solanago.PrivateKey
	commitment     rpc.CommitmentType
	confirmTimeout time.Duration
	logger         *slog.Logger
}

// NewMover creates a Mover holding the given custody keys.
func NewMover(client RPCClient, mint solanago.PublicKey, logger *slog.Logger, custodyKeys ...solanago.PrivateKey) *Mover {
	keys := make(map[solanago.PublicKey]solanago.PrivateKey, len(custodyKeys))
	for _, k := range custodyKeys {
		keys[k.PublicKey()] = k
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mover{
		client:         client,
		mint:           mint,
		keys:           keys,
		commitment:     rpc.CommitmentConfirmed,
		confirmTimeout: DefaultConfirmTimeout,
		logger:         logger,
	}
}

// Holds reports whether the Mover holds the custody key for wallet.
func (m *Mover) Holds(wallet solanago.PublicKey) bool {
	_, ok := m.keys[wallet]
	return ok
}

// Transfer sends amount micro-USDC from a custody wallet to a recipient
// wallet, waiting for confirmation. The transfer fails without touching the
// chain when the Mover does not hold the sender's key.
func (m *Mover) Transfer(ctx context.Context, from, to solanago.PublicKey, amount uint64) error {
	key, ok := m.keys[from]
	if !ok {
		return fmt.Errorf("no custody key for wallet %s", from)
	}

	sig, err := SendUSDC(ctx, m.client, m.mint, key, to, amount, "")
	if err != nil {
		return fmt.Errorf("failed to send transfer of %d from %s to %s: %w", amount, from, to, err)
	}
	m.logger.InfoContext(ctx, "transfer submitted",
		"from", from.String(),
		"to", to.String(),
		"amount", amount,
		"signature", sig.String(),
	)

	confirmCtx, cancel := context.WithTimeout(ctx, m.confirmTimeout)
	defer cancel()
	if err := ConfirmTransaction(confirmCtx, m.client, sig, m.commitment); err != nil {
		return fmt.Errorf("transfer %s did not confirm: %w", sig, err)
	}
	m.logger.InfoContext(ctx, "transfer confirmed", "signature", sig.String())
	return nil
}
