package solana

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	memo "github.com/gagliardetto/solana-go/programs/memo"
	"github.com/gagliardetto/solana-go/rpc"
)

// InboundTransfer describes the exact transfer a caller expects to observe
// on chain: a USDC movement from the sender's wallet into the recipient's
// associated token account, tagged with the reference memo.
type InboundTransfer struct {
	Sender    solanago.PublicKey
	Recipient solanago.PublicKey
	Amount    uint64
	Reference string
	// PollInterval defaults to 30s when zero.
	PollInterval time.Duration
}

// EntryReference is the memo tying a pool payment to its (owner, nonce)
// entry. Invoices carry it and verification matches on it.
func EntryReference(owner solanago.PublicKey, nonce uint64) string {
	return fmt.Sprintf("entry:%s:%d", owner, nonce)
}

// EntryVerifier confirms entry payments against the chain: the participant
// must have paid the full amount into the pool wallet, tagged with the
// entry reference memo.
type EntryVerifier struct {
	client RPCClient
	mint   solanago.PublicKey
	pool   solanago.PublicKey
	logger *slog.Logger
	// PollInterval overrides the inbound check's default when non-zero.
	PollInterval time.Duration
}

func NewEntryVerifier(client RPCClient, mint, pool solanago.PublicKey, logger *slog.Logger) *EntryVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &EntryVerifier{client: client, mint: mint, pool: pool, logger: logger}
}

// VerifyEntryPayment blocks until the payment for (owner, amount, nonce) is
// observed finalized on chain or ctx expires.
func (v *EntryVerifier) VerifyEntryPayment(ctx context.Context, owner solanago.PublicKey, amount, nonce uint64) error {
	_, err := VerifyInboundTransfer(ctx, v.client, v.mint, v.logger, InboundTransfer{
		Sender:       owner,
		Recipient:    v.pool,
		Amount:       amount,
		Reference:    EntryReference(owner, nonce),
		PollInterval: v.PollInterval,
	})
	return err
}

// VerifyInboundTransfer polls recent transactions on the recipient's token
// account until it finds one matching the expected transfer, the context
// expires, or an unrecoverable error occurs. It returns the matching
// signature. Timeout is reported as an error wrapping ctx.Err(); callers
// bound the total wait via ctx.
func VerifyInboundTransfer(ctx context.Context, client RPCClient, mint solanago.PublicKey, logger *slog.Logger, expected InboundTransfer) (solanago.Signature, error) {
	if logger == nil {
		logger = slog.Default()
	}
	recipientAta, _, err := solanago.FindAssociatedTokenAddress(expected.Recipient, mint)
	if err != nil {
		return solanago.Signature{}, fmt.Errorf("failed to derive recipient token account: %w", err)
	}

	interval := expected.PollInterval
	if interval == 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	checked := make(map[solanago.Signature]bool)
	limit := 15
	maxTxVersion := uint64(0)

	for {
		sigs, err := client.GetSignaturesForAddressWithOpts(ctx, recipientAta, &rpc.GetSignaturesForAddressOpts{
			Limit:      &limit,
			Commitment: rpc.CommitmentFinalized,
		})
		if err != nil {
			// Transient RPC failures are survivable; retry on the next tick.
			logger.WarnContext(ctx, "failed to list signatures for recipient token account",
				"account", recipientAta.String(), "error", err)
		}

		// Oldest first, so the earliest matching transfer wins.
		for i := len(sigs) - 1; i >= 0; i-- {
			sigInfo := sigs[i]
			if sigInfo == nil || checked[sigInfo.Signature] {
				continue
			}
			checked[sigInfo.Signature] = true
			if sigInfo.Err != nil {
				continue
			}

			txResult, err := client.GetTransaction(ctx, sigInfo.Signature, &rpc.GetTransactionOpts{
				Encoding:                       solanago.EncodingBase64,
				Commitment:                     rpc.CommitmentFinalized,
				MaxSupportedTransactionVersion: &maxTxVersion,
			})
			if err != nil {
				logger.WarnContext(ctx, "failed to fetch transaction", "signature", sigInfo.Signature.String(), "error", err)
				continue
			}
			if txResult == nil || txResult.Meta == nil || txResult.Meta.Err != nil || txResult.Transaction == nil {
				continue
			}
			rawTx, err := txResult.Transaction.GetTransaction()
			if err != nil || rawTx == nil || len(rawTx.Message.AccountKeys) == 0 {
				continue
			}

			if expected.Reference != "" && !hasMemo(rawTx, expected.Reference) {
				continue
			}
			match, err := tokenBalancesShowTransfer(
				txResult.Meta.PreTokenBalances,
				txResult.Meta.PostTokenBalances,
				rawTx.Message.AccountKeys,
				expected.Sender,
				recipientAta,
				mint,
				expected.Amount,
			)
			if err != nil {
				logger.WarnContext(ctx, "failed to check token balances", "signature", sigInfo.Signature.String(), "error", err)
				continue
			}
			if match {
				logger.InfoContext(ctx, "inbound transfer verified",
					"signature", sigInfo.Signature.String(),
					"sender", expected.Sender.String(),
					"recipient", expected.Recipient.String(),
					"amount", expected.Amount,
				)
				return sigInfo.Signature, nil
			}
		}

		select {
		case <-ctx.Done():
			return solanago.Signature{}, fmt.Errorf("inbound transfer not observed: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// hasMemo reports whether the transaction carries a memo instruction with
// exactly the given content.
func hasMemo(tx *solanago.Transaction, content string) bool {
	for _, ix := range tx.Message.Instructions {
		progKey, err := tx.Message.Program(ix.ProgramIDIndex)
		if err != nil {
			continue
		}
		if progKey.Equals(memo.ProgramID) && string(ix.Data) == content {
			return true
		}
	}
	return false
}

// tokenBalancesShowTransfer inspects a transaction's pre/post token
// balances for a transfer of exactly amount micro-USDC into destAta from
// any token account owned by sourceOwner. Balance diffs are the most
// reliable signal across instruction encodings.
func tokenBalancesShowTransfer(
	pre, post []rpc.TokenBalance,
	accountKeys []solanago.PublicKey,
	sourceOwner solanago.PublicKey,
	destAta solanago.PublicKey,
	mint solanago.PublicKey,
	amount uint64,
) (bool, error) {
	index := func(balances []rpc.TokenBalance) map[solanago.PublicKey]rpc.TokenBalance {
		m := make(map[solanago.PublicKey]rpc.TokenBalance, len(balances))
		for _, b := range balances {
			if int(b.AccountIndex) >= len(accountKeys) {
				continue
			}
			m[accountKeys[b.AccountIndex]] = b
		}
		return m
	}
	preByAddr := index(pre)
	postByAddr := index(post)

	parseAmount := func(b rpc.TokenBalance) (uint64, error) {
		if b.UiTokenAmount == nil || b.UiTokenAmount.Amount == "" {
			return 0, nil
		}
		return strconv.ParseUint(b.UiTokenAmount.Amount, 10, 64)
	}

	// The destination must gain exactly the expected amount. A missing pre
	// balance means the account was created in this transaction.
	postDest, ok := postByAddr[destAta]
	if !ok || !postDest.Mint.Equals(mint) {
		return false, nil
	}
	preDestAmount := uint64(0)
	if preDest, ok := preByAddr[destAta]; ok {
		v, err := parseAmount(preDest)
		if err != nil {
			return false, fmt.Errorf("failed to parse destination pre-balance: %w", err)
		}
		preDestAmount = v
	}
	postDestAmount, err := parseAmount(postDest)
	if err != nil {
		return false, fmt.Errorf("failed to parse destination post-balance: %w", err)
	}
	if postDestAmount < preDestAmount || postDestAmount-preDestAmount != amount {
		return false, nil
	}

	// Some token account owned by the expected sender must lose the same
	// amount.
	for addr, preSource := range preByAddr {
		if !preSource.Mint.Equals(mint) || preSource.Owner == nil || !preSource.Owner.Equals(sourceOwner) {
			continue
		}
		postSource, ok := postByAddr[addr]
		if !ok {
			continue
		}
		preAmount, err := parseAmount(preSource)
		if err != nil {
			continue
		}
		postAmount, err := parseAmount(postSource)
		if err != nil {
			continue
		}
		if preAmount >= postAmount && preAmount-postAmount == amount {
			return true, nil
		}
	}
	return false, nil
}
