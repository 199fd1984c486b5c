// Package solana moves USDC for the settlement engine. It builds and sends
// SPL token transfers out of custody wallets, confirms them, and verifies
// inbound transfers from participants.
package solana

import (
	"context"
	"fmt"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	memo "github.com/gagliardetto/solana-go/programs/memo"
	spltoken "github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is the slice of the Solana RPC surface this package uses.
// *rpc.Client satisfies it; tests substitute a mock.
type RPCClient interface {
	GetHealth(ctx context.Context) (string, error)
	GetAccountInfo(ctx context.Context, account solanago.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solanago.Transaction, opts rpc.TransactionOpts) (solanago.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchHistory bool, sigs ...solanago.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetSignaturesForAddressWithOpts(ctx context.Context, account solanago.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error)
	GetTransaction(ctx context.Context, sig solanago.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
}

// NewRPCClient creates an RPC client for the given endpoint, defaulting to
// Devnet when the endpoint is empty.
func NewRPCClient(endpoint string) *rpc.Client {
	if endpoint == "" {
		endpoint = rpc.DevNet_RPC
	}
	return rpc.New(endpoint)
}

// CheckRPCHealth verifies the RPC endpoint is reachable and healthy.
func CheckRPCHealth(ctx context.Context, client RPCClient) error {
	if _, err := client.GetHealth(ctx); err != nil {
		return fmt.Errorf("rpc health check failed: %w", err)
	}
	return nil
}

// LoadPrivateKeyFromBase58 parses a base58-encoded private key.
func LoadPrivateKeyFromBase58(keyStr string) (solanago.PrivateKey, error) {
	privateKey, err := solanago.PrivateKeyFromBase58(keyStr)
	if err != nil {
		return solanago.PrivateKey{}, fmt.Errorf("failed to parse base58 private key: %w", err)
	}
	return privateKey, nil
}

// PublicKeyFromBase58 parses a base58-encoded public key.
func PublicKeyFromBase58(keyStr string) (solanago.PublicKey, error) {
	pubKey, err := solanago.PublicKeyFromBase58(keyStr)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("invalid base58 public key %q: %w", keyStr, err)
	}
	return pubKey, nil
}

// BuildUSDCTransferInstructions assembles the instruction list for a USDC
// transfer from sender to recipient, creating either party's associated
// token account when it does not exist yet. A non-empty reference is
// attached as a memo so the transfer can be matched to a settlement record
// later.
func BuildUSDCTransferInstructions(
	ctx context.Context,
	client RPCClient,
	mint solanago.PublicKey,
	sender solanago.PublicKey,
	recipient solanago.PublicKey,
	amount uint64,
	reference string,
) ([]solanago.Instruction, error) {
	senderAta, _, err := solanago.FindAssociatedTokenAddress(sender, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive sender token account: %w", err)
	}
	recipientAta, _, err := solanago.FindAssociatedTokenAddress(recipient, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive recipient token account: %w", err)
	}

	instructions := make([]solanago.Instruction, 0, 4)
	if reference != "" {
		instructions = append(instructions, solanago.NewInstruction(
			memo.ProgramID,
			[]*solanago.AccountMeta{},
			[]byte(reference),
		))
	}

	// The sender pays rent for any token account that needs creating.
	for _, ata := range []struct {
		address solanago.PublicKey
		owner   solanago.PublicKey
	}{
		{senderAta, sender},
		{recipientAta, recipient},
	} {
		_, err := client.GetAccountInfo(ctx, ata.address)
		if err == nil {
			continue
		}
		if err != rpc.ErrNotFound {
			return nil, fmt.Errorf("failed to check token account %s: %w", ata.address, err)
		}
		createIx, err := associatedtokenaccount.NewCreateInstruction(sender, ata.owner, mint).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("failed to build create instruction for token account %s: %w", ata.address, err)
		}
		instructions = append(instructions, createIx)
	}

	transferIx, err := spltoken.NewTransferCheckedInstruction(
		amount,
		USDCDecimals,
		senderAta,
		mint,
		recipientAta,
		sender,
		[]solanago.PublicKey{},
	).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build transfer instruction: %w", err)
	}
	return append(instructions, transferIx), nil
}

// sendTransaction builds, signs, and submits a transaction paid and signed
// by the sender key.
func sendTransaction(
	ctx context.Context,
	client RPCClient,
	instructions []solanago.Instruction,
	senderKey solanago.PrivateKey,
) (solanago.Signature, error) {
	senderPub := senderKey.PublicKey()
	blockhashResult, err := client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solanago.Signature{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	tx, err := solanago.NewTransaction(
		instructions,
		blockhashResult.Value.Blockhash,
		solanago.TransactionPayer(senderPub),
	)
	if err != nil {
		return solanago.Signature{}, fmt.Errorf("failed to build transaction: %w", err)
	}
	_, err = tx.Sign(func(key solanago.PublicKey) *solanago.PrivateKey {
		if senderPub.Equals(key) {
			return &senderKey
		}
		return nil
	})
	if err != nil {
		return solanago.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentFinalized,
	})
	if err != nil {
		return solanago.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig, nil
}

// SendUSDC transfers USDC from the sender's wallet to the recipient's
// wallet, tagging the transaction with the reference memo when non-empty.
// Callers are responsible for confirming the transaction.
func SendUSDC(
	ctx context.Context,
	client RPCClient,
	mint solanago.PublicKey,
	senderKey solanago.PrivateKey,
	recipient solanago.PublicKey,
	amount uint64,
	reference string,
) (solanago.Signature, error) {
	instructions, err := BuildUSDCTransferInstructions(ctx, client, mint, senderKey.PublicKey(), recipient, amount, reference)
	if err != nil {
		return solanago.Signature{}, err
	}
	return sendTransaction(ctx, client, instructions, senderKey)
}

const confirmPollInterval = 3 * time.Second

// ConfirmTransaction polls until sig reaches the desired commitment level,
// the transaction fails, or ctx expires. The first status check happens
// immediately; the caller bounds the total wait via ctx.
func ConfirmTransaction(ctx context.Context, client RPCClient, sig solanago.Signature, desired rpc.CommitmentType) error {
	ticker := time.NewTicker(confirmPollInterval)
	defer ticker.Stop()

	for {
		statusResult, err := client.GetSignatureStatuses(ctx, false, sig)
		if err != nil {
			return fmt.Errorf("failed to get signature status for %s: %w", sig, err)
		}
		if statusResult != nil && len(statusResult.Value) > 0 && statusResult.Value[0] != nil {
			status := statusResult.Value[0]
			if status.Err != nil {
				return fmt.Errorf("transaction %s failed: %v", sig, status.Err)
			}
			if commitmentReached(status.ConfirmationStatus, desired) {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for confirmation of %s: %w", sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

// commitmentReached reports whether an observed confirmation status
// satisfies the desired commitment level. Commitments are ordered
// processed < confirmed < finalized.
func commitmentReached(observed rpc.ConfirmationStatusType, desired rpc.CommitmentType) bool {
	rank := func(s string) int {
		switch s {
		case string(rpc.CommitmentProcessed):
			return 1
		case string(rpc.CommitmentConfirmed):
			return 2
		case string(rpc.CommitmentFinalized):
			return 3
		}
		return 0
	}
	observedRank := rank(string(observed))
	desiredRank := rank(string(desired))
	return observedRank > 0 && desiredRank > 0 && observedRank >= desiredRank
}
