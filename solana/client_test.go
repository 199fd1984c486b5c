package solana

import (
	"context"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestLoadPrivateKeyFromBase58(t *testing.T) {
	wallet := solanago.NewWallet()
	loaded, err := LoadPrivateKeyFromBase58(wallet.PrivateKey.String())
	require.NoError(t, err, "a valid key should load")
	assert.Equal(t, wallet.PrivateKey, loaded)
	assert.Equal(t, wallet.PublicKey(), loaded.PublicKey())

	_, err = LoadPrivateKeyFromBase58("not-base58")
	assert.Error(t, err, "garbage input should fail")
}

func TestPublicKeyFromBase58(t *testing.T) {
	wallet := solanago.NewWallet()
	loaded, err := PublicKeyFromBase58(wallet.PublicKey().String())
	require.NoError(t, err)
	assert.Equal(t, wallet.PublicKey(), loaded)

	_, err = PublicKeyFromBase58("not-base58")
	assert.Error(t, err)
}

func TestBuildUSDCTransferInstructions(t *testing.T) {
	ctx := context.Background()
	mint := solanago.NewWallet().PublicKey()
	sender := solanago.NewWallet().PublicKey()
	recipient := solanago.NewWallet().PublicKey()

	t.Run("both token accounts exist", func(t *testing.T) {
		client := &MockRPCClient{}
		client.On("GetAccountInfo", mock.Anything, mock.Anything).
			Return(&rpc.GetAccountInfoResult{}, nil).Twice()

		instructions, err := BuildUSDCTransferInstructions(ctx, client, mint, sender, recipient, 100, "")
		require.NoError(t, err)
		assert.Len(t, instructions, 1, "only the transfer instruction is needed")
		client.AssertExpectations(t)
	})

	t.Run("recipient token account missing", func(t *testing.T) {
		recipientAta, _, err := solanago.FindAssociatedTokenAddress(recipient, mint)
		require.NoError(t, err)

		client := &MockRPCClient{}
		client.On("GetAccountInfo", mock.Anything, recipientAta).
			Return(nil, rpc.ErrNotFound).Once()
		client.On("GetAccountInfo", mock.Anything, mock.Anything).
			Return(&rpc.GetAccountInfoResult{}, nil).Once()

		instructions, err := BuildUSDCTransferInstructions(ctx, client, mint, sender, recipient, 100, "")
		require.NoError(t, err)
		assert.Len(t, instructions, 2, "creation precedes the transfer")
	})

	t.Run("reference memo is attached", func(t *testing.T) {
		client := &MockRPCClient{}
		client.On("GetAccountInfo", mock.Anything, mock.Anything).
			Return(&rpc.GetAccountInfoResult{}, nil).Twice()

		instructions, err := BuildUSDCTransferInstructions(ctx, client, mint, sender, recipient, 100, "entry:7")
		require.NoError(t, err)
		require.Len(t, instructions, 2)
		data, err := instructions[0].Data()
		require.NoError(t, err)
		assert.Equal(t, "entry:7", string(data), "memo carries the reference")
	})
}

func TestConfirmTransaction(t *testing.T) {
	ctx := context.Background()
	sig := solanago.Signature{1}

	t.Run("finalized satisfies confirmed", func(t *testing.T) {
		client := &MockRPCClient{}
		client.On("GetSignatureStatuses", mock.Anything, false, mock.Anything).
			Return(&rpc.GetSignatureStatusesResult{
				Value: []*rpc.SignatureStatusesResult{
					{ConfirmationStatus: rpc.ConfirmationStatusFinalized},
				},
			}, nil).Once()

		err := ConfirmTransaction(ctx, client, sig, rpc.CommitmentConfirmed)
		assert.NoError(t, err)
	})

	t.Run("failed transaction reports its error", func(t *testing.T) {
		client := &MockRPCClient{}
		client.On("GetSignatureStatuses", mock.Anything, false, mock.Anything).
			Return(&rpc.GetSignatureStatusesResult{
				Value: []*rpc.SignatureStatusesResult{
					{Err: map[string]any{"InstructionError": "oops"}},
				},
			}, nil).Once()

		err := ConfirmTransaction(ctx, client, sig, rpc.CommitmentConfirmed)
		assert.ErrorContains(t, err, "failed")
	})

	t.Run("context expiry bounds the wait", func(t *testing.T) {
		client := &MockRPCClient{}
		client.On("GetSignatureStatuses", mock.Anything, false, mock.Anything).
			Return(&rpc.GetSignatureStatusesResult{
				Value: []*rpc.SignatureStatusesResult{
					{ConfirmationStatus: rpc.ConfirmationStatusProcessed},
				},
			}, nil)

		expired, cancel := context.WithCancel(ctx)
		cancel()
		err := ConfirmTransaction(expired, client, sig, rpc.CommitmentFinalized)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCommitmentReached(t *testing.T) {
	tests := []struct {
		observed rpc.ConfirmationStatusType
		desired  rpc.CommitmentType
		want     bool
	}{
		{rpc.ConfirmationStatusProcessed, rpc.CommitmentProcessed, true},
		{rpc.ConfirmationStatusProcessed, rpc.CommitmentConfirmed, false},
		{rpc.ConfirmationStatusConfirmed, rpc.CommitmentProcessed, true},
		{rpc.ConfirmationStatusConfirmed, rpc.CommitmentFinalized, false},
		{rpc.ConfirmationStatusFinalized, rpc.CommitmentFinalized, true},
		{"", rpc.CommitmentConfirmed, false},
	}
	for _, tt := range tests {
		got := commitmentReached(tt.observed, tt.desired)
		assert.Equal(t, tt.want, got, "observed %q desired %q", tt.observed, tt.desired)
	}
}
