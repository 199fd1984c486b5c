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

func TestMoverRefusesUnknownWallet(t *testing.T) {
	client := &MockRPCClient{}
	mint := solanago.NewWallet().PublicKey()
	custody := solanago.NewWallet()
	mover := NewMover(client, mint, nil, custody.PrivateKey)

	stranger := solanago.NewWallet().PublicKey()
	err := mover.Transfer(context.Background(), stranger, solanago.NewWallet().PublicKey(), 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no custody key")
	client.AssertNotCalled(t, "SendTransactionWithOpts", mock.Anything, mock.Anything, mock.Anything)
}

func TestMoverHolds(t *testing.T) {
	custody := solanago.NewWallet()
	mover := NewMover(&MockRPCClient{}, solanago.NewWallet().PublicKey(), nil, custody.PrivateKey)
	assert.True(t, mover.Holds(custody.PublicKey()))
	assert.False(t, mover.Holds(solanago.NewWallet().PublicKey()))
}

func TestMoverTransfer(t *testing.T) {
	client := &MockRPCClient{}
	mint := solanago.NewWallet().PublicKey()
	custody := solanago.NewWallet()
	recipient := solanago.NewWallet().PublicKey()
	mover := NewMover(client, mint, nil, custody.PrivateKey)

	sig := solanago.Signature{7}
	client.On("GetAccountInfo", mock.Anything, mock.Anything).
		Return(&rpc.GetAccountInfoResult{}, nil).Twice()
	client.On("GetLatestBlockhash", mock.Anything, rpc.CommitmentFinalized).
		Return(&rpc.GetLatestBlockhashResult{
			Value: &rpc.LatestBlockhashResult{Blockhash: solanago.Hash{1}},
		}, nil).Once()
	client.On("SendTransactionWithOpts", mock.Anything, mock.Anything, mock.Anything).
		Return(sig, nil).Once()
	client.On("GetSignatureStatuses", mock.Anything, false, []solanago.Signature{sig}).
		Return(&rpc.GetSignatureStatusesResult{
			Value: []*rpc.SignatureStatusesResult{
				{ConfirmationStatus: rpc.ConfirmationStatusConfirmed},
			},
		}, nil).Once()

	err := mover.Transfer(context.Background(), custody.PublicKey(), recipient, 250)
	require.NoError(t, err)
	client.AssertExpectations(t)
}
