package solana

import (
	"context"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/mock"
)

// MockRPCClient is a testify mock of the RPCClient interface.
type MockRPCClient struct {
	mock.Mock
}

func (m *MockRPCClient) GetHealth(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockRPCClient) GetAccountInfo(ctx context.Context, account solanago.PublicKey) (*rpc.GetAccountInfoResult, error) {
	args := m.Called(ctx, account)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rpc.GetAccountInfoResult), args.Error(1)
}

func (m *MockRPCClient) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	args := m.Called(ctx, commitment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rpc.GetLatestBlockhashResult), args.Error(1)
}

func (m *MockRPCClient) SendTransactionWithOpts(ctx context.Context, tx *solanago.Transaction, opts rpc.TransactionOpts) (solanago.Signature, error) {
	args := m.Called(ctx, tx, opts)
	return args.Get(0).(solanago.Signature), args.Error(1)
}

func (m *MockRPCClient) GetSignatureStatuses(ctx context.Context, searchHistory bool, sigs ...solanago.Signature) (*rpc.GetSignatureStatusesResult, error) {
	args := m.Called(ctx, searchHistory, sigs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rpc.GetSignatureStatusesResult), args.Error(1)
}

func (m *MockRPCClient) GetSignaturesForAddressWithOpts(ctx context.Context, account solanago.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error) {
	args := m.Called(ctx, account, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*rpc.TransactionSignature), args.Error(1)
}

func (m *MockRPCClient) GetTransaction(ctx context.Context, sig solanago.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	args := m.Called(ctx, sig, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rpc.GetTransactionResult), args.Error(1)
}
