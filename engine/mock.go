package engine

import (
	"context"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/mock"
)

// MockFundsMover is a testify mock of the native value-transfer primitive.
// Engine and HTTP tests use it to assert exactly which transfers an
// operation attempted.
type MockFundsMover struct {
	mock.Mock
}

func (m *MockFundsMover) Transfer(ctx context.Context, from, to solanago.PublicKey, amount uint64) error {
	args := m.Called(ctx, from, to, amount)
	return args.Error(0)
}

// MockVerifier is a testify mock of the decision-signature seam.
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(message []byte, signature [64]byte, signer solanago.PublicKey) bool {
	args := m.Called(message, signature, signer)
	return args.Bool(0)
}
