package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRPCClient implements RPCClient for testing.
// It's behavior-focused: we set what it should return, not verify call sequences.
type mockRPCClient struct {
	blockhashErr error
	sendErr      error
	signature    solana.Signature
}

func (m *mockRPCClient) GetLatestBlockhash(
	ctx context.Context,
	commitment rpc.CommitmentType,
) (*rpc.GetLatestBlockhashResult, error) {
	if m.blockhashErr != nil {
		return nil, m.blockhashErr
	}
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{
			Blockhash:            solana.Hash{},
			LastValidBlockHeight: 100,
		},
	}, nil
}

func (m *mockRPCClient) SendTransactionWithOpts(
	ctx context.Context,
	tx *solana.Transaction,
	opts rpc.TransactionOpts,
) (solana.Signature, error) {
	if m.sendErr != nil {
		return solana.Signature{}, m.sendErr
	}
	return m.signature, nil
}

func newTestAdapter(mock *mockRPCClient, signer solana.PrivateKey) *SolanaAdapter {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSolanaAdapter(mock, signer, 5*time.Second, nil, logger)
}

func TestSubmitTransfer_Success(t *testing.T) {
	signer := solana.NewWallet().PrivateKey
	recipient := solana.NewWallet().PublicKey().String()

	mock := &mockRPCClient{}
	adapter := newTestAdapter(mock, signer)

	result, err := adapter.SubmitTransfer(context.Background(), 19_400_000, recipient)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.NotEmpty(t, result.TxID)
	assert.GreaterOrEqual(t, result.Duration, time.Duration(0))
}

func TestSubmitTransfer_NoClient(t *testing.T) {
	signer := solana.NewWallet().PrivateKey
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	adapter := NewSolanaAdapter(nil, signer, time.Second, nil, logger)

	result, err := adapter.SubmitTransfer(context.Background(), 1000, solana.NewWallet().PublicKey().String())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSubmitTransfer_NoSigner(t *testing.T) {
	adapter := newTestAdapter(&mockRPCClient{}, nil)

	result, err := adapter.SubmitTransfer(context.Background(), 1000, solana.NewWallet().PublicKey().String())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSubmitTransfer_InvalidRecipient(t *testing.T) {
	signer := solana.NewWallet().PrivateKey
	adapter := newTestAdapter(&mockRPCClient{}, signer)

	result, err := adapter.SubmitTransfer(context.Background(), 1000, "not-a-valid-address")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestSubmitTransfer_BlockhashFailure(t *testing.T) {
	signer := solana.NewWallet().PrivateKey
	mock := &mockRPCClient{blockhashErr: errors.New("rpc unavailable")}
	adapter := newTestAdapter(mock, signer)

	result, err := adapter.SubmitTransfer(context.Background(), 1000, solana.NewWallet().PublicKey().String())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestSubmitTransfer_TimeoutClassification(t *testing.T) {
	signer := solana.NewWallet().PrivateKey
	mock := &mockRPCClient{sendErr: context.DeadlineExceeded}
	adapter := newTestAdapter(mock, signer)

	result, err := adapter.SubmitTransfer(context.Background(), 1000, solana.NewWallet().PublicKey().String())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestSubmitTransfer_SendRejected(t *testing.T) {
	signer := solana.NewWallet().PrivateKey
	mock := &mockRPCClient{sendErr: errors.New("insufficient funds for transaction")}
	adapter := newTestAdapter(mock, signer)

	result, err := adapter.SubmitTransfer(context.Background(), 1000, solana.NewWallet().PublicKey().String())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrRejected)
}
