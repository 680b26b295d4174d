package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/cardflow/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is the subset of Solana RPC operations the adapter needs.
// This lets tests mock the RPC layer without hitting real nodes.
type RPCClient interface {
	GetLatestBlockhash(
		ctx context.Context,
		commitment rpc.CommitmentType,
	) (*rpc.GetLatestBlockhashResult, error)

	SendTransactionWithOpts(
		ctx context.Context,
		tx *solana.Transaction,
		opts rpc.TransactionOpts,
	) (solana.Signature, error)
}

// NewRPCClient creates an RPCClient backed by the solana-go RPC client.
// For premium RPC endpoints that require API keys, include the key in the
// URL (Helius, QuickNode, Alchemy all work this way).
func NewRPCClient(rpcURL string) RPCClient {
	return rpc.New(rpcURL)
}

// SolanaAdapter submits native transfers from the treasury wallet to a
// recipient over Solana RPC. It implements Adapter.
type SolanaAdapter struct {
	rpc     RPCClient
	signer  solana.PrivateKey
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewSolanaAdapter creates a ledger adapter for the given treasury signer.
// The timeout bounds each submission end to end. If m is nil, no metrics
// are recorded.
func NewSolanaAdapter(rpcClient RPCClient, signer solana.PrivateKey, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *SolanaAdapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SolanaAdapter{
		rpc:     rpcClient,
		signer:  signer,
		timeout: timeout,
		metrics: m,
		logger:  logger,
	}
}

// SubmitTransfer sends lamports from the treasury to the recipient and
// returns the transaction signature plus the wall-clock duration of the
// call. Errors are mapped onto the adapter taxonomy.
func (a *SolanaAdapter) SubmitTransfer(ctx context.Context, lamports uint64, recipient string) (*TransferResult, error) {
	if a.rpc == nil || len(a.signer) == 0 {
		return nil, ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	to, err := solana.PublicKeyFromBase58(recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid recipient %q: %v", ErrRejected, recipient, err)
	}
	from := a.signer.PublicKey()

	start := time.Now()

	blockhash, err := a.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		a.record("GetLatestBlockhash", "error", time.Since(start))
		return nil, a.classify("get latest blockhash", err)
	}
	a.record("GetLatestBlockhash", "success", time.Since(start))

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(lamports, from, to).Build(),
		},
		blockhash.Value.Blockhash,
		solana.TransactionPayer(from),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: build transaction: %v", ErrRejected, err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(from) {
			return &a.signer
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("%w: sign transaction: %v", ErrRejected, err)
	}

	sendStart := time.Now()
	sig, err := a.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentFinalized,
	})
	sendDuration := time.Since(sendStart)
	if err != nil {
		a.record("SendTransaction", "error", sendDuration)
		return nil, a.classify("send transaction", err)
	}
	a.record("SendTransaction", "success", sendDuration)

	duration := time.Since(start)
	a.logger.DebugContext(ctx, "transfer submitted",
		"signature", sig.String(),
		"lamports", lamports,
		"recipient", recipient,
		"duration_ms", duration.Milliseconds(),
	)

	return &TransferResult{
		TxID:     sig.String(),
		Duration: duration,
	}, nil
}

// classify maps an RPC failure onto the adapter error taxonomy.
func (a *SolanaAdapter) classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrRejected, op, err)
}

func (a *SolanaAdapter) record(method, status string, d time.Duration) {
	if a.metrics != nil {
		a.metrics.RecordLedgerSubmit(method, status, d.Seconds())
	}
}
