package sui

import (
	"context"
	"log/slog"
	"time"

	"github.com/brojonat/suistream/service/metrics"
)

const (
	methodQueryTransactionBlocks = "suix_queryTransactionBlocks"
	methodGetChainIdentifier     = "sui_getChainIdentifier"
)

// RPCClient is the JSON-RPC surface we need from a Sui full node.
// *rpc.Client from go-ethereum satisfies it; tests supply a mock.
type RPCClient interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
	Close()
}

// Client provides methods for reading transactions from a Sui full node.
// It wraps the RPC client with domain-specific operations.
type Client struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // RPC endpoint identifier for metrics (e.g., "mainnet", "testnet", rpc host)
	chainID  string
}

// NewClient creates a new Sui client.
// The endpoint parameter is used for metrics labeling.
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		rpc:      rpcClient,
		logger:   logger.With("component", "sui_client"),
		metrics:  m,
		endpoint: endpoint,
	}
}

// Endpoint returns the metrics label of the node this client talks to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// ChainID returns the chain identifier recorded by Dial, if any.
func (c *Client) ChainID() string {
	return c.chainID
}

// ChainIdentifier asks the node for its chain identifier.
func (c *Client) ChainIdentifier(ctx context.Context) (string, error) {
	var id string
	if err := c.call(ctx, &id, methodGetChainIdentifier); err != nil {
		return "", err
	}
	return id, nil
}

// QueryRecentTransactions returns up to limit transaction blocks, newest first.
func (c *Client) QueryRecentTransactions(ctx context.Context, limit int, opts ResponseOptions) ([]TransactionBlockResponse, error) {
	query := TransactionBlockQuery{Options: &opts}

	c.logger.DebugContext(ctx, "calling suix_queryTransactionBlocks",
		"limit", limit,
		"options", opts,
	)

	var page TransactionBlocksPage
	// params: query, cursor, limit, descending_order
	if err := c.call(ctx, &page, methodQueryTransactionBlocks, query, nil, limit, true); err != nil {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.RecordRPCTransactionsPerCall(c.endpoint, float64(len(page.Data)))
	}

	for _, txn := range page.Data {
		if _, err := ParseDigest(txn.Digest); err != nil {
			c.logger.WarnContext(ctx, "node returned malformed digest",
				"digest", txn.Digest,
				"error", err,
			)
			if c.metrics != nil {
				c.metrics.RecordMalformedDigest(c.endpoint)
			}
		}
	}

	c.logger.DebugContext(ctx, "fetched transaction blocks",
		"count", len(page.Data),
		"has_next_page", page.HasNextPage,
	)

	return page.Data, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	if c.rpc != nil {
		c.rpc.Close()
	}
}

func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	start := time.Now()
	err := c.rpc.CallContext(ctx, result, method, args...)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
		c.logger.ErrorContext(ctx, "sui rpc call failed",
			"method", method,
			"endpoint", c.endpoint,
			"error", err,
		)
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall(method, status, c.endpoint, duration)
	}
	return err
}
