package sui

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/brojonat/suistream/service/metrics"
	"github.com/ethereum/go-ethereum/rpc"
)

// MainnetRPCURL is the public Sui mainnet full node.
const MainnetRPCURL = "https://fullnode.mainnet.sui.io:443"

// Dial connects to a Sui full node and verifies it answers sui_getChainIdentifier.
// go-ethereum's rpc client speaks plain JSON-RPC 2.0 over HTTP and websockets,
// which is all a Sui node needs.
// For premium RPC endpoints that require API keys, include the key in the URL.
func Dial(ctx context.Context, rpcURL string, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial sui rpc %s: %w", rpcURL, err)
	}

	c := NewClient(rpcClient, EndpointLabel(rpcURL), m, logger)

	chainID, err := c.ChainIdentifier(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("failed to reach sui node %s: %w", rpcURL, err)
	}
	c.chainID = chainID

	return c, nil
}

// EndpointLabel extracts a short identifier from the RPC URL for metrics labeling.
// Examples:
//   - "https://fullnode.mainnet.sui.io:443" -> "mainnet"
//   - "https://fullnode.testnet.sui.io:443" -> "testnet"
//   - "https://sui-mainnet.blastapi.io/KEY" -> "blastapi"
func EndpointLabel(rpcURL string) string {
	parsed, err := url.Parse(rpcURL)
	if err != nil {
		return "unknown"
	}

	host := parsed.Hostname()
	if host == "" {
		return "unknown"
	}

	// Check for common RPC providers
	for _, provider := range []string{"blastapi", "ankr", "quiknode", "chainstack", "shinami", "blockvision"} {
		if strings.Contains(host, provider) {
			return provider
		}
	}

	// Check for official Sui endpoints
	for _, network := range []string{"mainnet", "testnet", "devnet"} {
		if strings.Contains(host, network) {
			return network
		}
	}

	// Fallback to hostname
	return host
}
