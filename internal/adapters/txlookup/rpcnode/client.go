package rpcnode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bnema/ha-billing/internal/domain"
	"github.com/bnema/ha-billing/internal/ports"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

var ErrNoEndpoint = errors.New("no rpc endpoint configured for chain")

var _ ports.TransactionLookup = (*Client)(nil)

// Client looks transactions up directly on a JSON-RPC node, one endpoint per chain.
// Connections are dialed on first use and reused afterwards.
type Client struct {
	endpoints map[int64]string

	mu      sync.Mutex
	clients map[int64]*rpc.Client
}

type rpcTransaction struct {
	BlockNumber *hexutil.Uint64 `json:"blockNumber"`
}

func New(endpoints map[int64]string) *Client {
	cleaned := make(map[int64]string, len(endpoints))
	for chainID, endpoint := range endpoints {
		if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
			cleaned[chainID] = endpoint
		}
	}
	return &Client{endpoints: cleaned, clients: make(map[int64]*rpc.Client)}
}

func (c *Client) Supports(chainID int64) bool {
	_, ok := c.endpoints[chainID]
	return ok
}

func (c *Client) TransactionStatus(ctx context.Context, chain domain.Chain, txHash string) (domain.TransactionStatus, error) {
	client, err := c.clientFor(ctx, chain.ID)
	if err != nil {
		return domain.TransactionStatus{}, err
	}

	var tx *rpcTransaction
	if err := client.CallContext(ctx, &tx, "eth_getTransactionByHash", txHash); err != nil {
		return domain.TransactionStatus{}, fmt.Errorf("call eth_getTransactionByHash on %s: %w", chain.Name, err)
	}
	if tx == nil {
		return domain.TransactionStatus{Found: false}, nil
	}

	status := domain.TransactionStatus{Found: true}
	if tx.BlockNumber != nil {
		block := uint64(*tx.BlockNumber)
		status.BlockNumber = &block
	}
	return status, nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for chainID, client := range c.clients {
		client.Close()
		delete(c.clients, chainID)
	}
}

func (c *Client) clientFor(ctx context.Context, chainID int64) (*rpc.Client, error) {
	endpoint, ok := c.endpoints[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoEndpoint, chainID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.clients[chainID]; ok {
		return client, nil
	}

	client, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial rpc node for chain %d: %w", chainID, err)
	}
	c.clients[chainID] = client
	return client, nil
}
