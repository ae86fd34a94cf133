package domain

import "sort"

type Chain struct {
	ID          int64
	Name        string
	Currency    string
	ExplorerAPI string
}

const (
	ChainEthereum int64 = 1
	ChainBase     int64 = 8453
	ChainArbitrum int64 = 42161
)

var defaultChains = map[int64]Chain{
	ChainEthereum: {ID: ChainEthereum, Name: "Ethereum", Currency: "ETH", ExplorerAPI: "https://api.etherscan.io/api"},
	ChainBase:     {ID: ChainBase, Name: "Base", Currency: "ETH", ExplorerAPI: "https://api.basescan.org/api"},
	ChainArbitrum: {ID: ChainArbitrum, Name: "Arbitrum One", Currency: "ETH", ExplorerAPI: "https://api.arbiscan.io/api"},
}

// ChainRegistry resolves chain ids to their metadata and explorer endpoint.
type ChainRegistry struct {
	chains map[int64]Chain
}

func DefaultChainIDs() []int64 {
	return []int64{ChainEthereum, ChainBase, ChainArbitrum}
}

func NewChainRegistry(explorerOverrides map[int64]string) ChainRegistry {
	chains := make(map[int64]Chain, len(defaultChains))
	for id, chain := range defaultChains {
		if override, ok := explorerOverrides[id]; ok && override != "" {
			chain.ExplorerAPI = override
		}
		chains[id] = chain
	}
	return ChainRegistry{chains: chains}
}

func (r ChainRegistry) Lookup(chainID int64) (Chain, bool) {
	if r.chains == nil {
		chain, ok := defaultChains[chainID]
		return chain, ok
	}
	chain, ok := r.chains[chainID]
	return chain, ok
}

func (r ChainRegistry) All() []Chain {
	source := r.chains
	if source == nil {
		source = defaultChains
	}

	chains := make([]Chain, 0, len(source))
	for _, chain := range source {
		chains = append(chains, chain)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i].ID < chains[j].ID })
	return chains
}

type TransactionStatus struct {
	Found       bool
	BlockNumber *uint64
}

func (s TransactionStatus) Confirmed() bool {
	return s.BlockNumber != nil
}
