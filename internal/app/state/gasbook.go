package state

import (
	"math/big"
	"sync"
)

// GasBook keeps the last observed gas price per chain and provider. The
// submission pipeline reads it; this core only records values.
type GasBook struct {
	mu     sync.RWMutex
	prices map[string]*big.Int // chainID "/" provider -> wei
}

// NewGasBook creates an empty gas book.
func NewGasBook() *GasBook {
	return &GasBook{prices: make(map[string]*big.Int)}
}

func gasKey(chainID, provider string) string {
	return chainID + "/" + provider
}

// Record stores the latest observed gas price for a chain and provider.
// A nil price is ignored.
func (g *GasBook) Record(chainID, provider string, price *big.Int) {
	if price == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prices[gasKey(chainID, provider)] = new(big.Int).Set(price)
}

// Last returns the last recorded gas price for a chain and provider.
func (g *GasBook) Last(chainID, provider string) (*big.Int, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	price, ok := g.prices[gasKey(chainID, provider)]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(price), true
}
