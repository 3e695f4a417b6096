package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(symbol string, qty, price float64) TradeFill {
	return TradeFill{Symbol: symbol, Quantity: qty, Price: price, Timestamp: time.Now()}
}

func TestInMemoryPortfolio_AccumulationAveragesEntry(t *testing.T) {
	p := NewInMemoryPortfolio(10000)

	require.NoError(t, p.UpdateAfterTrade(fill("BTCUSDT", 0.01, 50000)))
	require.NoError(t, p.UpdateAfterTrade(fill("BTCUSDT", 0.01, 52000)))

	snap, err := p.GetPortfolio()
	require.NoError(t, err)

	pos := snap.Positions["BTCUSDT"]
	assert.InDelta(t, 0.02, pos.Size, 1e-9)
	assert.InDelta(t, 51000, pos.EntryPrice, 1e-6)

	// Cash out, cost basis in; cost-basis valuation keeps total flat.
	assert.InDelta(t, 10000, snap.TotalValue, 1e-6)
}

func TestInMemoryPortfolio_FullReductionRemovesPosition(t *testing.T) {
	p := NewInMemoryPortfolio(10000)

	require.NoError(t, p.UpdateAfterTrade(fill("BTCUSDT", 0.01, 50000)))
	require.NoError(t, p.UpdateAfterTrade(fill("BTCUSDT", -0.01, 55000)))

	snap, err := p.GetPortfolio()
	require.NoError(t, err)
	assert.Empty(t, snap.Positions)
	assert.InDelta(t, 10050, snap.TotalValue, 1e-6, "realized gain lands in cash")
}

func TestInMemoryPortfolio_CloseAllPositions(t *testing.T) {
	p := NewInMemoryPortfolio(10000)

	require.NoError(t, p.UpdateAfterTrade(fill("BTCUSDT", 0.01, 50000)))
	require.NoError(t, p.UpdateAfterTrade(fill("ETHUSDT", 0.5, 3000)))

	require.NoError(t, p.CloseAllPositions())

	snap, err := p.GetPortfolio()
	require.NoError(t, err)
	assert.Empty(t, snap.Positions)
	assert.InDelta(t, 10000, snap.TotalValue, 1e-6)
}
