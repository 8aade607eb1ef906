package update

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nebulafi/feedkeeper/internal/app/domain/datafeed"
)

func params(heartbeat int64, threshold int64) datafeed.UpdateParameters {
	return datafeed.UpdateParameters{
		HeartbeatInterval:              heartbeat,
		DeviationThresholdInPercentage: big.NewInt(threshold),
	}
}

func TestCalculateDeviationPercentage(t *testing.T) {
	// A zero delta short-circuits for any reference.
	for _, ref := range []int64{0, 1, 100, -5000} {
		dev := CalculateDeviationPercentage(big.NewInt(100), big.NewInt(100), big.NewInt(ref))
		require.Zero(t, dev.Sign(), "reference %d", ref)
	}

	// 100 -> 110 against reference 0 is a 10% move: 0.1 * 1e8.
	dev := CalculateDeviationPercentage(big.NewInt(100), big.NewInt(110), big.NewInt(0))
	require.Equal(t, big.NewInt(10_000_000), dev)

	// Symmetric for a downward move.
	dev = CalculateDeviationPercentage(big.NewInt(100), big.NewInt(90), big.NewInt(0))
	require.Equal(t, big.NewInt(10_000_000), dev)

	// Reference equal to the initial value is an undefined percentage,
	// treated as maximal.
	dev = CalculateDeviationPercentage(big.NewInt(100), big.NewInt(101), big.NewInt(100))
	require.Greater(t, dev.BitLen(), 256)
}

func TestCalculateMedian(t *testing.T) {
	_, err := CalculateMedian(nil)
	require.Error(t, err)

	median, err := CalculateMedian([]*big.Int{big.NewInt(3), big.NewInt(1), big.NewInt(2)})
	require.NoError(t, err)
	require.Equal(t, big.NewInt(2), median)

	// Even length: integer mean of the two middle elements, truncated.
	median, err = CalculateMedian([]*big.Int{big.NewInt(4), big.NewInt(2), big.NewInt(1), big.NewInt(3)})
	require.NoError(t, err)
	require.Equal(t, big.NewInt(2), median)

	// Truncation toward zero for a negative mean.
	median, err = CalculateMedian([]*big.Int{big.NewInt(-1), big.NewInt(-2)})
	require.NoError(t, err)
	require.Equal(t, big.NewInt(-1), median)
}

func TestIsDataFeedUpdatable_UninitializedSlot(t *testing.T) {
	// Timestamp zero on chain always updates, whatever the policy says.
	for _, p := range []datafeed.UpdateParameters{params(0, 0), params(86400, 100)} {
		ok := IsDataFeedUpdatable(nil, 0, big.NewInt(123), 50, 1000, p, nil)
		require.True(t, ok)
	}
}

func TestIsDataFeedUpdatable_StaleOffChainData(t *testing.T) {
	p := params(86400, 100)

	// Equal timestamps never update.
	ok := IsDataFeedUpdatable(big.NewInt(100), 500, big.NewInt(200), 500, 1000, p, nil)
	require.False(t, ok)

	// Strictly older off-chain data never updates either.
	ok = IsDataFeedUpdatable(big.NewInt(100), 500, big.NewInt(200), 400, 1000, p, nil)
	require.False(t, ok)
}

func TestIsDataFeedUpdatable_DeviationRule(t *testing.T) {
	now := int64(1000)
	// Fresh on-chain value (within heartbeat), 1% threshold.
	p := params(86400, 1_000_000)

	// 0.5% move: below threshold.
	ok := IsDataFeedUpdatable(big.NewInt(10_000), now-10, big.NewInt(10_050), now, now, p, nil)
	require.False(t, ok)

	// 2% move: above threshold.
	ok = IsDataFeedUpdatable(big.NewInt(10_000), now-10, big.NewInt(10_200), now, now, p, nil)
	require.True(t, ok)

	// Exactly at threshold updates.
	ok = IsDataFeedUpdatable(big.NewInt(10_000), now-10, big.NewInt(10_100), now, now, p, nil)
	require.True(t, ok)
}

func TestIsDataFeedUpdatable_ZeroPolicyValues(t *testing.T) {
	now := int64(1000)

	// Fresh value with a zero threshold: undefined on chain, do not update.
	ok := IsDataFeedUpdatable(big.NewInt(100), now-10, big.NewInt(200), now, now, params(86400, 0), nil)
	require.False(t, ok)

	// Zero heartbeat: the slot is never fresh and the forced update is
	// undefined, do not update.
	ok = IsDataFeedUpdatable(big.NewInt(100), now-10, big.NewInt(200), now, now, params(0, 1_000_000), nil)
	require.False(t, ok)
}

func TestIsDataFeedUpdatable_HeartbeatForcedUpdate(t *testing.T) {
	now := int64(100_000)
	p := params(60, 1_000_000)

	// On-chain timestamp past the heartbeat window: update even with no
	// deviation at all.
	ok := IsDataFeedUpdatable(big.NewInt(100), now-120, big.NewInt(100), now, now, p, nil)
	require.True(t, ok)
}

func TestIsDataFeedUpdatable_ZeroDenominator(t *testing.T) {
	now := int64(1000)
	p := params(86400, 1_000_000)

	// Reference equals on-chain value: maximal deviation, updatable.
	p.DeviationReference = big.NewInt(10_000)
	ok := IsDataFeedUpdatable(big.NewInt(10_000), now-10, big.NewInt(10_001), now, now, p, nil)
	require.True(t, ok)

	// Unless there is no move at all.
	ok = IsDataFeedUpdatable(big.NewInt(10_000), now-10, big.NewInt(10_000), now, now, p, nil)
	require.False(t, ok)
}
