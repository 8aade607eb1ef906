// Package update implements the decision logic for whether a data feed is
// worth updating on chain: the staleness (heartbeat) and deviation rules
// mirrored from the feed contract's integer arithmetic.
package update

import (
	"math/big"

	"github.com/nebulafi/feedkeeper/internal/app/domain/datafeed"
	"github.com/nebulafi/feedkeeper/pkg/logger"
)

// DeviationScale is the fixed-point scale of deviation percentages: a
// deviation of 1% is 1e6 at this scale (100% == 1e8).
var DeviationScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(8), nil)

// maximalDeviation is returned when the deviation reference equals the
// on-chain value, making the percentage undefined. It exceeds any
// representable threshold.
var maximalDeviation = new(big.Int).Lsh(big.NewInt(1), 256)

// CalculateDeviationPercentage returns the scaled deviation of updated
// from initial, measured against the given reference point. A zero delta
// short-circuits to zero regardless of the reference.
func CalculateDeviationPercentage(initial, updated, reference *big.Int) *big.Int {
	if reference == nil {
		reference = big.NewInt(0)
	}

	delta := new(big.Int).Sub(updated, initial)
	if delta.Sign() == 0 {
		return big.NewInt(0)
	}

	denominator := new(big.Int).Sub(reference, initial)
	if denominator.Sign() == 0 {
		return new(big.Int).Set(maximalDeviation)
	}

	percentage := new(big.Int).Mul(delta.Abs(delta), DeviationScale)
	return percentage.Quo(percentage, denominator.Abs(denominator))
}

// IsDataFeedUpdatable applies the on-chain update rule: stale or equal
// off-chain data never updates; an uninitialized slot always updates; a
// fresh slot updates on sufficient deviation; a slot past its heartbeat
// updates unconditionally. Zero heartbeat or zero threshold make the
// corresponding contract arithmetic undefined and resolve to "do not
// update".
func IsDataFeedUpdatable(
	onChainValue *big.Int,
	onChainTimestamp int64,
	offChainValue *big.Int,
	offChainTimestamp int64,
	nowUnix int64,
	params datafeed.UpdateParameters,
	log *logger.Logger,
) bool {
	if log == nil {
		log = logger.NewDefault("update")
	}

	if offChainTimestamp <= onChainTimestamp {
		if offChainTimestamp < onChainTimestamp {
			log.WithField("on_chain_timestamp", onChainTimestamp).
				WithField("off_chain_timestamp", offChainTimestamp).
				Warn("off-chain data older than on-chain state")
		}
		return false
	}

	// An uninitialized slot is always worth writing.
	if onChainTimestamp == 0 {
		return true
	}

	if offChainValue == nil {
		return false
	}
	if onChainValue == nil {
		log.WithField("on_chain_timestamp", onChainTimestamp).
			Warn("on-chain value outside representable range")
		return false
	}

	isFreshEnough := onChainTimestamp > nowUnix-params.HeartbeatInterval
	if isFreshEnough {
		threshold := params.DeviationThresholdInPercentage
		if threshold == nil || threshold.Sign() == 0 {
			log.Info("zero deviation threshold, update skipped")
			return false
		}
		deviation := CalculateDeviationPercentage(onChainValue, offChainValue, params.DeviationReference)
		return deviation.Cmp(threshold) >= 0
	}

	if params.HeartbeatInterval == 0 {
		log.Info("zero heartbeat interval, update skipped")
		return false
	}
	return true
}
