// Package datafeed defines the core feed model: named feeds composed of
// beacons, their on-chain state and the per-chain update policy.
package datafeed

import (
	"math/big"
)

// Beacon is the atomic unit of attested data: one data source (airnode)
// reporting for one template.
type Beacon struct {
	ID         string
	Airnode    string
	TemplateID string
}

// Key returns the (airnode, template) identity a signed data point is
// matched against.
func (b Beacon) Key() string {
	return b.Airnode + "-" + b.TemplateID
}

// DataFeed is the decoded composite identifier plus the ordered beacon set
// a feed aggregates over.
type DataFeed struct {
	ID      string
	Beacons []Beacon
}

// UpdateParameters is the on-chain update policy for one feed on one chain.
type UpdateParameters struct {
	// HeartbeatInterval is the maximum tolerated staleness in seconds
	// before an update is forced regardless of deviation.
	HeartbeatInterval int64
	// DeviationThresholdInPercentage is the scaled minimum deviation
	// (see update.DeviationScale) required to justify an update.
	DeviationThresholdInPercentage *big.Int
	// DeviationReference shifts the reference point of the deviation
	// calculation away from the current on-chain value.
	DeviationReference *big.Int
}

// OnChainValue is the latest value/timestamp read from the feed contract.
// A nil Value means the decoded beacon value was out of range or absent.
type OnChainValue struct {
	Value     *big.Int
	Timestamp int64
}

// Feed associates a feed name with its composition. On-chain state and
// update parameters are tracked per chain, since the same feed can carry a
// different policy on every chain it is served on.
type Feed struct {
	Name             string
	DataFeed         DataFeed
	OnChainValues    map[string]OnChainValue     // chain ID -> latest read
	UpdateParameters map[string]UpdateParameters // chain ID -> policy
}
