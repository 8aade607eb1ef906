// Package chain provides read access to the remote feed registry: paginated
// batch reads, the active-feed count and a bulk multicall primitive whose
// sub-calls succeed or fail independently.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/nebulafi/feedkeeper/internal/app/domain/datafeed"
	"github.com/nebulafi/feedkeeper/internal/app/domain/signeddata"
)

// Call is one sub-call of a multicall, already encoded for the registry.
type Call struct {
	Data []byte
}

// MulticallResult carries the per-call outcome of a multicall. Successes[i]
// and ReturnData[i] describe calls[i]; a false success leaves the return
// data meaningless.
type MulticallResult struct {
	Successes  []bool
	ReturnData [][]byte
}

// FeedBatchEntry is one decoded registry entry: a feed's composition, its
// current on-chain state, its update policy on this chain and the
// signed-API URL of each beacon (indexed like DataFeed.Beacons).
type FeedBatchEntry struct {
	FeedName         string
	DataFeed         datafeed.DataFeed
	OnChainValue     datafeed.OnChainValue
	UpdateParameters datafeed.UpdateParameters
	SignedAPIURLs    []string
}

// Registry is the remote source of truth for active feeds.
type Registry interface {
	// Count returns the number of currently active feeds.
	Count(ctx context.Context) (uint64, error)
	// ReadPage returns up to limit entries starting at offset.
	ReadPage(ctx context.Context, offset, limit uint64) ([]FeedBatchEntry, error)
	// ReadPageWithCount combines the first page and the total count in a
	// single remote call.
	ReadPageWithCount(ctx context.Context, offset, limit uint64) ([]FeedBatchEntry, uint64, error)
	// TryMulticall executes the calls in one round trip; each sub-call
	// fails independently.
	TryMulticall(ctx context.Context, calls []Call) (MulticallResult, error)
}

// NewReadPageCall encodes a paginated read as a multicall sub-call.
func NewReadPageCall(offset, limit uint64) Call {
	data, _ := json.Marshal(map[string]uint64{"offset": offset, "limit": limit})
	return Call{Data: data}
}

// wire formats ---------------------------------------------------------------

type wireBeacon struct {
	BeaconID     string `json:"beaconId"`
	Airnode      string `json:"airnode"`
	TemplateID   string `json:"templateId"`
	SignedAPIURL string `json:"signedApiUrl"`
}

type wireUpdateParameters struct {
	HeartbeatInterval              int64  `json:"heartbeatInterval"`
	DeviationThresholdInPercentage string `json:"deviationThresholdInPercentage"`
	DeviationReference             string `json:"deviationReference"`
}

type wireEntry struct {
	Name             string               `json:"name"`
	DataFeedID       string               `json:"dataFeedId"`
	Beacons          []wireBeacon         `json:"beacons"`
	Value            string               `json:"value"`
	Timestamp        int64                `json:"timestamp"`
	UpdateParameters wireUpdateParameters `json:"updateParameters"`
}

// DecodeBatch parses the return data of a page read into batch entries.
func DecodeBatch(data []byte) ([]FeedBatchEntry, error) {
	var wire []wireEntry
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}

	entries := make([]FeedBatchEntry, 0, len(wire))
	for _, w := range wire {
		entries = append(entries, decodeEntry(w))
	}
	return entries, nil
}

func decodeEntry(w wireEntry) FeedBatchEntry {
	beacons := make([]datafeed.Beacon, 0, len(w.Beacons))
	urls := make([]string, 0, len(w.Beacons))
	for _, b := range w.Beacons {
		beacons = append(beacons, datafeed.Beacon{
			ID:         b.BeaconID,
			Airnode:    b.Airnode,
			TemplateID: b.TemplateID,
		})
		urls = append(urls, b.SignedAPIURL)
	}

	// Out-of-range values decode to "no value" instead of wrapping.
	onChain := datafeed.OnChainValue{Timestamp: w.Timestamp}
	if v, err := signeddata.ParseValue(w.Value); err == nil {
		onChain.Value = v
	}

	params := datafeed.UpdateParameters{
		HeartbeatInterval: w.UpdateParameters.HeartbeatInterval,
	}
	if threshold, ok := parseBigInt(w.UpdateParameters.DeviationThresholdInPercentage); ok {
		params.DeviationThresholdInPercentage = threshold
	}
	if reference, ok := parseBigInt(w.UpdateParameters.DeviationReference); ok {
		params.DeviationReference = reference
	}

	return FeedBatchEntry{
		FeedName:         w.Name,
		DataFeed:         datafeed.DataFeed{ID: w.DataFeedID, Beacons: beacons},
		OnChainValue:     onChain,
		UpdateParameters: params,
		SignedAPIURLs:    urls,
	}
}

func parseBigInt(raw string) (*big.Int, bool) {
	if raw == "" {
		return nil, false
	}
	v, ok := new(big.Int).SetString(raw, 10)
	return v, ok
}
