// Package scheduler runs the per-chain, per-provider update-feed cycles:
// staggered registry batch reads merged into process state, followed by
// update-necessity evaluation of the merged feeds.
package scheduler

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nebulafi/feedkeeper/internal/app/domain/datafeed"
	"github.com/nebulafi/feedkeeper/internal/app/metrics"
	"github.com/nebulafi/feedkeeper/internal/app/services/update"
	"github.com/nebulafi/feedkeeper/internal/app/state"
	"github.com/nebulafi/feedkeeper/internal/app/system"
	"github.com/nebulafi/feedkeeper/internal/chain"
	"github.com/nebulafi/feedkeeper/pkg/logger"
)

// Provider is one RPC provider serving a chain's registry.
type Provider struct {
	Name     string
	Registry chain.Registry
}

// Chain describes one scheduled chain: its providers, the registry page
// size and the update interval every provider loops on.
type Chain struct {
	ID             string
	UpdateInterval time.Duration
	BatchSize      uint64
	Providers      []Provider
	// DeviationThresholdCoefficient scales registry-reported deviation
	// thresholds; zero or one leaves them unchanged.
	DeviationThresholdCoefficient int64
}

var _ system.Service = (*Service)(nil)

// Service drives all chain/provider scheduling loops.
type Service struct {
	st     *state.State
	chains []Chain
	stager update.Stager
	log    *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates the update-feed scheduler.
func New(st *state.State, chains []Chain, stager update.Stager, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("update-feed-scheduler")
	}
	return &Service{
		st:     st,
		chains: chains,
		stager: stager,
		log:    log,
	}
}

func (s *Service) Name() string { return "update-feed-scheduler" }

// Start launches one loop per chain and provider. Provider k's loop is
// delayed k * interval/providerCount so sibling providers spread their RPC
// load across the interval instead of bursting together.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	for _, ch := range s.chains {
		providerCount := len(ch.Providers)
		for i, provider := range ch.Providers {
			startDelay := time.Duration(i) * ch.UpdateInterval / time.Duration(providerCount)
			s.wg.Add(1)
			go s.runLoop(runCtx, ch, provider, startDelay)
		}
	}

	s.log.WithField("chains", len(s.chains)).Info("update-feed scheduler started")
	return nil
}

// Stop cancels all loops and waits for in-flight cycles to settle.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Info("update-feed scheduler stopped")
	return nil
}

func (s *Service) runLoop(ctx context.Context, ch Chain, provider Provider, startDelay time.Duration) {
	defer s.wg.Done()

	if !sleepCtx(ctx, startDelay) {
		return
	}

	ticker := time.NewTicker(ch.UpdateInterval)
	defer ticker.Stop()

	s.runCycle(ctx, ch, provider)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx, ch, provider)
		}
	}
}

// runCycle performs one staggered read of the whole active feed set. All
// failures are logged and swallowed; the next tick is the retry.
func (s *Service) runCycle(ctx context.Context, ch Chain, provider Provider) {
	cycleStart := time.Now()
	log := s.log.WithField("chain", ch.ID).
		WithField("provider", provider.Name).
		WithField("cycle", uuid.NewString())

	ctx, cancel := context.WithTimeout(ctx, ch.UpdateInterval)
	defer cancel()

	// First page and total count in one combined call. Without the count
	// nothing can be planned, so a failure aborts the whole cycle.
	entries, total, err := provider.Registry.ReadPageWithCount(ctx, 0, ch.BatchSize)
	if err != nil {
		log.WithError(err).Error("first registry batch failed, aborting cycle")
		metrics.RecordSchedulerCycle(ch.ID, provider.Name, false)
		return
	}
	metrics.SetActiveFeeds(ch.ID, total)
	metrics.RecordSchedulerBatch(ch.ID, provider.Name, true)
	s.mergeBatch(ch, provider, entries, log)

	batchesCount := int((total + ch.BatchSize - 1) / ch.BatchSize)
	if batchesCount <= 1 {
		metrics.RecordSchedulerCycle(ch.ID, provider.Name, true)
		return
	}

	// Spread the remaining reads across the interval. The first batch
	// already consumed part of the first stagger window.
	staggerTime := ch.UpdateInterval / time.Duration(batchesCount)
	firstBatchDuration := time.Since(cycleStart)
	if !sleepCtx(ctx, staggerTime-firstBatchDuration) {
		return
	}

	var wg sync.WaitGroup
	for batchIndex := 1; batchIndex < batchesCount; batchIndex++ {
		wg.Add(1)
		go func(batchIndex int) {
			defer wg.Done()
			if !sleepCtx(ctx, time.Duration(batchIndex-1)*staggerTime) {
				return
			}
			s.fetchBatch(ctx, ch, provider, batchIndex, log)
		}(batchIndex)
	}
	wg.Wait()

	metrics.RecordSchedulerCycle(ch.ID, provider.Name, true)
}

// fetchBatch reads one later page through the registry multicall and
// merges it. A failed page only drops this batch's feeds for this cycle.
func (s *Service) fetchBatch(ctx context.Context, ch Chain, provider Provider, batchIndex int, log *logger.Logger) {
	offset := uint64(batchIndex) * ch.BatchSize
	calls := []chain.Call{chain.NewReadPageCall(offset, ch.BatchSize)}

	result, err := provider.Registry.TryMulticall(ctx, calls)
	if err != nil {
		log.WithError(err).WithField("batch", batchIndex).Error("registry batch failed")
		metrics.RecordSchedulerBatch(ch.ID, provider.Name, false)
		return
	}

	for i := range calls {
		if !result.Successes[i] {
			log.WithField("batch", batchIndex).WithField("call", i).Error("registry call reverted")
			metrics.RecordSchedulerBatch(ch.ID, provider.Name, false)
			continue
		}
		entries, err := chain.DecodeBatch(result.ReturnData[i])
		if err != nil {
			log.WithError(err).WithField("batch", batchIndex).Error("registry batch undecodable")
			metrics.RecordSchedulerBatch(ch.ID, provider.Name, false)
			continue
		}
		metrics.RecordSchedulerBatch(ch.ID, provider.Name, true)
		s.mergeBatch(ch, provider, entries, log)
	}
}

// mergeBatch commits one successfully retrieved batch into process state
// and evaluates update necessity for its feeds. Batches merge on arrival,
// in any order; every merge is idempotent and newest-wins.
func (s *Service) mergeBatch(ch Chain, provider Provider, entries []chain.FeedBatchEntry, log *logger.Logger) {
	for _, entry := range entries {
		params := entry.UpdateParameters
		if ch.DeviationThresholdCoefficient > 1 && params.DeviationThresholdInPercentage != nil {
			scaled := new(big.Int).Mul(params.DeviationThresholdInPercentage, big.NewInt(ch.DeviationThresholdCoefficient))
			params.DeviationThresholdInPercentage = scaled
		}

		s.st.UpdateFeedDataFeed(entry.FeedName, entry.DataFeed)
		s.st.UpdateFeedOnChainValue(entry.FeedName, ch.ID, entry.OnChainValue)
		s.st.UpdateFeedUpdateParameters(entry.FeedName, ch.ID, params)
		s.st.MergeSignedAPIURLs(signedAPIURLs(entry))

		s.evaluateFeed(ch, provider, entry.FeedName, log)
	}
}

// signedAPIURLs namespaces each beacon's signed-API URL by its airnode so
// one base URL serving several beacons is tracked per beacon.
func signedAPIURLs(entry chain.FeedBatchEntry) []state.SignedAPIURL {
	urls := make([]state.SignedAPIURL, 0, len(entry.SignedAPIURLs))
	for i, raw := range entry.SignedAPIURLs {
		if raw == "" || i >= len(entry.DataFeed.Beacons) {
			continue
		}
		airnode := entry.DataFeed.Beacons[i].Airnode
		urls = append(urls, state.SignedAPIURL{
			URL: strings.TrimRight(raw, "/") + "/" + airnode,
		})
	}
	return urls
}

// evaluateFeed computes the feed's off-chain value from the data-point
// store and stages an update when the on-chain rule calls for one.
func (s *Service) evaluateFeed(ch Chain, provider Provider, feedName string, log *logger.Logger) {
	if s.stager == nil {
		return
	}

	feed, ok := s.st.Feed(feedName)
	if !ok || len(feed.DataFeed.Beacons) == 0 {
		return
	}

	offChainValue, offChainTimestamp, ok := s.aggregate(feed)
	if !ok {
		// Not every beacon has signed data yet; nothing to decide.
		return
	}

	onChain := feed.OnChainValues[ch.ID]
	params := feed.UpdateParameters[ch.ID]

	updatable := update.IsDataFeedUpdatable(
		onChain.Value,
		onChain.Timestamp,
		offChainValue,
		offChainTimestamp,
		time.Now().Unix(),
		params,
		log,
	)
	if !updatable {
		return
	}

	s.stager.Stage(update.StagedUpdate{
		ChainID:    ch.ID,
		Provider:   provider.Name,
		FeedName:   feed.Name,
		DataFeedID: feed.DataFeed.ID,
		Value:      offChainValue,
		Timestamp:  offChainTimestamp,
	})
	metrics.RecordStagedUpdate(ch.ID)
	log.WithField("feed", feed.Name).
		WithField("value", offChainValue.String()).
		Info("update staged")
}

// aggregate derives the feed's off-chain value and timestamp as the median
// over its beacons' latest signed points. Every beacon must have a point.
func (s *Service) aggregate(feed datafeed.Feed) (*big.Int, int64, bool) {
	values := make([]*big.Int, 0, len(feed.DataFeed.Beacons))
	timestamps := make([]*big.Int, 0, len(feed.DataFeed.Beacons))
	for _, beacon := range feed.DataFeed.Beacons {
		point, ok := s.st.Points().Get(beacon.Key())
		if !ok {
			return nil, 0, false
		}
		values = append(values, point.Value)
		timestamps = append(timestamps, big.NewInt(point.Timestamp))
	}

	value, err := update.CalculateMedian(values)
	if err != nil {
		return nil, 0, false
	}
	timestamp, err := update.CalculateMedian(timestamps)
	if err != nil {
		return nil, 0, false
	}
	return value, timestamp.Int64(), true
}

// sleepCtx waits for d (floored at zero) or until the context is done,
// reporting whether the wait completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
