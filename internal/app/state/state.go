// Package state holds the shared in-memory process state: the active feed
// set, the signed-API URL collection, the data-point store and gas-price
// bookkeeping. It is created once at startup, mutated for the life of the
// process through narrow named operations, and never persisted.
package state

import (
	"sync"

	"github.com/nebulafi/feedkeeper/internal/app/domain/datafeed"
)

// State is the single shared snapshot all services read and merge into.
// Every mutation is idempotent and monotonic (newest data wins), so a read
// racing a merge sees a stale but consistent view at worst.
type State struct {
	mu    sync.RWMutex
	feeds map[string]*datafeed.Feed
	urls  map[string]int64 // signed-API URL -> last received Unix ms

	points *PointStore
	gas    *GasBook
}

// New creates empty process state.
func New() *State {
	return &State{
		feeds:  make(map[string]*datafeed.Feed),
		urls:   make(map[string]int64),
		points: NewPointStore(),
		gas:    NewGasBook(),
	}
}

// Points returns the shared data-point store.
func (s *State) Points() *PointStore { return s.points }

// Gas returns the shared gas-price book.
func (s *State) Gas() *GasBook { return s.gas }

func (s *State) feedLocked(name string) *datafeed.Feed {
	feed, ok := s.feeds[name]
	if !ok {
		feed = &datafeed.Feed{
			Name:             name,
			OnChainValues:    make(map[string]datafeed.OnChainValue),
			UpdateParameters: make(map[string]datafeed.UpdateParameters),
		}
		s.feeds[name] = feed
	}
	return feed
}

// UpdateFeedDataFeed replaces the feed's composition wholesale. The beacon
// list is copied, not aliased.
func (s *State) UpdateFeedDataFeed(name string, df datafeed.DataFeed) {
	s.mu.Lock()
	defer s.mu.Unlock()

	feed := s.feedLocked(name)
	feed.DataFeed = datafeed.DataFeed{
		ID:      df.ID,
		Beacons: append([]datafeed.Beacon(nil), df.Beacons...),
	}
}

// UpdateFeedOnChainValue records the latest on-chain value read for the
// feed on one chain.
func (s *State) UpdateFeedOnChainValue(name, chainID string, v datafeed.OnChainValue) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.feedLocked(name).OnChainValues[chainID] = v
}

// UpdateFeedUpdateParameters records the feed's update policy on one chain.
func (s *State) UpdateFeedUpdateParameters(name, chainID string, p datafeed.UpdateParameters) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.feedLocked(name).UpdateParameters[chainID] = p
}

// RemoveFeed drops a feed that is no longer served by the registry.
func (s *State) RemoveFeed(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.feeds, name)
}

// Feed returns a copy of the named feed.
func (s *State) Feed(name string) (datafeed.Feed, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	feed, ok := s.feeds[name]
	if !ok {
		return datafeed.Feed{}, false
	}
	return copyFeed(feed), true
}

// Feeds returns a copy of every known feed.
func (s *State) Feeds() []datafeed.Feed {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]datafeed.Feed, 0, len(s.feeds))
	for _, feed := range s.feeds {
		out = append(out, copyFeed(feed))
	}
	return out
}

// ActiveBeacons returns the beacon set referenced by the current feeds,
// keyed by (airnode, template).
func (s *State) ActiveBeacons() map[string]datafeed.Beacon {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make(map[string]datafeed.Beacon)
	for _, feed := range s.feeds {
		for _, beacon := range feed.DataFeed.Beacons {
			active[beacon.Key()] = beacon
		}
	}
	return active
}

// MergeSignedAPIURLs unions the incoming URL entries into the collection,
// keeping the freshest lastReceivedMs per URL.
func (s *State) MergeSignedAPIURLs(entries []SignedAPIURL) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mergeSignedAPIURLs(s.urls, entries)
}

// TouchSignedAPIURL records a successful receipt from the URL.
func (s *State) TouchSignedAPIURL(url string, nowMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.urls[url]; !ok || nowMs > last {
		s.urls[url] = nowMs
	}
}

// SignedAPIURLs returns the deduplicated URL collection.
func (s *State) SignedAPIURLs() []SignedAPIURL {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SignedAPIURL, 0, len(s.urls))
	for url, last := range s.urls {
		out = append(out, SignedAPIURL{URL: url, LastReceivedMs: last})
	}
	return out
}

func copyFeed(feed *datafeed.Feed) datafeed.Feed {
	out := datafeed.Feed{
		Name: feed.Name,
		DataFeed: datafeed.DataFeed{
			ID:      feed.DataFeed.ID,
			Beacons: append([]datafeed.Beacon(nil), feed.DataFeed.Beacons...),
		},
		OnChainValues:    make(map[string]datafeed.OnChainValue, len(feed.OnChainValues)),
		UpdateParameters: make(map[string]datafeed.UpdateParameters, len(feed.UpdateParameters)),
	}
	for chainID, v := range feed.OnChainValues {
		out.OnChainValues[chainID] = v
	}
	for chainID, p := range feed.UpdateParameters {
		out.UpdateParameters[chainID] = p
	}
	return out
}
