package state

import (
	"math/big"
	"testing"

	"github.com/nebulafi/feedkeeper/internal/app/domain/datafeed"
	"github.com/nebulafi/feedkeeper/internal/app/domain/signeddata"
)

func TestMergeSignedAPIURLs_KeepsFreshest(t *testing.T) {
	s := New()
	s.MergeSignedAPIURLs([]SignedAPIURL{
		{URL: "one", LastReceivedMs: 100},
		{URL: "three", LastReceivedMs: 3},
	})
	s.MergeSignedAPIURLs([]SignedAPIURL{
		{URL: "one", LastReceivedMs: 1},
		{URL: "two", LastReceivedMs: 2},
	})

	got := make(map[string]int64)
	for _, entry := range s.SignedAPIURLs() {
		got[entry.URL] = entry.LastReceivedMs
	}
	want := map[string]int64{"one": 100, "two": 2, "three": 3}
	if len(got) != len(want) {
		t.Fatalf("expected %d urls, got %v", len(want), got)
	}
	for url, last := range want {
		if got[url] != last {
			t.Fatalf("url %s: expected lastReceivedMs %d, got %d", url, last, got[url])
		}
	}
}

func TestPointStore_NewestWins(t *testing.T) {
	store := NewPointStore()

	first := signeddata.Point{Airnode: "0xa", TemplateID: "0t", Value: big.NewInt(100), Timestamp: 10}
	if !store.Upsert(first) {
		t.Fatalf("first upsert rejected")
	}

	older := signeddata.Point{Airnode: "0xa", TemplateID: "0t", Value: big.NewInt(50), Timestamp: 5}
	if store.Upsert(older) {
		t.Fatalf("older point accepted over newer")
	}

	same := signeddata.Point{Airnode: "0xa", TemplateID: "0t", Value: big.NewInt(70), Timestamp: 10}
	if store.Upsert(same) {
		t.Fatalf("equal-timestamp point accepted")
	}

	newer := signeddata.Point{Airnode: "0xa", TemplateID: "0t", Value: big.NewInt(120), Timestamp: 20}
	if !store.Upsert(newer) {
		t.Fatalf("newer point rejected")
	}

	p, ok := store.Get(newer.Key())
	if !ok || p.Value.Cmp(big.NewInt(120)) != 0 {
		t.Fatalf("unexpected stored point: %+v ok=%v", p, ok)
	}
	if store.Len() != 1 {
		t.Fatalf("expected single point per key, got %d", store.Len())
	}
}

func TestPointStore_PurgeInactive(t *testing.T) {
	store := NewPointStore()
	store.Upsert(signeddata.Point{Airnode: "0xa", TemplateID: "t1", Value: big.NewInt(1), Timestamp: 1})
	store.Upsert(signeddata.Point{Airnode: "0xb", TemplateID: "t2", Value: big.NewInt(2), Timestamp: 1})

	active := map[string]struct{}{"0xa-t1": {}}
	if removed := store.Purge(active); removed != 1 {
		t.Fatalf("expected 1 purged, got %d", removed)
	}
	if _, ok := store.Get("0xb-t2"); ok {
		t.Fatalf("inactive point survived purge")
	}
	if _, ok := store.Get("0xa-t1"); !ok {
		t.Fatalf("active point purged")
	}
}

func TestState_FeedMergeOperations(t *testing.T) {
	s := New()

	df := datafeed.DataFeed{ID: "0xfeed", Beacons: []datafeed.Beacon{
		{ID: "0xb1", Airnode: "0xa1", TemplateID: "t1"},
		{ID: "0xb2", Airnode: "0xa2", TemplateID: "t2"},
	}}
	s.UpdateFeedDataFeed("ETH/USD", df)
	s.UpdateFeedOnChainValue("ETH/USD", "31337", datafeed.OnChainValue{Value: big.NewInt(500), Timestamp: 90})
	s.UpdateFeedUpdateParameters("ETH/USD", "31337", datafeed.UpdateParameters{
		HeartbeatInterval:              86400,
		DeviationThresholdInPercentage: big.NewInt(100_000),
	})

	feed, ok := s.Feed("ETH/USD")
	if !ok {
		t.Fatalf("feed not found")
	}
	if len(feed.DataFeed.Beacons) != 2 {
		t.Fatalf("expected 2 beacons, got %d", len(feed.DataFeed.Beacons))
	}
	if feed.OnChainValues["31337"].Timestamp != 90 {
		t.Fatalf("on-chain value not merged: %+v", feed.OnChainValues)
	}
	if feed.UpdateParameters["31337"].HeartbeatInterval != 86400 {
		t.Fatalf("update parameters not merged: %+v", feed.UpdateParameters)
	}

	// Composition upsert is a full replace, not a deep merge.
	s.UpdateFeedDataFeed("ETH/USD", datafeed.DataFeed{ID: "0xfeed2", Beacons: []datafeed.Beacon{
		{ID: "0xb3", Airnode: "0xa3", TemplateID: "t3"},
	}})
	feed, _ = s.Feed("ETH/USD")
	if feed.DataFeed.ID != "0xfeed2" || len(feed.DataFeed.Beacons) != 1 {
		t.Fatalf("composition not replaced: %+v", feed.DataFeed)
	}

	active := s.ActiveBeacons()
	if _, ok := active["0xa3-t3"]; !ok || len(active) != 1 {
		t.Fatalf("unexpected active beacon set: %v", active)
	}

	s.RemoveFeed("ETH/USD")
	if _, ok := s.Feed("ETH/USD"); ok {
		t.Fatalf("feed survived removal")
	}
	if len(s.ActiveBeacons()) != 0 {
		t.Fatalf("removed feed still contributes active beacons")
	}
}

func TestGasBook_RecordAndLast(t *testing.T) {
	g := NewGasBook()
	if _, ok := g.Last("1", "primary"); ok {
		t.Fatalf("expected empty book")
	}
	g.Record("1", "primary", big.NewInt(25_000_000_000))
	price, ok := g.Last("1", "primary")
	if !ok || price.Cmp(big.NewInt(25_000_000_000)) != 0 {
		t.Fatalf("unexpected price: %v ok=%v", price, ok)
	}

	// A nil price neither panics nor clobbers the recorded value.
	g.Record("1", "primary", nil)
	price, ok = g.Last("1", "primary")
	if !ok || price.Cmp(big.NewInt(25_000_000_000)) != 0 {
		t.Fatalf("nil record clobbered price: %v ok=%v", price, ok)
	}
}
