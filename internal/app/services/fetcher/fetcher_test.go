package fetcher

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nebulafi/feedkeeper/internal/app/domain/datafeed"
	"github.com/nebulafi/feedkeeper/internal/app/domain/signeddata"
	"github.com/nebulafi/feedkeeper/internal/app/state"
	"github.com/nebulafi/feedkeeper/pkg/logger"
)

func quietLogger() *logger.Logger {
	log := logger.NewDefault("fetcher-test")
	log.SetOutput(io.Discard)
	return log
}

func stateWithBeacon(t *testing.T) *state.State {
	t.Helper()
	st := state.New()
	st.UpdateFeedDataFeed("ETH/USD", datafeed.DataFeed{ID: "0xfeed", Beacons: []datafeed.Beacon{
		{ID: "0xb1", Airnode: "0xa1", TemplateID: "t1"},
	}})
	return st
}

func TestService_TickStoresActivePoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("expected json accept header, got %q", got)
		}
		fmt.Fprint(w, `{"data": {
			"0xb1": {"airnode": "0xa1", "templateId": "t1", "value": "1234", "timestamp": 100},
			"0xb9": {"airnode": "0xa9", "templateId": "t9", "value": "999", "timestamp": 100}
		}}`)
	}))
	defer srv.Close()

	st := stateWithBeacon(t)
	st.MergeSignedAPIURLs([]state.SignedAPIURL{{URL: srv.URL}})

	svc := New(st, 50*time.Millisecond, quietLogger())
	svc.tick(context.Background())

	point, ok := st.Points().Get("0xa1-t1")
	if !ok || point.Value.Cmp(big.NewInt(1234)) != 0 {
		t.Fatalf("active point not stored: %+v ok=%v", point, ok)
	}
	// The point for the unknown beacon must be filtered out.
	if _, ok := st.Points().Get("0xa9-t9"); ok {
		t.Fatalf("inactive point stored")
	}

	// A successful fetch refreshes lastReceivedMs.
	for _, entry := range st.SignedAPIURLs() {
		if entry.URL == srv.URL && entry.LastReceivedMs == 0 {
			t.Fatalf("lastReceivedMs not refreshed")
		}
	}
}

func TestService_TickDropsMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"nope": true}`)
	}))
	defer srv.Close()

	st := stateWithBeacon(t)
	st.MergeSignedAPIURLs([]state.SignedAPIURL{{URL: srv.URL}})

	svc := New(st, 50*time.Millisecond, quietLogger())
	svc.tick(context.Background())

	if st.Points().Len() != 0 {
		t.Fatalf("points stored from malformed response")
	}
}

func TestService_TickSkipsFailingURL(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": {"0xb1": {"airnode": "0xa1", "templateId": "t1", "value": "7", "timestamp": 3}}}`)
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	st := stateWithBeacon(t)
	st.MergeSignedAPIURLs([]state.SignedAPIURL{{URL: good.URL}, {URL: bad.URL}})

	svc := New(st, 50*time.Millisecond, quietLogger())
	svc.tick(context.Background())

	// The failing URL must not prevent the good one from landing.
	if _, ok := st.Points().Get("0xa1-t1"); !ok {
		t.Fatalf("point from healthy url missing")
	}
}

func TestService_TickPurgesInactivePoints(t *testing.T) {
	st := stateWithBeacon(t)
	// A point for a beacon that is no longer referenced by any feed.
	st.Points().Upsert(pointFor("0xold", "tOld"))
	st.Points().Upsert(pointFor("0xa1", "t1"))

	svc := New(st, 50*time.Millisecond, quietLogger())
	svc.tick(context.Background())

	if _, ok := st.Points().Get("0xold-tOld"); ok {
		t.Fatalf("stale point survived purge")
	}
	if _, ok := st.Points().Get("0xa1-t1"); !ok {
		t.Fatalf("active point purged")
	}
}

func TestService_StartIsIdempotent(t *testing.T) {
	st := stateWithBeacon(t)
	svc := New(st, 10*time.Millisecond, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Second registration while active is a no-op.
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if err := svc.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := svc.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func pointFor(airnode, template string) signeddata.Point {
	return signeddata.Point{
		Airnode:    airnode,
		TemplateID: template,
		Value:      big.NewInt(1),
		Timestamp:  1,
	}
}
