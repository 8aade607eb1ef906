// Package fetcher polls signed-data APIs for attested data points and
// writes the ones belonging to active beacons into the shared data-point
// store.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nebulafi/feedkeeper/internal/app/domain/datafeed"
	"github.com/nebulafi/feedkeeper/internal/app/domain/signeddata"
	"github.com/nebulafi/feedkeeper/internal/app/metrics"
	"github.com/nebulafi/feedkeeper/internal/app/state"
	"github.com/nebulafi/feedkeeper/internal/app/system"
	"github.com/nebulafi/feedkeeper/pkg/logger"
)

// timeoutHeadroom is added to the fetch interval to form the hard per-URL
// ceiling. A slow source must never stall the next polling cycle.
const timeoutHeadroom = time.Second

var _ system.Service = (*Service)(nil)

// Service is the signed-data fetcher. It runs one repeating timer,
// independent of per-chain scheduling; Start is idempotent.
type Service struct {
	st       *state.State
	log      *logger.Logger
	interval time.Duration
	client   *http.Client

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates a signed-data fetcher polling at the given interval.
func New(st *state.State, interval time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("signed-data-fetcher")
	}
	s := &Service{
		st:       st,
		log:      log,
		interval: interval,
	}
	// The attempt timeout is kept below the per-URL ceiling so a single
	// overrun still settles before the ceiling cuts it off.
	s.client = &http.Client{Timeout: s.urlTimeout() / 2}
	return s
}

func (s *Service) Name() string { return "signed-data-fetcher" }

func (s *Service) urlTimeout() time.Duration {
	return s.interval + timeoutHeadroom
}

// Start registers the fetch timer. Calling Start while running is a no-op.
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

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.tick(runCtx)
			}
		}
	}()

	s.log.WithField("interval", s.interval).Info("signed-data fetcher started")
	return nil
}

// Stop cancels the fetch timer. In-flight fetches complete or hit their
// own timeouts; no forced abort.
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

	s.log.Info("signed-data fetcher stopped")
	return nil
}

func (s *Service) tick(ctx context.Context) {
	urls := s.st.SignedAPIURLs()
	active := s.st.ActiveBeacons()

	// All-settled fan-out: every URL fetch runs to completion and
	// failures never short-circuit siblings.
	var wg sync.WaitGroup
	for _, entry := range urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			s.fetchOne(ctx, url, active)
		}(entry.URL)
	}
	wg.Wait()

	activeKeys := make(map[string]struct{}, len(active))
	for key := range active {
		activeKeys[key] = struct{}{}
	}
	if removed := s.st.Points().Purge(activeKeys); removed > 0 {
		s.log.WithField("removed", removed).Debug("purged data points for inactive beacons")
	}
}

// signedResponse is the expected signed-data API body.
type signedResponse struct {
	Data map[string]signedPoint `json:"data"`
}

type signedPoint struct {
	Airnode    string `json:"airnode"`
	TemplateID string `json:"templateId"`
	Value      string `json:"value"`
	Timestamp  int64  `json:"timestamp"`
}

func (s *Service) fetchOne(ctx context.Context, url string, active map[string]datafeed.Beacon) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.urlTimeout())
	defer cancel()

	payload, err := s.get(ctx, url)
	if err != nil {
		metrics.RecordSignedDataFetch(time.Since(start), false)
		s.log.WithError(err).WithField("url", url).Warn("signed-data fetch failed")
		return
	}
	metrics.RecordSignedDataFetch(time.Since(start), true)
	s.st.TouchSignedAPIURL(url, time.Now().UnixMilli())

	accepted, rejected := 0, 0
	for key, raw := range payload.Data {
		point, err := decodePoint(raw)
		if err != nil {
			rejected++
			s.log.WithError(err).
				WithField("url", url).
				WithField("key", key).
				Warn("invalid signed data point")
			continue
		}
		if _, ok := active[point.Key()]; !ok {
			rejected++
			continue
		}
		if s.st.Points().Upsert(point) {
			accepted++
		}
	}
	metrics.RecordDataPoints(accepted, rejected)
}

func (s *Service) get(ctx context.Context, url string) (*signedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("signed-data status %d", resp.StatusCode)
	}

	var payload signedResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if payload.Data == nil {
		return nil, fmt.Errorf("response missing data object")
	}
	return &payload, nil
}

func decodePoint(raw signedPoint) (signeddata.Point, error) {
	if raw.Airnode == "" || raw.TemplateID == "" {
		return signeddata.Point{}, fmt.Errorf("point missing airnode or template")
	}
	value, err := signeddata.ParseValue(raw.Value)
	if err != nil {
		return signeddata.Point{}, err
	}
	if raw.Timestamp <= 0 {
		return signeddata.Point{}, fmt.Errorf("point timestamp %d not positive", raw.Timestamp)
	}
	return signeddata.Point{
		Airnode:    raw.Airnode,
		TemplateID: raw.TemplateID,
		Value:      value,
		Timestamp:  raw.Timestamp,
	}, nil
}
