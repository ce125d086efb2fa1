package capture

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/psspl2021/global-trade-hub-sub009/internal/contracts"
)

// memStore applies deltas under a lock, mirroring the database's atomic
// upsert-increment contract.
type memStore struct {
	mu         sync.Mutex
	signals    []contracts.Signal
	aggregates map[contracts.CorridorKey]*contracts.CorridorAggregate
	appendErr  error
	deltasErr  error
}

func newMemStore() *memStore {
	return &memStore{aggregates: make(map[contracts.CorridorKey]*contracts.CorridorAggregate)}
}

func (m *memStore) AppendSignal(_ context.Context, s contracts.Signal) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return "", m.appendErr
	}
	m.signals = append(m.signals, s)
	return s.ID, nil
}

func (m *memStore) ApplyDeltas(_ context.Context, key contracts.CorridorKey, d contracts.Deltas) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deltasErr != nil {
		return m.deltasErr
	}
	agg, ok := m.aggregates[key]
	if !ok {
		agg = &contracts.CorridorAggregate{Category: key.Category, Subcategory: key.Subcategory, CountryCode: key.CountryCode}
		m.aggregates[key] = agg
	}
	agg.SignalCount += d.SignalCount
	agg.IntentScore += d.IntentScore
	agg.PageViews += d.PageViews
	agg.InterestCount += d.InterestCount
	agg.RFQCount += d.RFQCount
	return nil
}

func (m *memStore) aggregate(key contracts.CorridorKey) contracts.CorridorAggregate {
	m.mu.Lock()
	defer m.mu.Unlock()
	if agg, ok := m.aggregates[key]; ok {
		return *agg
	}
	return contracts.CorridorAggregate{}
}

// openThrottle admits everything.
type openThrottle struct{}

func (openThrottle) Allow(context.Context, string) (bool, error) { return true, nil }

// onceThrottle admits each identity exactly once, like Redis SETNX.
type onceThrottle struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (t *onceThrottle) Allow(_ context.Context, identity string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.seen == nil {
		t.seen = make(map[string]bool)
	}
	if t.seen[identity] {
		return false, nil
	}
	t.seen[identity] = true
	return true, nil
}

type errThrottle struct{}

func (errThrottle) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func signalOf(source contracts.SourceType, weight int, session string) contracts.Signal {
	return contracts.Signal{
		ID:           session + "-" + string(source),
		SourceType:   source,
		PageType:     contracts.PageBuy,
		Category:     "steel",
		CountryCode:  "AE",
		IntentWeight: weight,
		SessionID:    session,
		OccurredAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCaptureAppliesDeltas(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, openThrottle{}, zap.NewNop())
	key := contracts.CorridorKey{Category: "steel", CountryCode: "AE"}

	require.True(t, svc.Capture(context.Background(), signalOf(contracts.SourceSEOVisit, 1, "s1")))
	agg := store.aggregate(key)
	require.EqualValues(t, 1, agg.SignalCount)
	require.EqualValues(t, 1, agg.IntentScore)
	require.EqualValues(t, 1, agg.PageViews)
	require.EqualValues(t, 0, agg.RFQCount)

	require.True(t, svc.Capture(context.Background(), signalOf(contracts.SourceRFQInterest, 2, "s2")))
	agg = store.aggregate(key)
	require.EqualValues(t, 3, agg.IntentScore)
	require.EqualValues(t, 1, agg.InterestCount)

	require.True(t, svc.Capture(context.Background(), signalOf(contracts.SourceRFQSubmitted, 5, "s3")))
	agg = store.aggregate(key)
	require.EqualValues(t, 8, agg.IntentScore)
	require.EqualValues(t, 1, agg.RFQCount)
	require.EqualValues(t, 3, agg.SignalCount)
}

// rfq_count never exceeds signal_count across any capture sequence.
func TestAggregateInvariant(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, openThrottle{}, zap.NewNop())
	key := contracts.CorridorKey{Category: "steel", CountryCode: "AE"}

	sources := []contracts.SourceType{
		contracts.SourceRFQSubmitted, contracts.SourceSEOVisit, contracts.SourceRFQSubmitted,
		contracts.SourceRFQInterest, contracts.SourceRFQSubmitted, contracts.SourceSEOVisit,
	}
	for i, src := range sources {
		svc.Capture(context.Background(), signalOf(src, 1, "s"+string(rune('a'+i))))
		agg := store.aggregate(key)
		require.LessOrEqual(t, agg.RFQCount, agg.SignalCount)
	}
}

// N concurrent RFQ captures against one corridor lose no updates.
func TestConcurrentCaptures(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, openThrottle{}, zap.NewNop())
	key := contracts.CorridorKey{Category: "steel", CountryCode: "AE"}

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			svc.Capture(context.Background(), signalOf(contracts.SourceRFQSubmitted, 5, "session-"+strconv.Itoa(i)))
		}(i)
	}
	wg.Wait()

	agg := store.aggregate(key)
	require.EqualValues(t, n, agg.RFQCount)
	require.EqualValues(t, n, agg.SignalCount)
	require.EqualValues(t, 5*n, agg.IntentScore)
}

// The same page view replayed within the throttle window persists once.
func TestCaptureThrottleBlocksReplay(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, &onceThrottle{}, zap.NewNop())

	sig := signalOf(contracts.SourceSEOVisit, 1, "s1")
	require.True(t, svc.Capture(context.Background(), sig))
	require.False(t, svc.Capture(context.Background(), sig))

	require.Len(t, store.signals, 1)
	require.EqualValues(t, 1, store.aggregate(sig.Corridor()).SignalCount)
}

func TestScrollReemitHasOwnThrottleSlot(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, &onceThrottle{}, zap.NewNop())

	sig := signalOf(contracts.SourceSEOVisit, 1, "s1")
	require.True(t, svc.Capture(context.Background(), sig))

	depth := 80
	enriched := sig
	enriched.ScrollDepth = &depth
	require.True(t, svc.Capture(context.Background(), enriched))
	require.False(t, svc.Capture(context.Background(), enriched))
}

func TestCaptureSwallowsStoreFailures(t *testing.T) {
	store := newMemStore()
	store.appendErr = errors.New("database unavailable")
	svc := NewService(store, openThrottle{}, zap.NewNop())

	require.False(t, svc.Capture(context.Background(), signalOf(contracts.SourceSEOVisit, 1, "s1")))

	store.appendErr = nil
	store.deltasErr = errors.New("database unavailable")
	require.False(t, svc.Capture(context.Background(), signalOf(contracts.SourceSEOVisit, 1, "s2")))
}

func TestCaptureAdmitsOnThrottleOutage(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, errThrottle{}, zap.NewNop())

	require.True(t, svc.Capture(context.Background(), signalOf(contracts.SourceSEOVisit, 1, "s1")))
	require.Len(t, store.signals, 1)
}
