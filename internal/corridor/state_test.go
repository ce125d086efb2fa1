package corridor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/psspl2021/global-trade-hub-sub009/internal/contracts"
)

func TestDeriveStateLadder(t *testing.T) {
	cases := []struct {
		name string
		agg  contracts.CorridorAggregate
		want State
	}{
		{"empty corridor", contracts.CorridorAggregate{}, StateNoSignal},
		{"views only", contracts.CorridorAggregate{SignalCount: 4, PageViews: 4, IntentScore: 4}, StateDetected},
		{"interest without rfq", contracts.CorridorAggregate{SignalCount: 5, InterestCount: 1, IntentScore: 6}, StateConfirmed},
		{"rfq submitted", contracts.CorridorAggregate{SignalCount: 6, InterestCount: 1, RFQCount: 1, IntentScore: 11}, StateActive},
		{"lane activated", contracts.CorridorAggregate{SignalCount: 6, InterestCount: 1, RFQCount: 1, LaneActive: true}, StateActivated},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DeriveState(tc.agg))
		})
	}
}

// A corridor that has seen buyer interest must not fall back to Detected
// when more page views arrive afterwards.
func TestStateDoesNotRegressUnderNewViews(t *testing.T) {
	agg := contracts.CorridorAggregate{SignalCount: 2, InterestCount: 1, IntentScore: 3}
	require.Equal(t, StateConfirmed, DeriveState(agg))

	for i := 0; i < 50; i++ {
		agg.SignalCount++
		agg.PageViews++
		agg.IntentScore++
		require.Equal(t, StateConfirmed, DeriveState(agg))
	}
}

// First page view, then a CTA click, then an RFQ submission for one
// corridor walks Detected -> Confirmed -> Active with the expected scores.
func TestCommitmentProgression(t *testing.T) {
	agg := contracts.CorridorAggregate{Category: "steel", CountryCode: "AE"}
	require.Equal(t, StateNoSignal, DeriveState(agg))

	agg.SignalCount, agg.PageViews, agg.IntentScore = 1, 1, 1
	require.Equal(t, StateDetected, DeriveState(agg))
	require.EqualValues(t, 1, agg.IntentScore)
	require.EqualValues(t, 0, agg.RFQCount)

	agg.SignalCount, agg.InterestCount, agg.IntentScore = 2, 1, 3
	require.Equal(t, StateConfirmed, DeriveState(agg))
	require.EqualValues(t, 3, agg.IntentScore)

	agg.SignalCount, agg.RFQCount, agg.IntentScore = 3, 1, 8
	require.Equal(t, StateActive, DeriveState(agg))
	require.EqualValues(t, 8, agg.IntentScore)
	require.EqualValues(t, 1, agg.RFQCount)
}

func TestRecommendLane(t *testing.T) {
	require.Equal(t, LaneNone, RecommendLane(StateNoSignal))
	require.Equal(t, LaneNone, RecommendLane(StateDetected))
	require.Equal(t, LaneConsider, RecommendLane(StateConfirmed))
	require.Equal(t, LaneActivate, RecommendLane(StateActive))
	require.Equal(t, LaneActive, RecommendLane(StateActivated))
}

func TestDeriveTrend(t *testing.T) {
	require.Equal(t, TrendUp, DeriveTrend(10, 4))
	require.Equal(t, TrendDown, DeriveTrend(4, 10))
	require.Equal(t, TrendFlat, DeriveTrend(7, 7))
	require.Equal(t, TrendFlat, DeriveTrend(0, 0))
}

func TestDeriveSnapshot(t *testing.T) {
	agg := contracts.CorridorAggregate{SignalCount: 5, InterestCount: 2}
	snap := Derive(agg, 8, 3)
	require.Equal(t, Snapshot{State: StateConfirmed, LaneRecommendation: LaneConsider, Trend: TrendUp}, snap)
}

func TestNormalizeIntent(t *testing.T) {
	require.EqualValues(t, 0, NormalizeIntent(-5))
	require.EqualValues(t, 42, NormalizeIntent(42))
	require.EqualValues(t, 100, NormalizeIntent(100))
	require.EqualValues(t, 100, NormalizeIntent(100000))
}
