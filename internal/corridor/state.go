// Package corridor derives the lifecycle state, lane recommendation, and
// trend of a demand corridor from its aggregate counters. Derivation is
// pure and recomputed on every read; nothing here is stored back.
package corridor

import "github.com/psspl2021/global-trade-hub-sub009/internal/contracts"

type State string

const (
	StateNoSignal  State = "no_signal"
	StateDetected  State = "detected"
	StateConfirmed State = "confirmed"
	StateActive    State = "active"
	StateActivated State = "activated"
)

type LaneRecommendation string

const (
	LaneNone     LaneRecommendation = "no_lane"
	LaneConsider LaneRecommendation = "consider_activation"
	LaneActivate LaneRecommendation = "activate_lane"
	LaneActive   LaneRecommendation = "lane_active"
)

type Trend string

const (
	TrendUp   Trend = "up"
	TrendFlat Trend = "flat"
	TrendDown Trend = "down"
)

// Snapshot is the derived, display-safe view of a corridor. Supplier-facing
// surfaces see only this, never the raw counters.
type Snapshot struct {
	State              State              `json:"state"`
	LaneRecommendation LaneRecommendation `json:"lane_recommendation"`
	Trend              Trend              `json:"trend"`
}

// DeriveState ranks a corridor by buyer commitment. Interest and RFQ
// counters only ever grow, so a corridor never regresses below Confirmed
// once an RFQ_INTEREST signal exists, no matter how many page views follow.
func DeriveState(agg contracts.CorridorAggregate) State {
	switch {
	case agg.SignalCount == 0:
		return StateNoSignal
	case agg.LaneActive:
		return StateActivated
	case agg.RFQCount > 0:
		return StateActive
	case agg.InterestCount > 0:
		return StateConfirmed
	default:
		return StateDetected
	}
}

func RecommendLane(state State) LaneRecommendation {
	switch state {
	case StateConfirmed:
		return LaneConsider
	case StateActive:
		return LaneActivate
	case StateActivated:
		return LaneActive
	default:
		return LaneNone
	}
}

// DeriveTrend compares signal counts across a trailing window and the one
// before it.
func DeriveTrend(recent, prior int64) Trend {
	switch {
	case recent > prior:
		return TrendUp
	case recent < prior:
		return TrendDown
	default:
		return TrendFlat
	}
}

func Derive(agg contracts.CorridorAggregate, recent, prior int64) Snapshot {
	state := DeriveState(agg)
	return Snapshot{
		State:              state,
		LaneRecommendation: RecommendLane(state),
		Trend:              DeriveTrend(recent, prior),
	}
}

// NormalizeIntent maps the unbounded accumulating intent score onto the
// 0-100 alerting scale.
func NormalizeIntent(raw int64) int64 {
	if raw < 0 {
		return 0
	}
	if raw > 100 {
		return 100
	}
	return raw
}
