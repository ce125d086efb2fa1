// Package capture persists classified signals: append to the durable log,
// then one atomic delta against the corridor aggregate. Failures on this
// path are logged and swallowed; losing an occasional signal is acceptable,
// blocking or breaking the emitting flow is not.
package capture

import (
	"context"

	"go.uber.org/zap"

	"github.com/psspl2021/global-trade-hub-sub009/internal/contracts"
)

type Store interface {
	AppendSignal(ctx context.Context, signal contracts.Signal) (string, error)
	ApplyDeltas(ctx context.Context, key contracts.CorridorKey, deltas contracts.Deltas) error
}

type Throttle interface {
	Allow(ctx context.Context, identity string) (bool, error)
}

type Service struct {
	store    Store
	throttle Throttle
	log      *zap.Logger
}

func NewService(store Store, throttle Throttle, log *zap.Logger) *Service {
	return &Service{store: store, throttle: throttle, log: log}
}

// Capture runs one signal through throttle, log append, and aggregate
// update. It returns whether the signal was persisted, never an error.
func (s *Service) Capture(ctx context.Context, signal contracts.Signal) bool {
	allowed, err := s.throttle.Allow(ctx, Identity(signal))
	if err != nil {
		// throttle outage must not drop traffic on the floor
		s.log.Warn("capture throttle unavailable, admitting signal", zap.Error(err))
		allowed = true
	}
	if !allowed {
		return false
	}

	id, err := s.store.AppendSignal(ctx, signal)
	if err != nil {
		s.log.Error("append signal failed",
			zap.String("corridor", signal.Corridor().String()),
			zap.String("source_type", string(signal.SourceType)),
			zap.Error(err))
		return false
	}

	if err := s.store.ApplyDeltas(ctx, signal.Corridor(), DeltasFor(signal)); err != nil {
		s.log.Error("apply corridor deltas failed",
			zap.String("signal_id", id),
			zap.String("corridor", signal.Corridor().String()),
			zap.Error(err))
		return false
	}

	return true
}

// DeltasFor maps one signal onto its aggregate adjustment.
func DeltasFor(signal contracts.Signal) contracts.Deltas {
	deltas := contracts.Deltas{
		SignalCount: 1,
		IntentScore: int64(signal.IntentWeight),
	}
	switch signal.SourceType {
	case contracts.SourceSEOVisit:
		deltas.PageViews = 1
	case contracts.SourceRFQInterest:
		deltas.InterestCount = 1
	case contracts.SourceRFQSubmitted:
		deltas.RFQCount = 1
	}
	return deltas
}

// Identity keys the coarse capture throttle. Scroll re-emits carry their
// own slot so the dwell enrichment is not swallowed by the initial visit.
func Identity(signal contracts.Signal) string {
	id := signal.SessionID + "|" + signal.Corridor().String() + "|" + signal.Product + "|" + string(signal.SourceType)
	if signal.ScrollDepth != nil {
		id += "|scroll"
	}
	return id
}
