// Package alerting periodically scans corridor aggregates for threshold
// breaches and records deduplicated demand alerts. It runs on a schedule,
// decoupled from the capture hot path.
package alerting

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/psspl2021/global-trade-hub-sub009/internal/contracts"
	"github.com/psspl2021/global-trade-hub-sub009/internal/corridor"
)

type Store interface {
	ListAggregates(ctx context.Context, category, countryCode string, limit int) ([]contracts.CorridorAggregate, error)
	RecentRFQCount(ctx context.Context, key contracts.CorridorKey, window time.Duration) (int64, error)
	InsertAlertIfAbsent(ctx context.Context, alert contracts.DemandAlert) (bool, error)
	ExpireAlerts(ctx context.Context) (int64, error)
	DecayIntentScores(ctx context.Context, factor float64, interval time.Duration) (int64, error)
}

// Config carries the alerting policy. Thresholds are policy, not contract;
// they arrive from the environment and are validated before the first run.
type Config struct {
	IntentThreshold int64
	RFQSpikeCount   int64
	RFQSpikeWindow  time.Duration
	CrossCountryMin int
	AlertTTL        time.Duration
	DecayFactor     float64
	DecayInterval   time.Duration
	ScanLimit       int
}

func (c Config) Validate() error {
	if c.IntentThreshold <= 0 || c.IntentThreshold > 100 {
		return fmt.Errorf("intent threshold must be in (0,100], got %d", c.IntentThreshold)
	}
	if c.RFQSpikeCount <= 0 {
		return fmt.Errorf("rfq spike count must be positive, got %d", c.RFQSpikeCount)
	}
	if c.RFQSpikeWindow <= 0 {
		return fmt.Errorf("rfq spike window must be positive, got %s", c.RFQSpikeWindow)
	}
	if c.CrossCountryMin < 2 {
		return fmt.Errorf("cross-country minimum must be at least 2, got %d", c.CrossCountryMin)
	}
	if c.AlertTTL <= 0 {
		return fmt.Errorf("alert ttl must be positive, got %s", c.AlertTTL)
	}
	if c.DecayFactor <= 0 || c.DecayFactor > 1 {
		return fmt.Errorf("decay factor must be in (0,1], got %f", c.DecayFactor)
	}
	if c.DecayInterval <= 0 {
		return fmt.Errorf("decay interval must be positive, got %s", c.DecayInterval)
	}
	return nil
}

type Evaluator struct {
	store Store
	cfg   Config
	log   *zap.Logger
	now   func() time.Time
}

func NewEvaluator(store Store, cfg Config, log *zap.Logger) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("alerting config: %w", err)
	}
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = 1000
	}
	return &Evaluator{store: store, cfg: cfg, log: log, now: time.Now}, nil
}

type categoryBreach struct {
	countries map[string]struct{}
	maxIntent int64
	rfqTotal  int64
}

// Evaluate performs one full scan. It is idempotent on unchanged data: the
// insert-if-absent dedup makes a repeat run produce zero new alerts. A
// failure on one corridor is logged and skipped; only failures that void
// the whole scan propagate so the scheduler can retry the run.
func (e *Evaluator) Evaluate(ctx context.Context) ([]contracts.DemandAlert, error) {
	if _, err := e.store.ExpireAlerts(ctx); err != nil {
		return nil, fmt.Errorf("expire alerts: %w", err)
	}

	decayed, err := e.store.DecayIntentScores(ctx, e.cfg.DecayFactor, e.cfg.DecayInterval)
	if err != nil {
		return nil, fmt.Errorf("decay intent scores: %w", err)
	}
	if decayed > 0 {
		e.log.Info("applied intent decay", zap.Int64("corridors", decayed))
	}

	aggregates, err := e.store.ListAggregates(ctx, "", "", e.cfg.ScanLimit)
	if err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}

	var created []contracts.DemandAlert
	breaches := make(map[string]*categoryBreach)

	for _, agg := range aggregates {
		alerts, breached := e.evaluateCorridor(ctx, agg)
		created = append(created, alerts...)

		if breached {
			b, ok := breaches[agg.Category]
			if !ok {
				b = &categoryBreach{countries: make(map[string]struct{})}
				breaches[agg.Category] = b
			}
			b.countries[agg.CountryCode] = struct{}{}
			if norm := corridor.NormalizeIntent(agg.IntentScore); norm > b.maxIntent {
				b.maxIntent = norm
			}
			b.rfqTotal += agg.RFQCount
		}
	}

	created = append(created, e.evaluateCrossCountry(ctx, breaches)...)
	return created, nil
}

func (e *Evaluator) evaluateCorridor(ctx context.Context, agg contracts.CorridorAggregate) (alerts []contracts.DemandAlert, breached bool) {
	now := e.now()
	normalized := corridor.NormalizeIntent(agg.IntentScore)

	if normalized >= e.cfg.IntentThreshold {
		breached = true
		alert := contracts.DemandAlert{
			Type:            contracts.AlertIntentThreshold,
			Category:        agg.Category,
			CountryCode:     agg.CountryCode,
			IntentScore:     normalized,
			RFQCount:        agg.RFQCount,
			SuggestedAction: "Notify suppliers serving this corridor and feature it on the demand board.",
			CreatedAt:       now,
			ExpiresAt:       now.Add(e.cfg.AlertTTL),
		}
		if inserted := e.insert(ctx, alert); inserted != nil {
			alerts = append(alerts, *inserted)
		}
	}

	// cheap precheck on the lifetime counter before hitting the signal log
	if agg.RFQCount >= e.cfg.RFQSpikeCount {
		recent, err := e.store.RecentRFQCount(ctx, agg.Key(), e.cfg.RFQSpikeWindow)
		if err != nil {
			e.log.Warn("rfq window count failed, skipping corridor",
				zap.String("corridor", agg.Key().String()), zap.Error(err))
			return alerts, breached
		}
		if recent >= e.cfg.RFQSpikeCount {
			alert := contracts.DemandAlert{
				Type:            contracts.AlertRFQSpike,
				Category:        agg.Category,
				CountryCode:     agg.CountryCode,
				IntentScore:     normalized,
				RFQCount:        recent,
				SuggestedAction: "Fast-track supplier matching; buyers are submitting RFQs in this corridor now.",
				CreatedAt:       now,
				ExpiresAt:       now.Add(e.cfg.AlertTTL),
			}
			if inserted := e.insert(ctx, alert); inserted != nil {
				alerts = append(alerts, *inserted)
			}
		}
	}

	return alerts, breached
}

func (e *Evaluator) evaluateCrossCountry(ctx context.Context, breaches map[string]*categoryBreach) []contracts.DemandAlert {
	now := e.now()

	var created []contracts.DemandAlert
	for category, b := range breaches {
		if len(b.countries) < e.cfg.CrossCountryMin {
			continue
		}
		alert := contracts.DemandAlert{
			Type:            contracts.AlertCrossCountrySpike,
			Category:        category,
			CountryCode:     contracts.GlobalCountry,
			IntentScore:     b.maxIntent,
			RFQCount:        b.rfqTotal,
			SuggestedAction: "Category demand is spiking across markets; consider a category-wide supplier campaign.",
			CreatedAt:       now,
			ExpiresAt:       now.Add(e.cfg.AlertTTL),
		}
		if inserted := e.insert(ctx, alert); inserted != nil {
			created = append(created, *inserted)
		}
	}
	return created
}

// insert returns the alert when it was newly created, nil when an open
// alert already held the key or the write failed.
func (e *Evaluator) insert(ctx context.Context, alert contracts.DemandAlert) *contracts.DemandAlert {
	inserted, err := e.store.InsertAlertIfAbsent(ctx, alert)
	if err != nil {
		e.log.Warn("insert alert failed", zap.String("dedup_key", alert.DedupKey()), zap.Error(err))
		return nil
	}
	if !inserted {
		return nil
	}
	e.log.Info("alert created",
		zap.String("alert_type", string(alert.Type)),
		zap.String("category", alert.Category),
		zap.String("country", alert.CountryCode),
		zap.Int64("intent_score", alert.IntentScore),
		zap.Int64("rfq_count", alert.RFQCount))
	return &alert
}
