package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/psspl2021/global-trade-hub-sub009/internal/contracts"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AppendSignal inserts one signal into the append-only log. Replays of the
// same id are a no-op, matching the log's write-once contract.
func (r *Repository) AppendSignal(ctx context.Context, signal contracts.Signal) (string, error) {
	if signal.ID == "" {
		signal.ID = uuid.NewString()
	}

	_, err := r.pool.Exec(ctx, `
        INSERT INTO signals
            (id, source_type, page_type, category, subcategory, product,
             country_code, country_name, region, geo_detected, scroll_depth, session_id, occurred_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        ON CONFLICT (id) DO NOTHING
    `, signal.ID, signal.SourceType, signal.PageType, signal.Category, signal.Subcategory,
		signal.Product, signal.CountryCode, signal.CountryName, signal.Region,
		signal.GeoDetected, signal.ScrollDepth, signal.SessionID, signal.OccurredAt)
	if err != nil {
		return "", fmt.Errorf("append signal: %w", err)
	}

	return signal.ID, nil
}

// ApplyDeltas moves a corridor's counters in one server-side statement.
// Concurrent captures for the same corridor serialize on the row; there is
// no client-side read-modify-write anywhere on this path.
func (r *Repository) ApplyDeltas(ctx context.Context, key contracts.CorridorKey, deltas contracts.Deltas) error {
	_, err := r.pool.Exec(ctx, `
        INSERT INTO corridor_aggregates
            (category, subcategory, country_code,
             signal_count, intent_score, page_views, interest_count, rfq_count, last_signal_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
        ON CONFLICT (category, subcategory, country_code) DO UPDATE SET
            signal_count   = corridor_aggregates.signal_count + EXCLUDED.signal_count,
            intent_score   = corridor_aggregates.intent_score + EXCLUDED.intent_score,
            page_views     = corridor_aggregates.page_views + EXCLUDED.page_views,
            interest_count = corridor_aggregates.interest_count + EXCLUDED.interest_count,
            rfq_count      = corridor_aggregates.rfq_count + EXCLUDED.rfq_count,
            last_signal_at = NOW()
    `, key.Category, key.Subcategory, key.CountryCode,
		deltas.SignalCount, deltas.IntentScore, deltas.PageViews, deltas.InterestCount, deltas.RFQCount)
	if err != nil {
		return fmt.Errorf("apply corridor deltas: %w", err)
	}

	return nil
}

const aggregateColumns = `
        category, subcategory, country_code,
        signal_count, intent_score, page_views, interest_count, rfq_count,
        last_signal_at, lane_active`

func scanAggregate(row pgx.Row) (contracts.CorridorAggregate, error) {
	var agg contracts.CorridorAggregate
	err := row.Scan(
		&agg.Category, &agg.Subcategory, &agg.CountryCode,
		&agg.SignalCount, &agg.IntentScore, &agg.PageViews, &agg.InterestCount, &agg.RFQCount,
		&agg.LastSignalAt, &agg.LaneActive,
	)
	return agg, err
}

// GetAggregate returns nil when no signal has ever touched the corridor.
func (r *Repository) GetAggregate(ctx context.Context, key contracts.CorridorKey) (*contracts.CorridorAggregate, error) {
	row := r.pool.QueryRow(ctx, `
        SELECT `+aggregateColumns+`
        FROM corridor_aggregates
        WHERE category = $1 AND subcategory = $2 AND country_code = $3
    `, key.Category, key.Subcategory, key.CountryCode)

	agg, err := scanAggregate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read aggregate: %w", err)
	}
	return &agg, nil
}

func (r *Repository) ListAggregates(ctx context.Context, category, countryCode string, limit int) ([]contracts.CorridorAggregate, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}

	rows, err := r.pool.Query(ctx, `
        SELECT `+aggregateColumns+`
        FROM corridor_aggregates
        WHERE ($1 = '' OR category = $1)
          AND ($2 = '' OR country_code = $2)
        ORDER BY intent_score DESC, last_signal_at DESC NULLS LAST
        LIMIT $3
    `, category, countryCode, limit)
	if err != nil {
		return nil, fmt.Errorf("query aggregates: %w", err)
	}
	defer rows.Close()

	aggregates := make([]contracts.CorridorAggregate, 0, limit)
	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		aggregates = append(aggregates, agg)
	}

	return aggregates, rows.Err()
}

// TrendWindow counts corridor signals in the trailing window and the one
// immediately before it.
func (r *Repository) TrendWindow(ctx context.Context, key contracts.CorridorKey, window time.Duration) (recent, prior int64, err error) {
	interval := intervalArg(window)
	err = r.pool.QueryRow(ctx, `
        SELECT
            COUNT(*) FILTER (WHERE occurred_at >= NOW() - $4::interval),
            COUNT(*) FILTER (WHERE occurred_at <  NOW() - $4::interval
                         AND occurred_at >= NOW() - ($4::interval * 2))
        FROM signals
        WHERE category = $1 AND subcategory = $2 AND country_code = $3
          AND occurred_at >= NOW() - ($4::interval * 2)
    `, key.Category, key.Subcategory, key.CountryCode, interval).Scan(&recent, &prior)
	if err != nil {
		return 0, 0, fmt.Errorf("trend window: %w", err)
	}
	return recent, prior, nil
}

// RecentRFQCount counts RFQ submissions for the corridor inside the window.
func (r *Repository) RecentRFQCount(ctx context.Context, key contracts.CorridorKey, window time.Duration) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `
        SELECT COUNT(*)
        FROM signals
        WHERE category = $1 AND subcategory = $2 AND country_code = $3
          AND source_type = $4
          AND occurred_at >= NOW() - $5::interval
    `, key.Category, key.Subcategory, key.CountryCode, contracts.SourceRFQSubmitted, intervalArg(window)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("recent rfq count: %w", err)
	}
	return count, nil
}

// SetLaneActive flips the fulfillment-lane flag on an existing corridor.
func (r *Repository) SetLaneActive(ctx context.Context, key contracts.CorridorKey, active bool) error {
	cmd, err := r.pool.Exec(ctx, `
        UPDATE corridor_aggregates
        SET lane_active = $4
        WHERE category = $1 AND subcategory = $2 AND country_code = $3
    `, key.Category, key.Subcategory, key.CountryCode, active)
	if err != nil {
		return fmt.Errorf("set lane active: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DecayIntentScores applies the multiplicative decay to every corridor not
// decayed within the interval. Returns the number of corridors touched.
func (r *Repository) DecayIntentScores(ctx context.Context, factor float64, interval time.Duration) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `
        UPDATE corridor_aggregates
        SET intent_score  = FLOOR(intent_score * $1),
            last_decay_at = NOW()
        WHERE intent_score > 0
          AND (last_decay_at IS NULL OR last_decay_at <= NOW() - $2::interval)
    `, factor, intervalArg(interval))
	if err != nil {
		return 0, fmt.Errorf("decay intent scores: %w", err)
	}
	return cmd.RowsAffected(), nil
}

// ExpireAlerts marks overdue rows so the partial unique index stops
// guarding their dedup key. Rows are kept for audit, not deleted.
func (r *Repository) ExpireAlerts(ctx context.Context) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `
        UPDATE demand_alerts
        SET expired = TRUE
        WHERE NOT expired AND expires_at <= NOW()
    `)
	if err != nil {
		return 0, fmt.Errorf("expire alerts: %w", err)
	}
	return cmd.RowsAffected(), nil
}

// InsertAlertIfAbsent inserts unless an unexpired alert already holds the
// (type, category, country) key. The partial unique index makes the
// check-then-insert a single atomic statement, so concurrent evaluator
// runs cannot double-insert.
func (r *Repository) InsertAlertIfAbsent(ctx context.Context, alert contracts.DemandAlert) (bool, error) {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}

	cmd, err := r.pool.Exec(ctx, `
        INSERT INTO demand_alerts
            (id, alert_type, category, country_code, intent_score, rfq_count,
             suggested_action, created_at, expires_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (alert_type, category, country_code) WHERE NOT expired DO NOTHING
    `, alert.ID, alert.Type, alert.Category, alert.CountryCode, alert.IntentScore,
		alert.RFQCount, alert.SuggestedAction, alert.CreatedAt, alert.ExpiresAt)
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}

	return cmd.RowsAffected() == 1, nil
}

func (r *Repository) ListOpenAlerts(ctx context.Context, alertType string, limit int) ([]contracts.DemandAlert, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
        SELECT id, alert_type, category, country_code, intent_score, rfq_count,
               suggested_action, created_at, expires_at, is_read, is_actioned, actioned_by
        FROM demand_alerts
        WHERE NOT expired
          AND expires_at > NOW()
          AND ($1 = '' OR alert_type = $1)
        ORDER BY created_at DESC
        LIMIT $2
    `, alertType, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]contracts.DemandAlert, 0, limit)
	for rows.Next() {
		var alert contracts.DemandAlert
		if err := rows.Scan(
			&alert.ID, &alert.Type, &alert.Category, &alert.CountryCode,
			&alert.IntentScore, &alert.RFQCount, &alert.SuggestedAction,
			&alert.CreatedAt, &alert.ExpiresAt, &alert.IsRead, &alert.IsActioned, &alert.ActionedBy,
		); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}

func (r *Repository) MarkAlertRead(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `
        UPDATE demand_alerts SET is_read = TRUE WHERE id = $1
    `, id)
	if err != nil {
		return fmt.Errorf("mark alert read: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) MarkAlertActioned(ctx context.Context, id, actorID string) error {
	cmd, err := r.pool.Exec(ctx, `
        UPDATE demand_alerts
        SET is_actioned = TRUE, is_read = TRUE, actioned_by = $2
        WHERE id = $1
    `, id, actorID)
	if err != nil {
		return fmt.Errorf("mark alert actioned: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type DashboardSummary struct {
	OpenAlerts      int   `json:"open_alerts"`
	UnreadAlerts    int   `json:"unread_alerts"`
	ActiveCorridors int   `json:"active_corridors"`
	RFQsLast24h     int64 `json:"rfqs_last_24h"`
}

func (r *Repository) DashboardSummary(ctx context.Context) (DashboardSummary, error) {
	var summary DashboardSummary
	err := r.pool.QueryRow(ctx, `
        SELECT
            (SELECT COUNT(*) FROM demand_alerts WHERE NOT expired AND expires_at > NOW()),
            (SELECT COUNT(*) FROM demand_alerts WHERE NOT expired AND expires_at > NOW() AND NOT is_read),
            (SELECT COUNT(*) FROM corridor_aggregates WHERE signal_count > 0),
            (SELECT COUNT(*) FROM signals
             WHERE source_type = $1 AND occurred_at >= NOW() - INTERVAL '24 hours')
    `, contracts.SourceRFQSubmitted).Scan(
		&summary.OpenAlerts, &summary.UnreadAlerts, &summary.ActiveCorridors, &summary.RFQsLast24h)
	if err != nil {
		return DashboardSummary{}, fmt.Errorf("dashboard summary: %w", err)
	}
	return summary, nil
}

func intervalArg(d time.Duration) string {
	return fmt.Sprintf("%f seconds", d.Seconds())
}
