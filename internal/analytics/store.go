package analytics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/payment-router/internal/events"
)

// Store persists recorded payment events and answers aggregate queries. The
// routing core is not the system of record for payments; this table only backs
// operational reporting.
type Store struct {
	Pool *pgxpool.Pool
}

// RecordEvent appends one domain event to the reporting table.
func (s *Store) RecordEvent(ctx context.Context, event events.Event) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO payment_events (id, topic, provider, payment_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		event.ID, event.Topic, event.Provider, event.PaymentID, []byte(event.Payload), event.OccurredAt,
	)
	return err
}

// ProviderSummary aggregates outcomes for one provider inside a window.
type ProviderSummary struct {
	Provider  string `json:"provider"`
	Total     int64  `json:"total"`
	Succeeded int64  `json:"succeeded"`
	Failed    int64  `json:"failed"`
}

// Summary computes the per-provider breakdown between from (inclusive) and to
// (exclusive).
func (s *Store) Summary(ctx context.Context, from, to time.Time) ([]ProviderSummary, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT provider,
		       COUNT(*) FILTER (WHERE topic = 'payment.created') AS total,
		       COUNT(*) FILTER (WHERE topic = 'payment.succeeded') AS succeeded,
		       COUNT(*) FILTER (WHERE topic IN ('payment.failed', 'payment.canceled')) AS failed
		FROM payment_events
		WHERE occurred_at >= $1 AND occurred_at < $2 AND provider <> ''
		GROUP BY provider
		ORDER BY provider`,
		from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProviderSummary
	for rows.Next() {
		var row ProviderSummary
		if err := rows.Scan(&row.Provider, &row.Total, &row.Succeeded, &row.Failed); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Recorder adapts the store to the event bus notifier contract.
type Recorder struct {
	Store *Store
}

// Notify implements events.Notifier.
func (r Recorder) Notify(ctx context.Context, event events.Event) error {
	if r.Store == nil {
		return nil
	}
	return r.Store.RecordEvent(ctx, event)
}
