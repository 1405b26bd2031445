// Package repository reads sales activity from Postgres and stores the
// coaching outputs: notifications and the dispatch log.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dealer_coach_backend/internal/coaching/domain"
	"dealer_coach_backend/internal/coaching/normalize"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the part of pgxpool.Pool the repository uses.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

type Repository struct {
	db DBTX
}

func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// ActivityBatch returns coaching_activity snapshots dated on or after since.
func (r *Repository) ActivityBatch(ctx context.Context, since time.Time) (normalize.Batch, error) {
	rows, err := r.db.Query(ctx, `
		SELECT dealer_id, date, region, tier,
			leads::float8, deals::float8, revenue::float8, points::float8
		FROM coaching_activity
		WHERE date >= $1
		ORDER BY date ASC, dealer_id ASC
	`, since)
	if err != nil {
		return normalize.Batch{}, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()

	batch := normalize.Batch{Source: normalize.SourceActivity, Rows: make([]map[string]any, 0)}
	for rows.Next() {
		var (
			dealerID, region, tier       string
			date                         time.Time
			leads, deals, revenue, points float64
		)
		if err := rows.Scan(&dealerID, &date, &region, &tier, &leads, &deals, &revenue, &points); err != nil {
			return normalize.Batch{}, fmt.Errorf("scan activity: %w", err)
		}
		batch.Rows = append(batch.Rows, map[string]any{
			"dealer_id": dealerID,
			"date":      date,
			"region":    region,
			"tier":      tier,
			"leads":     leads,
			"deals":     deals,
			"revenue":   revenue,
			"points":    points,
		})
	}
	if err := rows.Err(); err != nil {
		return normalize.Batch{}, fmt.Errorf("read activity: %w", err)
	}
	return batch, nil
}

// Batches returns the activity snapshot followed by the sales line items, all
// dated on or after since.
func (r *Repository) Batches(ctx context.Context, since time.Time) ([]normalize.Batch, error) {
	activity, err := r.ActivityBatch(ctx, since)
	if err != nil {
		return nil, err
	}
	items, err := r.SalesLineItems(ctx, since)
	if err != nil {
		return nil, err
	}
	return append([]normalize.Batch{activity}, items...), nil
}

const lineItemQuery = `
	SELECT COALESCE(so.salesperson_id::text, d.id::text) AS agent_id,
		so.order_date, so.created_at, d.region, d.tier,
		i.unit_price::float8, i.qty
	FROM %s i
	JOIN sale_order so ON so.id = i.order_id
	JOIN dealership d ON d.id = so.dealership_id
	WHERE COALESCE(so.order_date, so.created_at::date) >= $1
	ORDER BY so.id ASC, i.id ASC
`

// SalesLineItems returns car and service line items joined with their
// order and dealership. Each item is one closed lead for its salesperson, or
// for the dealership when the order has no salesperson.
func (r *Repository) SalesLineItems(ctx context.Context, since time.Time) ([]normalize.Batch, error) {
	car, err := r.lineItems(ctx, "car_sale_item", normalize.SourceCarSales, since)
	if err != nil {
		return nil, err
	}
	service, err := r.lineItems(ctx, "service_sale_item", normalize.SourceServiceSales, since)
	if err != nil {
		return nil, err
	}
	return []normalize.Batch{car, service}, nil
}

func (r *Repository) lineItems(ctx context.Context, table string, source normalize.Source, since time.Time) (normalize.Batch, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf(lineItemQuery, pgx.Identifier{table}.Sanitize()), since)
	if err != nil {
		return normalize.Batch{}, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	batch := normalize.Batch{Source: source, Rows: make([]map[string]any, 0)}
	for rows.Next() {
		var (
			agentID, region, tier string
			orderDate             *time.Time
			createdAt             time.Time
			unitPrice             float64
			qty                   int
		)
		if err := rows.Scan(&agentID, &orderDate, &createdAt, &region, &tier, &unitPrice, &qty); err != nil {
			return normalize.Batch{}, fmt.Errorf("scan %s: %w", table, err)
		}
		row := map[string]any{
			"agent_id":   agentID,
			"created_at": createdAt,
			"region":     region,
			"tier":       tier,
			"unit_price": unitPrice,
			"qty":        qty,
		}
		if orderDate != nil {
			row["order_date"] = *orderDate
		}
		batch.Rows = append(batch.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return normalize.Batch{}, fmt.Errorf("read %s: %w", table, err)
	}
	return batch, nil
}

// InsertActivity bulk-loads activity records with COPY.
func (r *Repository) InsertActivity(ctx context.Context, records []domain.ActivityRecord) (int64, error) {
	n, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"coaching_activity"},
		[]string{"dealer_id", "date", "region", "tier", "leads", "deals", "revenue", "points"},
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			rec := records[i]
			return []any{rec.AgentID, rec.Date, rec.Region, rec.Tier, rec.Leads, rec.Deals, rec.Revenue, rec.Points}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("copy activity: %w", err)
	}
	return n, nil
}

// SaveNotifications stores a batch of notifications in one round trip.
func (r *Repository) SaveNotifications(ctx context.Context, items []domain.Notification) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, n := range items {
		id, err := uuid.Parse(n.ID)
		if err != nil {
			return fmt.Errorf("notification id %q: %w", n.ID, err)
		}
		payload, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("encode notification %s: %w", n.ID, err)
		}
		batch.Queue(`
			INSERT INTO coaching_notification (id, dealer_id, payload, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING
		`, id, n.AgentID, payload, n.CreatedAt)
	}
	return r.runBatch(ctx, batch, len(items), "save notifications")
}

// ListNotifications returns an agent's newest notifications first.
func (r *Repository) ListNotifications(ctx context.Context, agentID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT payload
		FROM coaching_notification
		WHERE dealer_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Notification, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		var n domain.Notification
		if err := json.Unmarshal(payload, &n); err != nil {
			return nil, fmt.Errorf("decode notification: %w", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read notifications: %w", err)
	}
	return items, nil
}

// DispatchEntry is one row of the dispatch log.
type DispatchEntry struct {
	SessionID  uuid.UUID
	OperatorID string
	Action     string
	Result     domain.DispatchResult
	At         time.Time
}

// LogDispatch appends dispatch results.
func (r *Repository) LogDispatch(ctx context.Context, entries []DispatchEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO coaching_dispatch_log (id, session_id, operator_id, action, recipient, level, success, detail, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, uuid.New(), e.SessionID, e.OperatorID, e.Action, e.Result.Recipient, string(e.Result.Level), e.Result.Success, e.Result.Detail, e.At)
	}
	return r.runBatch(ctx, batch, len(entries), "log dispatch")
}

func (r *Repository) runBatch(ctx context.Context, batch *pgx.Batch, n int, op string) error {
	br := r.db.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()
	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

// DeleteBefore prunes notifications and dispatch log rows older than the
// given cut-offs and returns how many rows went away.
func (r *Repository) DeleteBefore(ctx context.Context, notificationsBefore, dispatchBefore time.Time) (int64, error) {
	n, err := r.db.Exec(ctx, `DELETE FROM coaching_notification WHERE created_at < $1`, notificationsBefore)
	if err != nil {
		return 0, fmt.Errorf("prune notifications: %w", err)
	}
	d, err := r.db.Exec(ctx, `DELETE FROM coaching_dispatch_log WHERE created_at < $1`, dispatchBefore)
	if err != nil {
		return n.RowsAffected(), fmt.Errorf("prune dispatch log: %w", err)
	}
	return n.RowsAffected() + d.RowsAffected(), nil
}
