package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"palletroute/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate applies the embedded schema files in name order. Every statement
// is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		body, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := p.db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("migrate %s: %w", name, err)
		}
	}
	return nil
}

// SaveRun inserts or replaces a run keyed by id.
func (p *Postgres) SaveRun(ctx context.Context, run model.Run) error {
	id, err := uuid.Parse(run.ID)
	if err != nil {
		return fmt.Errorf("run id: %w", err)
	}
	opts, err := jsonOrNil(run.Options)
	if err != nil {
		return err
	}
	res, err := jsonOrNil(run.Result)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO runs (id, instance, status, created_at, finished_at, options, result, error)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET status=$3, finished_at=$5, options=$6, result=$7, error=$8`,
		id, run.Instance, run.Status, run.CreatedAt, run.FinishedAt, opts, res, nullIfEmpty(run.Error))
	return err
}

func (p *Postgres) GetRun(ctx context.Context, id string) (model.Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Run{}, ErrNotFound
	}
	var (
		r         model.Run
		finished  sql.NullTime
		opts, res []byte
		errText   sql.NullString
	)
	err := p.db.QueryRowContext(ctx, `SELECT id::text, instance, status, created_at, finished_at, options, result, error FROM runs WHERE id=$1`, id).
		Scan(&r.ID, &r.Instance, &r.Status, &r.CreatedAt, &finished, &opts, &res, &errText)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, ErrNotFound
	}
	if err != nil {
		return model.Run{}, err
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	r.Error = errText.String
	if len(opts) > 0 {
		r.Options = &model.RunOptions{}
		if err := json.Unmarshal(opts, r.Options); err != nil {
			return model.Run{}, fmt.Errorf("decode options: %w", err)
		}
	}
	if len(res) > 0 {
		r.Result = &model.HeuristicResult{}
		if err := json.Unmarshal(res, r.Result); err != nil {
			return model.Run{}, fmt.Errorf("decode result: %w", err)
		}
	}
	return r, nil
}

// ListRuns pages newest first using the last id of the previous page as the
// cursor.
func (p *Postgres) ListRuns(ctx context.Context, cursor string, limit int) ([]model.RunSummary, string, error) {
	limit = clampLimit(limit)
	q := `SELECT id::text, instance, status, created_at, result->>'status', (result->'objective'->>'totalObjective')::double precision FROM runs`
	args := []any{limit}
	if cursor != "" {
		if _, err := uuid.Parse(cursor); err != nil {
			return nil, "", fmt.Errorf("bad cursor: %w", err)
		}
		q += ` WHERE (created_at, id) < (SELECT created_at, id FROM runs WHERE id=$2)`
		args = append(args, cursor)
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT $1`
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.RunSummary{}
	for rows.Next() {
		var s model.RunSummary
		var status sql.NullString
		var total sql.NullFloat64
		if err := rows.Scan(&s.ID, &s.Instance, &s.Status, &s.CreatedAt, &status, &total); err != nil {
			return nil, "", err
		}
		s.SolverStatus = status.String
		if total.Valid {
			v := total.Float64
			s.TotalObjective = &v
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (p *Postgres) SaveSolverMetrics(ctx context.Context, runID, solver string, metrics map[string]any) error {
	body, err := json.Marshal(metrics)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO solver_metrics (run_id, solver, iterations, improvements, accepted_worse, best_cost, final_cost, metrics)
		VALUES ($1,$2,COALESCE($3,0),COALESCE($4,0),COALESCE($5,0),$6,$7,$8)
		ON CONFLICT (run_id, solver) DO UPDATE SET
		  iterations=COALESCE($3,0), improvements=COALESCE($4,0), accepted_worse=COALESCE($5,0), best_cost=$6, final_cost=$7, metrics=$8, created_at=now()`,
		runID, solver, metrics["iterations"], metrics["improvements"], metrics["acceptedWorse"], metrics["bestCost"], metrics["finalCost"], body)
	return err
}

func (p *Postgres) ListSolverMetrics(ctx context.Context, runID string) ([]map[string]any, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT solver, metrics FROM solver_metrics WHERE run_id=$1 ORDER BY solver`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []map[string]any{}
	for rows.Next() {
		var solver string
		var body []byte
		if err := rows.Scan(&solver, &body); err != nil {
			return nil, err
		}
		item := map[string]any{}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &item); err != nil {
				return nil, err
			}
		}
		item["solver"] = solver
		out = append(out, item)
	}
	return out, rows.Err()
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, runID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, run_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
		VALUES ($1,$2,$3,$4,$5,$6,'pending',0,now(),$7)
		ON CONFLICT (event_type, url, dedup_key) DO NOTHING`, id, runID, eventType, url, nullIfEmpty(secret), payload, computeDedupKey(payload))
	if err != nil {
		return "", err
	}
	return id, nil
}

const deliveryColumns = `id::text, run_id, event_type, url, COALESCE(secret,''), payload, status, attempts, next_attempt_at, COALESCE(last_error,''), COALESCE(response_code,0), delivered_at`

func scanDeliveries(rows *sql.Rows) ([]WebhookDelivery, error) {
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		var delivered sql.NullTime
		if err := rows.Scan(&d.ID, &d.RunID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts, &d.NextAttemptAt, &d.LastError, &d.ResponseCode, &delivered); err != nil {
			return nil, err
		}
		if delivered.Valid {
			t := delivered.Time
			d.DeliveredAt = &t
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+deliveryColumns+`
		FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanDeliveries(rows)
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if !success {
		if nextAttemptAt == nil {
			t := time.Now().Add(time.Minute)
			nextAttemptAt = &t
		}
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
			id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
		return err
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`,
		id, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]WebhookDelivery, error) {
	q := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries`
	args := []any{clampLimit(limit)}
	if status != "" {
		q += ` WHERE status=$2`
		args = append(args, status)
	}
	rows, err := p.db.QueryContext(ctx, q+` ORDER BY created_at, id LIMIT $1`, args...)
	if err != nil {
		return nil, err
	}
	return scanDeliveries(rows)
}

// computeDedupKey uses the event id when the payload carries one, else a
// short content hash.
func computeDedupKey(payload []byte) string {
	var m map[string]any
	if json.Unmarshal(payload, &m) == nil {
		if v, ok := m["id"].(string); ok && v != "" {
			return v
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// jsonOrNil encodes v for a jsonb column; nil pointers become SQL NULL.
func jsonOrNil[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
