// Package postgres reads and writes records directly in the Supabase
// Postgres database through a pgx connection pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"gravl/internal/core"
	"gravl/internal/records"
)

type Repository struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against connStr. Sessions run in UTC so timestamps
// come back from row_to_json with an explicit offset.
func Connect(ctx context.Context, connStr string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.ConnConfig.RuntimeParams["timezone"] = "UTC"

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func selectAllQuery(table, order string) string {
	return fmt.Sprintf(`SELECT row_to_json(t)::text FROM %s t ORDER BY %s`,
		pgx.Identifier{table}.Sanitize(), order)
}

func selectWhereQuery(table, field, order string) string {
	return fmt.Sprintf(`SELECT row_to_json(t)::text FROM %s t WHERE t.%s::text = $1 ORDER BY %s`,
		pgx.Identifier{table}.Sanitize(), pgx.Identifier{field}.Sanitize(), order)
}

func insertQuery(table string, columns []string) string {
	cols := quoteColumns(columns)
	return fmt.Sprintf(`INSERT INTO %[1]s (%[2]s) SELECT %[2]s FROM jsonb_populate_recordset(NULL::%[1]s, $1::jsonb)`,
		pgx.Identifier{table}.Sanitize(), cols)
}

func upsertQuery(table string, columns []string, conflict string) string {
	sets := make([]string, 0, len(columns))
	for _, c := range columns {
		if c == conflict {
			continue
		}
		id := pgx.Identifier{c}.Sanitize()
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", id, id))
	}
	sets = append(sets, `"updated_at" = now()`)
	return fmt.Sprintf(`%s ON CONFLICT (%s) DO UPDATE SET %s`,
		insertQuery(table, columns), pgx.Identifier{conflict}.Sanitize(), strings.Join(sets, ", "))
}

func quoteColumns(columns []string) string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(out, ", ")
}

func collectJSON[T any](rows pgx.Rows) ([]T, error) {
	payloads, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(payloads))
	for _, p := range payloads {
		var v T
		if err := json.Unmarshal([]byte(p), &v); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *Repository) ListRuns(ctx context.Context) ([]core.Run, error) {
	rows, err := r.pool.Query(ctx, selectAllQuery(records.TableRuns, "t.created_at, t.id"))
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	runs, err := collectJSON[core.Run](rows)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	return runs, nil
}

func (r *Repository) ListRunsWhere(ctx context.Context, field, value string) ([]core.Run, error) {
	if err := records.CheckRunField(field); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, selectWhereQuery(records.TableRuns, field, "t.created_at, t.id"), value)
	if err != nil {
		return nil, fmt.Errorf("select runs where %s: %w", field, err)
	}
	runs, err := collectJSON[core.Run](rows)
	if err != nil {
		return nil, fmt.Errorf("select runs where %s: %w", field, err)
	}
	return runs, nil
}

// InsertRuns sends the batch as one JSON document and expands it server
// side, so the whole batch lands in a single statement.
// uniqueViolation is the Postgres SQLSTATE for a unique or primary key clash.
const uniqueViolation = "23505"

func (r *Repository) InsertRuns(ctx context.Context, runs []core.Run) error {
	if err := records.ValidateRuns(runs); err != nil {
		return err
	}
	if err := records.CheckRunIDs(runs, nil); err != nil {
		return err
	}
	batch := records.WithRunIDs(runs)
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode runs: %w", err)
	}
	tag, err := r.pool.Exec(ctx, insertQuery(records.TableRuns, core.RunColumns), payload)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("insert runs: %w: %s", records.ErrDuplicateID, pgErr.Detail)
		}
		return fmt.Errorf("insert runs: %w", err)
	}
	slog.InfoContext(ctx, "Runs inserted into Postgres", "count", tag.RowsAffected())
	return nil
}

func (r *Repository) ListCompanies(ctx context.Context) ([]core.Company, error) {
	rows, err := r.pool.Query(ctx, selectAllQuery(records.TableCompanies, "t.id"))
	if err != nil {
		return nil, fmt.Errorf("select companies: %w", err)
	}
	companies, err := collectJSON[core.Company](rows)
	if err != nil {
		return nil, fmt.Errorf("select companies: %w", err)
	}
	return companies, nil
}

func (r *Repository) ListCompaniesWhere(ctx context.Context, field, value string) ([]core.Company, error) {
	if err := records.CheckCompanyField(field); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, selectWhereQuery(records.TableCompanies, field, "t.id"), value)
	if err != nil {
		return nil, fmt.Errorf("select companies where %s: %w", field, err)
	}
	companies, err := collectJSON[core.Company](rows)
	if err != nil {
		return nil, fmt.Errorf("select companies where %s: %w", field, err)
	}
	return companies, nil
}

func (r *Repository) UpsertCompanies(ctx context.Context, companies []core.Company) error {
	if err := records.ValidateCompanies(companies); err != nil {
		return err
	}
	payload, err := json.Marshal(companies)
	if err != nil {
		return fmt.Errorf("encode companies: %w", err)
	}
	tag, err := r.pool.Exec(ctx, upsertQuery(records.TableCompanies, core.CompanyColumns, "company_id"), payload)
	if err != nil {
		return fmt.Errorf("upsert companies: %w", err)
	}
	slog.InfoContext(ctx, "Companies upserted into Postgres", "count", tag.RowsAffected())
	return nil
}
