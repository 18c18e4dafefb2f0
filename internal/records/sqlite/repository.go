// Package sqlite stores records as JSON payload rows in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gravl/internal/core"
	"gravl/internal/records"

	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// fieldMatch compares a payload field with its text form. JSON booleans are
// rendered as true/false so they match the analytics formatting.
const fieldMatch = `CASE json_type(payload, '$.' || ?1)
	WHEN 'true' THEN 'true'
	WHEN 'false' THEN 'false'
	ELSE CAST(json_extract(payload, '$.' || ?1) AS TEXT)
END = ?2`

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db, now: time.Now}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) ListRuns(ctx context.Context) ([]core.Run, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT payload FROM runs ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	return scanRuns(rows)
}

func (r *Repository) ListRunsWhere(ctx context.Context, field, value string) ([]core.Run, error) {
	if err := records.CheckRunField(field); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `SELECT payload FROM runs WHERE `+fieldMatch+` ORDER BY rowid`, field, value)
	if err != nil {
		return nil, fmt.Errorf("select runs where %s: %w", field, err)
	}
	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]core.Run, error) {
	defer rows.Close()
	out := []core.Run{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var run core.Run
		if err := json.Unmarshal([]byte(payload), &run); err != nil {
			return nil, fmt.Errorf("decode run payload: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// InsertRuns writes the batch in one transaction.
func (r *Repository) InsertRuns(ctx context.Context, runs []core.Run) error {
	if err := records.ValidateRuns(runs); err != nil {
		return err
	}
	if err := records.CheckRunIDs(runs, nil); err != nil {
		return err
	}
	batch := records.WithRunIDs(runs)
	now := r.now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO runs (id, run_id, payload, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, run := range batch {
		if run.CreatedAt.IsZero() {
			run.CreatedAt = now
		}
		payload, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("encode run %s: %w", run.RunID, err)
		}
		if _, err := stmt.ExecContext(ctx, run.ID, run.RunID, string(payload), run.CreatedAt.Format(time.RFC3339Nano)); err != nil {
			if isPrimaryKeyViolation(err) {
				return &records.RowError{Table: records.TableRuns, Row: i, Err: fmt.Errorf("%w %q", records.ErrDuplicateID, run.ID)}
			}
			return fmt.Errorf("insert run %s: %w", run.RunID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit runs: %w", err)
	}

	slog.InfoContext(ctx, "Runs saved to SQLite", "count", len(batch))
	return nil
}

func (r *Repository) ListCompanies(ctx context.Context) ([]core.Company, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, payload, created_at, updated_at FROM angel5000_companies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select companies: %w", err)
	}
	return scanCompanies(rows)
}

func (r *Repository) ListCompaniesWhere(ctx context.Context, field, value string) ([]core.Company, error) {
	if err := records.CheckCompanyField(field); err != nil {
		return nil, err
	}
	if field == "id" {
		rows, err := r.db.QueryContext(ctx, `SELECT id, payload, created_at, updated_at FROM angel5000_companies WHERE CAST(id AS TEXT) = ? ORDER BY id`, value)
		if err != nil {
			return nil, fmt.Errorf("select companies where id: %w", err)
		}
		return scanCompanies(rows)
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, payload, created_at, updated_at FROM angel5000_companies WHERE `+fieldMatch+` ORDER BY id`, field, value)
	if err != nil {
		return nil, fmt.Errorf("select companies where %s: %w", field, err)
	}
	return scanCompanies(rows)
}

func scanCompanies(rows *sql.Rows) ([]core.Company, error) {
	defer rows.Close()
	out := []core.Company{}
	for rows.Next() {
		var (
			id               int64
			payload          string
			created, updated string
		)
		if err := rows.Scan(&id, &payload, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		var c core.Company
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			return nil, fmt.Errorf("decode company payload: %w", err)
		}
		c.ID = id
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertCompanies inserts new companies and replaces the payload of
// existing ones, matched on company_id.
func (r *Repository) UpsertCompanies(ctx context.Context, companies []core.Company) error {
	if err := records.ValidateCompanies(companies); err != nil {
		return err
	}
	now := r.now().UTC().Format(time.RFC3339Nano)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO angel5000_companies (company_id, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(company_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range companies {
		c.ID = 0
		c.CreatedAt, c.UpdatedAt = time.Time{}, time.Time{}
		payload, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode company %s: %w", c.CompanyID, err)
		}
		if _, err := stmt.ExecContext(ctx, c.CompanyID, string(payload), now, now); err != nil {
			return fmt.Errorf("upsert company %s: %w", c.CompanyID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit companies: %w", err)
	}

	slog.InfoContext(ctx, "Companies upserted to SQLite", "count", len(companies))
	return nil
}

// isPrimaryKeyViolation matches both the extended result code and the base
// constraint code carrying the runs.id column.
func isPrimaryKeyViolation(err error) bool {
	var se *sqlitedriver.Error
	if !errors.As(err, &se) {
		return false
	}
	if se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
		return true
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "runs.id")
}
