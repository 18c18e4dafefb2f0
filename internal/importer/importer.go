// Package importer loads run and company datasets into a record store in
// bounded, concurrent batches.
package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"gravl/internal/amqp"
	"gravl/internal/core"
	"gravl/internal/log"
	"gravl/internal/records"
	"gravl/internal/sheets"
)

const (
	DefaultBatchSize   = 100
	DefaultConcurrency = 4
)

// Notifier announces finished imports to other processes.
type Notifier interface {
	PublishDatasetRefresh(ctx context.Context, msg *amqp.DatasetRefreshMessage) error
}

type Options struct {
	BatchSize   int
	Concurrency int
	// Backend names the target store in logs.
	Backend  string
	Notifier Notifier
	Logger   *log.Logger
}

type Importer struct {
	runs        records.RunWriter
	companies   records.CompanyWriter
	batchSize   int
	concurrency int
	backend     string
	notifier    Notifier
	logger      *log.Logger
}

// BatchError reports one batch the store rejected.
type BatchError struct {
	Batch int
	Size  int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d (%d records): %v", e.Batch, e.Size, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Summary describes a finished import.
type Summary struct {
	Table   string        `json:"table"`
	Total   int           `json:"total"`
	Written int           `json:"written"`
	Batches int           `json:"batches"`
	Failed  []*BatchError `json:"-"`
}

func New(runs records.RunWriter, companies records.CompanyWriter, opts Options) *Importer {
	if opts.BatchSize < 1 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Config{Component: log.ComponentImporter})
	}
	return &Importer{
		runs:        runs,
		companies:   companies,
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
		backend:     opts.Backend,
		notifier:    opts.Notifier,
		logger:      opts.Logger,
	}
}

// ImportRuns validates every run, then inserts them in batches. Nothing is
// written when any run is invalid.
func (im *Importer) ImportRuns(ctx context.Context, runs []core.Run) (Summary, error) {
	if err := records.ValidateRuns(runs); err != nil {
		return Summary{Table: records.TableRuns, Total: len(runs)}, err
	}
	return importBatches(ctx, im, records.TableRuns, runs, im.runs.InsertRuns)
}

// ImportCompanies validates every company, then upserts them in batches
// keyed on company_id.
func (im *Importer) ImportCompanies(ctx context.Context, companies []core.Company) (Summary, error) {
	if err := records.ValidateCompanies(companies); err != nil {
		return Summary{Table: records.TableCompanies, Total: len(companies)}, err
	}
	return importBatches(ctx, im, records.TableCompanies, companies, im.companies.UpsertCompanies)
}

// ImportFile decodes path and imports it into table, which is either
// records.TableRuns or records.TableCompanies.
func (im *Importer) ImportFile(ctx context.Context, table, path string, format Format) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{Table: table}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	switch table {
	case records.TableRuns:
		runs, err := DecodeRuns(f, format)
		if err != nil {
			return Summary{Table: table}, fmt.Errorf("parse %s: %w", path, err)
		}
		return im.ImportRuns(ctx, runs)
	case records.TableCompanies:
		companies, err := DecodeCompanies(f, format)
		if err != nil {
			return Summary{Table: table}, fmt.Errorf("parse %s: %w", path, err)
		}
		return im.ImportCompanies(ctx, companies)
	default:
		return Summary{Table: table}, fmt.Errorf("unknown table %q", table)
	}
}

// ImportSheet reads rng from a spreadsheet, header row first, and imports
// it into table.
func (im *Importer) ImportSheet(ctx context.Context, table string, src sheets.RangeReader, rng string) (Summary, error) {
	rows, err := src.ReadRange(ctx, rng)
	if err != nil {
		return Summary{Table: table}, err
	}

	switch table {
	case records.TableRuns:
		runs, err := DecodeSheetRuns(rows)
		if err != nil {
			return Summary{Table: table}, fmt.Errorf("parse %s: %w", rng, err)
		}
		return im.ImportRuns(ctx, runs)
	case records.TableCompanies:
		companies, err := DecodeSheetCompanies(rows)
		if err != nil {
			return Summary{Table: table}, fmt.Errorf("parse %s: %w", rng, err)
		}
		return im.ImportCompanies(ctx, companies)
	default:
		return Summary{Table: table}, fmt.Errorf("unknown table %q", table)
	}
}

// importBatches writes items in batches of im.batchSize with at most
// im.concurrency batches in flight. A failed batch does not stop the others.
func importBatches[T any](ctx context.Context, im *Importer, table string, items []T, write func(context.Context, []T) error) (Summary, error) {
	sl := log.NewStructuredLogger(im.logger)
	summary := Summary{Table: table, Total: len(items)}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(im.concurrency)

	for start := 0; start < len(items); start += im.batchSize {
		end := min(start+im.batchSize, len(items))
		batch := items[start:end]
		num := summary.Batches + 1
		summary.Batches++

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := write(ctx, batch)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed = append(summary.Failed, &BatchError{Batch: num, Size: len(batch), Err: err})
				sl.LogError(ctx, "Import batch failed", err, log.OpImport,
					log.NewFields().WithTable(table, len(batch)))
				return nil
			}
			summary.Written += len(batch)
			sl.LogImported(ctx, table, num, len(batch), im.backend)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}

	if summary.Written > 0 {
		im.notify(ctx, table, summary.Written)
	}

	if len(summary.Failed) > 0 {
		slices.SortFunc(summary.Failed, func(a, b *BatchError) int { return a.Batch - b.Batch })
		errs := make([]error, len(summary.Failed))
		for i, f := range summary.Failed {
			errs[i] = f
		}
		return summary, fmt.Errorf("%d of %d batches failed: %w", len(summary.Failed), summary.Batches, errors.Join(errs...))
	}

	im.logger.InfoContext(ctx, "Import complete",
		log.FieldTable, table,
		log.FieldRecordCount, summary.Written,
		log.FieldBackend, im.backend)
	return summary, nil
}

func (im *Importer) notify(ctx context.Context, table string, count int) {
	if im.notifier == nil {
		return
	}
	msg := amqp.NewDatasetRefreshMessage(table, count, "import")
	if err := im.notifier.PublishDatasetRefresh(ctx, msg); err != nil {
		im.logger.WarnContext(ctx, "Failed to publish dataset refresh", log.FieldTable, table, log.FieldError, err)
	}
}
