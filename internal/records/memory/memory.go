// Package memory is the offline record store: the mock dataset is read from
// JSON files on disk and kept in process.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gravl/internal/analytics"
	"gravl/internal/core"
	"gravl/internal/records"
)

const (
	RunsFile      = "runs.json"
	CompaniesFile = "angel5000_companies.json"
)

type Store struct {
	mu        sync.RWMutex
	runs      []core.Run
	runIDs    map[string]struct{}
	companies []core.Company
	nextID    int64
	now       func() time.Time
}

// New seeds a store. It panics if two runs share an id; NewFromFiles reports
// the same condition as an error.
func New(runs []core.Run, companies []core.Company) *Store {
	if err := records.CheckRunIDs(runs, nil); err != nil {
		panic(err)
	}
	s := &Store{now: time.Now, runIDs: make(map[string]struct{}, len(runs))}
	s.runs = records.WithRunIDs(runs)
	for _, r := range s.runs {
		s.runIDs[r.ID] = struct{}{}
	}
	for _, c := range companies {
		s.upsertLocked(c)
	}
	return s
}

// NewFromFiles loads the mock dataset from base. Missing files yield an
// empty table; malformed or invalid records are an error.
func NewFromFiles(base string) (*Store, error) {
	var runs []core.Run
	if err := readJSON(filepath.Join(base, RunsFile), &runs); err != nil {
		return nil, err
	}
	if err := records.ValidateRuns(runs); err != nil {
		return nil, fmt.Errorf("load %s: %w", RunsFile, err)
	}
	if err := records.CheckRunIDs(runs, nil); err != nil {
		return nil, fmt.Errorf("load %s: %w", RunsFile, err)
	}

	var companies []core.Company
	if err := readJSON(filepath.Join(base, CompaniesFile), &companies); err != nil {
		return nil, err
	}
	if err := records.ValidateCompanies(companies); err != nil {
		return nil, fmt.Errorf("load %s: %w", CompaniesFile, err)
	}
	return New(runs, companies), nil
}

func readJSON(path string, dst any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (s *Store) ListRuns(_ context.Context) ([]core.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Run(nil), s.runs...), nil
}

func (s *Store) ListRunsWhere(_ context.Context, field, value string) ([]core.Run, error) {
	if err := records.CheckRunField(field); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return selectWhere(s.runs, field, value), nil
}

// InsertRuns validates the whole batch before storing any of it. An id that
// is already stored, or repeats in the batch, fails with ErrDuplicateID.
func (s *Store) InsertRuns(_ context.Context, runs []core.Run) error {
	if err := records.ValidateRuns(runs); err != nil {
		return err
	}
	batch := records.WithRunIDs(runs)
	now := s.now().UTC()
	for i := range batch {
		if batch[i].CreatedAt.IsZero() {
			batch[i].CreatedAt = now
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := records.CheckRunIDs(batch, s.hasRunLocked); err != nil {
		return err
	}
	for _, r := range batch {
		s.runIDs[r.ID] = struct{}{}
	}
	s.runs = append(s.runs, batch...)
	return nil
}

func (s *Store) hasRunLocked(id string) bool {
	_, ok := s.runIDs[id]
	return ok
}

func (s *Store) ListCompanies(_ context.Context) ([]core.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Company(nil), s.companies...), nil
}

func (s *Store) ListCompaniesWhere(_ context.Context, field, value string) ([]core.Company, error) {
	if err := records.CheckCompanyField(field); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return selectWhere(s.companies, field, value), nil
}

func (s *Store) UpsertCompanies(_ context.Context, companies []core.Company) error {
	if err := records.ValidateCompanies(companies); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range companies {
		s.upsertLocked(c)
	}
	return nil
}

func (s *Store) upsertLocked(c core.Company) {
	now := s.now().UTC()
	for i, existing := range s.companies {
		if existing.CompanyID != c.CompanyID {
			continue
		}
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
		c.UpdatedAt = now
		s.companies[i] = c
		return
	}
	if c.ID == 0 {
		s.nextID++
		c.ID = s.nextID
	} else if c.ID > s.nextID {
		s.nextID = c.ID
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	s.companies = append(s.companies, c)
}

func selectWhere[R analytics.Record](in []R, field, value string) []R {
	match := analytics.FieldEquals[R](field, value)
	out := []R{}
	for _, r := range in {
		if match(r) {
			out = append(out, r)
		}
	}
	return out
}
