package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"gravl/internal/sheets"
)

// Store serves ranges from memory, keyed by sheet name. Any A1 suffix on a
// requested range is ignored and the whole sheet is returned.
type Store struct {
	mu     sync.Mutex
	sheets map[string][][]string
	reads  int
}

var _ sheets.RangeReader = (*Store)(nil)

func New() *Store {
	return &Store{sheets: make(map[string][][]string)}
}

// Put replaces the contents of a sheet.
func (s *Store) Put(sheet string, rows [][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([][]string, len(rows))
	for i, r := range rows {
		cp[i] = append([]string(nil), r...)
	}
	s.sheets[sheet] = cp
}

func (s *Store) ReadRange(_ context.Context, rng string) ([][]string, error) {
	name, _, _ := strings.Cut(rng, "!")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	rows, ok := s.sheets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", sheets.ErrRangeNotFound, rng)
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out, nil
}

// Reads reports how many ranges have been served.
func (s *Store) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}
