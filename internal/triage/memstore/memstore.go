// Package memstore provides an in-memory implementation of triage.Store.
package memstore

import (
	"context"
	"sync"

	"github.com/carepath/chat/internal/triage"
)

// Store holds triage runs in memory. Suitable for dev/testing.
type Store struct {
	mu    sync.RWMutex
	runs  map[string]*triage.Result // trace ID -> result
	byMRN map[string][]string       // patient MRN -> trace IDs in insert order
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		runs:  make(map[string]*triage.Result),
		byMRN: make(map[string][]string),
	}
}

// Get retrieves a triage run by trace id. Returns a copy.
func (s *Store) Get(_ context.Context, traceID string) (*triage.Result, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[traceID]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

// GetByMRN retrieves the most recent triage run for a patient. Returns a copy.
func (s *Store) GetByMRN(_ context.Context, mrn string) (*triage.Result, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byMRN[mrn]
	if len(ids) == 0 {
		return nil, false, nil
	}
	r := s.runs[ids[len(ids)-1]]
	cp := *r
	return &cp, true, nil
}

// Put stores a copy of the triage run.
func (s *Store) Put(_ context.Context, r *triage.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	if _, exists := s.runs[r.TraceID]; !exists {
		s.byMRN[r.PatientMRN] = append(s.byMRN[r.PatientMRN], r.TraceID)
	}
	s.runs[r.TraceID] = &cp
	return nil
}
