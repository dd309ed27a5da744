package triage

import "context"

// Store is the persistence interface for triage run audit records.
type Store interface {
	Get(ctx context.Context, traceID string) (*Result, bool, error)
	GetByMRN(ctx context.Context, mrn string) (*Result, bool, error)
	Put(ctx context.Context, result *Result) error
}
