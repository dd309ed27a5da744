// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carepath/chat/internal/llm"
	"github.com/carepath/chat/internal/triage"
)

var tracer = otel.Tracer("github.com/carepath/chat/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists triage runs in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on an existing pool and returns a ready Store. The
// pool stays owned by the caller.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const runColumns = `trace_id, patient_mrn, query, llm_mode, response,
	inference_ms, conversation_id, status, created_at`

// Get retrieves a triage run by trace id.
func (s *Store) Get(ctx context.Context, traceID string) (*triage.Result, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + runColumns + ` FROM triage_runs WHERE trace_id = $1`
	r, err := scanRun(s.pool.QueryRow(ctx, query, traceID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if r == nil {
		return nil, false, nil
	}
	return r, true, nil
}

// GetByMRN retrieves the most recent triage run for a patient.
func (s *Store) GetByMRN(ctx context.Context, mrn string) (*triage.Result, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.GetByMRN", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + runColumns + ` FROM triage_runs WHERE patient_mrn = $1 ORDER BY created_at DESC LIMIT 1`
	r, err := scanRun(s.pool.QueryRow(ctx, query, mrn))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if r == nil {
		return nil, false, nil
	}
	return r, true, nil
}

// Put inserts or updates a triage run (upsert on trace_id).
func (s *Store) Put(ctx context.Context, r *triage.Result) error {
	ctx, span := tracer.Start(ctx, "pgstore.Put", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	query := `INSERT INTO triage_runs (
		trace_id, patient_mrn, query, llm_mode, response,
		inference_ms, conversation_id, status, created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	ON CONFLICT (trace_id) DO UPDATE SET
		patient_mrn     = EXCLUDED.patient_mrn,
		query           = EXCLUDED.query,
		llm_mode        = EXCLUDED.llm_mode,
		response        = EXCLUDED.response,
		inference_ms    = EXCLUDED.inference_ms,
		conversation_id = EXCLUDED.conversation_id,
		status          = EXCLUDED.status`

	_, err := s.pool.Exec(ctx, query,
		r.TraceID, r.PatientMRN, r.Query, string(r.Mode), r.Response,
		r.InferenceMS, r.ConversationID, string(r.Status), r.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert triage run: %w", err)
	}
	return nil
}

// scanRun scans a single row into a triage.Result. Returns (nil, nil) when
// no row is found.
func scanRun(row pgx.Row) (*triage.Result, error) {
	var (
		r      triage.Result
		mode   string
		status string
	)

	err := row.Scan(
		&r.TraceID, &r.PatientMRN, &r.Query, &mode, &r.Response,
		&r.InferenceMS, &r.ConversationID, &status, &r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}

	r.Mode = llm.Mode(mode)
	r.Status = triage.Status(status)
	return &r, nil
}
