package database

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/healthcast-go/internal/telemetry"
)

const tracerName = "github.com/irfndi/healthcast-go/internal/database"

// TracedDB wraps a DatabasePool and records a client span per statement
type TracedDB struct {
	pool   DatabasePool
	tracer trace.Tracer
}

// NewTracedDB wraps pool using the global tracer provider
func NewTracedDB(pool DatabasePool) *TracedDB {
	return NewTracedDBWithTracer(pool, telemetry.GetTracer(tracerName))
}

// NewTracedDBWithTracer wraps pool with an explicit tracer
func NewTracedDBWithTracer(pool DatabasePool, tracer trace.Tracer) *TracedDB {
	return &TracedDB{pool: pool, tracer: tracer}
}

func (db *TracedDB) start(ctx context.Context, op, sql string) (context.Context, trace.Span) {
	return db.tracer.Start(ctx, "db."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", statementVerb(sql)),
			attribute.String("db.statement", compactSQL(sql)),
		),
	)
}

func finish(span trace.Span, err error) {
	if err != nil && err != pgx.ErrNoRows {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Query executes a query that returns rows
func (db *TracedDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	ctx, span := db.start(ctx, "query", sql)
	rows, err := db.pool.Query(ctx, sql, args...)
	finish(span, err)
	return rows, err
}

// QueryRow executes a query that returns at most one row. The span covers
// sending the query; scan errors surface to the caller.
func (db *TracedDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	ctx, span := db.start(ctx, "query_row", sql)
	row := db.pool.QueryRow(ctx, sql, args...)
	span.End()
	return row
}

// Exec executes a statement without returning rows
func (db *TracedDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	ctx, span := db.start(ctx, "exec", sql)
	tag, err := db.pool.Exec(ctx, sql, args...)
	if err == nil {
		span.SetAttributes(attribute.Int64("db.rows_affected", tag.RowsAffected()))
	}
	finish(span, err)
	return tag, err
}

// statementVerb returns the leading SQL keyword in upper case
func statementVerb(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// compactSQL collapses whitespace so statements read on one line
func compactSQL(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}
