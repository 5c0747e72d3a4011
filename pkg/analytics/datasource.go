package analytics

import (
	"context"
	"database/sql"
	"fmt"
)

// DataSource executes planned queries against a tenant's operational data.
// Implementations must be safe for concurrent use.
type DataSource interface {
	ExecuteQuery(ctx context.Context, tenantID string, q *Query) ([]Row, error)
}

// DataSourceFunc adapts a function to the DataSource interface.
type DataSourceFunc func(ctx context.Context, tenantID string, q *Query) ([]Row, error)

// ExecuteQuery calls f.
func (f DataSourceFunc) ExecuteQuery(ctx context.Context, tenantID string, q *Query) ([]Row, error) {
	return f(ctx, tenantID, q)
}

// ReadPool hands out a connection pool per query, typically a read replica.
type ReadPool interface {
	Reader() *sql.DB
}

// SQLDataSource runs planned queries over PostgreSQL.
type SQLDataSource struct {
	conn func() *sql.DB
}

// NewSQLDataSource creates a data source over a single pool
func NewSQLDataSource(db *sql.DB) *SQLDataSource {
	return &SQLDataSource{conn: func() *sql.DB { return db }}
}

// NewPooledDataSource creates a data source that picks a pool from p for
// every query.
func NewPooledDataSource(p ReadPool) *SQLDataSource {
	return &SQLDataSource{conn: p.Reader}
}

// ExecuteQuery runs q and scans (group_key, value) rows. A query planned for a
// different tenant is refused.
func (s *SQLDataSource) ExecuteQuery(ctx context.Context, tenantID string, q *Query) ([]Row, error) {
	if q == nil {
		return nil, fmt.Errorf("query is nil")
	}
	if q.TenantID != tenantID {
		return nil, fmt.Errorf("%w: query planned for %q", ErrTenantMismatch, q.TenantID)
	}

	rows, err := s.conn().QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("query %s failed: %w", q.Metric, err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		var (
			group sql.NullString
			value sql.NullFloat64
		)
		if err := rows.Scan(&group, &value); err != nil {
			return nil, fmt.Errorf("scan %s failed: %w", q.Metric, err)
		}
		result = append(result, Row{Group: group.String, Value: value.Float64})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s failed: %w", q.Metric, err)
	}

	return result, nil
}
