package pgdb

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/askdba/postgres-ssh-mcp/internal/apperrors"
)

// querier is satisfied by *pgxpool.Conn and pgx.Tx; it is the minimal
// surface runDirect needs to execute a statement and read its rows.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// cursorExecer is satisfied by pgx.Tx; fetchWithCursor needs both Exec
// (for DECLARE/CLOSE) and Query (for FETCH).
type cursorExecer interface {
	querier
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Result is the query result envelope: rows plus the bookkeeping the
// caller needs to know whether it saw everything.
type Result struct {
	Rows      [][]any
	Fields    []string
	RowCount  int
	Truncated bool
	Command   string
}

func newCursorName() string {
	buf := make([]byte, 4)
	_, _ = cryptorand.Read(buf)
	return fmt.Sprintf("mcp_cursor_%d_%s", time.Now().UnixNano(), hex.EncodeToString(buf))
}

// fetchWithCursor declares a uniquely named server-side cursor for sql,
// fetches maxRows+1 rows from it, and reports truncated=true (keeping
// only the first maxRows) iff more than maxRows rows were returned. The
// cursor is always closed, best-effort, even on a fetch error.
func fetchWithCursor(ctx context.Context, tx cursorExecer, sqlText string, args []any, maxRows int) (*Result, error) {
	name := newCursorName()
	declareSQL := fmt.Sprintf("DECLARE %s CURSOR FOR %s", name, sqlText)
	if _, err := tx.Exec(ctx, declareSQL, args...); err != nil {
		return nil, apperrors.WrapQuery(err, "declare cursor")
	}
	defer func() {
		_, _ = tx.Exec(ctx, fmt.Sprintf("CLOSE %s", name))
	}()

	rows, err := tx.Query(ctx, fmt.Sprintf("FETCH %d FROM %s", maxRows+1, name))
	if err != nil {
		return nil, apperrors.WrapQuery(err, "fetch cursor")
	}
	defer rows.Close()

	result, err := collectRows(rows)
	if err != nil {
		return nil, err
	}
	if len(result.Rows) > maxRows {
		result.Rows = result.Rows[:maxRows]
		result.Truncated = true
	}
	result.RowCount = len(result.Rows)
	return result, nil
}

// runDirect executes sqlText without a cursor, collecting every row the
// driver returns and then capping it client-side at maxRows. This is
// used for statements the cursor path does not cover (EXPLAIN, and any
// write-mode statement that is not cursor-eligible).
func runDirect(ctx context.Context, q querier, sqlText string, args []any, maxRows int) (*Result, error) {
	rows, err := q.Query(ctx, sqlText, args...)
	if err != nil {
		return nil, apperrors.WrapQuery(err, "execute statement")
	}
	defer rows.Close()

	result, err := collectRows(rows)
	if err != nil {
		return nil, err
	}
	result.Command = rows.CommandTag().String()
	if len(result.Rows) > maxRows {
		result.Rows = result.Rows[:maxRows]
		result.Truncated = true
	}
	result.RowCount = len(result.Rows)
	return result, nil
}

func collectRows(rows pgx.Rows) (*Result, error) {
	descs := rows.FieldDescriptions()
	fields := make([]string, len(descs))
	for i, d := range descs {
		fields[i] = d.Name
	}

	var out [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, apperrors.WrapQuery(err, "read row values")
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.WrapQuery(err, "iterate rows")
	}
	return &Result{Rows: out, Fields: fields}, nil
}
