package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// queryLogConnector opens sqlite3 connections whose statements are logged at
// debug level. Queries go through Prepare and the logging stmt; Exec calls
// go straight to the sqlite3 connection so multi-statement scripts run whole.
type queryLogConnector struct {
	dsn    string
	driver *sqlite3.SQLiteDriver
	logger *slog.Logger
}

type queryLogConn struct {
	driver.Conn
	logger *slog.Logger
}

type queryLogStmt struct {
	driver.Stmt
	query  string
	logger *slog.Logger
}

// NewQueryLogConnector returns a connector for sql.OpenDB. A nil logger uses
// slog.Default().
func NewQueryLogConnector(dsn string, logger *slog.Logger) (driver.Connector, error) {
	if dsn == "" {
		return nil, errors.New("empty dsn")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &queryLogConnector{dsn: dsn, driver: &sqlite3.SQLiteDriver{}, logger: logger}, nil
}

func (c *queryLogConnector) Connect(context.Context) (driver.Conn, error) {
	conn, err := c.driver.Open(c.dsn)
	if err != nil {
		return nil, err
	}
	return &queryLogConn{Conn: conn, logger: c.logger}, nil
}

func (c *queryLogConnector) Driver() driver.Driver { return c.driver }

func (c *queryLogConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *queryLogConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	var (
		stmt driver.Stmt
		err  error
	)
	if p, ok := c.Conn.(driver.ConnPrepareContext); ok {
		stmt, err = p.PrepareContext(ctx, query)
	} else {
		stmt, err = c.Conn.Prepare(query)
	}
	if err != nil {
		return nil, err
	}
	return &queryLogStmt{Stmt: stmt, query: query, logger: c.logger}, nil
}

func (c *queryLogConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	e, ok := c.Conn.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	logStatement(c.logger, "exec", query, args)
	return e.ExecContext(ctx, query, args)
}

func (c *queryLogConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if b, ok := c.Conn.(driver.ConnBeginTx); ok {
		return b.BeginTx(ctx, opts)
	}
	//nolint:staticcheck // SA1019: fallback for connections without BeginTx
	return c.Conn.Begin()
}

func (s *queryLogStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	logStatement(s.logger, "exec", s.query, args)
	if e, ok := s.Stmt.(driver.StmtExecContext); ok {
		return e.ExecContext(ctx, args)
	}
	//nolint:staticcheck // SA1019: fallback for statements without ExecContext
	return s.Stmt.Exec(plainValues(args))
}

func (s *queryLogStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	logStatement(s.logger, "query", s.query, args)
	if q, ok := s.Stmt.(driver.StmtQueryContext); ok {
		return q.QueryContext(ctx, args)
	}
	//nolint:staticcheck // SA1019: fallback for statements without QueryContext
	return s.Stmt.Query(plainValues(args))
}

func logStatement(logger *slog.Logger, op, query string, args []driver.NamedValue) {
	formatted := make([]string, len(args))
	for i, a := range args {
		v := formatArg(a.Value)
		if a.Name != "" {
			v = a.Name + "=" + v
		}
		formatted[i] = v
	}
	logger.Debug("sql", "op", op, "sql", query, "args", formatted)
}

func plainValues(args []driver.NamedValue) []driver.Value {
	out := make([]driver.Value, len(args))
	for i := range args {
		out[i] = args[i].Value
	}
	return out
}

func formatArg(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
