// Package sqlengine implements the driver.Driver contract over
// database/sql, dialect-agnostic beyond a thin identifier-quoting and
// column-type mapping layer. Concrete dialects register themselves by
// driver name: "mysql" (github.com/go-sql-driver/mysql) and "dolt"
// (github.com/dolthub/driver) are wired by this package's init.
package sqlengine

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "github.com/dolthub/driver"
	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/latticedb/resolver/internal/apperr"
	"github.com/latticedb/resolver/internal/driver"
	"github.com/latticedb/resolver/internal/schema"
)

func init() {
	driver.Register("mysql", open("mysql"))
	driver.Register("dolt", open("dolt"))
}

func open(sqlDriverName string) driver.Factory {
	return func(ctx context.Context, dsn string, opts driver.Options) (driver.Driver, error) {
		db, err := sql.Open(sqlDriverName, dsn)
		if err != nil {
			return nil, apperr.Wrap(apperr.DatabaseError, err, "opening %s connection", sqlDriverName)
		}
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, apperr.Wrap(apperr.DatabaseError, err, "pinging %s connection", sqlDriverName)
		}
		return &Engine{db: db, dialect: sqlDriverName, readOnly: opts.ReadOnly}, nil
	}
}

// Engine is the database/sql-backed driver.Driver implementation.
type Engine struct {
	db       *sql.DB
	dialect  string
	readOnly bool
}

func (e *Engine) spanAttrs(operation, table string) []attribute.KeyValue {
	return append(spanAttrs(e.dialect, operation, table), attribute.Bool("db.readonly", e.readOnly))
}

// StartTransaction leases one connection and begins a transaction. Per the
// resolver's concurrency model each top-level request owns exactly one of
// these for its lifetime.
func (e *Engine) StartTransaction(ctx context.Context) (driver.Transaction, error) {
	ctx, span := engineTracer.Start(ctx, "sqlengine.begin",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(e.spanAttrs("begin", "")...),
	)
	var tx *sql.Tx
	attempts, err := withRetry(ctx, func() error {
		var beginErr error
		tx, beginErr = e.db.BeginTx(ctx, nil)
		return beginErr
	})
	if attempts > 1 {
		engineMetrics.retryCount.Add(ctx, int64(attempts-1))
	}
	endSpan(span, err)
	if err != nil {
		return nil, apperr.Wrap(apperr.DatabaseError, err, "starting transaction")
	}
	return &engineTx{engine: e, tx: tx}, nil
}

// CreateTable issues CREATE TABLE IF NOT EXISTS plus that table's index
// statements. columns/index are expected to be *schema.PhysicalTable's
// Columns/Indexes, but the contract accepts `any` so the resolver core
// need not import this package; a type assertion failure is a programmer
// error surfaced as DATABASE_ERROR.
func (e *Engine) CreateTable(ctx context.Context, table string, columns any, index any) error {
	phys, ok := columns.(*schema.PhysicalTable)
	if !ok {
		return apperr.New(apperr.DatabaseError, "sqlengine: CreateTable requires a *schema.PhysicalTable")
	}
	for _, stmt := range createTableDDL(phys) {
		if _, err := e.execDDL(ctx, "create_table", table, stmt); err != nil {
			return err
		}
	}
	return nil
}

// ProcessTable verifies an already-created table still matches the
// expected physical shape. The engine trusts CreateTable's IF NOT EXISTS
// idempotence and treats ProcessTable as a no-op beyond existence check.
func (e *Engine) ProcessTable(ctx context.Context, table string, columns any) error {
	_, err := e.execDDL(ctx, "process_table", table, fmt.Sprintf("SELECT 1 FROM %s LIMIT 0", quoteIdent(table)))
	return err
}

// CreateForeignKeys adds the ALTER TABLE constraints for every physical
// table, run only once every table from CreateTable exists.
func (e *Engine) CreateForeignKeys(ctx context.Context, foreignKeys map[string]any) error {
	for table, v := range foreignKeys {
		phys, ok := v.(*schema.PhysicalTable)
		if !ok {
			return apperr.New(apperr.DatabaseError, "sqlengine: CreateForeignKeys requires *schema.PhysicalTable values")
		}
		for _, stmt := range foreignKeyDDL(phys) {
			if _, err := e.execDDL(ctx, "add_foreign_key", table, stmt); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) Destroy(ctx context.Context) error {
	return e.db.Close()
}

func (e *Engine) execDDL(ctx context.Context, op, table, stmt string) (sql.Result, error) {
	ctx, span := engineTracer.Start(ctx, "sqlengine."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(e.spanAttrs(op, table)...),
	)
	var result sql.Result
	attempts, err := withRetry(ctx, func() error {
		var execErr error
		result, execErr = e.db.ExecContext(ctx, stmt)
		return execErr
	})
	if attempts > 1 {
		engineMetrics.retryCount.Add(ctx, int64(attempts-1))
	}
	endSpan(span, err)
	if err != nil {
		return nil, apperr.Wrap(apperr.DatabaseError, err, "%s on %s", op, table)
	}
	return result, nil
}

// engineTx is the per-request leased transaction.
type engineTx struct {
	engine *Engine
	tx     *sql.Tx
}

func (t *engineTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return apperr.Wrap(apperr.DatabaseError, err, "commit")
	}
	return nil
}

func (t *engineTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil {
		return apperr.Wrap(apperr.DatabaseError, err, "rollback")
	}
	return nil
}

func (t *engineTx) Get(ctx context.Context, req driver.GetRequest) ([]map[string]any, error) {
	whereClause, args, err := buildWhere(req.Where)
	if err != nil {
		return nil, apperr.Wrap(apperr.BadRequest, err, "building where clause for %s", req.Table)
	}
	search := req.Search
	if len(search) == 0 {
		search = []string{schema.ReservedIDColumn}
	}
	cols := make([]string, len(search))
	for i, c := range search {
		cols[i] = quoteIdent(c)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", joinCols(cols), quoteIdent(req.Table))
	if whereClause != "" {
		query += " WHERE " + whereClause
	}
	query += buildOrder(req.Order)
	if req.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", req.Limit)
	} else if req.Offset > 0 {
		query += " LIMIT 18446744073709551615"
	}
	if req.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", req.Offset)
	}

	ctx, span := engineTracer.Start(ctx, "sqlengine.get",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.engine.spanAttrs("get", req.Table)...),
	)
	var rows *sql.Rows
	attempts, err := withRetry(ctx, func() error {
		var queryErr error
		rows, queryErr = t.tx.QueryContext(ctx, query, args...)
		return queryErr
	})
	if attempts > 1 {
		engineMetrics.retryCount.Add(ctx, int64(attempts-1))
	}
	if err != nil {
		endSpan(span, err)
		return nil, apperr.Wrap(apperr.DatabaseError, err, "get on %s", req.Table)
	}
	defer rows.Close()

	results, err := scanRows(rows, search)
	endSpan(span, err)
	if err != nil {
		return nil, apperr.Wrap(apperr.DatabaseError, err, "scanning get result for %s", req.Table)
	}
	return results, nil
}

func (t *engineTx) Create(ctx context.Context, req driver.CreateRequest) ([]any, error) {
	ctx, span := engineTracer.Start(ctx, "sqlengine.create",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.engine.spanAttrs("create", req.Table)...),
	)
	defer func() { endSpan(span, nil) }()

	ids := make([]any, 0, len(req.Elements))
	for _, row := range req.Elements {
		id, err := t.createOne(ctx, req.Table, row)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (t *engineTx) createOne(ctx context.Context, table string, row map[string]any) (any, error) {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sortStrings(cols)

	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		placeholders[i] = "?"
		args[i] = row[c]
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), joinCols(quoted), joinCols(placeholders))

	var result sql.Result
	attempts, err := withRetry(ctx, func() error {
		var execErr error
		result, execErr = t.tx.ExecContext(ctx, query, args...)
		return execErr
	})
	if attempts > 1 {
		engineMetrics.retryCount.Add(ctx, int64(attempts-1))
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.DatabaseError, err, "create on %s", table)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, apperr.Wrap(apperr.DatabaseError, err, "reading generated id on %s", table)
	}
	return id, nil
}

func (t *engineTx) Update(ctx context.Context, req driver.UpdateRequest) error {
	cols := make([]string, 0, len(req.Values))
	for c := range req.Values {
		cols = append(cols, c)
	}
	sortStrings(cols)

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+4)
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = ?", quoteIdent(c))
		args = append(args, req.Values[c])
	}

	whereClause, whereArgs, err := buildWhere(req.Where)
	if err != nil {
		return apperr.Wrap(apperr.BadRequest, err, "building where clause for %s", req.Table)
	}
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s", quoteIdent(req.Table), joinCols(sets))
	if whereClause != "" {
		query += " WHERE " + whereClause
	}

	ctx, span := engineTracer.Start(ctx, "sqlengine.update",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.engine.spanAttrs("update", req.Table)...),
	)
	attempts, err := withRetry(ctx, func() error {
		_, execErr := t.tx.ExecContext(ctx, query, args...)
		return execErr
	})
	if attempts > 1 {
		engineMetrics.retryCount.Add(ctx, int64(attempts-1))
	}
	endSpan(span, err)
	if err != nil {
		return apperr.Wrap(apperr.DatabaseError, err, "update on %s", req.Table)
	}
	return nil
}

func (t *engineTx) Delete(ctx context.Context, req driver.DeleteRequest) error {
	whereClause, args, err := buildWhere(req.Where)
	if err != nil {
		return apperr.Wrap(apperr.BadRequest, err, "building where clause for %s", req.Table)
	}
	query := fmt.Sprintf("DELETE FROM %s", quoteIdent(req.Table))
	if whereClause != "" {
		query += " WHERE " + whereClause
	}

	ctx, span := engineTracer.Start(ctx, "sqlengine.delete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.engine.spanAttrs("delete", req.Table)...),
	)
	attempts, err := withRetry(ctx, func() error {
		_, execErr := t.tx.ExecContext(ctx, query, args...)
		return execErr
	})
	if attempts > 1 {
		engineMetrics.retryCount.Add(ctx, int64(attempts-1))
	}
	endSpan(span, err)
	if err != nil {
		return apperr.Wrap(apperr.DatabaseError, err, "delete on %s", req.Table)
	}
	return nil
}

func scanRows(rows *sql.Rows, cols []string) ([]map[string]any, error) {
	var out []map[string]any
	for rows.Next() {
		ptrs := make([]any, len(cols))
		vals := make([]any, len(cols))
		for i := range ptrs {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func joinCols(cols []string) string {
	return strings.Join(cols, ", ")
}

func sortStrings(s []string) {
	sort.Strings(s)
}
