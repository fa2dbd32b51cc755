// Package driver defines the transactional CRUD+DDL contract the resolver
// core consumes from a concrete storage backend, and a name -> factory
// registry so backends can be selected by configuration.
package driver

import "context"

// Where is a column-name -> constraint map. A constraint value is either:
//   - a scalar: equality,
//   - a slice: OR over the scalars,
//   - an Operator-keyed map: AND over each operator's comparison.
type Where map[string]any

// Operator is one of the comparison operators a Where constraint's nested
// map may use as a key.
type Operator string

const (
	OpNot  Operator = "not"
	OpLike Operator = "like"
	OpGT   Operator = "gt"
	OpGE   Operator = "ge"
	OpLT   Operator = "lt"
	OpLE   Operator = "le"
)

// OrderTerm is one column in an ORDER BY list; Desc reflects a leading "-".
type OrderTerm struct {
	Column string
	Desc   bool
}

// GetRequest is the argument to Driver.Get.
type GetRequest struct {
	Table  string
	Search []string
	Where  Where
	Offset int
	Limit  int
	Order  []OrderTerm
}

// CreateRequest is the argument to Driver.Create: one or more rows for the
// same table, each a column-name -> value map (including any fieldId
// columns for already-resolved object references).
type CreateRequest struct {
	Table    string
	Elements []map[string]any
}

// UpdateRequest is the argument to Driver.Update.
type UpdateRequest struct {
	Table  string
	Values map[string]any
	Where  Where
}

// DeleteRequest is the argument to Driver.Delete.
type DeleteRequest struct {
	Table string
	Where Where
}

// Transaction is a leased connection with an open transaction. All
// resolver-facing operations run through one, so that a top-level request
// is exactly one Driver-level transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	Get(ctx context.Context, req GetRequest) ([]map[string]any, error)
	Create(ctx context.Context, req CreateRequest) ([]any, error)
	Update(ctx context.Context, req UpdateRequest) error
	Delete(ctx context.Context, req DeleteRequest) error
}

// Driver is the full contract the resolver consumes: transaction leasing
// plus the schema DDL operations run once at startup.
type Driver interface {
	StartTransaction(ctx context.Context) (Transaction, error)

	CreateTable(ctx context.Context, table string, columns any, index any) error
	ProcessTable(ctx context.Context, table string, columns any) error
	CreateForeignKeys(ctx context.Context, foreignKeys map[string]any) error

	Destroy(ctx context.Context) error
}

// Factory opens a Driver from a DSN/connection string plus backend-specific
// options.
type Factory func(ctx context.Context, dsn string, opts Options) (Driver, error)

// Options configures how a backend opens its connection pool.
type Options struct {
	MaxOpenConns int
	ReadOnly     bool
}

var registry = make(map[string]Factory)

// Register adds a named backend factory. Backend packages call this from
// an init() function, mirroring how they self-register with database/sql.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// Open looks up a registered backend by name and opens it.
func Open(ctx context.Context, backend, dsn string, opts Options) (Driver, error) {
	factory, ok := registry[backend]
	if !ok {
		return nil, UnknownBackendError{Backend: backend}
	}
	return factory(ctx, dsn, opts)
}

// UnknownBackendError is returned by Open when no factory is registered
// under the requested name.
type UnknownBackendError struct{ Backend string }

func (e UnknownBackendError) Error() string {
	return "driver: unknown backend " + e.Backend
}
