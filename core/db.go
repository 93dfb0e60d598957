package core

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type (
	// DBExecutor is satisfied by both *sqlx.DB and *sqlx.Tx.
	DBExecutor interface {
		sqlx.ExtContext

		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	}

	DB interface {
		DBExecutor

		BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
		PingContext(ctx context.Context) error
	}

	DBTransactor interface {
		DBExecutor

		Commit() error
		Rollback() error
	}
)

var (
	_ DB           = (*sqlx.DB)(nil)
	_ DBTransactor = (*sqlx.Tx)(nil)
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// TenantRef is an id a write points at. It must name a live row of the writer's tenant.
type TenantRef struct {
	Field string // request field reported back when the row is missing
	Table string
	ID    string
}

// OptionalRefs drops the refs whose id is blank.
func OptionalRefs(refs ...TenantRef) []TenantRef {
	out := refs[:0:0]
	for _, r := range refs {
		if r.ID != "" {
			out = append(out, r)
		}
	}
	return out
}

// ScanJSON decodes a json/jsonb column value into dest. NULL leaves dest untouched.
func ScanJSON(src, dest interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Errorf("unsupported json column type %T", src)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}

// JSONMap is a free-form json/jsonb column.
type JSONMap map[string]interface{}

func (m *JSONMap) Scan(src interface{}) error {
	return ScanJSON(src, m)
}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}
