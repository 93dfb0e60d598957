// Package sqlxrepos implements the domain repositories on PostgreSQL with sqlx.
// Every query is scoped by tenant and ignores soft deleted rows.
package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
)

// PostgreSQL error codes.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	checkViolation      = "23514"
)

// mapWriteErr turns constraint violations into client errors.
func mapWriteErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
		switch pqErr.Code {
		case uniqueViolation:
			return core.Conflict("Registro duplicado").WithDetails(map[string]interface{}{"constraint": pqErr.Constraint})
		case foreignKeyViolation:
			return core.BadRequest("Referencia invalida").WithDetails(map[string]interface{}{"constraint": pqErr.Constraint})
		case checkViolation:
			return core.BadRequest("Valor invalido").WithDetails(map[string]interface{}{"constraint": pqErr.Constraint})
		}
	}
	return errors.Wrap(err, msg)
}

// trapNoRows maps "no rows" to the domain not-found error.
func trapNoRows(err error, notFound error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// where accumulates AND-ed conditions written with `?` placeholders.
type where struct {
	conds []string
	args  []interface{}
}

func newWhere(cond string, args ...interface{}) *where {
	w := &where{}
	return w.and(cond, args...)
}

func (w *where) and(cond string, args ...interface{}) *where {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
	return w
}

// andIf adds the condition when ok.
func (w *where) andIf(ok bool, cond string, args ...interface{}) *where {
	if ok {
		w.and(cond, args...)
	}
	return w
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return "TRUE"
	}
	return strings.Join(w.conds, " AND ")
}

// like wraps a search term for ILIKE, escaping its wildcards.
func like(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// page runs the count and the page queries of a paginated list. `from` is the FROM/JOIN clause,
// `cols` the selected columns and `prefix` the alias the sort field applies to.
func page(ctx context.Context, exec core.DBExecutor, dest interface{}, cols, from string, w *where, p core.PageParams, prefix string) (int, error) {
	var total int
	q := exec.Rebind(fmt.Sprintf("SELECT count(*) FROM %s WHERE %s", from, w))
	if err := exec.GetContext(ctx, &total, q, w.args...); err != nil {
		return 0, errors.Wrap(err, "counting rows")
	}
	if total == 0 {
		return 0, nil
	}

	order := p.Ordering()
	if prefix != "" && !strings.Contains(order.Field, ".") {
		order.Field = prefix + "." + order.Field
	}
	q = exec.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s NULLS LAST LIMIT %d OFFSET %d",
		cols, from, w, order, p.PerPage, p.Offset()))
	if err := exec.SelectContext(ctx, dest, q, w.args...); err != nil {
		return 0, errors.Wrap(err, "selecting rows")
	}
	return total, nil
}

// softDelete stamps deleted_at on a tenant row and returns notFound when nothing matched.
func softDelete(ctx context.Context, exec core.DBExecutor, table, tenantID, id string, at interface{}, notFound error) error {
	res, err := exec.ExecContext(ctx, exec.Rebind(fmt.Sprintf(
		"UPDATE %s SET deleted_at = ?, updated_at = ? WHERE tenant_id = ? AND id = ? AND deleted_at IS NULL", table)),
		at, at, tenantID, id)
	if err != nil {
		return errors.Wrap(err, "soft deleting "+table)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound
	}
	return nil
}

func exists(ctx context.Context, exec core.DBExecutor, table, tenantID, id string) (bool, error) {
	var ok bool
	err := exec.GetContext(ctx, &ok, exec.Rebind(fmt.Sprintf(
		"SELECT EXISTS (SELECT 1 FROM %s WHERE tenant_id = ? AND id = ? AND deleted_at IS NULL)", table)),
		tenantID, id)
	return ok, errors.Wrap(err, "checking "+table)
}

// refTables are the tables a core.TenantRef may name.
var refTables = set("clients", "agencies", "contacts", "people", "jobs", "job_team", "cost_items")

// checkRefs fails with core.InvalidRef on the first ref that is not a live row of the tenant.
func checkRefs(ctx context.Context, exec core.DBExecutor, tenantID string, refs []core.TenantRef) error {
	for _, ref := range refs {
		if !refTables[ref.Table] {
			return errors.Errorf("checking %s: unknown table %q", ref.Field, ref.Table)
		}
		ok, err := exists(ctx, exec, ref.Table, tenantID, ref.ID)
		if err != nil {
			return err
		}
		if !ok {
			return core.InvalidRef(ref.Field)
		}
	}
	return nil
}

// selectList renders `cols` for a SELECT, formatting date and time columns as text.
func selectList(prefix string, cols []string, dates, times map[string]bool) string {
	out := make([]string, len(cols))
	for i, col := range cols {
		ref := col
		if prefix != "" {
			ref = prefix + "." + col
		}
		switch {
		case dates[col]:
			out[i] = fmt.Sprintf("to_char(%s, 'YYYY-MM-DD') AS %s", ref, col)
		case times[col]:
			out[i] = fmt.Sprintf("to_char(%s, 'HH24:MI') AS %s", ref, col)
		default:
			out[i] = ref
		}
	}
	return strings.Join(out, ", ")
}

func insertSQL(table string, cols []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (:%s)", table, strings.Join(cols, ", "), strings.Join(cols, ", :"))
}

// updateSQL updates every column but `skip` on the live tenant row matching :id.
func updateSQL(table string, cols []string, skip ...string) string {
	sets := make([]string, 0, len(cols))
	for _, col := range cols {
		if col == "id" || col == "tenant_id" || col == "created_at" || core.StringIn(col, skip) {
			continue
		}
		sets = append(sets, col+" = :"+col)
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE tenant_id = :tenant_id AND id = :id AND deleted_at IS NULL",
		table, strings.Join(sets, ", "))
}

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, item := range items {
		m[item] = true
	}
	return m
}

// inTx runs fn in a transaction, unless exec already is one.
func inTx(ctx context.Context, exec core.DBExecutor, fn func(core.DBExecutor) error) error {
	db, ok := exec.(core.DB)
	if !ok {
		return fn(exec)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// namedUpdate runs an UPDATE and returns notFound when no row matched.
func namedUpdate(ctx context.Context, exec core.DBExecutor, q string, arg interface{}, notFound error, msg string) error {
	res, err := exec.NamedExecContext(ctx, q, arg)
	if err != nil {
		return mapWriteErr(err, msg)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound
	}
	return nil
}
