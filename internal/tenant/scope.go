package tenant

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"blendcloud/internal/apierror"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

const (
	column       = "tenant_id"
	bootstrapKey = "tenant:bootstrap"
)

// RegisterCallbacks installs the tenant filter on db. Every statement whose
// model has a tenant_id column is scoped to the tenant bound in the statement
// context; statements without a bound tenant fail with ErrNotResolved. Raw
// SQL, table overrides and statements without a parseable model are rejected
// outside Bootstrap, since the filter cannot see which rows they touch.
func RegisterCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	steps := []struct {
		name string
		err  error
	}{
		{"query", cb.Query().Before("gorm:query").Register("tenant:before_query", scopeStatement)},
		{"row", cb.Row().Before("gorm:row").Register("tenant:before_row", scopeStatement)},
		{"update", cb.Update().Before("gorm:update").Register("tenant:before_update", scopeUpdate)},
		{"delete", cb.Delete().Before("gorm:delete").Register("tenant:before_delete", scopeStatement)},
		{"create", cb.Create().Before("gorm:create").Register("tenant:before_create", stampCreate)},
		{"raw", cb.Raw().Before("gorm:raw").Register("tenant:before_raw", rejectRaw)},
	}
	for _, s := range steps {
		if s.err != nil {
			return fmt.Errorf("tenant: register %s callback: %w", s.name, s.err)
		}
	}
	return nil
}

// Bootstrap marks db as the trusted pre-tenant path (credential lookup during
// login). It is the only way past the filter.
func Bootstrap(db *gorm.DB) *gorm.DB {
	return db.Set(bootstrapKey, true)
}

func isBootstrap(db *gorm.DB) bool {
	v, ok := db.Get(bootstrapKey)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

var (
	errRawSQL     = apierror.Forbidden("Consulta sin alcance de tenant")
	errSinModelo  = apierror.Forbidden("Sentencia sin modelo verificable")
	errOnConflict = apierror.Forbidden("Upsert sin alcance de tenant")
	errAsignacion = apierror.Forbidden("Asignacion de tenant no verificable")
	destSchemas   sync.Map
	savepointSQL  = []string{"SAVEPOINT ", "RELEASE SAVEPOINT ", "ROLLBACK TO SAVEPOINT "}
)

// tenantField returns the tenant column of the statement model, nil for
// shared tables. A statement whose target table cannot be tied to its model
// fails with errSinModelo.
func tenantField(db *gorm.DB) (*schema.Field, error) {
	stmt := db.Statement
	if stmt.TableExpr != nil {
		return nil, errSinModelo
	}
	if stmt.Schema == nil {
		if stmt.Table != "" {
			return nil, errSinModelo
		}
		return nil, nil
	}
	if stmt.Table != "" && stmt.Table != stmt.Schema.Table {
		return nil, errSinModelo
	}
	return stmt.Schema.LookUpField(column), nil
}

func scopeStatement(db *gorm.DB) {
	if db.Error != nil || isBootstrap(db) {
		return
	}
	// Raw SQL is already built and cannot be predicated.
	if db.Statement.SQL.Len() > 0 {
		_ = db.AddError(errRawSQL)
		return
	}
	field, err := tenantField(db)
	if err != nil {
		_ = db.AddError(err)
		return
	}
	if field == nil {
		return
	}
	id, err := Require(db.Statement.Context)
	if err != nil {
		_ = db.AddError(err)
		return
	}
	db.Statement.AddClause(clause.Where{Exprs: []clause.Expression{
		clause.Eq{
			Column: clause.Column{Table: clause.CurrentTable, Name: field.DBName},
			Value:  id,
		},
	}})
}

// scopeUpdate predicates the update like any other statement and then checks
// the assignments: a row never changes tenant.
func scopeUpdate(db *gorm.DB) {
	scopeStatement(db)
	if db.Error != nil || isBootstrap(db) {
		return
	}
	field, _ := tenantField(db)
	if field == nil {
		return
	}
	id, _ := Require(db.Statement.Context)
	if err := checkAssignments(db, field, id); err != nil {
		_ = db.AddError(err)
	}
}

func checkAssignments(db *gorm.DB, field *schema.Field, id uuid.UUID) error {
	stmt := db.Statement
	switch dest := stmt.Dest.(type) {
	case map[string]interface{}:
		for k, v := range dest {
			if k != field.DBName && k != field.Name {
				continue
			}
			if !sameID(v, id) {
				return ErrMismatch
			}
		}
		return nil
	case clause.Set:
		for _, a := range dest {
			if a.Column.Name == field.DBName && !sameID(a.Value, id) {
				return ErrMismatch
			}
		}
		return nil
	}

	rv := reflect.Indirect(reflect.ValueOf(stmt.Dest))
	if rv.Kind() != reflect.Struct {
		return errAsignacion
	}
	f := field
	if rv.Type() != stmt.Schema.ModelType {
		sch, err := schema.Parse(stmt.Dest, &destSchemas, db.NamingStrategy)
		if err != nil {
			return errAsignacion
		}
		if f = sch.LookUpField(column); f == nil {
			return nil
		}
	}
	// Save writes every column: an empty tenant is filled in, a foreign one
	// is refused.
	if rv.CanAddr() {
		return stamp(stmt.Context, f, rv, id)
	}
	if v, zero := f.ValueOf(stmt.Context, rv); !zero && !sameID(v, id) {
		return ErrMismatch
	}
	return nil
}

func sameID(v interface{}, id uuid.UUID) bool {
	switch x := v.(type) {
	case uuid.UUID:
		return x == id
	case *uuid.UUID:
		return x != nil && *x == id
	case string:
		parsed, err := uuid.Parse(x)
		return err == nil && parsed == id
	default:
		return false
	}
}

// rejectRaw blocks db.Exec outside Bootstrap. Savepoints issued by nested
// transactions carry no data and pass.
func rejectRaw(db *gorm.DB) {
	if db.Error != nil || isBootstrap(db) {
		return
	}
	sql := strings.ToUpper(strings.TrimSpace(db.Statement.SQL.String()))
	for _, p := range savepointSQL {
		if strings.HasPrefix(sql, p) {
			return
		}
	}
	_ = db.AddError(errRawSQL)
}

func stampCreate(db *gorm.DB) {
	if db.Error != nil || isBootstrap(db) {
		return
	}
	field, err := tenantField(db)
	if err != nil {
		_ = db.AddError(err)
		return
	}
	if field == nil {
		return
	}
	// ON CONFLICT DO UPDATE rewrites the existing row without a tenant predicate.
	if c, ok := db.Statement.Clauses["ON CONFLICT"]; ok {
		if oc, ok := c.Expression.(clause.OnConflict); !ok || !oc.DoNothing {
			_ = db.AddError(errOnConflict)
			return
		}
	}
	ctx := db.Statement.Context
	id, err := Require(ctx)
	if err != nil {
		_ = db.AddError(err)
		return
	}

	rv := db.Statement.ReflectValue
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := stamp(ctx, field, reflect.Indirect(rv.Index(i)), id); err != nil {
				_ = db.AddError(err)
				return
			}
		}
	case reflect.Struct:
		if err := stamp(ctx, field, rv, id); err != nil {
			_ = db.AddError(err)
		}
	default:
		_ = db.AddError(apierror.Forbidden("Alta sin tenant verificable"))
	}
}

// stamp fills an empty tenant column and rejects a foreign one; it never
// rewrites a tenant the caller set explicitly.
func stamp(ctx context.Context, field *schema.Field, rv reflect.Value, id uuid.UUID) error {
	v, zero := field.ValueOf(ctx, rv)
	if !zero {
		if cur, ok := v.(uuid.UUID); ok && cur == id {
			return nil
		}
		return ErrMismatch
	}
	return field.Set(ctx, rv, id)
}
