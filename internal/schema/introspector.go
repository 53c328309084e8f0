package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"db-portal/internal/dberr"
	"db-portal/internal/dialect"
	"db-portal/internal/pool"

	"golang.org/x/sync/singleflight"
)

// Introspector reads table and procedure metadata from the engine's catalog
// and caches it for the process lifetime. Concurrent first requests for the
// same entry share one catalog query.
type Introspector struct {
	pool    *pool.Manager
	dialect dialect.Dialect
	schema  string

	cache        sync.Map // cache key -> *Table | *Procedure | []string
	group        singleflight.Group
	fetchTimeout time.Duration
}

// DefaultFetchTimeout bounds one shared catalog query.
const DefaultFetchTimeout = 30 * time.Second

const tablesKey = "tables"

func tableKey(name string) string { return "table:" + strings.ToUpper(name) }
func procKey(name string) string { return "proc:" + strings.ToUpper(name) }

// NewIntrospector reads schemaName's catalog; schemaName should already be
// resolved with ResolveSchema.
func NewIntrospector(p *pool.Manager, d dialect.Dialect, schemaName string) *Introspector {
	return &Introspector{pool: p, dialect: d, schema: schemaName, fetchTimeout: DefaultFetchTimeout}
}

// SetFetchTimeout bounds each shared catalog query. Non-positive values
// keep the current bound.
func (in *Introspector) SetFetchTimeout(d time.Duration) {
	if d > 0 {
		in.fetchTimeout = d
	}
}

// ResolveSchema returns configured when set, else the dialect's default
// schema, else asks the server (MySQL database, Oracle current schema).
func ResolveSchema(ctx context.Context, p *pool.Manager, d dialect.Dialect, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if s := d.DefaultSchema(); s != "" {
		return s, nil
	}
	var current sql.NullString
	err := p.With(ctx, func(c *pool.Conn) error {
		return c.QueryRowxContext(ctx, d.CurrentSchemaQuery()).Scan(&current)
	})
	if err != nil {
		return "", fmt.Errorf("failed to resolve current schema: %w", err)
	}
	if !current.Valid || current.String == "" {
		return "", fmt.Errorf("connection has no current schema; set one in the configuration")
	}
	return current.String, nil
}

func (in *Introspector) Schema() string { return in.schema }

func (in *Introspector) Dialect() dialect.Dialect { return in.dialect }

// Refresh drops every cached descriptor; the next request reloads it.
func (in *Introspector) Refresh() {
	in.cache.Range(func(k, _ any) bool {
		in.cache.Delete(k)
		return true
	})
}

// load returns the cached entry for key, or runs fetch once for all
// concurrent callers and publishes its result. fetch runs detached from the
// caller that started it, bounded by fetchTimeout, so one caller giving up
// does not fail the others; each caller stops waiting when its own ctx ends.
func (in *Introspector) load(ctx context.Context, key string, fetch func(context.Context) (any, error)) (any, error) {
	if v, ok := in.cache.Load(key); ok {
		return v, nil
	}
	ch := in.group.DoChan(key, func() (any, error) {
		if v, ok := in.cache.Load(key); ok {
			return v, nil
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), in.fetchTimeout)
		defer cancel()
		v, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		in.cache.Store(key, v)
		return v, nil
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, dberr.Wrap(dberr.KindTimeout, "", ctx.Err())
	}
}

// ListTables returns the base tables of the schema in catalog order.
func (in *Introspector) ListTables(ctx context.Context) ([]string, error) {
	v, err := in.load(ctx, tablesKey, func(ctx context.Context) (any, error) { return in.fetchTables(ctx) })
	if err != nil {
		return nil, err
	}
	return append([]string(nil), v.([]string)...), nil
}

// canonical maps name to its catalog spelling, ignoring case.
func (in *Introspector) canonical(ctx context.Context, name string) (string, bool, error) {
	tables, err := in.ListTables(ctx)
	if err != nil {
		return "", false, err
	}
	for _, t := range tables {
		if t == name {
			return t, true, nil
		}
	}
	for _, t := range tables {
		if strings.EqualFold(t, name) {
			return t, true, nil
		}
	}
	return "", false, nil
}

// DescribeTable returns the descriptor for name, or UnknownTable.
func (in *Introspector) DescribeTable(ctx context.Context, name string) (*Table, error) {
	canon, ok, err := in.canonical(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, dberr.New(dberr.KindUnknownTable, name)
	}
	v, err := in.load(ctx, tableKey(canon), func(ctx context.Context) (any, error) { return in.fetchTable(ctx, canon) })
	if err != nil {
		return nil, err
	}
	return v.(*Table), nil
}

// DescribeDatabase returns every table with its foreign keys, keyed by name.
// The returned descriptors are copies carrying FK metadata; the cached
// column descriptors are shared.
func (in *Introspector) DescribeDatabase(ctx context.Context) (map[string]*Table, error) {
	names, err := in.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Table, len(names))
	for _, n := range names {
		t, err := in.DescribeTable(ctx, n)
		if err != nil {
			return nil, err
		}
		cp := *t
		cp.ForeignKeys = nil
		cp.Dependencies = nil
		out[n] = &cp
	}

	fks, err := in.fetchForeignKeys(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range sortedNames(out) {
		t := out[name]
		for _, fk := range fks[strings.ToUpper(name)] {
			ref, ok := lookupFold(out, fk.RefTable)
			if !ok || ref.Name == t.Name {
				continue
			}
			t.ForeignKeys = append(t.ForeignKeys, &ForeignKey{Column: fk.Column, RefTable: ref.Name, RefColumn: fk.RefColumn})
			if !dependsOn(t, ref.Name) {
				t.Dependencies = append(t.Dependencies, ref.Name)
			}
		}
	}
	return out, nil
}

func lookupFold(m map[string]*Table, name string) (*Table, bool) {
	if t, ok := m[name]; ok {
		return t, true
	}
	for k, t := range m {
		if strings.EqualFold(k, name) {
			return t, true
		}
	}
	return nil, false
}

// DescribeProcedure returns the routine descriptor for name, which may be
// schema-qualified, or UnknownProcedure.
func (in *Introspector) DescribeProcedure(ctx context.Context, name string) (*Procedure, error) {
	schemaName, routine := in.schema, name
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		schemaName, routine = name[:i], name[i+1:]
	}
	if routine == "" || schemaName == "" {
		return nil, dberr.New(dberr.KindInvalidArgument, name)
	}
	v, err := in.load(ctx, procKey(schemaName+"."+routine), func(ctx context.Context) (any, error) {
		return in.fetchProcedure(ctx, schemaName, routine)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Procedure), nil
}

func (in *Introspector) fetchTables(ctx context.Context) ([]string, error) {
	var tables []string
	err := in.pool.With(ctx, func(c *pool.Conn) error {
		rows, err := c.QueryxContext(ctx, in.dialect.TablesQuery(), in.schema)
		if err != nil {
			return fmt.Errorf("failed to query tables: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return fmt.Errorf("failed to scan table name: %w", err)
			}
			tables = append(tables, name)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating tables: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, catalogErr(in.schema, err)
	}
	if tables == nil {
		tables = []string{}
	}
	return tables, nil
}

func (in *Introspector) fetchTable(ctx context.Context, name string) (*Table, error) {
	t := &Table{Schema: in.schema, Name: name}
	err := in.pool.With(ctx, func(c *pool.Conn) error {
		rows, err := c.QueryxContext(ctx, in.dialect.ColumnsQuery(), in.schema, name)
		if err != nil {
			return fmt.Errorf("failed to query columns: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var cName, dType, isNull, cKey, extra sql.NullString
			if err := rows.Scan(&cName, &dType, &isNull, &cKey, &extra); err != nil {
				return fmt.Errorf("failed to scan column (table: %s): %w", name, err)
			}
			if !cName.Valid {
				continue
			}
			extraLower := strings.ToLower(extra.String)
			autoInc := strings.Contains(extraLower, "auto_increment") ||
				strings.Contains(extraLower, "identity") ||
				strings.Contains(extraLower, "nextval")
			normalized := in.dialect.NormalizeType(dType.String)
			t.Columns = append(t.Columns, &Column{
				Name:       cName.String,
				DataType:   normalized,
				Kind:       KindForType(normalized),
				IsNullable: strings.EqualFold(isNull.String, "YES"),
				IsPK:       strings.Contains(cKey.String, "PRI"),
				IsAutoInc:  autoInc,
			})
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating columns: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, catalogErr(name, err)
	}
	return t, nil
}

// fetchForeignKeys returns the schema's foreign keys grouped by upper-cased
// table name. Foreign keys are not cached; only DescribeDatabase needs them.
func (in *Introspector) fetchForeignKeys(ctx context.Context) (map[string][]ForeignKey, error) {
	out := make(map[string][]ForeignKey)
	err := in.pool.With(ctx, func(c *pool.Conn) error {
		rows, err := c.QueryxContext(ctx, in.dialect.ForeignKeysQuery(), in.schema)
		if err != nil {
			return fmt.Errorf("failed to query foreign keys: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var tName, cName, rTable, rCol sql.NullString
			if err := rows.Scan(&tName, &cName, &rTable, &rCol); err != nil {
				return fmt.Errorf("failed to scan foreign key: %w", err)
			}
			if !tName.Valid || !rTable.Valid {
				continue
			}
			key := strings.ToUpper(tName.String)
			out[key] = append(out[key], ForeignKey{Column: cName.String, RefTable: rTable.String, RefColumn: rCol.String})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, catalogErr(in.schema, err)
	}
	return out, nil
}

func (in *Introspector) fetchProcedure(ctx context.Context, schemaName, name string) (*Procedure, error) {
	p := &Procedure{Schema: schemaName}
	found := false
	err := in.pool.With(ctx, func(c *pool.Conn) error {
		// the catalog may store the name in another case (Oracle upper-cases it)
		for _, candidate := range nameCandidates(name) {
			var routine, dataType sql.NullString
			err := c.QueryRowxContext(ctx, in.dialect.RoutineQuery(), schemaName, candidate).Scan(&routine, &dataType)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to query routine: %w", err)
			}
			found = true
			p.Name = candidate
			p.Routine = strings.ToUpper(routine.String)
			if p.Routine != RoutineFunction {
				p.Routine = RoutineProcedure
			}
			p.ReturnsTable = strings.EqualFold(dataType.String, "TABLE")
			break
		}
		if !found {
			return nil
		}

		rows, err := c.QueryxContext(ctx, in.dialect.ProcedureParamsQuery(), schemaName, p.Name)
		if err != nil {
			return fmt.Errorf("failed to query parameters: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var pName, mode, dType sql.NullString
			var hasDefault sql.NullInt64
			if err := rows.Scan(&pName, &mode, &dType, &hasDefault); err != nil {
				return fmt.Errorf("failed to scan parameter: %w", err)
			}
			prm := &Param{
				Name:     strings.TrimPrefix(pName.String, "@"),
				Position: len(p.Params) + 1,
				Mode:     normalizeMode(mode.String),
				DataType: in.dialect.NormalizeType(dType.String),
			}
			prm.Kind = KindForType(prm.DataType)
			prm.Required = prm.Mode == ModeIn && hasDefault.Int64 == 0
			p.Params = append(p.Params, prm)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, catalogErr(name, err)
	}
	if !found {
		return nil, dberr.New(dberr.KindUnknownProcedure, name)
	}
	return p, nil
}

func nameCandidates(name string) []string {
	out := []string{name}
	for _, alt := range []string{strings.ToUpper(name), strings.ToLower(name)} {
		if alt != out[len(out)-1] && alt != name {
			out = append(out, alt)
		}
	}
	return out
}

func normalizeMode(mode string) string {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(mode), " ", "")) {
	case "OUT":
		return ModeOut
	case "INOUT", "IN/OUT":
		return ModeInOut
	default:
		return ModeIn
	}
}

// catalogErr keeps typed errors (pool exhaustion, timeouts) and files the
// rest as execution failures against ident.
func catalogErr(ident string, err error) error {
	if dberr.KindOf(err) != dberr.KindUnknown {
		return err
	}
	return dberr.Wrap(dberr.KindDatabaseExecutionFailure, ident, err)
}
