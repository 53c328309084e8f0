package schema_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"db-portal/internal/dberr"
	"db-portal/internal/dialect"
	"db-portal/internal/pool"
	"db-portal/internal/schema"
	"db-portal/internal/value"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*pool.Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return pool.New(sqlx.NewDb(db, "sqlmock"), pool.Options{Size: 4, AcquireTimeout: time.Second}), mock
}

func mustDialect(t *testing.T, name string) dialect.Dialect {
	t.Helper()
	d, err := dialect.GetDialect(name)
	require.NoError(t, err)
	return d
}

func columnRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"column_name", "udt_name", "is_nullable", "column_key", "extra"}).
		AddRow("id", "int4", "NO", "PRI", "nextval('productos_id_seq'::regclass)").
		AddRow("nombre", "varchar", "NO", "", "").
		AddRow("precio", "numeric", "NO", "", "").
		AddRow("stock", "int4", "YES", "", "").
		AddRow("creado", "timestamp", "YES", "", nil)
}

func tableRows(names ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"table_name"})
	for _, n := range names {
		rows.AddRow(n)
	}
	return rows
}

func TestDescribeTableIsCached(t *testing.T) {
	p, mock := newMock(t)
	in := schema.NewIntrospector(p, mustDialect(t, "postgres"), "public")

	mock.ExpectQuery("FROM information_schema.tables").WithArgs("public").
		WillReturnRows(tableRows("productos", "usuarios_sistema"))
	mock.ExpectQuery("FROM information_schema.columns").WithArgs("public", "productos").
		WillReturnRows(columnRows())

	tbl, err := in.DescribeTable(context.Background(), "PRODUCTOS")
	require.NoError(t, err)
	assert.Equal(t, "productos", tbl.Name)
	assert.Equal(t, []string{"id", "nombre", "precio", "stock", "creado"}, tbl.ColumnNames())

	id := tbl.PrimaryKey()
	require.NotNil(t, id)
	assert.Equal(t, "id", id.Name)
	assert.True(t, id.IsAutoInc)
	assert.Equal(t, "int", id.DataType)

	precio, ok := tbl.Column("Precio")
	require.True(t, ok)
	assert.Equal(t, value.KindNumber, precio.Kind)
	creado, _ := tbl.Column("creado")
	assert.Equal(t, value.KindTime, creado.Kind)
	assert.True(t, creado.IsNullable)

	again, err := in.DescribeTable(context.Background(), "productos")
	require.NoError(t, err)
	assert.Same(t, tbl, again)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDescribeUnknownTable(t *testing.T) {
	p, mock := newMock(t)
	in := schema.NewIntrospector(p, mustDialect(t, "postgres"), "public")
	mock.ExpectQuery("FROM information_schema.tables").WillReturnRows(tableRows("productos"))

	_, err := in.DescribeTable(context.Background(), "ghosts")
	assert.ErrorIs(t, err, dberr.New(dberr.KindUnknownTable, "ghosts"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConcurrentDescribeRunsOneIntrospection(t *testing.T) {
	p, mock := newMock(t)
	in := schema.NewIntrospector(p, mustDialect(t, "postgres"), "public")

	// a single expectation per query: any second catalog round trip fails the test
	mock.ExpectQuery("FROM information_schema.tables").
		WillDelayFor(40 * time.Millisecond).
		WillReturnRows(tableRows("productos"))
	mock.ExpectQuery("FROM information_schema.columns").
		WillDelayFor(40 * time.Millisecond).
		WillReturnRows(columnRows())

	const callers = 16
	results := make([]*schema.Table, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = in.DescribeTable(context.Background(), "productos")
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, int64(2), p.Stats().Acquired)
}

func TestCancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	p, mock := newMock(t)
	in := schema.NewIntrospector(p, mustDialect(t, "postgres"), "public")

	mock.ExpectQuery("FROM information_schema.tables").
		WillDelayFor(80 * time.Millisecond).
		WillReturnRows(tableRows("productos"))

	short, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	var (
		wg       sync.WaitGroup
		shortErr error
		tables   []string
		longErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, shortErr = in.ListTables(short)
	}()
	go func() {
		defer wg.Done()
		tables, longErr = in.ListTables(context.Background())
	}()
	wg.Wait()

	assert.ErrorIs(t, shortErr, dberr.ErrTimeout)
	require.NoError(t, longErr)
	assert.Equal(t, []string{"productos"}, tables)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshReloads(t *testing.T) {
	p, mock := newMock(t)
	in := schema.NewIntrospector(p, mustDialect(t, "postgres"), "public")

	mock.ExpectQuery("FROM information_schema.tables").WillReturnRows(tableRows("productos"))
	mock.ExpectQuery("FROM information_schema.tables").WillReturnRows(tableRows("productos", "clientes"))

	first, err := in.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"productos"}, first)

	in.Refresh()
	second, err := in.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"productos", "clientes"}, second)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDescribeDatabaseLinksForeignKeys(t *testing.T) {
	p, mock := newMock(t)
	in := schema.NewIntrospector(p, mustDialect(t, "postgres"), "public")

	mock.ExpectQuery("FROM information_schema.tables").WillReturnRows(tableRows("pedidos", "clientes"))
	mock.ExpectQuery("FROM information_schema.columns").WithArgs("public", "pedidos").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "udt_name", "is_nullable", "column_key", "extra"}).
			AddRow("id", "int4", "NO", "PRI", "").
			AddRow("cliente_id", "int4", "NO", "", ""))
	mock.ExpectQuery("FROM information_schema.columns").WithArgs("public", "clientes").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "udt_name", "is_nullable", "column_key", "extra"}).
			AddRow("id", "int4", "NO", "PRI", ""))
	mock.ExpectQuery("FOREIGN KEY").WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "ref_table", "ref_column"}).
			AddRow("pedidos", "cliente_id", "clientes", "id"))

	db, err := in.DescribeDatabase(context.Background())
	require.NoError(t, err)
	require.Len(t, db, 2)

	pedidos := db["pedidos"]
	require.Len(t, pedidos.ForeignKeys, 1)
	assert.Equal(t, "clientes", pedidos.ForeignKeys[0].RefTable)
	assert.Equal(t, []string{"clientes"}, pedidos.Dependencies)

	sorted := schema.SortByDependencies([]*schema.Table{db["pedidos"], db["clientes"]})
	assert.Equal(t, "clientes", sorted[0].Name)

	// the cached descriptor is not touched by the FK pass
	cached, err := in.DescribeTable(context.Background(), "pedidos")
	require.NoError(t, err)
	assert.Empty(t, cached.ForeignKeys)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDescribeProcedure(t *testing.T) {
	p, mock := newMock(t)
	in := schema.NewIntrospector(p, mustDialect(t, "sqlserver"), "dbo")

	mock.ExpectQuery("INFORMATION_SCHEMA.ROUTINES").WithArgs("dbo", "sp_ventas_cliente").
		WillReturnRows(sqlmock.NewRows([]string{"routine_type", "data_type"}).AddRow("PROCEDURE", ""))
	mock.ExpectQuery("sys.parameters").WithArgs("dbo", "sp_ventas_cliente").
		WillReturnRows(sqlmock.NewRows([]string{"name", "mode", "type", "has_default"}).
			AddRow("@cliente_id", "IN", "int", 0).
			AddRow("@desde", "IN", "date", 1).
			AddRow("@total", "INOUT", "decimal", 0))

	proc, err := in.DescribeProcedure(context.Background(), "sp_ventas_cliente")
	require.NoError(t, err)
	assert.Equal(t, schema.RoutineProcedure, proc.Routine)
	require.Len(t, proc.Params, 3)

	assert.Equal(t, "cliente_id", proc.Params[0].Name)
	assert.True(t, proc.Params[0].Required)
	assert.False(t, proc.Params[1].Required)
	assert.Equal(t, schema.ModeInOut, proc.Params[2].Mode)
	assert.False(t, proc.Params[2].Required)
	assert.True(t, proc.HasOutput())

	prm, ok := proc.Param("@CLIENTE_ID")
	require.True(t, ok)
	assert.Equal(t, 1, prm.Position)

	// cached: no further catalog queries
	_, err = in.DescribeProcedure(context.Background(), "dbo.sp_ventas_cliente")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDescribeUnknownProcedure(t *testing.T) {
	p, mock := newMock(t)
	in := schema.NewIntrospector(p, mustDialect(t, "postgres"), "public")

	empty := func() *sqlmock.Rows { return sqlmock.NewRows([]string{"routine_type", "data_type"}) }
	mock.ExpectQuery("information_schema.routines").WithArgs("public", "fn_nada").WillReturnRows(empty())
	mock.ExpectQuery("information_schema.routines").WithArgs("public", "FN_NADA").WillReturnRows(empty())

	_, err := in.DescribeProcedure(context.Background(), "fn_nada")
	assert.ErrorIs(t, err, dberr.ErrUnknownProcedure)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveSchema(t *testing.T) {
	p, mock := newMock(t)
	ctx := context.Background()

	s, err := schema.ResolveSchema(ctx, p, mustDialect(t, "postgres"), "")
	require.NoError(t, err)
	assert.Equal(t, "public", s)

	s, err = schema.ResolveSchema(ctx, p, mustDialect(t, "sqlserver"), "ventas")
	require.NoError(t, err)
	assert.Equal(t, "ventas", s)

	mock.ExpectQuery(`SELECT DATABASE\(\)`).WillReturnRows(sqlmock.NewRows([]string{"db"}).AddRow("shop"))
	s, err = schema.ResolveSchema(ctx, p, mustDialect(t, "mysql"), "")
	require.NoError(t, err)
	assert.Equal(t, "shop", s)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogFailureIsTyped(t *testing.T) {
	p, mock := newMock(t)
	in := schema.NewIntrospector(p, mustDialect(t, "postgres"), "public")
	mock.ExpectQuery("FROM information_schema.tables").WillReturnError(assert.AnError)

	_, err := in.ListTables(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, dberr.ErrDatabaseExecutionFailure)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NotContains(t, err.Error(), assert.AnError.Error())
}
