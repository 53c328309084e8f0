package engine_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"db-portal/internal/dberr"
	"db-portal/internal/engine"
	"db-portal/internal/value"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func routineRows(routine, dataType string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"routine_type", "data_type"}).AddRow(routine, dataType)
}

func paramRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"name", "mode", "type", "has_default"})
}

func expectVentasCliente(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("INFORMATION_SCHEMA.ROUTINES").WithArgs("dbo", "sp_ventas_cliente").
		WillReturnRows(routineRows("PROCEDURE", ""))
	mock.ExpectQuery("sys.parameters").WithArgs("dbo", "sp_ventas_cliente").
		WillReturnRows(paramRows().
			AddRow("@cliente_id", "IN", "int", 0).
			AddRow("@desde", "IN", "date", 1).
			AddRow("@total", "INOUT", "decimal", 0))
}

func TestCallSQLServerProcedure(t *testing.T) {
	p, mock := newMock(t)
	d := mustDialect(t, "sqlserver")
	ex := engine.NewProcedureExecutor(p, d, newValidator(p, d, "dbo"), 0)
	expectVentasCliente(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`EXEC [dbo].[sp_ventas_cliente] @cliente_id = @cliente_id`)).
		WithArgs(sql.Named("cliente_id", int64(7))).
		WillReturnRows(sqlmock.NewRowsWithColumnDefinition(
			sqlmock.NewColumn("fecha").OfType("DATE", ""),
			sqlmock.NewColumn("total").OfType("DECIMAL", ""),
		).AddRow("2024-05-01", []byte("1500.00")))

	rows, err := ex.Call(context.Background(), "sp_ventas_cliente", map[string]value.Value{"@CLIENTE_ID": value.String("7")})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	fecha, _ := rows[0].Get("fecha")
	assert.Equal(t, value.KindTime, fecha.Kind())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCallArgumentMismatch(t *testing.T) {
	p, mock := newMock(t)
	d := mustDialect(t, "sqlserver")
	ex := engine.NewProcedureExecutor(p, d, newValidator(p, d, "dbo"), 0)
	expectVentasCliente(mock)
	ctx := context.Background()

	_, err := ex.Call(ctx, "sp_ventas_cliente", map[string]value.Value{"desde": value.String("2024-01-01")})
	assert.ErrorIs(t, err, dberr.New(dberr.KindArgumentMismatch, "cliente_id"))

	_, err = ex.Call(ctx, "sp_ventas_cliente", map[string]value.Value{"cliente_id": value.Int(1), "region": value.Int(2)})
	assert.ErrorIs(t, err, dberr.New(dberr.KindArgumentMismatch, "region"))

	_, err = ex.Call(ctx, "sp_ventas_cliente", map[string]value.Value{"cliente_id": value.Int(1), "@cliente_id": value.Int(2)})
	assert.ErrorIs(t, err, dberr.ErrArgumentMismatch)

	// one introspection round trip served every call
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, int64(1), p.Stats().Acquired)
}

func TestCallSQLServerFunctionFillsDefaults(t *testing.T) {
	p, mock := newMock(t)
	d := mustDialect(t, "sqlserver")
	ex := engine.NewProcedureExecutor(p, d, newValidator(p, d, "dbo"), 0)

	mock.ExpectQuery("INFORMATION_SCHEMA.ROUTINES").WithArgs("dbo", "fn_total").
		WillReturnRows(routineRows("FUNCTION", "decimal"))
	mock.ExpectQuery("sys.parameters").WithArgs("dbo", "fn_total").
		WillReturnRows(paramRows().
			AddRow("@desde", "IN", "date", 1).
			AddRow("@cliente_id", "IN", "int", 0))

	_, q, args, err := ex.Plan(context.Background(), "dbo.fn_total", map[string]value.Value{"cliente_id": value.Int(7)})
	require.NoError(t, err)
	assert.Equal(t, `SELECT [dbo].[fn_total](DEFAULT, @cliente_id) AS [result]`, q)
	require.Len(t, args, 1)
}

func TestCallPostgresPositional(t *testing.T) {
	p, mock := newMock(t)
	d := mustDialect(t, "postgres")
	ex := engine.NewProcedureExecutor(p, d, newValidator(p, d, "public"), 0)
	ctx := context.Background()

	mock.ExpectQuery("information_schema.routines").WithArgs("public", "fn_ventas").
		WillReturnRows(routineRows("FUNCTION", "record"))
	mock.ExpectQuery("information_schema.parameters").WithArgs("public", "fn_ventas").
		WillReturnRows(paramRows().
			AddRow("p_cliente", "IN", "integer", 0).
			AddRow("p_desde", "IN", "date", 1).
			AddRow("p_hasta", "IN", "date", 1).
			AddRow("total", "OUT", "numeric", 0))

	// trailing optional parameters are dropped, a gap is bound as NULL, OUT columns take no slot
	_, q, args, err := ex.Plan(ctx, "fn_ventas", map[string]value.Value{"p_cliente": value.Int(7)})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "public"."fn_ventas"($1)`, q)
	assert.Len(t, args, 1)

	_, q, args, err = ex.Plan(ctx, "fn_ventas", map[string]value.Value{"p_cliente": value.Int(7), "p_hasta": value.String("2024-12-31")})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "public"."fn_ventas"($1, $2, $3)`, q)
	require.Len(t, args, 3)
	assert.True(t, argValue(t, args[1]).IsNull())
	assert.Equal(t, value.KindTime, argValue(t, args[2]).Kind())

	_, _, _, err = ex.Plan(ctx, "fn_ventas", map[string]value.Value{"p_cliente": value.Int(7), "total": value.Int(1)})
	assert.ErrorIs(t, err, dberr.New(dberr.KindArgumentMismatch, "total"))
}

func TestCallPostgresProcedureBindsOutSlots(t *testing.T) {
	p, mock := newMock(t)
	d := mustDialect(t, "postgres")
	ex := engine.NewProcedureExecutor(p, d, newValidator(p, d, "public"), 0)

	mock.ExpectQuery("information_schema.routines").WithArgs("public", "sp_cerrar_caja").
		WillReturnRows(routineRows("PROCEDURE", ""))
	mock.ExpectQuery("information_schema.parameters").WithArgs("public", "sp_cerrar_caja").
		WillReturnRows(paramRows().
			AddRow("p_caja", "IN", "integer", 0).
			AddRow("p_total", "INOUT", "numeric", 0))
	mock.ExpectQuery(regexp.QuoteMeta(`CALL "public"."sp_cerrar_caja"($1, $2)`)).
		WithArgs(int64(3), nil).
		WillReturnRows(sqlmock.NewRowsWithColumnDefinition(
			sqlmock.NewColumn("p_total").OfType("NUMERIC", ""),
		).AddRow("250.75"))

	rows, err := ex.Call(context.Background(), "sp_cerrar_caja", map[string]value.Value{"p_caja": value.Int(3)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	total, _ := rows[0].Get("p_total")
	assert.True(t, total.Equal(value.Float(250.75)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCallMySQLRejectsOutParams(t *testing.T) {
	p, mock := newMock(t)
	d := mustDialect(t, "mysql")
	ex := engine.NewProcedureExecutor(p, d, newValidator(p, d, "shop"), 0)

	mock.ExpectQuery("information_schema.ROUTINES").WithArgs("shop", "sp_stock").
		WillReturnRows(routineRows("PROCEDURE", ""))
	mock.ExpectQuery("information_schema.PARAMETERS").WithArgs("shop", "sp_stock").
		WillReturnRows(paramRows().
			AddRow("p_id", "IN", "int", 0).
			AddRow("p_cantidad", "OUT", "int", 0))

	_, err := ex.Call(context.Background(), "sp_stock", map[string]value.Value{"p_id": value.Int(3)})
	assert.ErrorIs(t, err, dberr.ErrDialectUnsupportedOperation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCallOracleBlockRunsAsExec(t *testing.T) {
	p, mock := newMock(t)
	d := mustDialect(t, "oracle")
	ex := engine.NewProcedureExecutor(p, d, newValidator(p, d, "APP"), 0)

	mock.ExpectQuery("ALL_OBJECTS").WithArgs("APP", "sp_archivar").
		WillReturnRows(sqlmock.NewRows([]string{"routine_type", "data_type"}))
	mock.ExpectQuery("ALL_OBJECTS").WithArgs("APP", "SP_ARCHIVAR").
		WillReturnRows(routineRows("PROCEDURE", ""))
	mock.ExpectQuery("ALL_ARGUMENTS").WithArgs("APP", "SP_ARCHIVAR").
		WillReturnRows(paramRows().
			AddRow("P_DIAS", "IN", "NUMBER", 0).
			AddRow("P_MOTIVO", "IN", "VARCHAR2", 1))
	mock.ExpectExec(regexp.QuoteMeta(`BEGIN "APP"."SP_ARCHIVAR"(P_DIAS => :P_DIAS); END;`)).
		WithArgs(sql.Named("P_DIAS", int64(30))).
		WillReturnResult(sqlmock.NewResult(0, 0))

	rows, err := ex.Call(context.Background(), "sp_archivar", map[string]value.Value{"p_dias": value.Int(30)})
	require.NoError(t, err)
	assert.Empty(t, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCallForbiddenProcedureNeverTouchesPool(t *testing.T) {
	p, _ := newMock(t)
	d := mustDialect(t, "sqlserver")
	ex := engine.NewProcedureExecutor(p, d, newValidator(p, d, "dbo", "auditoria"), 0)

	_, err := ex.Call(context.Background(), "auditoria", nil)
	assert.ErrorIs(t, err, dberr.ErrForbiddenTable)
	assert.Equal(t, int64(0), p.Stats().Acquired)
}
