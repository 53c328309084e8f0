package schema_test

import (
	"context"
	"testing"

	"db-portal/internal/dberr"
	"db-portal/internal/dialect"
	"db-portal/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDenylist(t *testing.T) {
	assert.Equal(t, []string{"usuarios_sistema", "auditoria"}, schema.ParseDenylist(" usuarios_sistema, ,auditoria ,"))
	assert.Empty(t, schema.ParseDenylist(""))
}

func TestForbiddenTableNeverTouchesCatalog(t *testing.T) {
	p, mock := newMock(t)
	d := mustDialect(t, "postgres")
	v := schema.NewValidator(schema.NewIntrospector(p, d, "public"), []string{"usuarios_sistema"}, dialect.LexOptions(d))

	for _, name := range []string{"usuarios_sistema", "USUARIOS_SISTEMA ", "public.usuarios_sistema"} {
		_, err := v.ValidateTable(context.Background(), name)
		assert.ErrorIs(t, err, dberr.ErrForbiddenTable, name)
	}
	assert.Equal(t, int64(0), p.Stats().Acquired)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateTableAndColumn(t *testing.T) {
	p, mock := newMock(t)
	d := mustDialect(t, "postgres")
	v := schema.NewValidator(schema.NewIntrospector(p, d, "public"), nil, dialect.LexOptions(d))

	mock.ExpectQuery("FROM information_schema.tables").WillReturnRows(tableRows("productos"))
	mock.ExpectQuery("FROM information_schema.columns").WillReturnRows(columnRows())

	tbl, err := v.ValidateTable(context.Background(), "Productos")
	require.NoError(t, err)
	assert.Equal(t, "productos", tbl.Name)

	col, err := v.ValidateColumn(tbl, "NOMBRE")
	require.NoError(t, err)
	assert.Equal(t, "nombre", col.Name)

	_, err = v.ValidateColumn(tbl, "nombre; DROP TABLE productos")
	assert.ErrorIs(t, err, dberr.ErrUnknownColumn)

	_, err = v.ValidateTable(context.Background(), "productos x")
	assert.ErrorIs(t, err, dberr.ErrUnknownTable)

	_, err = v.ValidateTable(context.Background(), "  ")
	assert.ErrorIs(t, err, dberr.ErrInvalidArgument)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateProcedureAppliesDenylist(t *testing.T) {
	p, _ := newMock(t)
	d := mustDialect(t, "sqlserver")
	v := schema.NewValidator(schema.NewIntrospector(p, d, "dbo"), []string{"auditoria"}, dialect.LexOptions(d))

	_, err := v.ValidateProcedure(context.Background(), "dbo.auditoria")
	assert.ErrorIs(t, err, dberr.ErrForbiddenTable)
	_, err = v.ValidateProcedure(context.Background(), "auditoria.sp_limpiar")
	assert.ErrorIs(t, err, dberr.ErrForbiddenTable)
	assert.Equal(t, int64(0), p.Stats().Acquired)
}

func TestCheckStatement(t *testing.T) {
	p, _ := newMock(t)
	d := mustDialect(t, "sqlserver")
	v := schema.NewValidator(schema.NewIntrospector(p, d, "dbo"), []string{"usuarios_sistema"}, dialect.LexOptions(d))

	blocked := []string{
		"SELECT * FROM usuarios_sistema",
		"SELECT * FROM dbo.[Usuarios_Sistema]",
		`SELECT u.id FROM productos p JOIN "usuarios_sistema" u ON u.id = p.owner`,
	}
	for _, sql := range blocked {
		assert.ErrorIs(t, v.CheckStatement(sql), dberr.ErrForbiddenTable, sql)
	}

	allowed := []string{
		"SELECT 'usuarios_sistema' AS nombre",
		"-- usuarios_sistema\nSELECT 1",
		"SELECT * FROM usuarios_sistema_log",
	}
	for _, sql := range allowed {
		assert.NoError(t, v.CheckStatement(sql), sql)
	}
}
