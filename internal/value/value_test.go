package value_test

import (
	"encoding/json"
	"testing"
	"time"

	"db-portal/internal/value"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfNatives(t *testing.T) {
	tests := []struct {
		name string
		in   any
		kind value.Kind
	}{
		{"nil", nil, value.KindNull},
		{"string", "Laptop", value.KindString},
		{"int", 25, value.KindNumber},
		{"float", 1500.0, value.KindNumber},
		{"bool", true, value.KindBool},
		{"time", time.Now(), value.KindTime},
		{"bytes", []byte{1, 2}, value.KindBinary},
		{"decimal", decimal.RequireFromString("1399.99"), value.KindNumber},
		{"json number", json.Number("12.5"), value.KindNumber},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := value.Of(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, v.Kind())
		})
	}

	_, err := value.Of(struct{}{})
	assert.Error(t, err)
}

func TestNumberEqualityIgnoresScale(t *testing.T) {
	a := value.Number(decimal.RequireFromString("1500.00"))
	b := value.Int(1500)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(value.String("1500")))
}

func TestDriverValue(t *testing.T) {
	v, err := value.Number(decimal.RequireFromString("25.00")).Value()
	require.NoError(t, err)
	assert.Equal(t, int64(25), v)

	v, err = value.Number(decimal.RequireFromString("1399.99")).Value()
	require.NoError(t, err)
	assert.Equal(t, "1399.99", v)

	v, err = value.Null().Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestCoerce(t *testing.T) {
	assert.True(t, value.Coerce(value.String("42"), value.KindNumber).Equal(value.Int(42)))
	assert.True(t, value.Coerce(value.String("si"), value.KindBool).Equal(value.Bool(true)))
	assert.Equal(t, value.KindTime, value.Coerce(value.String("2024-01-15"), value.KindTime).Kind())
	assert.Equal(t, value.KindTime, value.Coerce(value.String("2024-01-15T10:30:00Z"), value.KindTime).Kind())

	// unparseable text is left for the database to judge
	assert.True(t, value.Coerce(value.String("abc"), value.KindNumber).Equal(value.String("abc")))
	assert.True(t, value.Coerce(value.Int(3), value.KindString).Equal(value.Int(3)))
}

func TestIsDateOnly(t *testing.T) {
	assert.True(t, value.IsDateOnly("2024-01-15"))
	assert.False(t, value.IsDateOnly("2024-01-15T00:00:00"))
	assert.False(t, value.IsDateOnly("15-01-2024"))
}

func TestRowKeepsOrderThroughJSON(t *testing.T) {
	in := `{"nombre":"Laptop","precio":1500.00,"stock":25,"activo":true,"notas":null,"tags":["a","b"]}`

	var r value.Row
	require.NoError(t, json.Unmarshal([]byte(in), &r))
	assert.Equal(t, []string{"nombre", "precio", "stock", "activo", "notas", "tags"}, r.Columns())

	precio, ok := r.Get("precio")
	require.True(t, ok)
	assert.True(t, precio.Equal(value.Int(1500)))

	tags, _ := r.Get("tags")
	assert.Equal(t, `["a","b"]`, tags.Text())

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"nombre":"Laptop","precio":1500,"stock":25,"activo":true,"notas":null,"tags":"[\"a\",\"b\"]"}`, string(out))
}

func TestRowSetOverwritesInPlace(t *testing.T) {
	r, err := value.NewRow("id", 1, "nombre", "Laptop")
	require.NoError(t, err)
	r.Set("id", value.Int(7))
	assert.Equal(t, []string{"id", "nombre"}, r.Columns())

	v, ok := r.Lookup("NOMBRE")
	require.True(t, ok)
	assert.Equal(t, "Laptop", v.Text())

	_, err = value.NewRow("id")
	assert.Error(t, err)
}

func TestParams(t *testing.T) {
	p, err := value.Params([]byte(`{"@id": 3, "name": "x"}`))
	require.NoError(t, err)
	assert.Len(t, p, 2)
	assert.True(t, p["@id"].Equal(value.Int(3)))

	_, err = value.Params([]byte(`[1,2]`))
	assert.Error(t, err)
}
