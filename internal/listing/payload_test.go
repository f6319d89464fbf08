package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload_Shapes(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		shape Shape
		n     int
	}{
		{"flat array", `[{"id":1},{"id":2}]`, ShapeArray, 2},
		{"data array", `{"data":[{"id":1}]}`, ShapeArray, 1},
		{"data pets", `{"data":{"pets":[{"id":1}]}}`, ShapePets, 1},
		{"data orders", `{"data":{"orders":[{"id":1},{"id":2},{"id":3}]}}`, ShapeOrders, 3},
		{"top level pets", `{"pets":[{"id":1}]}`, ShapePets, 1},
		{"pets wins over orders", `{"data":{"pets":[{"id":1}],"orders":[{"id":2},{"id":3}]}}`, ShapePets, 1},
		{"empty pets falls through", `{"data":{"pets":[],"orders":[{"id":2}]}}`, ShapeOrders, 1},
		{"single pet object", `{"data":{"pet":{"id":9}}}`, ShapeSingle, 1},
		{"single pet array", `{"data":{"pet":[{"id":9}]}}`, ShapeSingle, 1},
		{"nothing", `{"data":{"message":"ok"}}`, ShapeEmpty, 0},
		{"empty body", ``, ShapeEmpty, 0},
		{"pets is object", `{"data":{"pets":{"id":1}}}`, ShapeEmpty, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := DecodePayload([]byte(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.shape, p.Shape)
			assert.Len(t, p.Items, tc.n)
		})
	}
}

func TestDecodePayload_InvalidJSON(t *testing.T) {
	_, err := DecodePayload([]byte(`{"data":`))
	require.Error(t, err)
}

func TestDecodePayload_Paging(t *testing.T) {
	p, err := DecodePayload([]byte(`{"data":{"orders":[{"id":1}],"total":"23","current_page":2,"last_page":3}}`))
	require.NoError(t, err)
	assert.Equal(t, 23, p.Total)
	assert.Equal(t, 2, p.CurrentPage)
	assert.Equal(t, 3, p.LastPage)

	p, err = DecodePayload([]byte(`{"data":[{"id":1}],"meta":{"total":40,"last_page":4}}`))
	require.NoError(t, err)
	assert.Equal(t, 40, p.Total)
	assert.Equal(t, 4, p.LastPage)
}

func TestRawPet_Text(t *testing.T) {
	rp, ok := NewRawPet([]byte(`{"a":"x","b":12,"c":1.5,"d":null,"e":true,"f":"  "}`))
	require.True(t, ok)
	assert.Equal(t, "x", rp.Text("a"))
	assert.Equal(t, "12", rp.Text("b"))
	assert.Equal(t, "1.5", rp.Text("c"))
	assert.Equal(t, "", rp.Text("d"))
	assert.Equal(t, "", rp.Text("e"))
	assert.Equal(t, "12", rp.Text("f", "b"))

	_, ok = NewRawPet([]byte(`[1]`))
	assert.False(t, ok)
}
