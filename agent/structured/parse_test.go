package structured

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type venueDetails struct {
	Name          string `json:"name"`
	Address       string `json:"address"`
	Capacity      int    `json:"capacity"`
	BookingStatus string `json:"booking_status"`
}

func TestParse(t *testing.T) {
	answer := "<think>let me format</think>\nFinal:\n```json\n" +
		`{"name":"Moscone Center","address":"747 Howard St","capacity":500,"booking_status":"available"}` +
		"\n```"

	v, err := Parse[venueDetails](answer)
	require.NoError(t, err)
	assert.Equal(t, "Moscone Center", v.Name)
	assert.Equal(t, 500, v.Capacity)
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantPath string
	}{
		{name: "缺少必填字段", input: `{"name":"x","address":"y","capacity":1}`, wantPath: "booking_status"},
		{name: "类型错误", input: `{"name":"x","address":"y","capacity":"many","booking_status":"ok"}`, wantPath: "capacity"},
		{name: "非整数", input: `{"name":"x","address":"y","capacity":1.5,"booking_status":"ok"}`, wantPath: "capacity"},
		{name: "顶层不是对象", input: `[1,2]`, wantPath: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse[venueDetails](tt.input)
			var ve *ValidationErrors
			require.True(t, errors.As(err, &ve), "got %v", err)
			require.NotEmpty(t, ve.Errors)
			assert.Equal(t, tt.wantPath, ve.Errors[0].Path)
		})
	}

	_, err := Parse[venueDetails]("nothing useful")
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestValidate_Nested(t *testing.T) {
	schema := NewObjectSchema()
	schema.Properties["items"] = NewArraySchema(&JSONSchema{Type: TypeObject, Properties: map[string]*JSONSchema{
		"id": {Type: TypeInteger},
	}, Required: []string{"id"}})
	schema.Required = []string{"items"}

	assert.NoError(t, Validate(schema, []byte(`{"items":[{"id":1},{"id":2}],"extra":true}`)))

	err := Validate(schema, []byte(`{"items":[{"id":1},{}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "items[1].id")

	err = Validate(schema, []byte(`{"items":[{"id":null}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got null")

	assert.Error(t, Validate(schema, []byte(`not json`)))
	assert.NoError(t, Validate(nil, []byte(`anything`)))
}

func TestParseWithSchema(t *testing.T) {
	schema := NewObjectSchema()
	schema.Properties["ok"] = &JSONSchema{Type: TypeBoolean}
	schema.Required = []string{"ok"}

	v, raw, err := ParseWithSchema(`answer {"ok": true}`, schema)
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, raw)
	assert.Equal(t, map[string]any{"ok": true}, v)

	_, err = ParseInto(`{"ok":true}`, schema, nil)
	assert.Error(t, err)
}

func TestToMap(t *testing.T) {
	m, err := ToMap(venueDetails{Name: "A", Capacity: 3})
	require.NoError(t, err)
	assert.Equal(t, "A", m["name"])
	assert.Equal(t, float64(3), m["capacity"])
}
