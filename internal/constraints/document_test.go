package constraints

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `{
    "fields": {
        "age": {
            "type": "int",
            "min": 20,
            "max": 40,
            "sign": "positive",
            "max_nulls": 0
        },
        "code": {
            "type": "string",
            "min_length": 5,
            "max_length": 5,
            "rex": ["^[A-Z]{2}-\\d{2}$"]
        }
    }
}`

func TestParsePreservesFieldOrder(t *testing.T) {
	doc, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)
	assert.Equal(t, []string{"age", "code"}, doc.FieldNames())

	age := doc.FieldNamed("age")
	require.NotNil(t, age)
	assert.Equal(t, TypeInt, age.Type)
	require.NotNil(t, age.Min)
	assert.Equal(t, int64(20), age.Min.Value)
	require.NotNil(t, age.Max)
	assert.Equal(t, int64(40), age.Max.Value)
	assert.Equal(t, SignPositive, age.Sign)
	require.NotNil(t, age.MaxNulls)
	assert.Equal(t, int64(0), *age.MaxNulls)
}

func TestRoundTrip(t *testing.T) {
	doc, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)

	data, err := doc.Serialize()
	require.NoError(t, err)

	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, doc, again)
}

func TestBoundObjectForm(t *testing.T) {
	doc, err := Parse([]byte(`{
        "fields": {
            "x": {"type": "real", "min": {"value": 1.5, "precision": "open"}, "max": 9.25}
        }
    }`))
	require.NoError(t, err)

	x := doc.FieldNamed("x")
	require.NotNil(t, x.Min)
	assert.Equal(t, 1.5, x.Min.Value)
	assert.Equal(t, PrecisionOpen, x.Min.Precision)
	require.NotNil(t, x.Max)
	assert.Equal(t, 9.25, x.Max.Value)
	assert.Equal(t, Precision(""), x.Max.Precision)

	// The object form survives a round trip; the scalar form stays scalar.
	data, err := doc.Serialize()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"precision": "open"`)
	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, doc, again)
}

func TestUnknownKeysPreserved(t *testing.T) {
	raw := `{
        "fields": {
            "x": {"type": "int", "custom_check": {"kind": "exotic"}}
        },
        "creation_metadata": {"creator": "tdda-tools"}
    }`
	doc, err := Parse([]byte(raw))
	require.NoError(t, err)

	data, err := doc.Serialize()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"creation_metadata"`)
	assert.Contains(t, string(data), `"creator"`)
	assert.Contains(t, string(data), `"custom_check"`)
}

func TestParseRejectsMalformedDocuments(t *testing.T) {
	cases := map[string]string{
		"not an object":    `[1, 2, 3]`,
		"missing fields":   `{"other": {}}`,
		"bad type":         `{"fields": {"x": {"type": "decimal"}}}`,
		"bad sign":         `{"fields": {"x": {"type": "int", "sign": "sideways"}}}`,
		"min above max":    `{"fields": {"x": {"type": "int", "min": 9, "max": 1}}}`,
		"negative nulls":   `{"fields": {"x": {"type": "int", "max_nulls": -1}}}`,
		"length disorder":  `{"fields": {"x": {"type": "string", "min_length": 5, "max_length": 2}}}`,
		"sign on string":   `{"fields": {"x": {"type": "string", "sign": "positive"}}}`,
		"length on int":    `{"fields": {"x": {"type": "int", "min_length": 1}}}`,
		"min on bool":      `{"fields": {"x": {"type": "bool", "min": 0}}}`,
		"broken rex":       `{"fields": {"x": {"type": "string", "rex": ["([)"]}}}`,
		"value without re": `{"fields": {"x": {"type": "string", "allowed_values": ["zz"], "rex": ["^a+$"]}}}`,
		"bad group op":     `{"fields": {}, "field_groups": [{"op": "approx", "fields": ["a", "b"]}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestAllowedValuesConsistentWithRex(t *testing.T) {
	_, err := Parse([]byte(`{
        "fields": {
            "x": {"type": "string", "allowed_values": ["aa", "ab"], "rex": ["^a[ab]$"]}
        }
    }`))
	assert.NoError(t, err)
}

func TestListKindOrder(t *testing.T) {
	doc, err := Parse([]byte(`{
        "fields": {
            "x": {"rex": ["^a$"], "max_nulls": 2, "type": "string", "min_length": 1}
        }
    }`))
	require.NoError(t, err)

	var kinds []Kind
	for _, c := range doc.FieldNamed("x").List() {
		kinds = append(kinds, c.Kind)
	}
	assert.Equal(t, []Kind{KindType, KindMinLength, KindMaxNulls, KindRex}, kinds)
}

func TestAnchor(t *testing.T) {
	assert.Equal(t, `^a+$`, Anchor(`a+`))
	assert.Equal(t, `^a+$`, Anchor(`^a+$`))
	assert.Equal(t, `^a+$`, Anchor(`^a+`))
	assert.Equal(t, `^a+$`, Anchor(`a+$`))
}

func TestCompareScalars(t *testing.T) {
	cmp, ok := CompareScalars(int64(3), 3.5)
	require.True(t, ok)
	assert.Equal(t, -1, cmp)

	cmp, ok = CompareScalars("abc", "abd")
	require.True(t, ok)
	assert.Equal(t, -1, cmp)

	_, ok = CompareScalars("abc", int64(1))
	assert.False(t, ok)
}

func TestGroupName(t *testing.T) {
	g := GroupConstraint{Op: GroupLt, Fields: [2]string{"start", "end"}}
	assert.Equal(t, "start_lt_end", g.Name())
}
