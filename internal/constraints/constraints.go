package constraints

import (
	"bytes"
	stdjson "encoding/json"
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FieldType is the logical type of a dataset field.
type FieldType string

const (
	TypeBool   FieldType = "bool"
	TypeInt    FieldType = "int"
	TypeReal   FieldType = "real"
	TypeString FieldType = "string"
	TypeDate   FieldType = "date"
)

// Valid reports whether t is one of the known logical types.
func (t FieldType) Valid() bool {
	switch t {
	case TypeBool, TypeInt, TypeReal, TypeString, TypeDate:
		return true
	}
	return false
}

// Numeric reports whether t is an int or real type.
func (t FieldType) Numeric() bool {
	return t == TypeInt || t == TypeReal
}

// Sign describes the sign of every non-null value in a numeric field.
type Sign string

const (
	SignPositive    Sign = "positive"
	SignNonNegative Sign = "non-negative"
	SignZero        Sign = "zero"
	SignNonPositive Sign = "non-positive"
	SignNegative    Sign = "negative"
	SignNull        Sign = "null"
)

// Valid reports whether s is one of the known sign values.
func (s Sign) Valid() bool {
	switch s {
	case SignPositive, SignNonNegative, SignZero, SignNonPositive, SignNegative, SignNull:
		return true
	}
	return false
}

// Precision controls boundary semantics for a min/max bound.
type Precision string

const (
	PrecisionClosed Precision = "closed"
	PrecisionOpen   Precision = "open"
	PrecisionFuzzy  Precision = "fuzzy"
)

// Kind identifies one constraint variant. The string value doubles as
// the JSON key inside a field bundle.
type Kind string

const (
	KindType          Kind = "type"
	KindMin           Kind = "min"
	KindMax           Kind = "max"
	KindSign          Kind = "sign"
	KindMinLength     Kind = "min_length"
	KindMaxLength     Kind = "max_length"
	KindMaxNulls      Kind = "max_nulls"
	KindNoDuplicates  Kind = "no_duplicates"
	KindAllowedValues Kind = "allowed_values"
	KindRex           Kind = "rex"
)

// KindOrder is the canonical evaluation and serialisation order of
// constraint kinds within one field.
var KindOrder = []Kind{
	KindType, KindMin, KindMax, KindSign,
	KindMinLength, KindMaxLength, KindMaxNulls,
	KindNoDuplicates, KindAllowedValues, KindRex,
}

// Bound is a min or max constraint value. In JSON it is either a bare
// scalar or an object {"value": v, "precision": "closed"|"open"|"fuzzy"}.
// A zero Precision means the scalar form was used and closed semantics
// apply.
type Bound struct {
	Value     any
	Precision Precision
}

type boundObject struct {
	Value     any       `json:"value"`
	Precision Precision `json:"precision,omitempty"`
}

// UnmarshalJSON accepts both the scalar and the object form.
func (b *Bound) UnmarshalJSON(data []byte) error {
	it := jsoniter.ParseBytes(jsoniter.ConfigCompatibleWithStandardLibrary, data)
	if it.WhatIsNext() == jsoniter.ObjectValue {
		var obj boundObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		if obj.Precision != "" && obj.Precision != PrecisionClosed &&
			obj.Precision != PrecisionOpen && obj.Precision != PrecisionFuzzy {
			return fmt.Errorf("invalid bound precision %q", obj.Precision)
		}
		b.Value = normalizeScalar(obj.Value)
		b.Precision = obj.Precision
		return nil
	}
	var v any
	if err := unmarshalScalar(data, &v); err != nil {
		return err
	}
	b.Value = v
	b.Precision = ""
	return nil
}

// MarshalJSON re-emits the scalar form unless a precision was given.
func (b Bound) MarshalJSON() ([]byte, error) {
	if b.Precision == "" {
		return json.Marshal(b.Value)
	}
	return json.Marshal(boundObject{Value: b.Value, Precision: b.Precision})
}

// unmarshalScalar decodes a JSON scalar, keeping integral numbers as
// int64 so that document round-trips do not turn 20 into 20.0.
func unmarshalScalar(data []byte, out *any) error {
	var raw any
	dec := jsoniter.ConfigCompatibleWithStandardLibrary.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*out = normalizeScalar(raw)
	return nil
}

// normalizeScalar converts decoded JSON numbers into int64 or float64.
// Decoding with UseNumber yields encoding/json.Number values.
func normalizeScalar(v any) any {
	switch val := v.(type) {
	case stdjson.Number:
		return numberToScalar(string(val))
	case jsoniter.Number:
		return numberToScalar(string(val))
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
		return val
	default:
		return v
	}
}

func numberToScalar(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// FieldConstraints is the bundle of constraints attached to one field.
// Absent constraints are nil / empty. Unknown keys seen on load are kept
// in Extra and re-emitted verbatim on save.
type FieldConstraints struct {
	Type          FieldType
	Min           *Bound
	Max           *Bound
	Sign          Sign
	MinLength     *int
	MaxLength     *int
	MaxNulls      *int64
	NoDuplicates  *bool
	AllowedValues []any
	Rex           []string

	Extra      map[string]jsoniter.RawMessage
	extraOrder []string
}

// Empty reports whether the bundle carries no known constraint.
func (fc *FieldConstraints) Empty() bool {
	return fc.Type == "" && fc.Min == nil && fc.Max == nil && fc.Sign == "" &&
		fc.MinLength == nil && fc.MaxLength == nil && fc.MaxNulls == nil &&
		fc.NoDuplicates == nil && fc.AllowedValues == nil && fc.Rex == nil
}

// Constraint is a single tagged constraint variant, as handed to the
// verifier and detector. Only the parameters relevant to Kind are set.
type Constraint struct {
	Kind     Kind
	Type     FieldType // KindType
	Bound    *Bound    // KindMin, KindMax
	Sign     Sign      // KindSign
	N        int64     // KindMinLength, KindMaxLength, KindMaxNulls
	Flag     bool      // KindNoDuplicates
	Values   []any     // KindAllowedValues
	Patterns []string  // KindRex
}

// List returns the present constraints in canonical kind order.
func (fc *FieldConstraints) List() []Constraint {
	out := make([]Constraint, 0, 4)
	for _, kind := range KindOrder {
		switch kind {
		case KindType:
			if fc.Type != "" {
				out = append(out, Constraint{Kind: kind, Type: fc.Type})
			}
		case KindMin:
			if fc.Min != nil {
				out = append(out, Constraint{Kind: kind, Bound: fc.Min})
			}
		case KindMax:
			if fc.Max != nil {
				out = append(out, Constraint{Kind: kind, Bound: fc.Max})
			}
		case KindSign:
			if fc.Sign != "" {
				out = append(out, Constraint{Kind: kind, Sign: fc.Sign})
			}
		case KindMinLength:
			if fc.MinLength != nil {
				out = append(out, Constraint{Kind: kind, N: int64(*fc.MinLength)})
			}
		case KindMaxLength:
			if fc.MaxLength != nil {
				out = append(out, Constraint{Kind: kind, N: int64(*fc.MaxLength)})
			}
		case KindMaxNulls:
			if fc.MaxNulls != nil {
				out = append(out, Constraint{Kind: kind, N: *fc.MaxNulls})
			}
		case KindNoDuplicates:
			if fc.NoDuplicates != nil {
				out = append(out, Constraint{Kind: kind, Flag: *fc.NoDuplicates})
			}
		case KindAllowedValues:
			if fc.AllowedValues != nil {
				out = append(out, Constraint{Kind: kind, Values: fc.AllowedValues})
			}
		case KindRex:
			if fc.Rex != nil {
				out = append(out, Constraint{Kind: kind, Patterns: fc.Rex})
			}
		}
	}
	return out
}

// GroupOp is a comparison between two fields.
type GroupOp string

const (
	GroupLt  GroupOp = "lt"
	GroupLte GroupOp = "lte"
	GroupEq  GroupOp = "eq"
	GroupGt  GroupOp = "gt"
	GroupGte GroupOp = "gte"
)

// Valid reports whether op is a known two-field comparison.
func (op GroupOp) Valid() bool {
	switch op {
	case GroupLt, GroupLte, GroupEq, GroupGt, GroupGte:
		return true
	}
	return false
}

// GroupConstraint relates two fields: Fields[0] op Fields[1] must hold
// for every record where both values are non-null.
type GroupConstraint struct {
	Op     GroupOp   `json:"op"`
	Fields [2]string `json:"fields"`
}

// Name returns the stable identifier used for report and detector
// column naming, e.g. "start_lt_end".
func (g GroupConstraint) Name() string {
	return g.Fields[0] + "_" + string(g.Op) + "_" + g.Fields[1]
}
