package constraints

import (
	"bytes"
	stdjson "encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"

	jsoniter "github.com/json-iterator/go"
)

// Document-level validation errors. All of them are fatal at load time.
var (
	ErrInvalidDocument   = errors.New("invalid constraints document")
	ErrImpossibleBounds  = errors.New("impossible bounds")
	ErrIncompatibleKind  = errors.New("constraint kind incompatible with field type")
	ErrInconsistentRex   = errors.New("allowed value matches no rex pattern")
	ErrBadRegexPattern   = errors.New("malformed rex pattern")
	ErrUnknownFieldGroup = errors.New("invalid field group constraint")
)

// FieldEntry pairs a field name with its constraint bundle. The slice
// form keeps the dataset's field ordering, which a JSON map would lose.
type FieldEntry struct {
	Name        string
	Constraints *FieldConstraints
}

// DatasetConstraints is the top-level constraints document: an ordered
// list of per-field bundles, optional two-field group constraints, and
// any unknown top-level sections carried through verbatim.
type DatasetConstraints struct {
	Fields []FieldEntry
	Groups []GroupConstraint

	extra      map[string]jsoniter.RawMessage
	extraOrder []string
}

// FieldNames returns the field names in document order.
func (dc *DatasetConstraints) FieldNames() []string {
	names := make([]string, len(dc.Fields))
	for i, fe := range dc.Fields {
		names[i] = fe.Name
	}
	return names
}

// FieldNamed returns the bundle for a field, or nil when absent.
func (dc *DatasetConstraints) FieldNamed(name string) *FieldConstraints {
	for i := range dc.Fields {
		if dc.Fields[i].Name == name {
			return dc.Fields[i].Constraints
		}
	}
	return nil
}

// AddField appends a bundle, replacing any existing bundle of the same
// name in place.
func (dc *DatasetConstraints) AddField(name string, fc *FieldConstraints) {
	for i := range dc.Fields {
		if dc.Fields[i].Name == name {
			dc.Fields[i].Constraints = fc
			return
		}
	}
	dc.Fields = append(dc.Fields, FieldEntry{Name: name, Constraints: fc})
}

// NumConstraints counts the known constraints across all fields and
// groups.
func (dc *DatasetConstraints) NumConstraints() int {
	n := len(dc.Groups)
	for _, fe := range dc.Fields {
		n += len(fe.Constraints.List())
	}
	return n
}

// Parse decodes and validates a constraints document. Field order and
// unknown keys are preserved; any structural problem is fatal.
func Parse(data []byte) (*DatasetConstraints, error) {
	dc := &DatasetConstraints{}
	iter := jsoniter.ParseBytes(jsoniter.ConfigCompatibleWithStandardLibrary, data)
	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return nil, fmt.Errorf("%w: top level is not a JSON object", ErrInvalidDocument)
	}

	sawFields := false
	for key := iter.ReadObject(); key != ""; key = iter.ReadObject() {
		raw := iter.SkipAndReturnBytes()
		if iter.Error != nil {
			break
		}
		switch key {
		case "fields":
			sawFields = true
			fields, err := parseFieldsSection(raw)
			if err != nil {
				return nil, err
			}
			dc.Fields = fields
		case "field_groups":
			var groups []GroupConstraint
			if err := json.Unmarshal(raw, &groups); err != nil {
				return nil, fmt.Errorf("%w: field_groups: %v", ErrInvalidDocument, err)
			}
			dc.Groups = groups
		default:
			if dc.extra == nil {
				dc.extra = make(map[string]jsoniter.RawMessage)
			}
			dc.extra[key] = jsoniter.RawMessage(raw)
			dc.extraOrder = append(dc.extraOrder, key)
		}
	}
	if iter.Error != nil && iter.Error != io.EOF {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, iter.Error)
	}
	if !sawFields {
		return nil, fmt.Errorf("%w: missing required \"fields\" section", ErrInvalidDocument)
	}
	if err := dc.Validate(); err != nil {
		return nil, err
	}
	slog.Debug("Constraints document parsed", "fields", len(dc.Fields), "groups", len(dc.Groups))
	return dc, nil
}

// parseFieldsSection walks the fields object key by key to keep the
// declared field order.
func parseFieldsSection(raw []byte) ([]FieldEntry, error) {
	iter := jsoniter.ParseBytes(jsoniter.ConfigCompatibleWithStandardLibrary, raw)
	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return nil, fmt.Errorf("%w: \"fields\" is not a JSON object", ErrInvalidDocument)
	}
	var fields []FieldEntry
	for name := iter.ReadObject(); name != ""; name = iter.ReadObject() {
		bundleRaw := iter.SkipAndReturnBytes()
		if iter.Error != nil {
			break
		}
		fc, err := parseFieldBundle(name, bundleRaw)
		if err != nil {
			return nil, err
		}
		fields = append(fields, FieldEntry{Name: name, Constraints: fc})
	}
	if iter.Error != nil && iter.Error != io.EOF {
		return nil, fmt.Errorf("%w: fields: %v", ErrInvalidDocument, iter.Error)
	}
	return fields, nil
}

// parseFieldBundle decodes one field's constraint mapping.
func parseFieldBundle(field string, raw []byte) (*FieldConstraints, error) {
	iter := jsoniter.ParseBytes(jsoniter.ConfigCompatibleWithStandardLibrary, raw)
	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return nil, fmt.Errorf("%w: field %q: bundle is not a JSON object", ErrInvalidDocument, field)
	}
	fc := &FieldConstraints{}
	for key := iter.ReadObject(); key != ""; key = iter.ReadObject() {
		value := iter.SkipAndReturnBytes()
		if iter.Error != nil {
			break
		}
		if err := fc.setFromJSON(key, value); err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidDocument, field, err)
		}
	}
	if iter.Error != nil && iter.Error != io.EOF {
		return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidDocument, field, iter.Error)
	}
	return fc, nil
}

func (fc *FieldConstraints) setFromJSON(key string, value []byte) error {
	switch Kind(key) {
	case KindType:
		var t FieldType
		if err := json.Unmarshal(value, &t); err != nil {
			return fmt.Errorf("type: %v", err)
		}
		if !t.Valid() {
			return fmt.Errorf("unknown type %q", t)
		}
		fc.Type = t
	case KindMin:
		b := &Bound{}
		if err := b.UnmarshalJSON(value); err != nil {
			return fmt.Errorf("min: %v", err)
		}
		fc.Min = b
	case KindMax:
		b := &Bound{}
		if err := b.UnmarshalJSON(value); err != nil {
			return fmt.Errorf("max: %v", err)
		}
		fc.Max = b
	case KindSign:
		var s Sign
		if err := json.Unmarshal(value, &s); err != nil {
			return fmt.Errorf("sign: %v", err)
		}
		if !s.Valid() {
			return fmt.Errorf("unknown sign %q", s)
		}
		fc.Sign = s
	case KindMinLength:
		var n int
		if err := json.Unmarshal(value, &n); err != nil {
			return fmt.Errorf("min_length: %v", err)
		}
		fc.MinLength = &n
	case KindMaxLength:
		var n int
		if err := json.Unmarshal(value, &n); err != nil {
			return fmt.Errorf("max_length: %v", err)
		}
		fc.MaxLength = &n
	case KindMaxNulls:
		var n int64
		if err := json.Unmarshal(value, &n); err != nil {
			return fmt.Errorf("max_nulls: %v", err)
		}
		fc.MaxNulls = &n
	case KindNoDuplicates:
		var b bool
		if err := json.Unmarshal(value, &b); err != nil {
			return fmt.Errorf("no_duplicates: %v", err)
		}
		fc.NoDuplicates = &b
	case KindAllowedValues:
		values, err := unmarshalScalarList(value)
		if err != nil {
			return fmt.Errorf("allowed_values: %v", err)
		}
		fc.AllowedValues = values
	case KindRex:
		var patterns []string
		if err := json.Unmarshal(value, &patterns); err != nil {
			return fmt.Errorf("rex: %v", err)
		}
		fc.Rex = patterns
	default:
		if fc.Extra == nil {
			fc.Extra = make(map[string]jsoniter.RawMessage)
		}
		fc.Extra[key] = jsoniter.RawMessage(value)
		fc.extraOrder = append(fc.extraOrder, key)
	}
	return nil
}

// unmarshalScalarList decodes a JSON array keeping integral numbers as
// int64, preserving element order.
func unmarshalScalarList(data []byte) ([]any, error) {
	var raw []any
	dec := jsoniter.ConfigCompatibleWithStandardLibrary.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	out := make([]any, len(raw))
	for i, v := range raw {
		out[i] = normalizeScalar(v)
	}
	return out, nil
}

// Serialize renders the document to indented JSON with the canonical
// section and kind ordering.
func (dc *DatasetConstraints) Serialize() ([]byte, error) {
	stream := jsoniter.NewStream(jsoniter.ConfigCompatibleWithStandardLibrary, nil, 512)
	stream.WriteObjectStart()

	stream.WriteObjectField("fields")
	stream.WriteObjectStart()
	for i, fe := range dc.Fields {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteObjectField(fe.Name)
		if err := writeFieldBundle(stream, fe.Constraints); err != nil {
			return nil, err
		}
	}
	stream.WriteObjectEnd()

	if len(dc.Groups) > 0 {
		stream.WriteMore()
		stream.WriteObjectField("field_groups")
		stream.WriteVal(dc.Groups)
	}
	for _, key := range dc.extraOrder {
		stream.WriteMore()
		stream.WriteObjectField(key)
		stream.SetBuffer(append(stream.Buffer(), dc.extra[key]...))
	}

	stream.WriteObjectEnd()
	if stream.Error != nil {
		return nil, stream.Error
	}
	compact := append([]byte(nil), stream.Buffer()...)
	var indented bytes.Buffer
	if err := stdjson.Indent(&indented, compact, "", "    "); err != nil {
		return nil, err
	}
	indented.WriteByte('\n')
	return indented.Bytes(), nil
}

func writeFieldBundle(stream *jsoniter.Stream, fc *FieldConstraints) error {
	stream.WriteObjectStart()
	first := true
	more := func() {
		if !first {
			stream.WriteMore()
		}
		first = false
	}
	if fc.Type != "" {
		more()
		stream.WriteObjectField(string(KindType))
		stream.WriteVal(fc.Type)
	}
	if fc.Min != nil {
		more()
		stream.WriteObjectField(string(KindMin))
		stream.WriteVal(fc.Min)
	}
	if fc.Max != nil {
		more()
		stream.WriteObjectField(string(KindMax))
		stream.WriteVal(fc.Max)
	}
	if fc.Sign != "" {
		more()
		stream.WriteObjectField(string(KindSign))
		stream.WriteVal(fc.Sign)
	}
	if fc.MinLength != nil {
		more()
		stream.WriteObjectField(string(KindMinLength))
		stream.WriteVal(*fc.MinLength)
	}
	if fc.MaxLength != nil {
		more()
		stream.WriteObjectField(string(KindMaxLength))
		stream.WriteVal(*fc.MaxLength)
	}
	if fc.MaxNulls != nil {
		more()
		stream.WriteObjectField(string(KindMaxNulls))
		stream.WriteVal(*fc.MaxNulls)
	}
	if fc.NoDuplicates != nil {
		more()
		stream.WriteObjectField(string(KindNoDuplicates))
		stream.WriteVal(*fc.NoDuplicates)
	}
	if fc.AllowedValues != nil {
		more()
		stream.WriteObjectField(string(KindAllowedValues))
		stream.WriteVal(fc.AllowedValues)
	}
	if fc.Rex != nil {
		more()
		stream.WriteObjectField(string(KindRex))
		stream.WriteVal(fc.Rex)
	}
	for _, key := range fc.extraOrder {
		more()
		stream.WriteObjectField(key)
		stream.SetBuffer(append(stream.Buffer(), fc.Extra[key]...))
	}
	stream.WriteObjectEnd()
	return stream.Error
}

// Validate enforces the document invariants: one constraint per kind is
// structural (the bundle form guarantees it); here we check kind/type
// compatibility, bound ordering, and allowed-value/rex consistency.
func (dc *DatasetConstraints) Validate() error {
	for _, fe := range dc.Fields {
		if err := validateField(fe.Name, fe.Constraints); err != nil {
			return err
		}
	}
	for _, g := range dc.Groups {
		if !g.Op.Valid() {
			return fmt.Errorf("%w: unknown op %q", ErrUnknownFieldGroup, g.Op)
		}
		if g.Fields[0] == "" || g.Fields[1] == "" {
			return fmt.Errorf("%w: %s: empty field name", ErrUnknownFieldGroup, g.Name())
		}
	}
	return nil
}

func validateField(name string, fc *FieldConstraints) error {
	if fc == nil {
		return fmt.Errorf("%w: field %q has no bundle", ErrInvalidDocument, name)
	}
	if fc.Type != "" {
		if (fc.MinLength != nil || fc.MaxLength != nil || fc.Rex != nil) && fc.Type != TypeString {
			return fmt.Errorf("%w: field %q: string constraint on %s field", ErrIncompatibleKind, name, fc.Type)
		}
		if fc.Sign != "" && !fc.Type.Numeric() {
			return fmt.Errorf("%w: field %q: sign on %s field", ErrIncompatibleKind, name, fc.Type)
		}
		if (fc.Min != nil || fc.Max != nil) && fc.Type == TypeBool {
			return fmt.Errorf("%w: field %q: min/max on bool field", ErrIncompatibleKind, name)
		}
	}
	if fc.MinLength != nil && *fc.MinLength < 0 {
		return fmt.Errorf("%w: field %q: negative min_length", ErrImpossibleBounds, name)
	}
	if fc.MaxLength != nil && *fc.MaxLength < 0 {
		return fmt.Errorf("%w: field %q: negative max_length", ErrImpossibleBounds, name)
	}
	if fc.MinLength != nil && fc.MaxLength != nil && *fc.MinLength > *fc.MaxLength {
		return fmt.Errorf("%w: field %q: min_length %d > max_length %d", ErrImpossibleBounds, name, *fc.MinLength, *fc.MaxLength)
	}
	if fc.MaxNulls != nil && *fc.MaxNulls < 0 {
		return fmt.Errorf("%w: field %q: negative max_nulls", ErrImpossibleBounds, name)
	}
	if fc.Min != nil && fc.Max != nil {
		if cmp, ok := CompareScalars(fc.Min.Value, fc.Max.Value); ok && cmp > 0 {
			return fmt.Errorf("%w: field %q: min %v > max %v", ErrImpossibleBounds, name, fc.Min.Value, fc.Max.Value)
		}
	}
	if fc.Rex != nil {
		compiled := make([]*regexp.Regexp, 0, len(fc.Rex))
		for _, pattern := range fc.Rex {
			re, err := regexp.Compile(Anchor(pattern))
			if err != nil {
				return fmt.Errorf("%w: field %q: %q: %v", ErrBadRegexPattern, name, pattern, err)
			}
			compiled = append(compiled, re)
		}
		for _, v := range fc.AllowedValues {
			s, ok := v.(string)
			if !ok {
				continue
			}
			matched := false
			for _, re := range compiled {
				if re.MatchString(s) {
					matched = true
					break
				}
			}
			if !matched {
				return fmt.Errorf("%w: field %q: %q", ErrInconsistentRex, name, s)
			}
		}
	}
	return nil
}

// Anchor makes a pattern full-match without double-anchoring patterns
// that already carry ^...$.
func Anchor(pattern string) string {
	anchored := pattern
	if len(anchored) == 0 || anchored[0] != '^' {
		anchored = "^" + anchored
	}
	if len(anchored) < 2 || anchored[len(anchored)-1] != '$' {
		anchored = anchored + "$"
	}
	return anchored
}

// CompareScalars orders two document scalars of comparable types.
// Numbers compare numerically across int64/float64; strings compare
// lexically. The second result is false when the values do not share an
// ordering.
func CompareScalars(a, b any) (int, bool) {
	af, aNum := scalarToFloat(a)
	bf, bNum := scalarToFloat(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

func scalarToFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case int64:
		return float64(val), true
	case int:
		return float64(val), true
	case float64:
		return val, true
	default:
		return 0, false
	}
}
