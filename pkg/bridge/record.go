package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
)

// DefaultMimeType is declared on records when none is configured.
const DefaultMimeType = "text/plain"

var (
	ErrPayloadNotJSON   = errors.New("payload is not valid JSON")
	ErrPayloadNotObject = errors.New("payload is not a JSON object")
)

// StoredRecord is the object body written for one message. Value is the
// encoding of Metadata, so the two always carry the same data.
type StoredRecord struct {
	Name     string
	MimeType string
	Value    string
	Metadata *Metadata
}

// NewStoredRecord parses payload as a single JSON object.
func NewStoredRecord(name string, payload []byte, mimeType string) (*StoredRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	parsed, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadNotJSON, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrPayloadNotJSON)
	}
	metadata, ok := parsed.(*Metadata)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrPayloadNotObject, parsed)
	}

	if mimeType == "" {
		mimeType = DefaultMimeType
	}
	return &StoredRecord{
		Name:     name,
		MimeType: mimeType,
		Value:    metadata.String(),
		Metadata: metadata,
	}, nil
}

// Body serializes the record for the storage write. The name is not part of
// the body.
func (r *StoredRecord) Body() ([]byte, error) {
	if r.Metadata == nil {
		return nil, fmt.Errorf("failed to encode record %s: no metadata", r.Name)
	}
	var b bytes.Buffer
	b.WriteString(`{"mimetype": `)
	writeString(&b, r.MimeType)
	b.WriteString(`, "value": `)
	writeString(&b, r.Value)
	b.WriteString(`, "metadata": `)
	writeValue(&b, r.Metadata)
	b.WriteByte('}')
	return b.Bytes(), nil
}

// Metadata is a JSON object that keeps the key order of the payload it was
// parsed from. Nested objects are *Metadata, arrays are []any and numbers
// are json.Number.
type Metadata struct {
	keys   []string
	values map[string]any
}

func newMetadata() *Metadata {
	return &Metadata{values: make(map[string]any)}
}

// set keeps the first position of a repeated key and its last value.
func (m *Metadata) set(key string, v any) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Keys returns the keys in payload order.
func (m *Metadata) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Get returns the value stored under key.
func (m *Metadata) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Map converts the object into plain Go values, with float64 numbers, the
// way encoding/json decodes into an any.
func (m *Metadata) Map() map[string]any {
	out := make(map[string]any, len(m.keys))
	for _, k := range m.keys {
		out[k] = plain(m.values[k])
	}
	return out
}

// String renders the object with ", " and ": " separators and every non
// printable-ASCII character escaped as \uXXXX.
func (m *Metadata) String() string {
	var b bytes.Buffer
	writeValue(&b, m)
	return b.String()
}

func (m *Metadata) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

func plain(v any) any {
	switch t := v.(type) {
	case *Metadata:
		return t.Map()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	case json.Number:
		f, _ := t.Float64()
		return f
	default:
		return v
	}
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch delim {
	case '{':
		obj := newMetadata()
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("object key is %T", kt)
			}
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			obj.set(key, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		arr := []any{}
		for dec.More() {
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected %q", rune(delim))
	}
}

func writeValue(b *bytes.Buffer, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		b.WriteString(strconv.FormatBool(t))
	case string:
		writeString(b, t)
	case json.Number:
		b.WriteString(formatNumber(t))
	case []any:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteString(", ")
			}
			writeValue(b, e)
		}
		b.WriteByte(']')
	case *Metadata:
		b.WriteByte('{')
		for i, k := range t.keys {
			if i > 0 {
				b.WriteString(", ")
			}
			writeString(b, k)
			b.WriteString(": ")
			writeValue(b, t.values[k])
		}
		b.WriteByte('}')
	}
}

const hexDigits = "0123456789abcdef"

func writeString(b *bytes.Buffer, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if r >= 0x20 && r <= 0x7e {
				b.WriteRune(r)
				continue
			}
			if r > 0xffff {
				r1, r2 := utf16.EncodeRune(r)
				writeEscape(b, r1)
				writeEscape(b, r2)
				continue
			}
			writeEscape(b, r)
		}
	}
	b.WriteByte('"')
}

func writeEscape(b *bytes.Buffer, r rune) {
	b.WriteString(`\u`)
	for shift := 12; shift >= 0; shift -= 4 {
		b.WriteByte(hexDigits[(r>>uint(shift))&0xf])
	}
}

// formatNumber keeps integers exact and renders floats in shortest form:
// fixed notation with at least one decimal for exponents in [-4, 16),
// otherwise scientific.
func formatNumber(n json.Number) string {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if s == "-0" {
			return "0"
		}
		return s
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !math.IsInf(f, 0) {
		return s
	}
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if f == 0 || (exp >= -4 && exp < 16) {
		fixed := strconv.FormatFloat(f, 'f', -1, 64)
		if !strings.Contains(fixed, ".") {
			fixed += ".0"
		}
		return fixed
	}
	return sci
}
