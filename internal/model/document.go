package model

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/linkgraph/internal/scalar"
)

// FieldAccessor is implemented by models that expose fields by dotted path
// without reflection.
type FieldAccessor interface {
	GetField(path string) (any, bool)
	SetField(path string, value any) error
}

// Document is a node whose type is defined at runtime. Its fields are
// flattened into the top level of its JSON form, next to the entity fields.
type Document struct {
	Entity

	Type   string
	Fields map[string]any

	schema map[string]scalar.Type
}

// NewDocument returns an empty document of the given type.
func NewDocument(typeName string, schema map[string]scalar.Type) *Document {
	return &Document{Type: typeName, Fields: map[string]any{}, schema: schema}
}

func (d *Document) GetField(path string) (any, bool) {
	return getDocField(d.Fields, d.schema, path)
}

func (d *Document) SetField(path string, value any) error {
	return setDocField(d.Fields, d.schema, path, value)
}

func (d *Document) MarshalJSON() ([]byte, error) {
	return marshalDoc(d.Fields, func(out map[string]any) {
		out["Key"] = d.Key
		out["Created"] = d.Created
		out["Modified"] = d.Modified
	})
}

func (d *Document) UnmarshalJSON(data []byte) error {
	raw, err := decodeObject(data)
	if err != nil {
		return err
	}
	if err := unmarshalEntity(raw, &d.Entity); err != nil {
		return err
	}
	d.Fields, err = coerceFields(raw, d.schema)
	return err
}

// DocumentLink is an edge whose type is defined at runtime.
type DocumentLink struct {
	Link

	Type   string
	Fields map[string]any

	schema map[string]scalar.Type
}

// NewDocumentLink returns an empty link document of the given type.
func NewDocumentLink(typeName string, schema map[string]scalar.Type) *DocumentLink {
	return &DocumentLink{Type: typeName, Fields: map[string]any{}, schema: schema}
}

func (d *DocumentLink) GetField(path string) (any, bool) {
	return getDocField(d.Fields, d.schema, path)
}

func (d *DocumentLink) SetField(path string, value any) error {
	return setDocField(d.Fields, d.schema, path, value)
}

func (d *DocumentLink) MarshalJSON() ([]byte, error) {
	return marshalDoc(d.Fields, func(out map[string]any) {
		out["Key"] = d.Key
		out["Created"] = d.Created
		out["Modified"] = d.Modified
		out["From"] = d.FromRef
		out["To"] = d.ToRef
	})
}

func (d *DocumentLink) UnmarshalJSON(data []byte) error {
	raw, err := decodeObject(data)
	if err != nil {
		return err
	}
	if err := unmarshalEntity(raw, &d.Entity); err != nil {
		return err
	}
	for name, ref := range map[string]*Ref{"From": &d.FromRef, "To": &d.ToRef} {
		if v, ok := raw[name]; ok {
			if err := json.Unmarshal(v, ref); err != nil {
				return fmt.Errorf("decode %s: %w", name, err)
			}
			delete(raw, name)
		}
	}
	d.Fields, err = coerceFields(raw, d.schema)
	return err
}

var entityFields = []string{"Key", "Created", "Modified"}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return raw, nil
}

func unmarshalEntity(raw map[string]json.RawMessage, e *Entity) error {
	targets := map[string]any{"Key": &e.Key, "Created": &e.Created, "Modified": &e.Modified}
	for _, name := range entityFields {
		v, ok := raw[name]
		if !ok {
			continue
		}
		delete(raw, name)
		if string(v) == "null" {
			continue
		}
		if err := json.Unmarshal(v, targets[name]); err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
	}
	return nil
}

// marshalDoc flattens nested dotted field paths into JSON objects.
func marshalDoc(fields map[string]any, entity func(map[string]any)) ([]byte, error) {
	out := map[string]any{}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		parts := strings.Split(name, ".")
		cur := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := cur[p].(map[string]any)
			if !ok {
				next = map[string]any{}
				cur[p] = next
			}
			cur = next
		}
		cur[parts[len(parts)-1]] = fields[name]
	}
	entity(out)
	return json.Marshal(out)
}

// coerceFields flattens nested objects into dotted paths and converts each
// value to its schema type. Fields absent from the schema keep their JSON
// decoding.
func coerceFields(raw map[string]json.RawMessage, schema map[string]scalar.Type) (map[string]any, error) {
	fields := map[string]any{}
	var walk func(prefix string, obj map[string]json.RawMessage) error
	walk = func(prefix string, obj map[string]json.RawMessage) error {
		for name, data := range obj {
			path := name
			if prefix != "" {
				path = prefix + "." + name
			}
			if _, known := schema[path]; !known && bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
				var nested map[string]json.RawMessage
				if err := json.Unmarshal(data, &nested); err == nil {
					if err := walk(path, nested); err != nil {
						return err
					}
					continue
				}
			}
			dec := json.NewDecoder(bytes.NewReader(data))
			dec.UseNumber()
			var v any
			if err := dec.Decode(&v); err != nil {
				return fmt.Errorf("decode field %s: %w", path, err)
			}
			if t, ok := schema[path]; ok {
				cv, err := coerceValue(v, t)
				if err != nil {
					return fmt.Errorf("field %s: %w", path, err)
				}
				v = cv
			} else if n, ok := v.(json.Number); ok {
				v = numberValue(n)
			}
			fields[path] = v
		}
		return nil
	}
	if err := walk("", raw); err != nil {
		return nil, err
	}
	return fields, nil
}

func coerceValue(v any, t scalar.Type) (any, error) {
	if n, ok := v.(json.Number); ok {
		v = numberValue(n)
	}
	if s, ok := v.(string); ok && t.Base() == scalar.Bytes {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", scalar.ErrConversion, err)
		}
		return b, nil
	}
	return scalar.Convert(v, t)
}

func numberValue(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func getDocField(fields map[string]any, schema map[string]scalar.Type, path string) (any, bool) {
	v, ok := fields[path]
	if ok {
		return v, true
	}
	_, declared := schema[path]
	return nil, declared
}

func setDocField(fields map[string]any, schema map[string]scalar.Type, path string, value any) error {
	t, ok := schema[path]
	if !ok && schema != nil {
		return fmt.Errorf("%w: %s", ErrUnknownField, path)
	}
	if ok {
		cv, err := scalar.Convert(value, t)
		if err != nil {
			return fmt.Errorf("field %s: %w", path, err)
		}
		value = cv
	}
	fields[path] = value
	return nil
}
