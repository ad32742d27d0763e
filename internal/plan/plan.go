// Package plan reads edit plans and applies them to a record.
//
// A plan is a JSONC document (JSON with // and /* */ comments and trailing
// commas) listing the edits to make to one record:
//
//	{
//	  "name": "q3_report.pdf",
//	  "description": "Q3 summary",
//	  "keywords": ["finance", "quarterly"],
//	  "removeKeywords": ["draft"],
//	  "fields": [{"key": "author", "value": "Finance team"}],
//	  "removeFields": ["obsolete"],
//	}
//
// Scalar fields left out of the plan are not touched. The CLI flag surface
// builds the same Plan value, so flags and files share one apply path.
package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/mesh-intelligence/metalens/pkg/types"
)

// ErrInvalidField is returned for a key=value pair without a key.
var ErrInvalidField = errors.New("invalid custom field")

// FieldEdit sets the custom field with the given key.
type FieldEdit struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Plan is a batch of record edits. Nil scalar pointers mean "leave as is".
type Plan struct {
	Name           *string     `json:"name,omitempty"`
	MimeType       *string     `json:"mimeType,omitempty"`
	ModifiedAt     *string     `json:"modifiedAt,omitempty"`
	Description    *string     `json:"description,omitempty"`
	Keywords       []string    `json:"keywords,omitempty"`
	RemoveKeywords []string    `json:"removeKeywords,omitempty"`
	Fields         []FieldEdit `json:"fields,omitempty"`
	RemoveFields   []string    `json:"removeFields,omitempty"`
}

// Parse strips comments and trailing commas from data and decodes a Plan.
// Unknown keys are rejected so typos do not pass silently.
func Parse(data []byte) (Plan, error) {
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.DisallowUnknownFields()

	var p Plan
	if err := dec.Decode(&p); err != nil {
		return Plan{}, fmt.Errorf("parsing plan: %w", err)
	}
	for _, f := range p.Fields {
		if strings.TrimSpace(f.Key) == "" {
			return Plan{}, fmt.Errorf("parsing plan: %w: empty key", ErrInvalidField)
		}
	}
	return p, nil
}

// ReadFile reads and parses a plan file.
func ReadFile(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("reading %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return Plan{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ParseFieldArg splits a "key=value" argument. The value may be empty and may
// itself contain '='.
func ParseFieldArg(arg string) (FieldEdit, error) {
	key, value, ok := strings.Cut(arg, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return FieldEdit{}, fmt.Errorf("%w: %q (want key=value)", ErrInvalidField, arg)
	}
	return FieldEdit{Key: strings.TrimSpace(key), Value: value}, nil
}

// Empty reports whether the plan makes no edits.
func (p Plan) Empty() bool {
	return p.Name == nil && p.MimeType == nil && p.ModifiedAt == nil && p.Description == nil &&
		len(p.Keywords) == 0 && len(p.RemoveKeywords) == 0 &&
		len(p.Fields) == 0 && len(p.RemoveFields) == 0
}

// Merge appends other's edits after p's. Scalars set in other win.
func (p Plan) Merge(other Plan) Plan {
	out := p
	if other.Name != nil {
		out.Name = other.Name
	}
	if other.MimeType != nil {
		out.MimeType = other.MimeType
	}
	if other.ModifiedAt != nil {
		out.ModifiedAt = other.ModifiedAt
	}
	if other.Description != nil {
		out.Description = other.Description
	}
	out.Keywords = append(append([]string(nil), p.Keywords...), other.Keywords...)
	out.RemoveKeywords = append(append([]string(nil), p.RemoveKeywords...), other.RemoveKeywords...)
	out.Fields = append(append([]FieldEdit(nil), p.Fields...), other.Fields...)
	out.RemoveFields = append(append([]string(nil), p.RemoveFields...), other.RemoveFields...)
	return out
}

// Apply runs the plan against r in a fixed order: scalars, keyword additions,
// keyword removals, field sets, field removals.
func (p Plan) Apply(r types.Record) types.Record {
	scalars := []struct {
		field types.Field
		value *string
	}{
		{types.FieldName, p.Name},
		{types.FieldMimeType, p.MimeType},
		{types.FieldModifiedAt, p.ModifiedAt},
		{types.FieldDescription, p.Description},
	}
	for _, s := range scalars {
		if s.value != nil {
			r = r.Set(s.field, *s.value)
		}
	}

	for _, k := range p.Keywords {
		r = r.AddKeyword(k)
	}
	for _, k := range p.RemoveKeywords {
		r = r.RemoveKeyword(strings.TrimSpace(k))
	}
	for _, f := range p.Fields {
		r = SetField(r, f.Key, f.Value)
	}
	for _, key := range p.RemoveFields {
		r = RemoveField(r, key)
	}
	return r
}

// SetField sets the value of the first custom field whose trimmed key equals
// key, or appends a new field when there is none.
func SetField(r types.Record, key, value string) types.Record {
	key = strings.TrimSpace(key)
	if id, ok := FieldID(r, key); ok {
		return r.UpdateCustomField(id, types.AttrValue, value)
	}
	r, id := r.AddCustomField()
	r = r.UpdateCustomField(id, types.AttrKey, key)
	return r.UpdateCustomField(id, types.AttrValue, value)
}

// RemoveField drops every custom field whose trimmed key equals key.
func RemoveField(r types.Record, key string) types.Record {
	key = strings.TrimSpace(key)
	for _, f := range r.CustomFields {
		if strings.TrimSpace(f.Key) == key {
			r = r.RemoveCustomField(f.ID)
		}
	}
	return r
}

// FieldID returns the id of the first custom field with the given trimmed key.
func FieldID(r types.Record, key string) (string, bool) {
	for _, f := range r.CustomFields {
		if strings.TrimSpace(f.Key) == key {
			return f.ID, true
		}
	}
	return "", false
}
