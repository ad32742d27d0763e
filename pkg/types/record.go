package types

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/metalens/pkg/codec"
)

// Field names a scalar Record attribute settable through Set.
type Field string

// Scalar record fields.
const (
	FieldName        Field = "name"
	FieldMimeType    Field = "mimeType"
	FieldModifiedAt  Field = "modifiedAt"
	FieldDescription Field = "description"
)

// fieldAliases maps the spellings accepted from users to fields. Keys are
// lower-case.
var fieldAliases = map[string]Field{
	"name":         FieldName,
	"filename":     FieldName,
	"mimetype":     FieldMimeType,
	"mime":         FieldMimeType,
	"type":         FieldMimeType,
	"modifiedat":   FieldModifiedAt,
	"modified":     FieldModifiedAt,
	"lastmodified": FieldModifiedAt,
	"description":  FieldDescription,
}

// ParseField maps a user-supplied field name onto a Field. Matching ignores
// case. Returns ErrUnknownField for anything else.
func ParseField(s string) (Field, error) {
	if f, ok := fieldAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
}

// Attr names one side of a custom field.
type Attr string

// Custom field attributes.
const (
	AttrKey   Attr = "key"
	AttrValue Attr = "value"
)

// ParseAttr maps "key" or "value" onto an Attr.
func ParseAttr(s string) (Attr, error) {
	switch Attr(strings.ToLower(strings.TrimSpace(s))) {
	case AttrKey:
		return AttrKey, nil
	case AttrValue:
		return AttrValue, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAttribute, s)
}

// CustomField is one user-defined key/value pair. ID is opaque, assigned at
// creation and never reused.
type CustomField struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Record is the editable metadata state derived from a FileHandle.
// ModifiedAt holds the local edit form (see codec.EditLayout), not a
// canonical timestamp.
type Record struct {
	Name         string        `json:"name"`
	MimeType     string        `json:"mimeType"`
	ModifiedAt   string        `json:"modifiedAt"`
	Description  string        `json:"description"`
	Keywords     []string      `json:"keywords"`
	CustomFields []CustomField `json:"customFields"`
}

// newFieldID mints custom field ids.
var newFieldID = func() string {
	return uuid.Must(uuid.NewV7()).String()
}

// InitFrom builds the initial Record for a handle. The modification instant
// is converted to the minute-precision local edit form.
func InitFrom(h FileHandle) Record {
	return Record{
		Name:         h.OriginalName,
		MimeType:     h.OriginalMimeType,
		ModifiedAt:   codec.FormatInstantForEdit(h.ModifiedAtMillis()),
		Keywords:     []string{},
		CustomFields: []CustomField{},
	}
}

// clone returns a deep copy so snapshots never share backing arrays.
func (r Record) clone() Record {
	out := r
	out.Keywords = append(make([]string, 0, len(r.Keywords)), r.Keywords...)
	out.CustomFields = append(make([]CustomField, 0, len(r.CustomFields)), r.CustomFields...)
	return out
}

// Set returns a copy of r with the given scalar field replaced. Values are
// never validated. An unrecognized field leaves the record unchanged.
func (r Record) Set(field Field, value string) Record {
	out := r.clone()
	switch field {
	case FieldName:
		out.Name = value
	case FieldMimeType:
		out.MimeType = value
	case FieldModifiedAt:
		out.ModifiedAt = value
	case FieldDescription:
		out.Description = value
	}
	return out
}

// Get returns the current value of a scalar field.
func (r Record) Get(field Field) string {
	switch field {
	case FieldName:
		return r.Name
	case FieldMimeType:
		return r.MimeType
	case FieldModifiedAt:
		return r.ModifiedAt
	case FieldDescription:
		return r.Description
	}
	return ""
}

// AddKeyword trims raw and appends it. Empty input and tags already present
// (case-sensitive) leave the keywords unchanged.
func (r Record) AddKeyword(raw string) Record {
	out := r.clone()
	tag := strings.TrimSpace(raw)
	if tag == "" || slices.Contains(out.Keywords, tag) {
		return out
	}
	out.Keywords = append(out.Keywords, tag)
	return out
}

// RemoveKeyword drops every keyword equal to tag.
func (r Record) RemoveKeyword(tag string) Record {
	out := r.clone()
	out.Keywords = slices.DeleteFunc(out.Keywords, func(k string) bool { return k == tag })
	return out
}

// HasKeyword reports whether tag is present.
func (r Record) HasKeyword(tag string) bool {
	return slices.Contains(r.Keywords, tag)
}

// AddCustomField appends an empty custom field with a fresh id and returns
// the new record together with that id.
func (r Record) AddCustomField() (Record, string) {
	out := r.clone()
	id := newFieldID()
	out.CustomFields = append(out.CustomFields, CustomField{ID: id})
	return out, id
}

// UpdateCustomField replaces one attribute of the field with the given id.
// Unknown ids and attributes are no-ops.
func (r Record) UpdateCustomField(id string, attr Attr, value string) Record {
	out := r.clone()
	for i := range out.CustomFields {
		if out.CustomFields[i].ID != id {
			continue
		}
		switch attr {
		case AttrKey:
			out.CustomFields[i].Key = value
		case AttrValue:
			out.CustomFields[i].Value = value
		}
	}
	return out
}

// RemoveCustomField drops the field with the given id.
func (r Record) RemoveCustomField(id string) Record {
	out := r.clone()
	out.CustomFields = slices.DeleteFunc(out.CustomFields, func(f CustomField) bool { return f.ID == id })
	return out
}

// CustomField looks up a custom field by id.
func (r Record) CustomField(id string) (CustomField, bool) {
	for _, f := range r.CustomFields {
		if f.ID == id {
			return f, true
		}
	}
	return CustomField{}, false
}

// ExportName is the name used for exported artifacts. A blank Name falls
// back to the handle's original name.
func (r Record) ExportName(h FileHandle) string {
	if strings.TrimSpace(r.Name) == "" {
		return h.OriginalName
	}
	return r.Name
}
