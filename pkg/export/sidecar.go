package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/metalens/pkg/types"
)

// SidecarSuffix is appended to the stripped base name of a sidecar file.
const SidecarSuffix = "_metadata.json"

// SidecarArtifact is a serialized sidecar document and its suggested
// filename.
type SidecarArtifact struct {
	JSON     []byte
	Filename string
}

// Document is the sidecar JSON object. Field order is the serialized key
// order.
type Document struct {
	Filename         string           `json:"filename"`
	MimeType         string           `json:"mimeType"`
	LastModified     string           `json:"lastModified"`
	Description      string           `json:"description"`
	Keywords         []string         `json:"keywords"`
	OriginalSize     int64            `json:"originalSize"`
	OriginalName     string           `json:"originalName"`
	ExtendedMetadata ExtendedMetadata `json:"extendedMetadata,omitempty"`
}

// Entry is one extended metadata pair.
type Entry struct {
	Key   string
	Value string
}

// ExtendedMetadata is an ordered string map serialized as a JSON object in
// insertion order.
type ExtendedMetadata []Entry

// FoldCustomFields builds extended metadata from custom fields. Keys are
// trimmed and blank keys skipped. A repeated key keeps its first position and
// takes the later value.
func FoldCustomFields(fields []types.CustomField) ExtendedMetadata {
	var out ExtendedMetadata
	index := make(map[string]int, len(fields))
	for _, f := range fields {
		key := strings.TrimSpace(f.Key)
		if key == "" {
			continue
		}
		if i, ok := index[key]; ok {
			out[i].Value = f.Value
			continue
		}
		index[key] = len(out)
		out = append(out, Entry{Key: key, Value: f.Value})
	}
	return out
}

// Get returns the value stored under key.
func (m ExtendedMetadata) Get(key string) (string, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// MarshalJSON writes the entries as a JSON object in order.
func (m ExtendedMetadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONString(&buf, e.Key); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeJSONString(&buf, e.Value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object of strings, keeping key order.
func (m *ExtendedMetadata) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("extendedMetadata: expected object, got %v", tok)
	}

	out := ExtendedMetadata{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("extendedMetadata: expected key, got %v", keyTok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("extendedMetadata %q: %w", key, err)
		}
		out = append(out, Entry{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}

// writeJSONString encodes s without HTML escaping.
func writeJSONString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}

// BuildDocument assembles the sidecar document for a handle and record.
func BuildDocument(h types.FileHandle, r types.Record) Document {
	keywords := append(make([]string, 0, len(r.Keywords)), r.Keywords...)
	return Document{
		Filename:         r.ExportName(h),
		MimeType:         r.MimeType,
		LastModified:     r.ModifiedAt,
		Description:      r.Description,
		Keywords:         keywords,
		OriginalSize:     h.OriginalSize,
		OriginalName:     h.OriginalName,
		ExtendedMetadata: FoldCustomFields(r.CustomFields),
	}
}

// Sidecar serializes the sidecar document as indented UTF-8 JSON.
func (e *Exporter) Sidecar(h types.FileHandle, r types.Record) (SidecarArtifact, error) {
	doc := BuildDocument(h, r)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return SidecarArtifact{}, fmt.Errorf("encode sidecar: %w", err)
	}

	return SidecarArtifact{
		JSON:     buf.Bytes(),
		Filename: SidecarBase(doc.Filename) + SidecarSuffix,
	}, nil
}

// SidecarBase strips the final extension from name. Names without a dot, or
// whose only dot is the leading character, are returned whole.
func SidecarBase(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i]
	}
	return name
}

// ParseDocument decodes a sidecar document.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode sidecar: %w", err)
	}
	return doc, nil
}
