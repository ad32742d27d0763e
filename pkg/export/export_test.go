package export

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"testing"
	"testing/quick"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/metalens/pkg/clock"
	"github.com/mesh-intelligence/metalens/pkg/types"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func reportHandle() types.FileHandle {
	modified := time.Date(2023, 10, 5, 14, 30, 0, 0, time.Local)
	return types.NewFileHandle("report.PDF", "application/pdf", modified, make([]byte, 2048), "")
}

func TestBinary(t *testing.T) {
	data := make([]byte, 4096)
	_, err := rand.Read(data)
	require.NoError(t, err)

	h := types.NewFileHandle("photo.jpg", "image/jpeg", time.Now(), data, "")
	original := bytes.Clone(data)
	e := New(clock.Fake(fixedNow))

	r := types.InitFrom(h).
		Set(types.FieldName, "sunset.jpeg").
		Set(types.FieldMimeType, "image/x-custom").
		Set(types.FieldModifiedAt, "2020-01-02T03:04")

	art := e.Binary(h, r)
	assert.Equal(t, original, art.Bytes, "bytes must be identical")
	assert.Equal(t, "sunset.jpeg", art.Filename)
	assert.Equal(t, "image/x-custom", art.MimeType)
	assert.True(t, time.Date(2020, 1, 2, 3, 4, 0, 0, time.Local).Equal(art.Timestamp))

	t.Run("unparseable modifiedAt falls back to now", func(t *testing.T) {
		art := e.Binary(h, r.Set(types.FieldModifiedAt, "garbage"))
		assert.Equal(t, fixedNow, art.Timestamp)
	})

	t.Run("empty modifiedAt falls back to now", func(t *testing.T) {
		art := e.Binary(h, r.Set(types.FieldModifiedAt, ""))
		assert.Equal(t, fixedNow, art.Timestamp)
	})

	t.Run("blank name falls back to original name", func(t *testing.T) {
		art := e.Binary(h, r.Set(types.FieldName, " "))
		assert.Equal(t, "photo.jpg", art.Filename)
	})

	t.Run("package function uses the real clock", func(t *testing.T) {
		before := time.Now()
		art := Binary(h, r.Set(types.FieldModifiedAt, "nope"))
		assert.False(t, art.Timestamp.Before(before))
	})
}

func TestBinaryBytesProperty(t *testing.T) {
	prop := func(data []byte, name, mime, modified string) bool {
		h := types.NewFileHandle("f.bin", "application/octet-stream", time.Now(), data, "")
		r := types.InitFrom(h).
			Set(types.FieldName, name).
			Set(types.FieldMimeType, mime).
			Set(types.FieldModifiedAt, modified)
		return bytes.Equal(h.Bytes, Binary(h, r).Bytes)
	}
	require.NoError(t, quick.Check(prop, nil))
}

func TestSidecarBase(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"photo.jpg", "photo"},
		{"noext", "noext"},
		{"archive.tar.gz", "archive.tar"},
		{".bashrc", ".bashrc"},
		{"trailing.", "trailing"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SidecarBase(tt.in))
		})
	}
}

func TestFoldCustomFields(t *testing.T) {
	fields := []types.CustomField{
		{ID: "1", Key: " camera ", Value: "X100V"},
		{ID: "2", Key: "", Value: "dropped"},
		{ID: "3", Key: "   ", Value: "dropped too"},
		{ID: "4", Key: "lens", Value: "23mm"},
		{ID: "5", Key: "camera", Value: "X-T5"},
	}

	got := FoldCustomFields(fields)
	assert.Equal(t, ExtendedMetadata{
		{Key: "camera", Value: "X-T5"},
		{Key: "lens", Value: "23mm"},
	}, got)

	v, ok := got.Get("lens")
	assert.True(t, ok)
	assert.Equal(t, "23mm", v)
	_, ok = got.Get("missing")
	assert.False(t, ok)

	assert.Empty(t, FoldCustomFields(nil))
}

func TestSidecarEndToEnd(t *testing.T) {
	h := reportHandle()
	r := types.InitFrom(h)
	require.Equal(t, "report.PDF", r.Name)

	r = r.Set(types.FieldDescription, "Q3 summary").
		AddKeyword("finance").
		AddKeyword("quarterly")

	art, err := Sidecar(h, r)
	require.NoError(t, err)
	assert.Equal(t, "report"+SidecarSuffix, art.Filename)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(art.JSON, &raw))
	assert.Equal(t, "report.PDF", raw["filename"])
	assert.Equal(t, "application/pdf", raw["mimeType"])
	assert.Equal(t, "2023-10-05T14:30", raw["lastModified"])
	assert.Equal(t, "Q3 summary", raw["description"])
	assert.Equal(t, []any{"finance", "quarterly"}, raw["keywords"])
	assert.Equal(t, float64(2048), raw["originalSize"])
	assert.Equal(t, "report.PDF", raw["originalName"])
	assert.NotContains(t, raw, "extendedMetadata")
	assert.Len(t, raw, 7)
}

func TestSidecarKeyOrder(t *testing.T) {
	h := reportHandle()
	r := types.InitFrom(h)
	r, id := r.AddCustomField()
	r = r.UpdateCustomField(id, types.AttrKey, "client").UpdateCustomField(id, types.AttrValue, "ACME")

	art, err := Sidecar(h, r)
	require.NoError(t, err)

	dec := json.NewDecoder(bytes.NewReader(art.JSON))
	var keys []string
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch v := tok.(type) {
		case json.Delim:
			if v == '{' || v == '[' {
				depth++
			} else {
				depth--
			}
		case string:
			if depth == 1 && dec.More() {
				keys = append(keys, v)
				// Skip the value.
				var skip json.RawMessage
				require.NoError(t, dec.Decode(&skip))
			}
		}
	}
	assert.Equal(t, []string{
		"filename", "mimeType", "lastModified", "description",
		"keywords", "originalSize", "originalName", "extendedMetadata",
	}, keys)
}

func TestSidecarExtendedMetadata(t *testing.T) {
	h := reportHandle()

	t.Run("blank keys only omits the attribute", func(t *testing.T) {
		r := types.InitFrom(h)
		r, id := r.AddCustomField()
		r = r.UpdateCustomField(id, types.AttrValue, "orphan")
		r, _ = r.AddCustomField()

		art, err := Sidecar(h, r)
		require.NoError(t, err)
		assert.NotContains(t, string(art.JSON), "extendedMetadata")
	})

	t.Run("entries keep insertion order", func(t *testing.T) {
		r := types.InitFrom(h)
		for _, kv := range [][2]string{{"zeta", "1"}, {"", "skip"}, {" alpha ", "2"}, {"mid", "<3>&"}} {
			var id string
			r, id = r.AddCustomField()
			r = r.UpdateCustomField(id, types.AttrKey, kv[0]).UpdateCustomField(id, types.AttrValue, kv[1])
		}

		art, err := Sidecar(h, r)
		require.NoError(t, err)
		assert.Contains(t, string(art.JSON), `"mid": "<3>&"`, "no HTML escaping")

		doc, err := ParseDocument(art.JSON)
		require.NoError(t, err)
		assert.Equal(t, ExtendedMetadata{
			{Key: "zeta", Value: "1"},
			{Key: "alpha", Value: "2"},
			{Key: "mid", Value: "<3>&"},
		}, doc.ExtendedMetadata)
	})

	t.Run("empty keywords serialize as an array", func(t *testing.T) {
		r := types.InitFrom(h)
		r.Keywords = nil

		art, err := Sidecar(h, r)
		require.NoError(t, err)
		assert.Contains(t, string(art.JSON), `"keywords": []`)
	})

	t.Run("blank name falls back in document and filename", func(t *testing.T) {
		r := types.InitFrom(h).Set(types.FieldName, "")
		art, err := Sidecar(h, r)
		require.NoError(t, err)
		assert.Equal(t, "report"+SidecarSuffix, art.Filename)

		doc, err := ParseDocument(art.JSON)
		require.NoError(t, err)
		assert.Equal(t, "report.PDF", doc.Filename)
	})

	t.Run("name without extension is kept whole", func(t *testing.T) {
		r := types.InitFrom(h).Set(types.FieldName, "noext")
		art, err := Sidecar(h, r)
		require.NoError(t, err)
		assert.Equal(t, "noext"+SidecarSuffix, art.Filename)
	})
}

func TestExtendedMetadataUnmarshalErrors(t *testing.T) {
	var m ExtendedMetadata
	assert.Error(t, json.Unmarshal([]byte(`["a"]`), &m))
	assert.Error(t, json.Unmarshal([]byte(`{"a": 1}`), &m))
	require.NoError(t, json.Unmarshal([]byte(`{}`), &m))
	assert.Empty(t, m)
}
