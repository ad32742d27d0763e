package types

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func editedRecord() Record {
	r := InitFrom(testHandle())
	r = r.Set(FieldName, "user-chosen.pdf").
		Set(FieldDescription, "old description").
		AddKeyword("old")
	r, id := r.AddCustomField()
	return r.UpdateCustomField(id, AttrKey, "client").UpdateCustomField(id, AttrValue, "ACME")
}

func TestMerge(t *testing.T) {
	base := editedRecord()

	tests := []struct {
		name   string
		result AnalysisResult
		want   func(Record) Record
	}{
		{
			name: "suggested filename replaces name",
			result: AnalysisResult{
				Summary:           "Quarterly report",
				Keywords:          []string{"finance", "q3"},
				SuggestedFilename: "q3-report.pdf",
				DetectedMimeType:  "application/pdf",
			},
			want: func(r Record) Record {
				r.Name = "q3-report.pdf"
				r.Description = "Quarterly report"
				r.Keywords = []string{"finance", "q3"}
				return r
			},
		},
		{
			name: "empty suggestion keeps the user name",
			result: AnalysisResult{
				Summary:  "Quarterly report",
				Keywords: []string{"finance"},
			},
			want: func(r Record) Record {
				r.Description = "Quarterly report"
				r.Keywords = []string{"finance"}
				return r
			},
		},
		{
			name:   "empty summary and keywords still overwrite",
			result: AnalysisResult{},
			want: func(r Record) Record {
				r.Description = ""
				r.Keywords = []string{}
				return r
			},
		},
		{
			name: "incoming keywords are normalized",
			result: AnalysisResult{
				Keywords: []string{" finance ", "", "finance", "  ", "Finance"},
			},
			want: func(r Record) Record {
				r.Description = ""
				r.Keywords = []string{"finance", "Finance"}
				return r
			},
		},
		{
			name: "detected mime type and technical details are advisory",
			result: AnalysisResult{
				Summary:          "s",
				DetectedMimeType: "image/png",
				TechnicalDetails: map[string]any{"author": "someone", "pages": 12},
			},
			want: func(r Record) Record {
				r.Description = "s"
				r.Keywords = []string{}
				return r
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(base, tt.result)
			assert.Equal(t, tt.want(base.clone()), got)
			assert.Equal(t, "user-chosen.pdf", base.Name, "input snapshot must not change")
			assert.Equal(t, []string{"old"}, base.Keywords, "input snapshot must not change")
		})
	}
}

func TestMergeNameProperty(t *testing.T) {
	prop := func(name, suggestion, summary string, keywords []string) bool {
		r := InitFrom(testHandle()).Set(FieldName, name)
		got := Merge(r, AnalysisResult{Summary: summary, Keywords: keywords, SuggestedFilename: suggestion})
		if suggestion == "" {
			return got.Name == name
		}
		return got.Name == suggestion
	}
	require.NoError(t, quick.Check(prop, nil))
}

func TestMergeUntouchedFieldsProperty(t *testing.T) {
	prop := func(mime, modified string, keys, values []string, suggestion string) bool {
		r := InitFrom(testHandle()).Set(FieldMimeType, mime).Set(FieldModifiedAt, modified)
		for i, k := range keys {
			var id string
			r, id = r.AddCustomField()
			r = r.UpdateCustomField(id, AttrKey, k)
			if i < len(values) {
				r = r.UpdateCustomField(id, AttrValue, values[i])
			}
		}
		got := Merge(r, AnalysisResult{SuggestedFilename: suggestion, DetectedMimeType: "x/y"})
		return got.MimeType == r.MimeType &&
			got.ModifiedAt == r.ModifiedAt &&
			assert.ObjectsAreEqual(r.CustomFields, got.CustomFields)
	}
	require.NoError(t, quick.Check(prop, nil))
}

func TestMergeDescriptionAndKeywordsOverwrite(t *testing.T) {
	prop := func(summary string, keywords []string) bool {
		got := Merge(editedRecord(), AnalysisResult{Summary: summary, Keywords: keywords})
		if got.Description != summary {
			return false
		}
		want := InitFrom(testHandle())
		for _, k := range keywords {
			want = want.AddKeyword(k)
		}
		return assert.ObjectsAreEqual(want.Keywords, got.Keywords)
	}
	require.NoError(t, quick.Check(prop, nil))
}
