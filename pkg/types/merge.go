package types

// Merge folds an analysis result into r.
//
// Summary and keywords overwrite unconditionally; analysis is a bulk
// re-tagging the user asked for. The suggested filename replaces the name
// only when non-empty so an empty suggestion never erases a name the user set.
// MimeType, ModifiedAt and CustomFields are left as they are. Incoming
// keywords pass through the AddKeyword rules, so blanks and duplicates are
// dropped.
func Merge(r Record, a AnalysisResult) Record {
	out := r.clone()
	out.Description = a.Summary

	out.Keywords = []string{}
	for _, k := range a.Keywords {
		out = out.AddKeyword(k)
	}

	if a.SuggestedFilename != "" {
		out.Name = a.SuggestedFilename
	}
	return out
}
