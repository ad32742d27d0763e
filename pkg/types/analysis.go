package types

// AnalysisResult is the metadata proposed by the content-analysis service.
// TechnicalDetails is advisory (resolution, duration, author, ...) and is
// never merged into a Record.
type AnalysisResult struct {
	Summary           string         `json:"summary"`
	Keywords          []string       `json:"keywords"`
	SuggestedFilename string         `json:"suggestedFilename"`
	DetectedMimeType  string         `json:"detectedMimeType"`
	TechnicalDetails  map[string]any `json:"technicalDetails,omitempty"`
}
