// Package analysis prepares file content for the external content-analysis
// service, calls it, and reports failures as one retryable class.
//
// The size precondition is checked before any request is built. Prompt hints
// are chosen by coarse content category and every request carries the same
// archivist system instruction.
package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/metalens/pkg/codec"
	"github.com/mesh-intelligence/metalens/pkg/types"
)

// DefaultMaxPayloadBytes is the largest raw payload sent for analysis.
const DefaultMaxPayloadBytes = 10 << 20

// SystemInstruction describes the archivist persona sent with every request.
const SystemInstruction = "You are a specialized file archivist. Your goal is to analyze files to generate accurate metadata, descriptions, and organized naming conventions."

// Category is a coarse content class used to pick a prompt hint.
type Category string

// Content categories.
const (
	CategoryImage Category = "image"
	CategoryVideo Category = "video"
	CategoryAudio Category = "audio"
	CategoryText  Category = "text"
	CategoryOther Category = "other"
)

// textLikeTypes are non-text/* MIME types analyzed as documents.
var textLikeTypes = map[string]bool{
	"application/pdf":        true,
	"application/json":       true,
	"application/xml":        true,
	"application/javascript": true,
	"application/x-yaml":     true,
	"application/rtf":        true,
}

var prompts = map[Category]string{
	CategoryImage: "Analyze this image. Provide a visual description, generate relevant tags, and suggest a descriptive filename.",
	CategoryVideo: "Analyze this video. Describe what happens, generate relevant tags, and suggest a descriptive filename.",
	CategoryAudio: "Analyze this audio. Describe its content (speech, music, ambience), generate relevant tags, and suggest a descriptive filename.",
	CategoryText:  "Analyze this document text. Summarize the content, extract keywords, and suggest a filename.",
	CategoryOther: "Analyze this file if possible. Suggest a clean filename and keywords based on what you can perceive.",
}

// CategoryOf classifies a MIME type. Parameters such as charset are ignored.
func CategoryOf(mimeType string) Category {
	base, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(mimeType)), ";")
	base = strings.TrimSpace(base)
	switch {
	case strings.HasPrefix(base, "image/"):
		return CategoryImage
	case strings.HasPrefix(base, "video/"):
		return CategoryVideo
	case strings.HasPrefix(base, "audio/"):
		return CategoryAudio
	case strings.HasPrefix(base, "text/"), textLikeTypes[base]:
		return CategoryText
	}
	return CategoryOther
}

// PromptFor returns the prompt hint for a category.
func PromptFor(c Category) string {
	if p, ok := prompts[c]; ok {
		return p
	}
	return prompts[CategoryOther]
}

// Request is one prepared analysis call.
type Request struct {
	MimeType          string
	Data              string // base64 payload
	RawSize           int64
	Prompt            string
	SystemInstruction string
}

// Analyzer is the content-analysis collaborator.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (types.AnalysisResult, error)
}

// CheckSize returns ErrPayloadTooLarge when size exceeds limit. A limit of
// zero or less disables the check.
func CheckSize(size, limit int64) error {
	if limit > 0 && size > limit {
		return fmt.Errorf("%w: %s exceeds limit of %s", ErrPayloadTooLarge,
			codec.FormatByteCount(size), codec.FormatByteCount(limit))
	}
	return nil
}

// Prepare checks the size precondition and builds the request for a handle.
// The MIME type sent is the handle's original type; the record's type is
// used only when the original is unknown.
func Prepare(h types.FileHandle, r types.Record, limit int64) (Request, error) {
	if err := CheckSize(h.OriginalSize, limit); err != nil {
		return Request{}, err
	}

	mimeType := strings.TrimSpace(h.OriginalMimeType)
	if mimeType == "" {
		mimeType = strings.TrimSpace(r.MimeType)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return Request{
		MimeType:          mimeType,
		Data:              codec.ToBase64(h.Bytes),
		RawSize:           h.OriginalSize,
		Prompt:            PromptFor(CategoryOf(mimeType)),
		SystemInstruction: SystemInstruction,
	}, nil
}
