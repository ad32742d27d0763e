package types

import "time"

// FileHandle is the immutable snapshot of an originally selected file.
// Callers must not modify Bytes after construction.
type FileHandle struct {
	Bytes              []byte    `json:"-"`
	OriginalName       string    `json:"originalName"`
	OriginalMimeType   string    `json:"originalMimeType"`
	OriginalModifiedAt time.Time `json:"originalModifiedAt"`
	OriginalSize       int64     `json:"originalSize"`
	RelativePath       string    `json:"relativePath,omitempty"` // Set only for directory-scoped selections.
}

// NewFileHandle builds a handle over data. OriginalSize is taken from
// len(data) and the modification instant is truncated to milliseconds.
func NewFileHandle(name, mimeType string, modifiedAt time.Time, data []byte, relativePath string) FileHandle {
	return FileHandle{
		Bytes:              data,
		OriginalName:       name,
		OriginalMimeType:   mimeType,
		OriginalModifiedAt: time.UnixMilli(modifiedAt.UnixMilli()),
		OriginalSize:       int64(len(data)),
		RelativePath:       relativePath,
	}
}

// ModifiedAtMillis returns the original modification instant in epoch
// milliseconds.
func (h FileHandle) ModifiedAtMillis() int64 {
	return h.OriginalModifiedAt.UnixMilli()
}
