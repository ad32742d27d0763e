// Package types defines the file handle, the editable metadata record, the
// analysis result, and the pure state transitions between them.
//
// A FileHandle is the immutable snapshot of a loaded file. A Record is the
// user-visible metadata derived from it; every Record operation returns a new
// snapshot and never touches the handle or performs I/O. Merge folds an
// AnalysisResult into a Record under a fixed precedence policy.
package types
