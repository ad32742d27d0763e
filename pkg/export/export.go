// Package export turns a file handle and its edited record into the two
// artifacts metalens produces: the original bytes re-wrapped under the edited
// name, type and timestamp, and a JSON sidecar carrying the full record.
// Both transforms are pure with respect to the handle's bytes.
package export

import (
	"time"

	"github.com/mesh-intelligence/metalens/pkg/clock"
	"github.com/mesh-intelligence/metalens/pkg/codec"
	"github.com/mesh-intelligence/metalens/pkg/types"
)

// BinaryArtifact is the original content presented under edited attributes.
type BinaryArtifact struct {
	Bytes     []byte
	Filename  string
	MimeType  string
	Timestamp time.Time
}

// Exporter builds artifacts. The clock supplies the fallback timestamp when
// a record's modification time does not parse.
type Exporter struct {
	clock clock.Clock
}

// New returns an Exporter using c. A nil clock means the real clock.
func New(c clock.Clock) *Exporter {
	if c == nil {
		c = clock.Real()
	}
	return &Exporter{clock: c}
}

var defaultExporter = New(nil)

// Binary builds the binary artifact with the real clock.
func Binary(h types.FileHandle, r types.Record) BinaryArtifact {
	return defaultExporter.Binary(h, r)
}

// Sidecar builds the sidecar artifact.
func Sidecar(h types.FileHandle, r types.Record) (SidecarArtifact, error) {
	return defaultExporter.Sidecar(h, r)
}

// Binary returns h.Bytes unchanged together with the record's export name,
// MIME type and resolved timestamp.
func (e *Exporter) Binary(h types.FileHandle, r types.Record) BinaryArtifact {
	return BinaryArtifact{
		Bytes:     h.Bytes,
		Filename:  r.ExportName(h),
		MimeType:  r.MimeType,
		Timestamp: e.ResolveTimestamp(r),
	}
}

// ResolveTimestamp parses the record's edit-form modification time, falling
// back to the clock's current instant when it is unparseable.
func (e *Exporter) ResolveTimestamp(r types.Record) time.Time {
	if t, ok := codec.ParseEditInstant(r.ModifiedAt); ok {
		return t
	}
	return e.clock.Now()
}
