// Package save writes export artifacts into an output directory.
package save

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mesh-intelligence/metalens/internal/metrics"
	"github.com/mesh-intelligence/metalens/pkg/export"
)

// ErrInvalidFilename is returned when an artifact name has no usable base.
var ErrInvalidFilename = errors.New("invalid artifact filename")

// Saver writes artifacts into Dir. Writes go through a temporary file in the
// same directory and are renamed into place.
type Saver struct {
	dir     string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New returns a saver for dir. An empty dir means the current directory.
// m and logger may be nil.
func New(dir string, m *metrics.Metrics, logger *slog.Logger) *Saver {
	if dir == "" {
		dir = "."
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Saver{dir: dir, metrics: m, logger: logger.With(slog.String("component", "save"))}
}

// Dir returns the output directory.
func (s *Saver) Dir() string { return s.dir }

// WriteBinary writes the artifact bytes under its filename and sets the
// file's modification time to the artifact timestamp. Returns the path.
func (s *Saver) WriteBinary(a export.BinaryArtifact) (string, error) {
	path, err := s.write(a.Filename, a.Bytes, a.Timestamp)
	if err != nil {
		return "", err
	}
	s.count(metrics.ExportBinary)
	s.logger.Info("binary written",
		slog.String("path", path),
		slog.String("mime_type", a.MimeType),
		slog.Int("bytes", len(a.Bytes)),
	)
	return path, nil
}

// WriteSidecar writes the sidecar JSON. Returns the path.
func (s *Saver) WriteSidecar(a export.SidecarArtifact) (string, error) {
	path, err := s.write(a.Filename, a.JSON, time.Time{})
	if err != nil {
		return "", err
	}
	s.count(metrics.ExportSidecar)
	s.logger.Info("sidecar written", slog.String("path", path))
	return path, nil
}

// Target returns where name would be written. Only the final path element
// of name is used so an edited name cannot escape the directory.
func (s *Saver) Target(name string) (string, error) {
	base := filepath.Base(name)
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return filepath.Join(s.dir, base), nil
}

func (s *Saver) write(name string, data []byte, mtime time.Time) (string, error) {
	path, err := s.Target(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".metalens-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return "", fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(tmpName, mtime, mtime); err != nil {
			return "", fmt.Errorf("set mtime on %s: %w", path, err)
		}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("rename into %s: %w", path, err)
	}
	return path, nil
}

func (s *Saver) count(kind string) {
	if s.metrics != nil {
		s.metrics.Exports.WithLabelValues(kind).Inc()
	}
}
