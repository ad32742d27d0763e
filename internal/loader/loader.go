// Package loader reads a file from disk into a types.FileHandle.
package loader

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/mesh-intelligence/metalens/pkg/types"
)

// Loader errors.
var (
	ErrNotRegularFile = errors.New("not a regular file")
	ErrOutsideRoot    = errors.New("file is not under the root directory")
)

// Options controls how a handle is built.
type Options struct {
	// Root, when set, scopes the selection to a directory. The handle's
	// RelativePath is then the file's path under Root, prefixed with the
	// root directory's own name and using forward slashes.
	Root string
}

// Open reads path and returns a handle over its bytes. The MIME type comes
// from the file extension, falling back to content sniffing.
func Open(path string, opts Options) (types.FileHandle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return types.FileHandle{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return types.FileHandle{}, fmt.Errorf("%s: %w", path, ErrNotRegularFile)
	}

	var rel string
	if opts.Root != "" {
		rel, err = RelativePath(opts.Root, path)
		if err != nil {
			return types.FileHandle{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return types.FileHandle{}, fmt.Errorf("read %s: %w", path, err)
	}

	name := filepath.Base(path)
	return types.NewFileHandle(name, DetectMimeType(name, data), info.ModTime(), data, rel), nil
}

// RelativePath returns path relative to root in the form "<root name>/a/b".
func RelativePath(root, path string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root %s: %w", root, err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w %s", path, ErrOutsideRoot, root)
	}
	return filepath.Base(absRoot) + "/" + filepath.ToSlash(rel), nil
}

// DetectMimeType returns the media type without parameters. The extension
// is consulted first; unknown extensions fall back to sniffing data.
func DetectMimeType(name string, data []byte) string {
	if ext := filepath.Ext(name); ext != "" {
		if t := mime.TypeByExtension(strings.ToLower(ext)); t != "" {
			return stripParams(t)
		}
	}
	return stripParams(mimetype.Detect(data).String())
}

func stripParams(t string) string {
	base, _, _ := strings.Cut(t, ";")
	return strings.TrimSpace(base)
}
