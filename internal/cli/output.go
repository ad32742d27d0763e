// Output helpers shared by metalens commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mesh-intelligence/metalens/internal/loader"
	"github.com/mesh-intelligence/metalens/internal/save"
	"github.com/mesh-intelligence/metalens/pkg/codec"
	"github.com/mesh-intelligence/metalens/pkg/types"
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return sysError(fmt.Errorf("marshal JSON: %w", err))
	}
	fmt.Fprintln(w, string(out))
	return nil
}

func printHandle(w io.Writer, h types.FileHandle) {
	fmt.Fprintf(w, "File:      %s\n", h.OriginalName)
	fmt.Fprintf(w, "Type:      %s\n", h.OriginalMimeType)
	fmt.Fprintf(w, "Size:      %s (%d bytes)\n", codec.FormatByteCount(h.OriginalSize), h.OriginalSize)
	fmt.Fprintf(w, "Modified:  %s\n", codec.FormatInstantForEdit(h.ModifiedAtMillis()))
	if h.RelativePath != "" {
		fmt.Fprintf(w, "Path:      %s\n", h.RelativePath)
	}
}

func printRecord(w io.Writer, r types.Record) {
	fmt.Fprintf(w, "Name:        %s\n", r.Name)
	fmt.Fprintf(w, "MIME type:   %s\n", r.MimeType)
	fmt.Fprintf(w, "Modified:    %s\n", r.ModifiedAt)
	fmt.Fprintf(w, "Description: %s\n", r.Description)
	fmt.Fprintf(w, "Keywords:    %s\n", strings.Join(r.Keywords, ", "))
	if len(r.CustomFields) > 0 {
		fmt.Fprintln(w, "Fields:")
		for _, f := range r.CustomFields {
			fmt.Fprintf(w, "  [%s] %s = %s\n", f.ID, f.Key, f.Value)
		}
	}
}

// printResult shows an analysis result. Technical details are advisory and
// only displayed.
func printResult(w io.Writer, a types.AnalysisResult) {
	fmt.Fprintf(w, "Summary:            %s\n", a.Summary)
	fmt.Fprintf(w, "Keywords:           %s\n", strings.Join(a.Keywords, ", "))
	fmt.Fprintf(w, "Suggested filename: %s\n", a.SuggestedFilename)
	fmt.Fprintf(w, "Detected type:      %s\n", a.DetectedMimeType)
	if len(a.TechnicalDetails) > 0 {
		fmt.Fprintln(w, "Technical details:")
		keys := make([]string, 0, len(a.TechnicalDetails))
		for k := range a.TechnicalDetails {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %v\n", k, a.TechnicalDetails[k])
		}
	}
}

// loadHandle reads a file into a handle. Load failures are user errors.
func loadHandle(path, root string) (types.FileHandle, error) {
	h, err := loader.Open(path, loader.Options{Root: root})
	if err != nil {
		return types.FileHandle{}, userError(err)
	}
	return h, nil
}

// checkNotSource refuses to write an artifact over the file it came from.
func checkNotSource(s *save.Saver, name, source string) error {
	target, err := s.Target(name)
	if err != nil {
		return userError(err)
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return sysError(err)
	}
	absSource, err := filepath.Abs(source)
	if err != nil {
		return sysError(err)
	}
	if absTarget == absSource {
		return userError(fmt.Errorf("refusing to overwrite the source file %s; choose another --out or name", source))
	}
	return nil
}
