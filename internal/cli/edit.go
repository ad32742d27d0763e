package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/metalens/internal/plan"
	"github.com/mesh-intelligence/metalens/pkg/types"
)

// editFlags holds the edit command's flag values.
type editFlags struct {
	root          string
	name          string
	mimeType      string
	modified      string
	description   string
	keywords      []string
	removeKeyword []string
	fields        []string
	removeFields  []string
	planFile      string
	analyze       bool
	binary        bool
	sidecar       bool
	out           string
}

// editOutput is the --json form of edit.
type editOutput struct {
	Record    types.Record          `json:"record"`
	Analysis  *types.AnalysisResult `json:"analysis,omitempty"`
	Artifacts []string              `json:"artifacts"`
}

func newEditCmd(a *app) *cobra.Command {
	var f editFlags

	cmd := &cobra.Command{
		Use:   "edit <file>",
		Short: "Edit a file's metadata and export it",
		Long: "Load a file, apply edits, and optionally write the re-wrapped file\n" +
			"(--binary) and/or a JSON sidecar (--sidecar).\n\n" +
			"Edits apply in order: the --plan file, then flags, then the analysis\n" +
			"merge when --analyze is set. The merge replaces the description and\n" +
			"keywords, and the name when the service suggests one.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd, a, &f, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.root, "root", "", "directory the file was selected from; sets its relative path")
	flags.StringVar(&f.name, "name", "", "new filename")
	flags.StringVar(&f.mimeType, "mime", "", "new MIME type")
	flags.StringVar(&f.modified, "modified", "", "new modification time (YYYY-MM-DDTHH:mm, local)")
	flags.StringVar(&f.description, "description", "", "description text")
	flags.StringArrayVar(&f.keywords, "keyword", nil, "add a keyword (repeatable)")
	flags.StringArrayVar(&f.removeKeyword, "remove-keyword", nil, "remove a keyword (repeatable)")
	flags.StringArrayVar(&f.fields, "field", nil, "set a custom field as key=value (repeatable)")
	flags.StringArrayVar(&f.removeFields, "remove-field", nil, "remove custom fields with this key (repeatable)")
	flags.StringVar(&f.planFile, "plan", "", "JSONC edit plan to apply first")
	flags.BoolVar(&f.analyze, "analyze", false, "merge suggestions from the analysis service")
	flags.BoolVar(&f.binary, "binary", false, "write the file under its edited name and timestamp")
	flags.BoolVar(&f.sidecar, "sidecar", false, "write a JSON sidecar")
	flags.StringVar(&f.out, "out", "", "output directory (default: output_dir, $METALENS_OUTPUT_DIR, or the working directory)")
	return cmd
}

func runEdit(cmd *cobra.Command, a *app, f *editFlags, path string) error {
	h, err := loadHandle(path, f.root)
	if err != nil {
		return err
	}

	edits, err := buildPlan(cmd, f)
	if err != nil {
		return err
	}

	s := a.newSession()
	s.Open(h)
	if _, err := s.Update(edits.Apply); err != nil {
		return sysError(err)
	}

	var result *types.AnalysisResult
	if f.analyze {
		res, _, err := s.Analyze(cmd.Context())
		if err != nil {
			return analysisError(err)
		}
		result = &res
	}

	record, err := s.Record()
	if err != nil {
		return sysError(err)
	}

	var artifacts []string
	if f.binary || f.sidecar {
		saver, err := a.newSaver(f.out)
		if err != nil {
			return err
		}
		if f.binary {
			art, err := s.ExportBinary()
			if err != nil {
				return sysError(err)
			}
			if err := checkNotSource(saver, art.Filename, path); err != nil {
				return err
			}
			written, err := saver.WriteBinary(art)
			if err != nil {
				return sysError(err)
			}
			artifacts = append(artifacts, written)
		}
		if f.sidecar {
			art, err := s.ExportSidecar()
			if err != nil {
				return sysError(err)
			}
			if err := checkNotSource(saver, art.Filename, path); err != nil {
				return err
			}
			written, err := saver.WriteSidecar(art)
			if err != nil {
				return sysError(err)
			}
			artifacts = append(artifacts, written)
		}
	}

	out := cmd.OutOrStdout()
	if a.jsonMode {
		if artifacts == nil {
			artifacts = []string{}
		}
		return printJSON(out, editOutput{Record: record, Analysis: result, Artifacts: artifacts})
	}
	printRecord(out, record)
	for _, p := range artifacts {
		fmt.Fprintf(out, "Wrote %s\n", p)
	}
	return nil
}

// buildPlan merges the --plan file with the edits given as flags. Scalar
// flags count only when set explicitly, so --description "" clears the
// description.
func buildPlan(cmd *cobra.Command, f *editFlags) (plan.Plan, error) {
	var base plan.Plan
	if f.planFile != "" {
		p, err := plan.ReadFile(f.planFile)
		if err != nil {
			return plan.Plan{}, userError(err)
		}
		base = p
	}

	fromFlags := plan.Plan{
		Keywords:       f.keywords,
		RemoveKeywords: f.removeKeyword,
		RemoveFields:   f.removeFields,
	}
	changed := cmd.Flags().Changed
	if changed("name") {
		fromFlags.Name = &f.name
	}
	if changed("mime") {
		fromFlags.MimeType = &f.mimeType
	}
	if changed("modified") {
		fromFlags.ModifiedAt = &f.modified
	}
	if changed("description") {
		fromFlags.Description = &f.description
	}
	for _, arg := range f.fields {
		edit, err := plan.ParseFieldArg(arg)
		if err != nil {
			return plan.Plan{}, userError(err)
		}
		fromFlags.Fields = append(fromFlags.Fields, edit)
	}

	return base.Merge(fromFlags), nil
}
