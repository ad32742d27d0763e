// Package integration runs the built metalens binary end to end.
package integration

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var (
	// metalensBin is the path to the built metalens binary.
	metalensBin string
	// buildErr captures any build error.
	buildErr error
)

// BuildError wraps a build error with output.
type BuildError struct {
	Err    error
	Output string
}

func (e *BuildError) Error() string {
	return e.Err.Error() + ": " + e.Output
}

// FindProjectRoot finds the project root by walking up and looking for go.mod.
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

// TestEnv provides an isolated environment with its own config, input and
// output directories.
type TestEnv struct {
	t         *testing.T
	TempDir   string
	ConfigDir string
	InputDir  string
	OutputDir string
	Env       []string
}

// NewTestEnv creates a new isolated test environment.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	if buildErr != nil {
		t.Fatalf("failed to build metalens: %v", buildErr)
	}
	if metalensBin == "" {
		t.Fatal("metalens binary not built (metalensBin is empty)")
	}

	tempDir := t.TempDir()
	env := &TestEnv{
		t:         t,
		TempDir:   tempDir,
		ConfigDir: filepath.Join(tempDir, "config"),
		InputDir:  filepath.Join(tempDir, "input"),
		OutputDir: filepath.Join(tempDir, "output"),
	}
	if err := os.MkdirAll(env.InputDir, 0o755); err != nil {
		t.Fatalf("failed to create input dir: %v", err)
	}
	return env
}

// WriteInput writes a file into the input directory with the given mtime.
func (e *TestEnv) WriteInput(name string, data []byte, mtime time.Time) string {
	e.t.Helper()
	path := filepath.Join(e.InputDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		e.t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		e.t.Fatalf("write input: %v", err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		e.t.Fatalf("chtimes: %v", err)
	}
	return path
}

// cleanEnv returns os.Environ() without METALENS_*, GEMINI_API_KEY and
// API_KEY so the host environment cannot leak into a run.
func cleanEnv() []string {
	var env []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "METALENS_") || strings.HasPrefix(kv, "GEMINI_API_KEY=") || strings.HasPrefix(kv, "API_KEY=") {
			continue
		}
		env = append(env, kv)
	}
	return env
}

// CmdResult holds the result of a metalens command execution.
type CmdResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Run executes metalens with the given stdin and arguments.
func (e *TestEnv) Run(stdin string, args ...string) CmdResult {
	e.t.Helper()

	allArgs := append([]string{"--config-dir", e.ConfigDir}, args...)
	cmd := exec.Command(metalensBin, allArgs...)
	cmd.Env = append(cleanEnv(), e.Env...)
	cmd.Stdin = strings.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			e.t.Fatalf("failed to run metalens: %v", err)
		}
	}

	return CmdResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}
}

// MustRun executes metalens and fails the test if it returns non-zero.
func (e *TestEnv) MustRun(args ...string) CmdResult {
	e.t.Helper()
	result := e.Run("", args...)
	if result.ExitCode != 0 {
		e.t.Fatalf("metalens %v failed with exit code %d:\nstdout: %s\nstderr: %s",
			args, result.ExitCode, result.Stdout, result.Stderr)
	}
	return result
}

// ParseJSON parses JSON output into the target type.
func ParseJSON[T any](t *testing.T, data string) T {
	t.Helper()
	var result T
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		t.Fatalf("failed to parse JSON %q: %v", data, err)
	}
	return result
}

// Sidecar is the sidecar document as read back from disk.
type Sidecar struct {
	Filename         string            `json:"filename"`
	MimeType         string            `json:"mimeType"`
	LastModified     string            `json:"lastModified"`
	Description      string            `json:"description"`
	Keywords         []string          `json:"keywords"`
	OriginalSize     int64             `json:"originalSize"`
	OriginalName     string            `json:"originalName"`
	ExtendedMetadata map[string]string `json:"extendedMetadata"`
}
